package enums

import "fmt"

// TokenType identifies which token bucket a ledger entry draws from.
type TokenType string

const (
	TokenTypeIndividual TokenType = "INDIVIDUAL"
	TokenTypeGroup      TokenType = "GROUP"
)

var validTokenTypes = []TokenType{
	TokenTypeIndividual,
	TokenTypeGroup,
}

// String implements fmt.Stringer.
func (t TokenType) String() string {
	return string(t)
}

// IsValid reports whether the value is known.
func (t TokenType) IsValid() bool {
	for _, candidate := range validTokenTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTokenType converts raw input into a TokenType.
func ParseTokenType(value string) (TokenType, error) {
	for _, candidate := range validTokenTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid token type %q", value)
}
