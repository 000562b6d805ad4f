package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/learnbill-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID   uuid.UUID
	AgencyID uuid.UUID
	Role     enums.MemberRole
	JTI      string
}

// AccessTokenClaims represents the typed JWT issued to agency users.
type AccessTokenClaims struct {
	UserID   uuid.UUID        `json:"user_id"`
	AgencyID uuid.UUID        `json:"agency_id"`
	Role     enums.MemberRole `json:"role"`
	jwt.RegisteredClaims
}
