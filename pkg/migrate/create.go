package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var nameSanitizeRe = regexp.MustCompile(`[^a-z0-9_]+`)

const migrationTemplate = `-- +goose Up
-- +goose StatementBegin
-- %[1]s
-- new learning tables take the learning_ prefix and are scoped by agency_id
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- rollback %[1]s
-- +goose StatementEnd
`

// MigrationFileName returns <version>_<slug>.sql for name at the given time.
func MigrationFileName(name string, at time.Time) (string, error) {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = nameSanitizeRe.ReplaceAllString(slug, "_")
	slug = strings.Trim(slug, "_")
	if slug == "" {
		return "", fmt.Errorf("name %q results in empty sanitized filename", name)
	}
	return fmt.Sprintf("%s_%s.sql", at.UTC().Format(versionLayout), slug), nil
}

// CreateSQLMigration writes an empty goose migration into dir and returns its
// path. It refuses a version that already exists in dir, since ValidateDir
// rejects duplicate versions.
func CreateSQLMigration(dir string, name string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	filename, err := MigrationFileName(name, time.Now())
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	version := filename[:len(versionLayout)]
	clash, err := filepath.Glob(filepath.Join(dir, version+"_*.sql"))
	if err != nil {
		return "", err
	}
	if len(clash) > 0 {
		return "", fmt.Errorf("migration version %s already used by %s", version, filepath.Base(clash[0]))
	}

	slug := strings.TrimSuffix(filename[len(versionLayout)+1:], ".sql")
	fullpath := filepath.Join(dir, filename)
	if err := os.WriteFile(fullpath, []byte(fmt.Sprintf(migrationTemplate, slug)), 0o644); err != nil {
		return "", fmt.Errorf("write migration %q: %w", fullpath, err)
	}
	return fullpath, nil
}
