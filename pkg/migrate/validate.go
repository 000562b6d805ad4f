package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	markerUp         = "-- +goose Up"
	markerDown       = "-- +goose Down"
	markerStmtBegin  = "-- +goose StatementBegin"
	markerStmtEnd    = "-- +goose StatementEnd"
	versionLayout    = "20060102150405"
	migrationPattern = "YYYYMMDDHHMMSS_name.sql"
)

var (
	sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)
	// dev autorun replays migrations against long-lived databases, so
	// creates must tolerate existing objects.
	bareCreateRe = regexp.MustCompile(`(?i)\bCREATE\s+(UNIQUE\s+)?(TABLE|INDEX)\s+(\w+)`)
)

// ValidateDir checks every migration in dir: the filename carries a unique
// version, the Up section precedes Down, statement markers are balanced, and
// tables and indexes are created with IF NOT EXISTS. An empty dir is an error.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}

	seen := map[string]string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			return fmt.Errorf("invalid migration filename %q (expected %s)", name, migrationPattern)
		}
		version := m[1]
		if prev, ok := seen[version]; ok {
			return fmt.Errorf("duplicate migration version %s in %q and %q", version, prev, name)
		}
		seen[version] = name

		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read migration %q: %w", name, err)
		}
		if err := validateMigration(string(b)); err != nil {
			return fmt.Errorf("migration %q: %w", name, err)
		}
	}

	if len(seen) == 0 {
		return fmt.Errorf("no migrations found in %q", dir)
	}
	return nil
}

func validateMigration(txt string) error {
	up := strings.Index(txt, markerUp)
	down := strings.Index(txt, markerDown)
	switch {
	case up < 0:
		return fmt.Errorf("missing %q", markerUp)
	case down < 0:
		return fmt.Errorf("missing %q", markerDown)
	case down < up:
		return fmt.Errorf("%q must come before %q", markerUp, markerDown)
	}

	for section, body := range map[string]string{"up": txt[up:down], "down": txt[down:]} {
		if strings.Count(body, markerStmtBegin) != strings.Count(body, markerStmtEnd) {
			return fmt.Errorf("unbalanced statement markers in %s section", section)
		}
	}

	for _, m := range bareCreateRe.FindAllStringSubmatch(txt[up:down], -1) {
		if !strings.EqualFold(m[3], "IF") {
			return fmt.Errorf("CREATE %s %s must use IF NOT EXISTS", strings.ToUpper(m[2]), m[3])
		}
	}
	return nil
}
