package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	upMarker         = "-- +goose Up"
	downMarker       = "-- +goose Down"
	stmtBeginMarker  = "-- +goose StatementBegin"
	stmtEndMarker    = "-- +goose StatementEnd"
	dropTableKeyword = "DROP TABLE "
)

var sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

// ValidateDir checks every migration in dir: filename shape, unique
// versions, Up before Down, balanced statement blocks, and guarded drops.
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
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		name := e.Name()

		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			return fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		version := m[1]
		if prev, ok := seen[version]; ok {
			return fmt.Errorf("duplicate migration version %s in %q and %q", version, prev, name)
		}
		seen[version] = name

		full := filepath.Join(dir, name)
		b, err := os.ReadFile(full)
		if err != nil {
			return fmt.Errorf("read file %q: %w", full, err)
		}
		if err := validateBody(string(b)); err != nil {
			return fmt.Errorf("migration %q: %w", name, err)
		}
	}
	return nil
}

func validateBody(txt string) error {
	up := strings.Index(txt, upMarker)
	if up < 0 {
		return fmt.Errorf("missing %q", upMarker)
	}
	down := strings.Index(txt, downMarker)
	if down < 0 {
		return fmt.Errorf("missing %q", downMarker)
	}
	if down < up {
		return fmt.Errorf("%q must come before %q", upMarker, downMarker)
	}
	if begins, ends := strings.Count(txt, stmtBeginMarker), strings.Count(txt, stmtEndMarker); begins != ends {
		return fmt.Errorf("unbalanced statement blocks: %d begin, %d end", begins, ends)
	}
	for _, line := range strings.Split(txt, "\n") {
		stmt := strings.ToUpper(strings.TrimSpace(line))
		if strings.HasPrefix(stmt, dropTableKeyword) && !strings.HasPrefix(stmt, dropTableKeyword+"IF EXISTS") {
			return fmt.Errorf("drop without IF EXISTS: %q", strings.TrimSpace(line))
		}
	}
	return nil
}
