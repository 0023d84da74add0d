package migrate

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/multierr"
)

const versionLayout = "20060102150405"

var (
	fileNameRe  = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.sql$`)
	nonSlugRe   = regexp.MustCompile(`[^a-z0-9]+`)
	requiredTag = []string{"-- +goose Up", "-- +goose Down"}
)

// now is swapped in tests to get deterministic versions.
var now = time.Now

func slug(name string) string {
	s := nonSlugRe.ReplaceAllString(strings.ToLower(name), "_")
	return strings.Trim(s, "_")
}

// CreateSQLMigration writes an empty goose migration named
// <dir>/<YYYYMMDDHHMMSS>_<slug>.sql and returns its path.
func CreateSQLMigration(dir string, name string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	s := slug(name)
	if s == "" {
		return "", fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %q: %w", dir, err)
	}

	full := filepath.Join(dir, fmt.Sprintf("%s_%s.sql", now().UTC().Format(versionLayout), s))
	body := fmt.Sprintf("-- +goose Up\n-- %s\n\n-- +goose Down\n-- revert %s\n", s, s)

	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create migration: %w", err)
	}
	_, werr := f.WriteString(body)
	if err := multierr.Append(werr, f.Close()); err != nil {
		return "", fmt.Errorf("write migration %q: %w", full, err)
	}
	return full, nil
}

// ValidateDir checks the migrations stored on disk under dir.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	return ValidateFS(os.DirFS(dir), ".")
}

// ValidateFS checks every .sql file under dir in fsys: the file name must
// carry a unique 14-digit version and the body must declare both goose
// sections. All problems are reported together.
func ValidateFS(fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}

	var problems error
	versions := make(map[string]string, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || path.Ext(name) != ".sql" {
			continue
		}

		match := fileNameRe.FindStringSubmatch(name)
		if match == nil {
			problems = multierr.Append(problems, fmt.Errorf("%s: expected YYYYMMDDHHMMSS_name.sql", name))
			continue
		}
		if other, dup := versions[match[1]]; dup {
			problems = multierr.Append(problems, fmt.Errorf("%s: version %s already used by %s", name, match[1], other))
			continue
		}
		versions[match[1]] = name

		body, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			problems = multierr.Append(problems, fmt.Errorf("%s: %w", name, err))
			continue
		}
		for _, tag := range requiredTag {
			if !strings.Contains(string(body), tag) {
				problems = multierr.Append(problems, fmt.Errorf("%s: missing %q", name, tag))
			}
		}
	}
	return problems
}
