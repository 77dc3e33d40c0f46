package migrate

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const versionLayout = "20060102150405"

var (
	fileNameRe  = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)
	nonSlugRe   = regexp.MustCompile(`[^a-z0-9]+`)
	sqlTemplate = `-- +goose Up
-- +goose StatementBegin
SELECT 'up %[1]s';
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
SELECT 'down %[1]s';
-- +goose StatementEnd
`
)

// CreateSQLMigration writes <dir>/<version>_<slug>.sql from a goose
// template and returns its path. The version is the current UTC time, bumped
// past the newest file already in dir.
func CreateSQLMigration(dir, name string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	slug := strings.Trim(nonSlugRe.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if slug == "" {
		return "", fmt.Errorf("name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	files, err := scan(os.DirFS(dir), ".")
	if err != nil {
		return "", err
	}
	version, _ := strconv.ParseInt(time.Now().UTC().Format(versionLayout), 10, 64)
	if n := len(files); n > 0 && files[n-1].version >= version {
		version = files[n-1].version + 1
	}

	full := filepath.Join(dir, fmt.Sprintf("%d_%s.sql", version, slug))
	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create migration: %w", err)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, sqlTemplate, slug); err != nil {
		return "", fmt.Errorf("write migration %q: %w", full, err)
	}
	return full, nil
}

// ValidateDir checks file names, version uniqueness and goose annotations.
// The default directory is validated from the embedded copy.
func ValidateDir(dir string) error {
	if dir == "" || dir == DefaultDir {
		return validate(embedded, "migrations")
	}
	return validate(os.DirFS(dir), ".")
}

type migrationFile struct {
	name    string
	version int64
}

// scan lists .sql files under root in version order. ReadDir sorts by name,
// and the fixed-width version prefix makes that version order.
func scan(fsys fs.FS, root string) ([]migrationFile, error) {
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var files []migrationFile
	seen := map[int64]string{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		m := fileNameRe.FindStringSubmatch(e.Name())
		if m == nil {
			return nil, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", e.Name())
		}
		version, _ := strconv.ParseInt(m[1], 10, 64)
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("duplicate migration version %d in %q and %q", version, prev, e.Name())
		}
		seen[version] = e.Name()
		files = append(files, migrationFile{name: e.Name(), version: version})
	}
	return files, nil
}

func validate(fsys fs.FS, root string) error {
	files, err := scan(fsys, root)
	if err != nil {
		return err
	}
	for _, file := range files {
		if err := checkAnnotations(fsys, path.Join(root, file.name)); err != nil {
			return fmt.Errorf("migration %q: %w", file.name, err)
		}
	}
	return nil
}

// checkAnnotations requires an Up section with at least one statement,
// followed by a Down section.
func checkAnnotations(fsys fs.FS, name string) error {
	f, err := fsys.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()

	section := ""
	upStatements := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "-- +goose Up"):
			section = "up"
		case strings.HasPrefix(line, "-- +goose Down"):
			if section != "up" {
				return fmt.Errorf(`"-- +goose Down" before "-- +goose Up"`)
			}
			section = "down"
		case line == "" || strings.HasPrefix(line, "--"):
		case section == "up":
			upStatements++
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	switch {
	case section == "":
		return fmt.Errorf(`missing "-- +goose Up"`)
	case section == "up":
		return fmt.Errorf(`missing "-- +goose Down"`)
	case upStatements == 0:
		return fmt.Errorf("up section is empty")
	}
	return nil
}
