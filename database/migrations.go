package database

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
)

//go:embed migrations/*
var migrationsFS embed.FS

// MigrationsTempDir creates a temporary directory, populates it with the migration files of the
// given driver, and returns the path to that directory.
// This is useful to run database migrations with only the binary, without having to ship around
// the migration files separately.
//
// It is the caller's responsibility to remove the directory when it is no longer needed.
func MigrationsTempDir(driver string) (string, error) {
	tmpDir, err := os.MkdirTemp("", "renbridge-migrations-*")
	if err != nil {
		return "", err
	}

	root := path.Join("migrations", driver)
	mFS, err := fs.Sub(migrationsFS, root)
	if err != nil {
		return "", err
	}

	if err := fs.WalkDir(mFS, ".", func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		dst := filepath.Join(tmpDir, p)
		if dst == tmpDir {
			return nil
		}

		if d.IsDir() {
			if err := os.Mkdir(dst, 0700); err != nil {
				return fmt.Errorf("failed to mkdir %q: %w", dst, err)
			}
			return nil
		}

		content, err := migrationsFS.ReadFile(path.Join(root, p))
		if err != nil {
			return err
		}

		return os.WriteFile(dst, content, 0600)
	}); err != nil {
		return "", err
	}

	return tmpDir, nil
}

// upMigrations returns the content of all up migrations of a driver in order.
func upMigrations(driver string) ([]string, error) {
	root := path.Join("migrations", driver)
	entries, err := fs.ReadDir(migrationsFS, root)
	if err != nil {
		return nil, err
	}

	ret := make([]string, 0)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".sql" || !isUpMigration(entry.Name()) {
			continue
		}

		content, err := migrationsFS.ReadFile(path.Join(root, entry.Name()))
		if err != nil {
			return nil, err
		}
		ret = append(ret, string(content))
	}

	return ret, nil
}

func isUpMigration(name string) bool {
	return filepath.Ext(name[:len(name)-len(".sql")]) == ".up"
}
