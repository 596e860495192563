package sqldb

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Migrate brings the schema behind driver up to the newest migration in src.
// Running it against an up-to-date schema is a no-op.
func Migrate(dialect string, src fs.FS, driver database.Driver) error {
	source, err := iofs.New(src, ".")
	if err != nil {
		return fmt.Errorf("%s: open migrations: %w", dialect, err)
	}

	instance, err := migrate.NewWithInstance("iofs", source, dialect, driver)
	if err != nil {
		return fmt.Errorf("%s: init migrate: %w", dialect, err)
	}

	if err := instance.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("%s: migrate up: %w", dialect, err)
	}
	return nil
}
