package sqlite

import (
	"fmt"

	"github.com/aussiebroadwan/stepup/internal/auth/store/drivers/sqldb"
	"github.com/aussiebroadwan/stepup/internal/auth/store/drivers/sqlite/migrations"

	"github.com/golang-migrate/migrate/v4/database/sqlite"
)

// ApplyMigrations applies any pending migrations from the embedded files.
func (s *Store) ApplyMigrations() error {
	driver, err := sqlite.WithInstance(s.DB(), &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("sqlite: migrate driver: %w", err)
	}
	return sqldb.Migrate("sqlite", migrations.Migrations, driver)
}
