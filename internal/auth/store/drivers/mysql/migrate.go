package mysql

import (
	"fmt"

	"github.com/aussiebroadwan/stepup/internal/auth/store/drivers/mysql/migrations"
	"github.com/aussiebroadwan/stepup/internal/auth/store/drivers/sqldb"

	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
)

// ApplyMigrations applies any pending migrations from the embedded files.
func (s *Store) ApplyMigrations() error {
	driver, err := migratemysql.WithInstance(s.DB(), &migratemysql.Config{})
	if err != nil {
		return fmt.Errorf("mysql: migrate driver: %w", err)
	}
	return sqldb.Migrate("mysql", migrations.Migrations, driver)
}
