package mysql

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/stepup/internal/auth/store/drivers/sqldb"
	gomysql "github.com/go-sql-driver/mysql"
)

// errDupEntry is ER_DUP_ENTRY.
const errDupEntry = 1062

type Store struct {
	*sqldb.Store
}

// NewStore opens a MySQL database from a go-sql-driver DSN such as
// "user:pass@tcp(localhost:3306)/stepup". Options needed by the store are
// forced on.
func NewStore(dsn string) (*Store, error) {
	cfg, err := gomysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql: parse dsn: %w", err)
	}
	// UPDATE must report matched rows, not changed rows, for ErrNotFound.
	cfg.ClientFoundRows = true
	cfg.MultiStatements = true

	connector, err := gomysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql: %w", err)
	}

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{
		Store: sqldb.New(db, sqldb.Dialect{Name: "mysql", IsUniqueViolation: isUniqueViolation}),
	}, nil
}

func isUniqueViolation(err error) bool {
	var me *gomysql.MySQLError
	return errors.As(err, &me) && me.Number == errDupEntry
}
