// Package mysql is the MySQL backend of the user store, built on
// github.com/go-sql-driver/mysql. The schema is applied at startup with
// golang-migrate from the embedded migrations directory.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/sakif/user-directory/internal/repository/mysql/migrations"
	"github.com/sakif/user-directory/internal/repository/sqlstore"
)

// erDupEntry is ER_DUP_ENTRY, raised when an INSERT hits a unique key.
const erDupEntry = 1062

// Dialect is the sqlstore configuration for MySQL.
var Dialect = sqlstore.Dialect{
	Name:              "mysql",
	IsUniqueViolation: isUniqueViolation,
}

func isUniqueViolation(err error) bool {
	var me *gomysql.MySQLError
	return errors.As(err, &me) && me.Number == erDupEntry
}

// NormalizeDSN parses dsn and forces the options the store relies on:
//   - parseTime, so DATETIME columns scan into time.Time
//   - loc=UTC, matching the UTC timestamps the store writes
//   - clientFoundRows, so an UPDATE that matches a row but changes nothing
//     still reports one affected row instead of looking like "not found"
func NormalizeDSN(dsn string) (string, error) {
	cfg, err := gomysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parsing DSN: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.ClientFoundRows = true
	return cfg.FormatDSN(), nil
}

// New connects to MySQL, applies pending migrations and returns the user
// store. dsn uses the go-sql-driver format, e.g.
// "user:pass@tcp(localhost:3306)/users".
func New(ctx context.Context, dsn string) (*sqlstore.Store, error) {
	normalized, err := NormalizeDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql: %w", err)
	}

	conn, err := sql.Open("mysql", normalized)
	if err != nil {
		return nil, fmt.Errorf("mysql: opening database: %w", err)
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("mysql: pinging database: %w", err)
	}

	if err := applyMigrations(normalized); err != nil {
		conn.Close()
		return nil, fmt.Errorf("mysql: running migrations: %w", err)
	}

	return sqlstore.New(conn, Dialect), nil
}

// applyMigrations runs the embedded migrations over a dedicated connection
// that is closed again once the schema is current.
func applyMigrations(dsn string) (err error) {
	source, err := iofs.New(migrations.Migrations, ".")
	if err != nil {
		return fmt.Errorf("loading embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, "mysql://"+dsn)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if err == nil {
			err = errors.Join(srcErr, dbErr)
		}
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
