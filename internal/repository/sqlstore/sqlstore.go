// Package sqlstore implements repository.Store on top of database/sql.
//
// The queries are written once with ? placeholders. A Dialect supplies the
// few things that differ between drivers: placeholder style and how a
// unique-key violation is reported. The driver packages (sqlite, mysql,
// postgres) open the connection, bootstrap the schema and hand the pool to
// New together with their Dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/user-directory/internal/apperror"
	"github.com/sakif/user-directory/internal/model"
	"github.com/sakif/user-directory/internal/repository"
)

var _ repository.Store = (*Store)(nil)

// Dialect describes the driver-specific parts of the SQL the store issues.
type Dialect struct {
	// Name prefixes wrapped errors, e.g. "sqlite: creating user alice: ...".
	Name string

	// Rebind rewrites a query written with ? placeholders. Nil means the
	// driver accepts ? as is.
	Rebind func(query string) string

	// IsUniqueViolation reports whether err is the driver's duplicate-key
	// error.
	IsUniqueViolation func(err error) bool
}

// DollarPlaceholders rewrites ? placeholders to $1, $2, ... (PostgreSQL).
// The store's queries never contain a literal question mark.
func DollarPlaceholders(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// Store is a users table behind a *sql.DB pool.
type Store struct {
	conn    *sql.DB
	dialect Dialect
	now     func() time.Time
}

// New wraps an open, migrated connection pool.
func New(conn *sql.DB, dialect Dialect) *Store {
	if dialect.IsUniqueViolation == nil {
		dialect.IsUniqueViolation = func(error) bool { return false }
	}
	return &Store{
		conn:    conn,
		dialect: dialect,
		now:     defaultNow,
	}
}

// Timestamps are kept at microsecond precision, the finest MySQL DATETIME(6)
// and PostgreSQL TIMESTAMPTZ store, so a value read back equals the one written.
func defaultNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("%s: ping: %w", s.dialect.Name, err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) query(q string) string {
	if s.dialect.Rebind == nil {
		return q
	}
	return s.dialect.Rebind(q)
}

const selectColumns = `SELECT id, userid, password_hash, name, email, attributes, created_at, updated_at FROM users`

// Create inserts a new user row. The row id (an xid, sortable by creation
// time) and both timestamps are generated here and written back into user
// only once the INSERT succeeded.
func (s *Store) Create(ctx context.Context, user *model.User) error {
	attrs, err := encodeAttributes(user.Attributes)
	if err != nil {
		return fmt.Errorf("%s: creating user %s: %w", s.dialect.Name, user.UserID, err)
	}

	id := xid.New().String()
	now := s.now()

	_, err = s.conn.ExecContext(ctx, s.query(
		`INSERT INTO users (id, userid, password_hash, name, email, attributes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		id,
		user.UserID,
		user.Password,
		user.Name,
		user.Email,
		attrs,
		now,
		now,
	)
	if err != nil {
		if s.dialect.IsUniqueViolation(err) {
			return fmt.Errorf("%s: creating user: %w", s.dialect.Name, apperror.Conflict("user", user.UserID))
		}
		return fmt.Errorf("%s: creating user %s: %w", s.dialect.Name, user.UserID, err)
	}

	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

// GetByUserID returns the user with the given userid, or
// apperror.ErrNotFound.
func (s *Store) GetByUserID(ctx context.Context, userID string) (*model.User, error) {
	row := s.conn.QueryRowContext(ctx, s.query(selectColumns+` WHERE userid = ?`), userID)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", userID)
		}
		return nil, fmt.Errorf("%s: getting user %s: %w", s.dialect.Name, userID, err)
	}
	return u, nil
}

// List returns all users, oldest first. created_at ties are broken by the
// xid, whose counter keeps rows from one process in insertion order.
func (s *Store) List(ctx context.Context) ([]model.User, error) {
	rows, err := s.conn.QueryContext(ctx, s.query(selectColumns+` ORDER BY created_at, id`))
	if err != nil {
		return nil, fmt.Errorf("%s: listing users: %w", s.dialect.Name, err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scanning user row: %w", s.dialect.Name, err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterating users: %w", s.dialect.Name, err)
	}

	return users, nil
}

// Update overwrites the mutable columns of the row matching user.UserID.
// id, userid and created_at never change.
func (s *Store) Update(ctx context.Context, user *model.User) error {
	attrs, err := encodeAttributes(user.Attributes)
	if err != nil {
		return fmt.Errorf("%s: updating user %s: %w", s.dialect.Name, user.UserID, err)
	}

	now := s.now()
	result, err := s.conn.ExecContext(ctx, s.query(
		`UPDATE users
		 SET password_hash = ?, name = ?, email = ?, attributes = ?, updated_at = ?
		 WHERE userid = ?`),
		user.Password,
		user.Name,
		user.Email,
		attrs,
		now,
		user.UserID,
	)
	if err != nil {
		return fmt.Errorf("%s: updating user %s: %w", s.dialect.Name, user.UserID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: checking rows affected: %w", s.dialect.Name, err)
	}
	if affected == 0 {
		return apperror.NotFound("user", user.UserID)
	}

	user.UpdatedAt = now
	return nil
}

// Delete removes the row matching userID, or returns apperror.ErrNotFound.
func (s *Store) Delete(ctx context.Context, userID string) error {
	result, err := s.conn.ExecContext(ctx, s.query(`DELETE FROM users WHERE userid = ?`), userID)
	if err != nil {
		return fmt.Errorf("%s: deleting user %s: %w", s.dialect.Name, userID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: checking rows affected: %w", s.dialect.Name, err)
	}
	if affected == 0 {
		return apperror.NotFound("user", userID)
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*model.User, error) {
	var (
		u     model.User
		attrs string
	)
	if err := row.Scan(
		&u.ID,
		&u.UserID,
		&u.Password,
		&u.Name,
		&u.Email,
		&attrs,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		return nil, err
	}

	m, err := decodeAttributes(attrs)
	if err != nil {
		return nil, fmt.Errorf("decoding attributes of %s: %w", u.UserID, err)
	}
	u.Attributes = m
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()

	return &u, nil
}

// Attributes live in a TEXT column as a JSON object. An empty map and nil
// both store as "{}" and read back as nil.
func encodeAttributes(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encoding attributes: %w", err)
	}
	return string(b), nil
}

func decodeAttributes(s string) (map[string]string, error) {
	if s == "" || s == "{}" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, nil
	}
	return m, nil
}
