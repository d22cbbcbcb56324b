// Package repository declares the storage interfaces the service layer
// depends on. Concrete drivers live in sub-packages (sqlite, mysql, postgres).
package repository

import (
	"context"

	"github.com/sakif/user-directory/internal/model"
)

// UserRepository is the create/read/update/delete surface over the users
// table, keyed by model.User.UserID.
//
// Implementations return apperror.ErrNotFound when no row matches and
// apperror.ErrConflict when Create hits the unique userid constraint.
type UserRepository interface {
	// Create inserts user and fills in ID, CreatedAt and UpdatedAt.
	Create(ctx context.Context, user *model.User) error
	GetByUserID(ctx context.Context, userID string) (*model.User, error)
	// List returns every user in insertion order.
	List(ctx context.Context) ([]model.User, error)
	// Update writes all mutable columns of user and bumps UpdatedAt.
	Update(ctx context.Context, user *model.User) error
	Delete(ctx context.Context, userID string) error
}

// Store is a UserRepository that owns a database connection pool.
type Store interface {
	UserRepository
	Ping(ctx context.Context) error
	Close() error
}
