// Package service holds the business logic of the user directory.
//
//	UserHandler (HTTP) → UserService (business rules) → UserRepository (DB)
//	                   ↘ PasswordService (bcrypt)
//
// The service checks field presence, hashes passwords and turns repository
// results into the directory's contract: a missing user is a nil result,
// never an error, and every store failure comes back as an
// apperror.Persistence after being logged.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/user-directory/internal/apperror"
	"github.com/sakif/user-directory/internal/auth"
	"github.com/sakif/user-directory/internal/model"
	"github.com/sakif/user-directory/internal/repository"
)

// UserService implements the six directory operations.
//
// DEPENDENCIES (injected via NewUserService):
//   - users      repository.UserRepository  → read/write user records
//   - passwords  *auth.PasswordService      → bcrypt hashing
//   - logger     *slog.Logger               → structured logging
type UserService struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	logger    *slog.Logger
}

// NewUserService creates a UserService with all required dependencies.
func NewUserService(
	users repository.UserRepository,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		users:     users,
		passwords: passwords,
		logger:    logger,
	}
}

// CreateUser hashes user.Password and stores a new record. user itself is
// not modified; the stored record, with generated ID and timestamps, is
// returned.
//
// A duplicate userid fails with a Persistence error that also matches
// apperror.ErrConflict.
func (s *UserService) CreateUser(ctx context.Context, user *model.User) (*model.User, error) {
	if user == nil {
		return nil, apperror.ValidationFailed("", "user is required")
	}
	if err := requireUserID(user.UserID); err != nil {
		return nil, err
	}
	if user.Password == "" {
		return nil, apperror.ValidationFailed("password", "password is required")
	}

	hash, err := s.hashPassword(user.Password)
	if err != nil {
		return nil, err
	}

	record := *user
	record.Password = hash
	if err := s.users.Create(ctx, &record); err != nil {
		return nil, s.persistenceError(ctx, "creating user", user.UserID, err)
	}

	s.logger.InfoContext(ctx, "user created",
		slog.String("userid", record.UserID),
		slog.String("id", record.ID),
	)
	return &record, nil
}

// GetUserByUserID returns the matching record, or (nil, nil) when there is
// none.
func (s *UserService) GetUserByUserID(ctx context.Context, userID string) (*model.User, error) {
	if err := requireUserID(userID); err != nil {
		return nil, err
	}
	return s.lookup(ctx, "fetching user", userID)
}

// GetAllUsers returns every user in insertion order.
func (s *UserService) GetAllUsers(ctx context.Context) ([]model.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, s.persistenceError(ctx, "listing users", "", err)
	}
	return users, nil
}

// DeleteUser removes the user and reports whether one existed.
//
// The existence check and the delete are separate statements. If another
// request removes the row in between, the result is still true: the user
// existed when this call looked.
func (s *UserService) DeleteUser(ctx context.Context, userID string) (bool, error) {
	if err := requireUserID(userID); err != nil {
		return false, err
	}

	existing, err := s.lookup(ctx, "fetching user", userID)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}

	if err := s.users.Delete(ctx, userID); err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return false, s.persistenceError(ctx, "deleting user", userID, err)
	}

	s.logger.InfoContext(ctx, "user deleted", slog.String("userid", userID))
	return true, nil
}

// UpdateUser merges the supplied fields of patch into the stored record and
// returns the result, or (nil, nil) when there is no such user.
//
// A non-empty patch password is hashed once the user is found; an empty
// one counts as not supplied. Concurrent updates are last-write-wins.
func (s *UserService) UpdateUser(ctx context.Context, userID string, patch model.UserPatch) (*model.User, error) {
	if err := requireUserID(userID); err != nil {
		return nil, err
	}

	user, err := s.lookup(ctx, "fetching user", userID)
	if err != nil || user == nil {
		return nil, err
	}

	if patch.Password != nil {
		if *patch.Password == "" {
			patch.Password = nil
		} else {
			hash, err := s.hashPassword(*patch.Password)
			if err != nil {
				return nil, err
			}
			patch.Password = &hash
		}
	}

	patch.Apply(user)
	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, nil
		}
		return nil, s.persistenceError(ctx, "updating user", userID, err)
	}

	s.logger.InfoContext(ctx, "user updated", slog.String("userid", userID))
	return user, nil
}

// SignIn returns the user when password matches the stored hash, and
// (nil, nil) for an unknown userid or a wrong password. The two cases are
// indistinguishable to the caller.
func (s *UserService) SignIn(ctx context.Context, userID, password string) (*model.User, error) {
	if err := requireUserID(userID); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, apperror.ValidationFailed("password", "password is required")
	}

	user, err := s.lookup(ctx, "signing in", userID)
	if err != nil || user == nil {
		return nil, err
	}

	if err := s.passwords.Verify(user.Password, password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.WarnContext(ctx, "stored password hash is unusable",
				slog.String("userid", userID),
				slog.Any("error", err),
			)
		}
		return nil, nil
	}

	return user, nil
}

// lookup fetches a user, mapping "not found" to a nil result.
func (s *UserService) lookup(ctx context.Context, op, userID string) (*model.User, error) {
	user, err := s.users.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, nil
		}
		return nil, s.persistenceError(ctx, op, userID, err)
	}
	return user, nil
}

func (s *UserService) hashPassword(plaintext string) (string, error) {
	hash, err := s.passwords.Hash(plaintext)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return "", apperror.ValidationFailed("password",
				fmt.Sprintf("password must be %d bytes or fewer", auth.MaxPasswordBytes))
		}
		return "", fmt.Errorf("service/user: %w", err)
	}
	return hash, nil
}

// persistenceError logs a store failure and wraps it for the caller.
func (s *UserService) persistenceError(ctx context.Context, op, userID string, err error) error {
	attrs := []any{slog.String("op", op), slog.Any("error", err)}
	if userID != "" {
		attrs = append(attrs, slog.String("userid", userID))
	}
	s.logger.ErrorContext(ctx, "store operation failed", attrs...)
	return apperror.Persistence(op, err)
}

func requireUserID(userID string) error {
	if userID == "" {
		return apperror.ValidationFailed("userid", "userid is required")
	}
	return nil
}
