package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/user-directory/internal/apperror"
	"github.com/sakif/user-directory/internal/auth"
	"github.com/sakif/user-directory/internal/model"
	"github.com/sakif/user-directory/internal/repository/sqlite"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeUserRepo is an in-memory repository.UserRepository. Each *Err field,
// when set, is returned by the matching method to simulate a database
// failure.
type fakeUserRepo struct {
	mu     sync.Mutex
	users  map[string]model.User // keyed by userid
	order  []string
	nextID int

	createErr error
	getErr    error
	listErr   error
	updateErr error
	deleteErr error

	// deleteBeforeRemove runs inside Delete before the row is removed,
	// to simulate a concurrent request.
	deleteBeforeRemove func()
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]model.User)}
}

func (f *fakeUserRepo) Create(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.users[user.UserID]; ok {
		return fmt.Errorf("fake: creating user: %w", apperror.Conflict("user", user.UserID))
	}
	f.nextID++
	user.ID = fmt.Sprintf("fake-%d", f.nextID)
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	f.users[user.UserID] = *user
	f.order = append(f.order, user.UserID)
	return nil
}

func (f *fakeUserRepo) GetByUserID(_ context.Context, userID string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.users[userID]
	if !ok {
		return nil, apperror.NotFound("user", userID)
	}
	return &u, nil
}

func (f *fakeUserRepo) List(_ context.Context) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := []model.User{}
	for _, id := range f.order {
		out = append(out, f.users[id])
	}
	return out, nil
}

func (f *fakeUserRepo) Update(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.users[user.UserID]; !ok {
		return apperror.NotFound("user", user.UserID)
	}
	user.UpdatedAt = time.Now().UTC()
	f.users[user.UserID] = *user
	return nil
}

func (f *fakeUserRepo) Delete(_ context.Context, userID string) error {
	if f.deleteBeforeRemove != nil {
		f.deleteBeforeRemove()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.users[userID]; !ok {
		return apperror.NotFound("user", userID)
	}
	delete(f.users, userID)
	for i, id := range f.order {
		if id == userID {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeUserRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users)
}

// newTestUserService wires a UserService with bcrypt.MinCost so hashing is
// fast, and a logger writing into the returned buffer.
func newTestUserService(t *testing.T, repo *fakeUserRepo) (*UserService, *bytes.Buffer) {
	t.Helper()
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewUserService(repo, auth.NewPasswordService(bcrypt.MinCost), logger), &logs
}

func mustCreate(t *testing.T, svc *UserService, userID, password string) *model.User {
	t.Helper()
	u, err := svc.CreateUser(context.Background(), &model.User{UserID: userID, Password: password})
	if err != nil {
		t.Fatalf("CreateUser(%q) error = %v", userID, err)
	}
	return u
}

func strPtr(s string) *string { return &s }

var errDBDown = errors.New("database is down")

// =========================================================================
// CreateUser
// =========================================================================

func TestCreateUser_HashesPassword(t *testing.T) {
	repo := newFakeUserRepo()
	svc, _ := newTestUserService(t, repo)

	input := &model.User{UserID: "alice", Password: "secret", Name: "Alice"}
	created, err := svc.CreateUser(context.Background(), input)
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	if created.ID == "" {
		t.Error("CreateUser() returned a record without an ID")
	}
	if created.Password == "secret" {
		t.Fatal("CreateUser() stored the plaintext password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(created.Password), []byte("secret")); err != nil {
		t.Errorf("stored hash does not match the password: %v", err)
	}
	if input.Password != "secret" {
		t.Error("CreateUser() must not modify the caller's struct")
	}

	stored, _ := repo.GetByUserID(context.Background(), "alice")
	if stored.Password != created.Password {
		t.Error("returned record differs from the stored one")
	}
}

func TestCreateUser_MissingFields(t *testing.T) {
	tests := []struct {
		name      string
		user      *model.User
		wantField string
	}{
		{"nil user", nil, ""},
		{"no userid", &model.User{Password: "secret"}, "userid"},
		{"no password", &model.User{UserID: "alice"}, "password"},
		{"password too long", &model.User{UserID: "alice", Password: strings.Repeat("x", auth.MaxPasswordBytes+1)}, "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeUserRepo()
			svc, _ := newTestUserService(t, repo)

			_, err := svc.CreateUser(context.Background(), tt.user)
			if !errors.Is(err, apperror.ErrValidation) {
				t.Fatalf("CreateUser() error = %v, want ErrValidation", err)
			}
			var appErr *apperror.AppError
			if errors.As(err, &appErr) && appErr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", appErr.Field, tt.wantField)
			}
			if repo.count() != 0 {
				t.Error("nothing should be stored after a validation failure")
			}
		})
	}
}

func TestCreateUser_DuplicateIsPersistenceConflict(t *testing.T) {
	repo := newFakeUserRepo()
	svc, logs := newTestUserService(t, repo)
	mustCreate(t, svc, "alice", "secret")

	_, err := svc.CreateUser(context.Background(), &model.User{UserID: "alice", Password: "other"})
	if !errors.Is(err, apperror.ErrPersistence) {
		t.Errorf("error = %v, want ErrPersistence", err)
	}
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("error = %v, want it to also match ErrConflict", err)
	}
	if !strings.Contains(err.Error(), "creating user") {
		t.Errorf("error message %q should name the operation", err.Error())
	}
	if !strings.Contains(logs.String(), "store operation failed") {
		t.Error("store failure was not logged")
	}
}

func TestCreateUser_StoreFailure(t *testing.T) {
	repo := newFakeUserRepo()
	repo.createErr = errDBDown
	svc, _ := newTestUserService(t, repo)

	_, err := svc.CreateUser(context.Background(), &model.User{UserID: "alice", Password: "secret"})
	if !errors.Is(err, apperror.ErrPersistence) || !errors.Is(err, errDBDown) {
		t.Errorf("error = %v, want ErrPersistence wrapping the cause", err)
	}
}

// =========================================================================
// GetUserByUserID / GetAllUsers
// =========================================================================

func TestGetUserByUserID(t *testing.T) {
	repo := newFakeUserRepo()
	svc, _ := newTestUserService(t, repo)
	created := mustCreate(t, svc, "alice", "secret")

	got, err := svc.GetUserByUserID(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GetUserByUserID() error = %v", err)
	}
	if got == nil || got.ID != created.ID {
		t.Fatalf("GetUserByUserID() = %+v, want %s", got, created.ID)
	}
	if got.Password == "secret" {
		t.Error("stored password equals the plaintext")
	}
}

func TestGetUserByUserID_AbsentIsNil(t *testing.T) {
	svc, _ := newTestUserService(t, newFakeUserRepo())

	got, err := svc.GetUserByUserID(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("GetUserByUserID() error = %v, want nil", err)
	}
	if got != nil {
		t.Errorf("GetUserByUserID() = %+v, want nil", got)
	}
}

func TestGetUserByUserID_StoreFailure(t *testing.T) {
	repo := newFakeUserRepo()
	repo.getErr = errDBDown
	svc, _ := newTestUserService(t, repo)

	_, err := svc.GetUserByUserID(context.Background(), "alice")
	if !errors.Is(err, apperror.ErrPersistence) {
		t.Errorf("error = %v, want ErrPersistence", err)
	}
}

func TestGetAllUsers(t *testing.T) {
	repo := newFakeUserRepo()
	svc, _ := newTestUserService(t, repo)

	users, err := svc.GetAllUsers(context.Background())
	if err != nil {
		t.Fatalf("GetAllUsers() error = %v", err)
	}
	if len(users) != 0 {
		t.Fatalf("len = %d, want 0", len(users))
	}

	mustCreate(t, svc, "carol", "pw")
	mustCreate(t, svc, "alice", "pw")

	users, err = svc.GetAllUsers(context.Background())
	if err != nil {
		t.Fatalf("GetAllUsers() error = %v", err)
	}
	if len(users) != 2 || users[0].UserID != "carol" || users[1].UserID != "alice" {
		t.Errorf("GetAllUsers() = %v, want [carol alice]", users)
	}

	repo.listErr = errDBDown
	if _, err := svc.GetAllUsers(context.Background()); !errors.Is(err, apperror.ErrPersistence) {
		t.Errorf("error = %v, want ErrPersistence", err)
	}
}

// =========================================================================
// DeleteUser
// =========================================================================

func TestDeleteUser(t *testing.T) {
	repo := newFakeUserRepo()
	svc, _ := newTestUserService(t, repo)
	mustCreate(t, svc, "alice", "secret")

	deleted, err := svc.DeleteUser(context.Background(), "alice")
	if err != nil {
		t.Fatalf("DeleteUser() error = %v", err)
	}
	if !deleted {
		t.Error("DeleteUser() = false, want true")
	}
	if repo.count() != 0 {
		t.Error("user still stored after DeleteUser()")
	}
}

func TestDeleteUser_Ghost(t *testing.T) {
	repo := newFakeUserRepo()
	svc, _ := newTestUserService(t, repo)
	mustCreate(t, svc, "alice", "secret")

	deleted, err := svc.DeleteUser(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("DeleteUser() error = %v", err)
	}
	if deleted {
		t.Error("DeleteUser(ghost) = true, want false")
	}
	if repo.count() != 1 {
		t.Error("DeleteUser(ghost) changed the store")
	}
}

func TestDeleteUser_ConcurrentDeleteStillTrue(t *testing.T) {
	repo := newFakeUserRepo()
	svc, _ := newTestUserService(t, repo)
	mustCreate(t, svc, "alice", "secret")

	repo.deleteBeforeRemove = func() {
		repo.deleteBeforeRemove = nil
		repo.mu.Lock()
		delete(repo.users, "alice")
		repo.mu.Unlock()
	}

	deleted, err := svc.DeleteUser(context.Background(), "alice")
	if err != nil {
		t.Fatalf("DeleteUser() error = %v", err)
	}
	if !deleted {
		t.Error("DeleteUser() = false, want true when the row vanished mid-call")
	}
}

func TestDeleteUser_StoreFailure(t *testing.T) {
	repo := newFakeUserRepo()
	svc, _ := newTestUserService(t, repo)
	mustCreate(t, svc, "alice", "secret")
	repo.deleteErr = errDBDown

	deleted, err := svc.DeleteUser(context.Background(), "alice")
	if !errors.Is(err, apperror.ErrPersistence) {
		t.Errorf("error = %v, want ErrPersistence", err)
	}
	if deleted {
		t.Error("DeleteUser() = true on failure")
	}
}

// =========================================================================
// UpdateUser
// =========================================================================

func TestUpdateUser_OnlySuppliedFieldsChange(t *testing.T) {
	repo := newFakeUserRepo()
	svc, _ := newTestUserService(t, repo)
	created, err := svc.CreateUser(context.Background(), &model.User{
		UserID:   "alice",
		Password: "secret",
		Name:     "Alice",
		Email:    "alice@example.com",
	})
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	updated, err := svc.UpdateUser(context.Background(), "alice", model.UserPatch{Name: strPtr("Alice L.")})
	if err != nil {
		t.Fatalf("UpdateUser() error = %v", err)
	}
	if updated == nil {
		t.Fatal("UpdateUser() = nil for an existing user")
	}
	if updated.Name != "Alice L." {
		t.Errorf("Name = %q, want %q", updated.Name, "Alice L.")
	}
	if updated.Email != "alice@example.com" {
		t.Errorf("Email = %q, want unchanged", updated.Email)
	}
	if updated.Password != created.Password {
		t.Error("password hash changed although no password was supplied")
	}
	if updated.ID != created.ID || updated.UserID != "alice" {
		t.Error("identity fields changed")
	}
}

func TestUpdateUser_PasswordIsRehashed(t *testing.T) {
	repo := newFakeUserRepo()
	svc, _ := newTestUserService(t, repo)
	mustCreate(t, svc, "alice", "secret")

	updated, err := svc.UpdateUser(context.Background(), "alice", model.UserPatch{Password: strPtr("n3w")})
	if err != nil {
		t.Fatalf("UpdateUser() error = %v", err)
	}
	if updated.Password == "n3w" {
		t.Fatal("UpdateUser() stored the plaintext password")
	}

	if u, _ := svc.SignIn(context.Background(), "alice", "n3w"); u == nil {
		t.Error("SignIn with the new password failed")
	}
	if u, _ := svc.SignIn(context.Background(), "alice", "secret"); u != nil {
		t.Error("SignIn with the old password still works")
	}
}

func TestUpdateUser_EmptyPasswordIsIgnored(t *testing.T) {
	repo := newFakeUserRepo()
	svc, _ := newTestUserService(t, repo)
	created := mustCreate(t, svc, "alice", "secret")

	updated, err := svc.UpdateUser(context.Background(), "alice", model.UserPatch{Password: strPtr("")})
	if err != nil {
		t.Fatalf("UpdateUser() error = %v", err)
	}
	if updated.Password != created.Password {
		t.Error("empty password replaced the stored hash")
	}
}

func TestUpdateUser_Absent(t *testing.T) {
	repo := newFakeUserRepo()
	svc, _ := newTestUserService(t, repo)

	updated, err := svc.UpdateUser(context.Background(), "ghost", model.UserPatch{Name: strPtr("Ghost")})
	if err != nil {
		t.Fatalf("UpdateUser() error = %v", err)
	}
	if updated != nil {
		t.Errorf("UpdateUser() = %+v, want nil", updated)
	}
	if repo.count() != 0 {
		t.Error("UpdateUser() created a user")
	}
}

func TestUpdateUser_AbsentWithLongPassword(t *testing.T) {
	repo := newFakeUserRepo()
	svc, _ := newTestUserService(t, repo)

	long := strings.Repeat("p", auth.MaxPasswordBytes+8)
	updated, err := svc.UpdateUser(context.Background(), "ghost", model.UserPatch{Password: &long})
	if err != nil {
		t.Fatalf("UpdateUser() error = %v, want nil for an unknown user", err)
	}
	if updated != nil {
		t.Errorf("UpdateUser() = %+v, want nil", updated)
	}
}

func TestUpdateUser_PasswordTooLong(t *testing.T) {
	repo := newFakeUserRepo()
	svc, _ := newTestUserService(t, repo)
	mustCreate(t, svc, "alice", "secret")

	long := strings.Repeat("p", auth.MaxPasswordBytes+1)
	_, err := svc.UpdateUser(context.Background(), "alice", model.UserPatch{Password: &long})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation", err)
	}
}

func TestUpdateUser_StoreFailure(t *testing.T) {
	repo := newFakeUserRepo()
	svc, _ := newTestUserService(t, repo)
	mustCreate(t, svc, "alice", "secret")
	repo.updateErr = errDBDown

	_, err := svc.UpdateUser(context.Background(), "alice", model.UserPatch{Name: strPtr("x")})
	if !errors.Is(err, apperror.ErrPersistence) {
		t.Errorf("error = %v, want ErrPersistence", err)
	}
}

// =========================================================================
// SignIn
// =========================================================================

func TestSignIn(t *testing.T) {
	repo := newFakeUserRepo()
	svc, _ := newTestUserService(t, repo)
	created := mustCreate(t, svc, "alice", "secret")

	tests := []struct {
		name     string
		userID   string
		password string
		wantUser bool
	}{
		{"correct credentials", "alice", "secret", true},
		{"wrong password", "alice", "wrong", false},
		{"case matters", "alice", "Secret", false},
		{"unknown user", "ghost", "secret", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.SignIn(context.Background(), tt.userID, tt.password)
			if err != nil {
				t.Fatalf("SignIn() error = %v", err)
			}
			if tt.wantUser {
				if got == nil || got.ID != created.ID {
					t.Errorf("SignIn() = %+v, want alice", got)
				}
			} else if got != nil {
				t.Errorf("SignIn() = %+v, want nil", got)
			}
		})
	}
}

func TestSignIn_MissingFields(t *testing.T) {
	svc, _ := newTestUserService(t, newFakeUserRepo())

	if _, err := svc.SignIn(context.Background(), "", "secret"); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("SignIn(no userid) error = %v, want ErrValidation", err)
	}
	if _, err := svc.SignIn(context.Background(), "alice", ""); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("SignIn(no password) error = %v, want ErrValidation", err)
	}
}

func TestSignIn_CorruptHashIsLoggedAndRejected(t *testing.T) {
	repo := newFakeUserRepo()
	svc, logs := newTestUserService(t, repo)
	repo.users["mallory"] = model.User{UserID: "mallory", Password: "not-a-hash"}

	got, err := svc.SignIn(context.Background(), "mallory", "anything")
	if err != nil || got != nil {
		t.Fatalf("SignIn() = (%v, %v), want (nil, nil)", got, err)
	}
	if !strings.Contains(logs.String(), "stored password hash is unusable") {
		t.Error("corrupt hash was not logged")
	}
}

func TestRequiresUserID(t *testing.T) {
	svc, _ := newTestUserService(t, newFakeUserRepo())
	ctx := context.Background()

	if _, err := svc.GetUserByUserID(ctx, ""); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("GetUserByUserID(\"\") error = %v", err)
	}
	if _, err := svc.DeleteUser(ctx, ""); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("DeleteUser(\"\") error = %v", err)
	}
	if _, err := svc.UpdateUser(ctx, "", model.UserPatch{}); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("UpdateUser(\"\") error = %v", err)
	}
}

// =========================================================================
// SCENARIO (real SQLite store)
// =========================================================================

func TestScenario_AliceAgainstSQLite(t *testing.T) {
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("sqlite.New() error = %v", err)
	}
	defer store.Close()

	svc := NewUserService(store, auth.NewPasswordService(bcrypt.MinCost), slog.New(slog.DiscardHandler))
	ctx := context.Background()

	if _, err := svc.CreateUser(ctx, &model.User{UserID: "alice", Password: "secret"}); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	stored, err := svc.GetUserByUserID(ctx, "alice")
	if err != nil || stored == nil {
		t.Fatalf("GetUserByUserID() = (%v, %v)", stored, err)
	}
	if stored.Password == "secret" {
		t.Error("stored password equals the plaintext")
	}

	if u, err := svc.SignIn(ctx, "alice", "secret"); err != nil || u == nil || u.UserID != "alice" {
		t.Errorf("SignIn(alice, secret) = (%v, %v), want alice", u, err)
	}
	if u, err := svc.SignIn(ctx, "alice", "wrong"); err != nil || u != nil {
		t.Errorf("SignIn(alice, wrong) = (%v, %v), want nil", u, err)
	}

	if ok, err := svc.DeleteUser(ctx, "ghost"); err != nil || ok {
		t.Errorf("DeleteUser(ghost) = (%v, %v), want false", ok, err)
	}

	if _, err := svc.CreateUser(ctx, &model.User{UserID: "alice", Password: "again"}); !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("duplicate CreateUser() error = %v, want ErrConflict", err)
	}
}
