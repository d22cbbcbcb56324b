package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/user-directory/internal/model"
)

// UserService is the part of service.UserService the HTTP layer calls.
type UserService interface {
	CreateUser(ctx context.Context, user *model.User) (*model.User, error)
	GetUserByUserID(ctx context.Context, userID string) (*model.User, error)
	GetAllUsers(ctx context.Context) ([]model.User, error)
	DeleteUser(ctx context.Context, userID string) (bool, error)
	UpdateUser(ctx context.Context, userID string, patch model.UserPatch) (*model.User, error)
	SignIn(ctx context.Context, userID, password string) (*model.User, error)
}

// UserHandler exposes the user directory under /user.
//
// HANDLER RESPONSIBILITIES:
//   - HandleSignUp  → POST   /user/signup
//   - HandleSignIn  → POST   /user/signin
//   - HandleList    → GET    /user/users
//   - HandleGet     → GET    /user/{userid}
//   - HandleUpdate  → PUT    /user/{userid}
//   - HandleDelete  → DELETE /user/{userid}
//
// A missing user is not an HTTP error: lookups answer 200 with null and
// delete answers 200 with false.
type UserHandler struct {
	users  UserService
	logger *slog.Logger
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(users UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		users:  users,
		logger: logger,
	}
}

// SignUpRequest is the body of POST /user/signup.
type SignUpRequest struct {
	UserID     string            `json:"userid" example:"alice"`
	Password   string            `json:"password" example:"secret"`
	Name       string            `json:"name,omitempty" example:"Alice"`
	Email      string            `json:"email,omitempty" example:"alice@example.com"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// SignInRequest is the body of POST /user/signin.
type SignInRequest struct {
	UserID   string `json:"userid" example:"alice"`
	Password string `json:"password" example:"secret"`
}

// HandleSignUp creates a user.
//
//	@Summary		Sign up
//	@Description	Create a user. The password is stored as a bcrypt hash and never returned.
//	@Description	Only userid, password, name, email and attributes are stored. Other top-level fields are discarded,
//	@Description	and attributes must be a flat object of string values.
//	@Tags			Users
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SignUpRequest	true	"New user"
//	@Success		201		{object}	model.User
//	@Failure		400		{object}	ErrorResponse	"Missing userid or password"
//	@Failure		500		{object}	ErrorResponse	"Store failure, including a duplicate userid"
//	@Router			/user/signup [post]
func (h *UserHandler) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	var req SignUpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.users.CreateUser(r.Context(), &model.User{
		UserID:     req.UserID,
		Password:   req.Password,
		Name:       req.Name,
		Email:      req.Email,
		Attributes: req.Attributes,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, h.logger, http.StatusCreated, user)
}

// HandleSignIn checks a userid/password pair.
//
//	@Summary		Sign in
//	@Description	Returns the user when the password matches, null otherwise. No token or session is issued.
//	@Tags			Users
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SignInRequest	true	"Credentials"
//	@Success		200		{object}	model.User		"User, or null on unknown userid or wrong password"
//	@Failure		400		{object}	ErrorResponse
//	@Failure		429		{object}	ErrorResponse	"Too many sign-in attempts"
//	@Failure		500		{object}	ErrorResponse
//	@Router			/user/signin [post]
func (h *UserHandler) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.users.SignIn(r.Context(), req.UserID, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if user == nil {
		h.logger.InfoContext(r.Context(), "sign-in rejected", slog.String("userid", req.UserID))
	}

	writeJSON(w, h.logger, http.StatusOK, user)
}

// HandleList returns every user.
//
//	@Summary		List users
//	@Description	All users in insertion order. Not paginated.
//	@Tags			Users
//	@Produce		json
//	@Success		200	{array}		model.User
//	@Failure		500	{object}	ErrorResponse
//	@Router			/user/users [get]
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.GetAllUsers(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, users)
}

// HandleGet returns one user.
//
//	@Summary		Get user
//	@Tags			Users
//	@Produce		json
//	@Param			userid	path		string		true	"User identifier"
//	@Success		200		{object}	model.User	"User, or null when absent"
//	@Failure		500		{object}	ErrorResponse
//	@Router			/user/{userid} [get]
func (h *UserHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetUserByUserID(r.Context(), r.PathValue("userid"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, user)
}

// HandleUpdate applies a partial update.
//
//	@Summary		Update user
//	@Description	Only supplied fields change. A new password is re-hashed; an empty one is ignored.
//	@Description	userid cannot be changed, and fields outside password, name, email and attributes are discarded.
//	@Tags			Users
//	@Accept			json
//	@Produce		json
//	@Param			userid	path		string			true	"User identifier"
//	@Param			body	body		model.UserPatch	true	"Fields to change"
//	@Success		200		{object}	model.User		"Updated user, or null when absent"
//	@Failure		400		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Router			/user/{userid} [put]
func (h *UserHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var patch model.UserPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.users.UpdateUser(r.Context(), r.PathValue("userid"), patch)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, user)
}

// HandleDelete removes a user.
//
//	@Summary		Delete user
//	@Tags			Users
//	@Produce		json
//	@Param			userid	path		string	true	"User identifier"
//	@Success		200		{boolean}	boolean	"true if a user was removed, false if none existed"
//	@Failure		500		{object}	ErrorResponse
//	@Router			/user/{userid} [delete]
func (h *UserHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.users.DeleteUser(r.Context(), r.PathValue("userid"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, deleted)
}
