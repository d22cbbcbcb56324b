// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered user account.
//
// UserID is the caller-chosen login identifier. It is unique and never
// changes after sign-up. ID is our own internal row identifier (an xid), kept
// separate so the primary key never depends on what a client sends us.
//
// PASSWORD AT REST:
// Password holds the bcrypt hash, never the plaintext. The `json:"-"` tag
// keeps the hash out of every JSON response; request bodies are decoded into
// dedicated request structs (see handler/user.go) which do carry the
// plaintext on its way in.
//
// Name, Email and Attributes are profile data. The service stores them as
// given and never interprets them.
type User struct {
	ID         string            `json:"id"`
	UserID     string            `json:"userid"`
	Password   string            `json:"-"`
	Name       string            `json:"name"`
	Email      string            `json:"email"`
	Attributes map[string]string `json:"attributes,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// UserPatch carries the fields of a partial update.
//
// A nil pointer means "not supplied, keep the stored value". Attributes is
// replaced as a whole when non-nil. UserID is immutable and has no field
// here.
type UserPatch struct {
	Password   *string           `json:"password,omitempty"`
	Name       *string           `json:"name,omitempty"`
	Email      *string           `json:"email,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Apply merges the supplied fields of p over u. Password is copied as given;
// hashing it first is the caller's job.
func (p UserPatch) Apply(u *User) {
	if p.Password != nil {
		u.Password = *p.Password
	}
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.Attributes != nil {
		u.Attributes = p.Attributes
	}
}
