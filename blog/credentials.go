package blog

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// Credentials registers users and checks their passwords.
type Credentials struct {
	users UserStore
	cost  int
}

// NewCredentials returns a Credentials hashing at the given bcrypt cost.
// A cost of zero selects DefaultPasswordCost.
func NewCredentials(users UserStore, cost int) *Credentials {
	if cost == 0 {
		cost = DefaultPasswordCost
	}
	return &Credentials{users: users, cost: cost}
}

// Register stores a new user with a hashed password. The caller is
// responsible for logging the new user in.
func (c *Credentials) Register(ctx context.Context, name, email, password string) (*User, error) {
	user := NewUser(name, email)
	switch {
	case user.Name == "":
		return nil, errors.Wrap(ErrValidation, "name is required")
	case user.Email == "" || !strings.Contains(user.Email, "@"):
		return nil, errors.Wrap(ErrValidation, "a valid email is required")
	case password == "":
		return nil, errors.Wrap(ErrValidation, "password is required")
	case len(password) > MaxPasswordLen:
		return nil, errors.Wrap(ErrValidation, "password must be at most 72 bytes")
	}

	existing, err := c.users.GetUserByEmail(ctx, user.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicateEmail
	}
	if err := user.SetPassword(password, c.cost); err != nil {
		return nil, err
	}
	// The unique index still catches a racing registration for the same email.
	if err := c.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (c *Credentials) FindByEmail(ctx context.Context, email string) (*User, error) {
	return c.users.GetUserByEmail(ctx, NormalizeEmail(email))
}

// VerifyPassword never errors to the caller; a corrupt hash counts as a
// mismatch.
func (c *Credentials) VerifyPassword(user *User, password string) bool {
	if user == nil {
		return false
	}
	ok, err := user.PasswordMatches(password)
	return ok && err == nil
}

// Authenticate returns the user owning email if password matches. Unknown
// emails and wrong passwords both yield ErrInvalidCredentials.
func (c *Credentials) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := c.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if !c.VerifyPassword(user, password) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// EnsureUser returns the user registered under email, registering it first
// if needed. It is used to bootstrap the admin account.
func (c *Credentials) EnsureUser(ctx context.Context, name, email, password string) (*User, error) {
	user, err := c.FindByEmail(ctx, email)
	if err != nil || user != nil {
		return user, err
	}
	return c.Register(ctx, name, email, password)
}
