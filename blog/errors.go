package blog

import (
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

var (
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrDuplicateTitle     = errors.New("a post with that title already exists")
	ErrInvalidCredentials = errors.New("invalid email and/or password")
	ErrForbidden          = errors.New("forbidden")
	ErrUnauthenticated    = errors.New("login required")
	ErrNotFound           = errors.New("not found")
	ErrMailDelivery       = errors.New("mail delivery failed")
	ErrValidation         = errors.New("invalid input")
)

// uniqueViolation is the postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Constraint names postgres generates for the UNIQUE columns in schema.
const (
	usersEmailKey     = "users_email_key"
	blogPostsTitleKey = "blog_posts_title_key"
)

// translateUnique maps a unique violation on a known constraint to its
// sentinel and returns every other error unchanged.
func translateUnique(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return err
	}
	switch pgErr.ConstraintName {
	case usersEmailKey:
		return ErrDuplicateEmail
	case blogPostsTitleKey:
		return ErrDuplicateTitle
	}
	return err
}
