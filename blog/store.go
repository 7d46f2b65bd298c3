package blog

import "context"

// UserStore persists users. Lookups return nil, nil when nothing matches.
type UserStore interface {
	CreateUser(ctx context.Context, user *User) error
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByID(ctx context.Context, id int64) (*User, error)
}

// PostStore persists posts and their comments. Lookups return nil, nil when
// nothing matches; updates and deletes of a missing row return ErrNotFound.
type PostStore interface {
	ListPosts(ctx context.Context) ([]Post, error)
	GetPost(ctx context.Context, id int64) (*Post, error)
	CreatePost(ctx context.Context, post *Post) error
	UpdatePost(ctx context.Context, post *Post) error
	DeletePost(ctx context.Context, id int64) error
	CreateComment(ctx context.Context, comment *Comment) error
	GetCommentsByPost(ctx context.Context, postID int64) ([]Comment, error)
}

var (
	_ UserStore = (*Database)(nil)
	_ PostStore = (*Database)(nil)
)
