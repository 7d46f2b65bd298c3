package blog

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Content owns posts and comments on top of a PostStore.
type Content struct {
	posts PostStore
	now   func() time.Time
}

func NewContent(posts PostStore) *Content {
	return &Content{posts: posts, now: time.Now}
}

func (c *Content) ListPosts(ctx context.Context) ([]Post, error) {
	return c.posts.ListPosts(ctx)
}

// GetPost returns nil, nil when id does not exist.
func (c *Content) GetPost(ctx context.Context, id int64) (*Post, error) {
	return c.posts.GetPost(ctx, id)
}

// CreatePost stores a post authored by author, dated today in server-local
// time.
func (c *Content) CreatePost(ctx context.Context, fields PostFields, author Actor) (*Post, error) {
	if !author.Authenticated() {
		return nil, ErrUnauthenticated
	}
	if err := fields.Validate(); err != nil {
		return nil, err
	}
	post := &Post{
		Date:       c.now().Format(DateLayout),
		AuthorID:   author.ID(),
		AuthorName: author.User.Name,
	}
	post.apply(fields)
	if err := c.posts.CreatePost(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

// UpdatePost overwrites the editable fields of post id. Authorship moves to
// editor; the publication date is kept.
func (c *Content) UpdatePost(ctx context.Context, id int64, fields PostFields, editor Actor) (*Post, error) {
	if !editor.Authenticated() {
		return nil, ErrUnauthenticated
	}
	if err := fields.Validate(); err != nil {
		return nil, err
	}
	post, err := c.posts.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, errors.Wrapf(ErrNotFound, "post %d", id)
	}
	post.apply(fields)
	post.AuthorID = editor.ID()
	post.AuthorName = editor.User.Name
	if err := c.posts.UpdatePost(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

func (c *Content) DeletePost(ctx context.Context, id int64) error {
	return c.posts.DeletePost(ctx, id)
}

func (c *Content) AddComment(ctx context.Context, text string, author Actor, postID int64) (*Comment, error) {
	if !author.Authenticated() {
		return nil, ErrUnauthenticated
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.Wrap(ErrValidation, "comment is empty")
	}
	comment := &Comment{
		Text:       text,
		AuthorID:   author.ID(),
		AuthorName: author.User.Name,
		PostID:     postID,
	}
	if err := c.posts.CreateComment(ctx, comment); err != nil {
		return nil, err
	}
	return comment, nil
}

// ListComments returns the comments of postID only, oldest first.
func (c *Content) ListComments(ctx context.Context, postID int64) ([]Comment, error) {
	return c.posts.GetCommentsByPost(ctx, postID)
}
