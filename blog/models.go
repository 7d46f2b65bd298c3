// blog/models.go
package blog

import (
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// DateLayout is how a post's publication date is stored and shown.
const DateLayout = "January 02, 2006"

// Post is a blog entry. Date is a display string stamped at creation.
type Post struct {
	ID         int64  `json:"id" db:"id"`
	Title      string `json:"title" db:"title"`
	Subtitle   string `json:"subtitle" db:"subtitle"`
	Date       string `json:"date" db:"date"`
	Body       string `json:"body" db:"body"`
	ImgURL     string `json:"img_url" db:"img_url"`
	AuthorID   int64  `json:"author_id" db:"author_id"`
	AuthorName string `json:"author_name" db:"author_name"`
}

// Comment belongs to exactly one post and one author.
type Comment struct {
	ID         int64     `json:"id" db:"id"`
	Text       string    `json:"text" db:"text"`
	AuthorID   int64     `json:"author_id" db:"author_id"`
	AuthorName string    `json:"author_name" db:"author_name"`
	PostID     int64     `json:"post_id" db:"post_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// PostFields are the admin-editable parts of a post.
type PostFields struct {
	Title    string
	Subtitle string
	Body     string
	ImgURL   string
}

// maxFieldLen bounds the VARCHAR columns of blog_posts.
const maxFieldLen = 250

func (f *PostFields) normalize() {
	f.Title = strings.TrimSpace(f.Title)
	f.Subtitle = strings.TrimSpace(f.Subtitle)
	f.ImgURL = strings.TrimSpace(f.ImgURL)
}

// Validate reports the first missing or malformed field.
func (f PostFields) Validate() error {
	f.normalize()
	switch {
	case f.Title == "":
		return errors.Wrap(ErrValidation, "title is required")
	case f.Subtitle == "":
		return errors.Wrap(ErrValidation, "subtitle is required")
	case strings.TrimSpace(f.Body) == "":
		return errors.Wrap(ErrValidation, "body is required")
	case f.ImgURL == "":
		return errors.Wrap(ErrValidation, "image URL is required")
	case utf8.RuneCountInString(f.Title) > maxFieldLen:
		return errors.Wrap(ErrValidation, "title must be at most 250 characters")
	case utf8.RuneCountInString(f.Subtitle) > maxFieldLen:
		return errors.Wrap(ErrValidation, "subtitle must be at most 250 characters")
	case utf8.RuneCountInString(f.ImgURL) > maxFieldLen:
		return errors.Wrap(ErrValidation, "image URL must be at most 250 characters")
	}
	u, err := url.Parse(f.ImgURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.Wrap(ErrValidation, "image URL must be an http(s) URL")
	}
	return nil
}

func (p *Post) apply(f PostFields) {
	f.normalize()
	p.Title = f.Title
	p.Subtitle = f.Subtitle
	p.Body = f.Body
	p.ImgURL = f.ImgURL
}

// Fields returns the editable fields of p, used to prefill the edit form.
func (p *Post) Fields() PostFields {
	return PostFields{Title: p.Title, Subtitle: p.Subtitle, Body: p.Body, ImgURL: p.ImgURL}
}
