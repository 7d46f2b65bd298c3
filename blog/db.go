// blog/db.go
package blog

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
    name TEXT NOT NULL,
    email TEXT NOT NULL UNIQUE,
    password TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS blog_posts (
    id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
    title VARCHAR(250) NOT NULL UNIQUE,
    subtitle VARCHAR(250) NOT NULL,
    date VARCHAR(250) NOT NULL,
    body TEXT NOT NULL,
    img_url VARCHAR(250) NOT NULL,
    author_id BIGINT NOT NULL REFERENCES users(id)
);
CREATE TABLE IF NOT EXISTS comments (
    id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
    text TEXT NOT NULL,
    author_id BIGINT NOT NULL REFERENCES users(id),
    post_id BIGINT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT fk_post
        FOREIGN KEY(post_id)
        REFERENCES blog_posts(id)
        ON DELETE CASCADE
);
CREATE TABLE IF NOT EXISTS sessions (
    hash BYTEA PRIMARY KEY,
    data BYTEA NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    expires_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_comments_on_post_id ON comments(post_id);
CREATE INDEX IF NOT EXISTS idx_sessions_on_expires_at ON sessions(expires_at);
`

// foreignKeyViolation is the postgres SQLSTATE for foreign_key_violation.
const foreignKeyViolation = "23503"

// Database is the single long-lived pool shared by every request.
type Database struct {
	pool *pgxpool.Pool
}

func NewDatabase(ctx context.Context, connectionString string) (*Database, error) {
	pool, err := pgxpool.New(ctx, connectionString)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create connection pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}
	return &Database{pool: pool}, nil
}

func (d *Database) CreateTables(ctx context.Context) error {
	_, err := d.pool.Exec(ctx, schema)
	return errors.Wrap(err, "create tables")
}

func (d *Database) Close() {
	d.pool.Close()
}

// --- Post Functions ---

const postColumns = `p.id, p.title, p.subtitle, p.date, p.body, p.img_url, p.author_id, u.name`

func scanPost(row pgx.Row) (*Post, error) {
	var p Post
	err := row.Scan(&p.ID, &p.Title, &p.Subtitle, &p.Date, &p.Body, &p.ImgURL, &p.AuthorID, &p.AuthorName)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (d *Database) ListPosts(ctx context.Context) ([]Post, error) {
	query := `SELECT ` + postColumns + ` FROM blog_posts p JOIN users u ON u.id = p.author_id ORDER BY p.id ASC`
	rows, err := d.pool.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "list posts")
	}
	defer rows.Close()
	var posts []Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan post")
		}
		posts = append(posts, *p)
	}
	return posts, rows.Err()
}

func (d *Database) GetPost(ctx context.Context, id int64) (*Post, error) {
	query := `SELECT ` + postColumns + ` FROM blog_posts p JOIN users u ON u.id = p.author_id WHERE p.id = $1`
	post, err := scanPost(d.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil // Return nil, nil for not found
	}
	return post, errors.Wrapf(err, "get post %d", id)
}

func (d *Database) CreatePost(ctx context.Context, post *Post) error {
	query := `
        WITH ins AS (
            INSERT INTO blog_posts (title, subtitle, date, body, img_url, author_id)
            VALUES ($1, $2, $3, $4, $5, $6)
            RETURNING id, author_id
        )
        SELECT ins.id, u.name FROM ins JOIN users u ON u.id = ins.author_id`
	err := d.pool.QueryRow(ctx, query,
		post.Title,
		post.Subtitle,
		post.Date,
		post.Body,
		post.ImgURL,
		post.AuthorID,
	).Scan(&post.ID, &post.AuthorName)
	return errors.Wrap(translateUnique(err), "create post")
}

func (d *Database) UpdatePost(ctx context.Context, post *Post) error {
	query := `
        UPDATE blog_posts SET
            title = $2,
            subtitle = $3,
            body = $4,
            img_url = $5,
            author_id = $6
        WHERE id = $1`
	tag, err := d.pool.Exec(ctx, query,
		post.ID,
		post.Title,
		post.Subtitle,
		post.Body,
		post.ImgURL,
		post.AuthorID,
	)
	if err != nil {
		return errors.Wrapf(translateUnique(err), "update post %d", post.ID)
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(ErrNotFound, "update post %d", post.ID)
	}
	return nil
}

// DeletePost removes the post; its comments go with it through the
// ON DELETE CASCADE on comments.post_id.
func (d *Database) DeletePost(ctx context.Context, id int64) error {
	tag, err := d.pool.Exec(ctx, `DELETE FROM blog_posts WHERE id = $1`, id)
	if err != nil {
		return errors.Wrapf(err, "delete post %d", id)
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(ErrNotFound, "delete post %d", id)
	}
	return nil
}

// --- Comment Functions ---

func (d *Database) CreateComment(ctx context.Context, comment *Comment) error {
	query := `
        WITH ins AS (
            INSERT INTO comments (text, author_id, post_id)
            VALUES ($1, $2, $3)
            RETURNING id, author_id, created_at
        )
        SELECT ins.id, ins.created_at, u.name FROM ins JOIN users u ON u.id = ins.author_id`
	err := d.pool.QueryRow(ctx, query, comment.Text, comment.AuthorID, comment.PostID).
		Scan(&comment.ID, &comment.CreatedAt, &comment.AuthorName)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation && pgErr.ConstraintName == "fk_post" {
		return errors.Wrapf(ErrNotFound, "post %d", comment.PostID)
	}
	return errors.Wrap(err, "create comment")
}

func (d *Database) GetCommentsByPost(ctx context.Context, postID int64) ([]Comment, error) {
	query := `SELECT c.id, c.text, c.author_id, u.name, c.post_id, c.created_at
              FROM comments c
              JOIN users u ON u.id = c.author_id
              WHERE c.post_id = $1
              ORDER BY c.id ASC`
	rows, err := d.pool.Query(ctx, query, postID)
	if err != nil {
		return nil, errors.Wrapf(err, "comments for post %d", postID)
	}
	defer rows.Close()
	var comments []Comment
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.Text, &c.AuthorID, &c.AuthorName, &c.PostID, &c.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan comment")
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// --- User Functions ---

func (d *Database) CreateUser(ctx context.Context, user *User) error {
	query := `INSERT INTO users (name, email, password, created_at) VALUES ($1, $2, $3, $4) RETURNING id`
	err := d.pool.QueryRow(ctx, query,
		user.Name,
		user.Email,
		user.Password,
		user.Created,
	).Scan(&user.ID)
	return errors.Wrap(translateUnique(err), "create user")
}

func (d *Database) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT id, name, email, password, created_at FROM users WHERE email = $1`
	return d.getUser(ctx, query, email)
}

func (d *Database) GetUserByID(ctx context.Context, id int64) (*User, error) {
	query := `SELECT id, name, email, password, created_at FROM users WHERE id = $1`
	return d.getUser(ctx, query, id)
}

func (d *Database) getUser(ctx context.Context, query string, arg any) (*User, error) {
	var user User
	err := d.pool.QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Password,
		&user.Created,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "get user")
	}
	return &user, nil
}

// --- Session Functions ---

func (d *Database) SaveSession(ctx context.Context, hash, data []byte, expiresAt time.Time) error {
	query := `
        INSERT INTO sessions (hash, data, expires_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (hash) DO UPDATE SET
            data = EXCLUDED.data,
            expires_at = EXCLUDED.expires_at;
    `
	_, err := d.pool.Exec(ctx, query, hash, data, expiresAt)
	return errors.Wrap(err, "save session")
}

// GetSession returns the data of an unexpired session, or nil, false.
func (d *Database) GetSession(ctx context.Context, hash []byte) ([]byte, bool, error) {
	var data []byte
	query := `SELECT data FROM sessions WHERE hash = $1 AND expires_at > NOW()`
	err := d.pool.QueryRow(ctx, query, hash).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, errors.Wrap(err, "get session")
	}
	return data, true, nil
}

func (d *Database) DeleteSession(ctx context.Context, hash []byte) error {
	_, err := d.pool.Exec(ctx, `DELETE FROM sessions WHERE hash = $1`, hash)
	return errors.Wrap(err, "delete session")
}

func (d *Database) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	tag, err := d.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, errors.Wrap(err, "delete expired sessions")
	}
	return tag.RowsAffected(), nil
}
