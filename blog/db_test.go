package blog

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-test/deep"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

// testDatabase connects to QUILL_TEST_DATABASE_URL and empties every table.
// The database is shared, so these tests must not run in parallel.
func testDatabase(t *testing.T) *Database {
	t.Helper()
	dsn := os.Getenv("QUILL_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("QUILL_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := NewDatabase(ctx, dsn)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(db.Close)
	if err := db.CreateTables(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := db.pool.Exec(ctx, `TRUNCATE comments, blog_posts, users, sessions RESTART IDENTITY CASCADE`); err != nil {
		t.Fatal(err)
	}
	return db
}

func TestDatabaseUsers(t *testing.T) {
	db := testDatabase(t)
	ctx := context.Background()
	creds := NewCredentials(db, bcrypt.MinCost)

	ann, err := creds.Register(ctx, "Ann", "ann@example.com", "pw")
	if err != nil {
		t.Fatal(err)
	}
	bob, err := creds.Register(ctx, "Bob", "bob@example.com", "pw")
	if err != nil {
		t.Fatal(err)
	}
	if bob.ID <= ann.ID {
		t.Fatalf("ids not increasing: %d then %d", ann.ID, bob.ID)
	}

	dup := NewUser("Ann", "ann@example.com")
	dup.Password = "x"
	if err := db.CreateUser(ctx, dup); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("unique email not enforced: %v", err)
	}

	got, err := db.GetUserByID(ctx, ann.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Email != "ann@example.com" || !creds.VerifyPassword(got, "pw") {
		t.Fatalf("stored user: %+v", got)
	}
	missing, err := db.GetUserByEmail(ctx, "nobody@example.com")
	if err != nil || missing != nil {
		t.Fatalf("missing user: %+v %v", missing, err)
	}
}

func TestDatabaseContent(t *testing.T) {
	db := testDatabase(t)
	ctx := context.Background()
	admin := Actor{User: mustRegister(t, db, "Admin", "admin@example.com", "pw")}
	editor := Actor{User: mustRegister(t, db, "Editor", "editor@example.com", "pw")}
	c := NewContent(db)

	post, err := c.CreatePost(ctx, helloFields, admin)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.CreatePost(ctx, helloFields, admin); !errors.Is(err, ErrDuplicateTitle) {
		t.Fatalf("duplicate title: %v", err)
	}

	f := helloFields
	f.Title = "Hello v2"
	if _, err := c.UpdatePost(ctx, post.ID, f, editor); err != nil {
		t.Fatal(err)
	}
	got, err := c.GetPost(ctx, post.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := &Post{
		ID:         post.ID,
		Title:      "Hello v2",
		Subtitle:   "World",
		Date:       post.Date,
		Body:       "Text",
		ImgURL:     "http://x/img.png",
		AuthorID:   editor.ID(),
		AuthorName: "Editor",
	}
	if diff := deep.Equal(got, want); diff != nil {
		t.Fatal(diff)
	}

	f.Title = "Another"
	other, err := c.CreatePost(ctx, f, admin)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.AddComment(ctx, "mine", editor, post.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := c.AddComment(ctx, "theirs", admin, other.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := c.AddComment(ctx, "nowhere", admin, 424242); !errors.Is(err, ErrNotFound) {
		t.Fatalf("comment on missing post: %v", err)
	}
	comments, err := c.ListComments(ctx, post.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(comments) != 1 || comments[0].Text != "mine" || comments[0].AuthorName != "Editor" {
		t.Fatalf("comments: %+v", comments)
	}

	if err := c.DeletePost(ctx, post.ID); err != nil {
		t.Fatal(err)
	}
	if err := c.DeletePost(ctx, post.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
	if comments, _ := c.ListComments(ctx, post.ID); len(comments) != 0 {
		t.Fatalf("comments survived their post: %+v", comments)
	}
	posts, err := c.ListPosts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(posts) != 1 || posts[0].ID != other.ID {
		t.Fatalf("posts after delete: %+v", posts)
	}
}

func TestPostgresSessionStore(t *testing.T) {
	db := testDatabase(t)
	ctx := context.Background()
	store := NewPostgresSessionStore(db, []byte("test-secret"))

	if err := store.CommitCtx(ctx, "tok", []byte("v1"), time.Now().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := store.Commit("tok", []byte("v2"), time.Now().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	b, found, err := store.Find("tok")
	if err != nil || !found || string(b) != "v2" {
		t.Fatalf("Find: %q %v %v", b, found, err)
	}

	if err := store.Commit("old", []byte("x"), time.Now().Add(-time.Minute)); err != nil {
		t.Fatal(err)
	}
	if _, found, _ := store.Find("old"); found {
		t.Fatal("expired session returned")
	}
	n, err := db.DeleteExpiredSessions(ctx)
	if err != nil || n != 1 {
		t.Fatalf("DeleteExpiredSessions: %d %v", n, err)
	}

	if err := store.Delete("tok"); err != nil {
		t.Fatal(err)
	}
	if _, found, _ := store.Find("tok"); found {
		t.Fatal("deleted session returned")
	}
}
