package blog

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2/memstore"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// memStore is an in-memory UserStore and PostStore with the same
// constraints as the postgres schema.
type memStore struct {
	mu       sync.Mutex
	users    []User
	posts    []Post
	comments []Comment
	lastID   int64
}

func newMemStore() *memStore { return &memStore{} }

func (m *memStore) nextID() int64 {
	m.lastID++
	return m.lastID
}

func (m *memStore) CreateUser(ctx context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return ErrDuplicateEmail
		}
	}
	user.ID = m.nextID()
	m.users = append(m.users, *user)
	return nil
}

func (m *memStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, nil
}

func (m *memStore) GetUserByID(ctx context.Context, id int64) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userLocked(id), nil
}

func (m *memStore) userLocked(id int64) *User {
	for _, u := range m.users {
		if u.ID == id {
			return &u
		}
	}
	return nil
}

func (m *memStore) ListPosts(ctx context.Context) ([]Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Post(nil), m.posts...), nil
}

func (m *memStore) GetPost(ctx context.Context, id int64) (*Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := m.postIndex(id); i >= 0 {
		p := m.posts[i]
		return &p, nil
	}
	return nil, nil
}

func (m *memStore) postIndex(id int64) int {
	for i, p := range m.posts {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (m *memStore) titleTaken(title string, except int64) bool {
	for _, p := range m.posts {
		if p.Title == title && p.ID != except {
			return true
		}
	}
	return false
}

func (m *memStore) CreatePost(ctx context.Context, post *Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.titleTaken(post.Title, 0) {
		return ErrDuplicateTitle
	}
	author := m.userLocked(post.AuthorID)
	if author == nil {
		return errors.New("author does not exist")
	}
	post.ID = m.nextID()
	post.AuthorName = author.Name
	m.posts = append(m.posts, *post)
	return nil
}

func (m *memStore) UpdatePost(ctx context.Context, post *Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.postIndex(post.ID)
	if i < 0 {
		return ErrNotFound
	}
	if m.titleTaken(post.Title, post.ID) {
		return ErrDuplicateTitle
	}
	m.posts[i] = *post
	return nil
}

func (m *memStore) DeletePost(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.postIndex(id)
	if i < 0 {
		return ErrNotFound
	}
	m.posts = append(m.posts[:i], m.posts[i+1:]...)
	kept := m.comments[:0]
	for _, c := range m.comments {
		if c.PostID != id {
			kept = append(kept, c)
		}
	}
	m.comments = kept
	return nil
}

func (m *memStore) CreateComment(ctx context.Context, comment *Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.postIndex(comment.PostID) < 0 {
		return errors.Wrapf(ErrNotFound, "post %d", comment.PostID)
	}
	comment.ID = m.nextID()
	comment.CreatedAt = time.Now().UTC()
	m.comments = append(m.comments, *comment)
	return nil
}

func (m *memStore) GetCommentsByPost(ctx context.Context, postID int64) ([]Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Comment
	for _, c := range m.comments {
		if c.PostID == postID {
			out = append(out, c)
		}
	}
	return out, nil
}

// fakeMailer records messages and fails while err is set.
type fakeMailer struct {
	mu   sync.Mutex
	sent []ContactMessage
	err  error
}

func (f *fakeMailer) Send(ctx context.Context, m ContactMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m)
	return nil
}

func (f *fakeMailer) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeMailer) messages() []ContactMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ContactMessage(nil), f.sent...)
}

func (m *memStore) allPosts() []Post {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Post(nil), m.posts...)
}

func mustRegister(t *testing.T, users UserStore, name, email, password string) *User {
	t.Helper()
	u, err := NewCredentials(users, bcrypt.MinCost).Register(context.Background(), name, email, password)
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return u
}

type testBlog struct {
	store  *memStore
	mailer *fakeMailer
	admin  *User
	server *httptest.Server
}

func newTestBlog(t *testing.T) *testBlog {
	t.Helper()
	store := newMemStore()
	admin := mustRegister(t, store, "Admin", "admin@example.com", "admin-pass")
	mailer := &fakeMailer{}
	log := logrus.New()
	log.Out = io.Discard

	h, err := NewHandlers(Options{
		Users:        store,
		Posts:        store,
		SessionStore: memstore.New(),
		AdminID:      admin.ID,
		PasswordCost: bcrypt.MinCost,
		Mailer:       mailer,
		Logger:       log,
	})
	if err != nil {
		t.Fatalf("NewHandlers: %v", err)
	}
	srv := httptest.NewServer(h.Handler())
	t.Cleanup(srv.Close)
	return &testBlog{store: store, mailer: mailer, admin: admin, server: srv}
}

// testClient is a browser-like client that keeps cookies and does not
// follow redirects.
type testClient struct {
	t    *testing.T
	c    *http.Client
	base string
}

func (b *testBlog) client(t *testing.T) *testClient {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return &testClient{
		t: t,
		c: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		base: b.server.URL,
	}
}

func (tc *testClient) do(req *http.Request) (*http.Response, string) {
	tc.t.Helper()
	resp, err := tc.c.Do(req)
	if err != nil {
		tc.t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		tc.t.Fatalf("read body: %v", err)
	}
	return resp, string(body)
}

func (tc *testClient) get(path string) (*http.Response, string) {
	tc.t.Helper()
	req, err := http.NewRequest(http.MethodGet, tc.base+path, nil)
	if err != nil {
		tc.t.Fatal(err)
	}
	return tc.do(req)
}

func (tc *testClient) post(path string, form url.Values) (*http.Response, string) {
	tc.t.Helper()
	req, err := http.NewRequest(http.MethodPost, tc.base+path, strings.NewReader(form.Encode()))
	if err != nil {
		tc.t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return tc.do(req)
}

func (tc *testClient) login(email, password string) {
	tc.t.Helper()
	resp, _ := tc.post("/login", url.Values{"email": {email}, "password": {password}})
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/" {
		tc.t.Fatalf("login %s: got %d to %q", email, resp.StatusCode, resp.Header.Get("Location"))
	}
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("%s %s: status %d, want %d", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, want)
	}
}
