package blog

import (
	"context"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/pkg/errors"
)

const (
	sessionUserKey   = "user_id"
	flashMessageKey  = "flash"
	flashCategoryKey = "flash_category"

	defaultCookieName = "quill_session"
)

// Actor is the identity a request acts as. The zero value is anonymous.
type Actor struct {
	User *User
}

// Anonymous is the actor of a request with no logged-in user.
var Anonymous = Actor{}

func (a Actor) Authenticated() bool { return a.User != nil }

// ID is zero for the anonymous actor.
func (a Actor) ID() int64 {
	if a.User == nil {
		return 0
	}
	return a.User.ID
}

type ctxKeyActor struct{}

func withActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ctxKeyActor{}, a)
}

// ActorFrom returns the actor resolved for the request, or Anonymous.
func ActorFrom(ctx context.Context) Actor {
	a, _ := ctx.Value(ctxKeyActor{}).(Actor)
	return a
}

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Category string
	Message  string
}

type SessionConfig struct {
	// Store is one of SessionStorePostgres, SessionStoreRedis or
	// SessionStoreMemory.
	Store           string        `yaml:"store"`
	Lifetime        time.Duration `yaml:"lifetime"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	CookieName      string        `yaml:"cookie_name"`
	SecureCookie    bool          `yaml:"secure_cookie"`
}

const (
	SessionStorePostgres = "postgres"
	SessionStoreRedis    = "redis"
	SessionStoreMemory   = "memory"
)

// Sessions maps session cookies to users. All methods taking a context
// must run inside LoadAndSave.
type Sessions struct {
	*scs.SessionManager
	users UserStore
}

func NewSessions(store scs.Store, users UserStore, cfg SessionConfig) *Sessions {
	m := scs.New()
	m.Store = store
	if cfg.Lifetime > 0 {
		m.Lifetime = cfg.Lifetime
	}
	m.Cookie.Name = cfg.CookieName
	if m.Cookie.Name == "" {
		m.Cookie.Name = defaultCookieName
	}
	m.Cookie.HttpOnly = true
	m.Cookie.SameSite = http.SameSiteLaxMode
	m.Cookie.Secure = cfg.SecureCookie
	// Only remembered sessions get a persistent cookie, see Login.
	m.Cookie.Persist = false
	return &Sessions{SessionManager: m, users: users}
}

// Login binds user to the session and marks it remembered. If the session
// already belongs to a user nothing changes and already is true.
func (s *Sessions) Login(ctx context.Context, user *User) (already bool, err error) {
	current, err := s.actor(ctx)
	if err != nil {
		return false, err
	}
	if current.Authenticated() {
		return true, nil
	}
	if err := s.RenewToken(ctx); err != nil {
		return false, errors.Wrap(err, "renew session token")
	}
	s.Put(ctx, sessionUserKey, user.ID)
	s.RememberMe(ctx, true)
	return false, nil
}

// CurrentActor resolves the request's session to a user. Sessions naming a
// user that no longer exists resolve to Anonymous.
func (s *Sessions) CurrentActor(r *http.Request) (Actor, error) {
	return s.actor(r.Context())
}

func (s *Sessions) actor(ctx context.Context) (Actor, error) {
	id := s.GetInt64(ctx, sessionUserKey)
	if id == 0 {
		return Anonymous, nil
	}
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return Anonymous, err
	}
	if user == nil {
		s.Remove(ctx, sessionUserKey)
		return Anonymous, nil
	}
	user.Sanitize()
	return Actor{User: user}, nil
}

// Logout deletes the session from the store so its token stops resolving.
func (s *Sessions) Logout(ctx context.Context) error {
	return errors.Wrap(s.Destroy(ctx), "destroy session")
}

func (s *Sessions) Flash(ctx context.Context, category, message string) {
	s.Put(ctx, flashCategoryKey, category)
	s.Put(ctx, flashMessageKey, message)
}

func (s *Sessions) PopFlash(ctx context.Context) *Flash {
	msg := s.PopString(ctx, flashMessageKey)
	category := s.PopString(ctx, flashCategoryKey)
	if msg == "" {
		return nil
	}
	return &Flash{Category: category, Message: msg}
}
