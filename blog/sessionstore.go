package blog

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/pkg/errors"
	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// tokenHash keys stored sessions by an HMAC of the cookie token, so rows
// read out of a store cannot be replayed as cookies without the secret.
func tokenHash(secret []byte, token string) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(token))
	return mac.Sum(nil)
}

var (
	_ scs.CtxStore = (*PostgresSessionStore)(nil)
	_ scs.CtxStore = (*RedisSessionStore)(nil)
)

// PostgresSessionStore keeps sessions in the sessions table so remembered
// logins survive restarts.
type PostgresSessionStore struct {
	db     *Database
	secret []byte
}

func NewPostgresSessionStore(db *Database, secret []byte) *PostgresSessionStore {
	return &PostgresSessionStore{db: db, secret: secret}
}

func (p *PostgresSessionStore) FindCtx(ctx context.Context, token string) ([]byte, bool, error) {
	return p.db.GetSession(ctx, tokenHash(p.secret, token))
}

func (p *PostgresSessionStore) CommitCtx(ctx context.Context, token string, b []byte, expiry time.Time) error {
	return p.db.SaveSession(ctx, tokenHash(p.secret, token), b, expiry)
}

func (p *PostgresSessionStore) DeleteCtx(ctx context.Context, token string) error {
	return p.db.DeleteSession(ctx, tokenHash(p.secret, token))
}

func (p *PostgresSessionStore) Find(token string) ([]byte, bool, error) {
	return p.FindCtx(context.Background(), token)
}

func (p *PostgresSessionStore) Commit(token string, b []byte, expiry time.Time) error {
	return p.CommitCtx(context.Background(), token, b, expiry)
}

func (p *PostgresSessionStore) Delete(token string) error {
	return p.DeleteCtx(context.Background(), token)
}

// StartCleanup deletes expired sessions every interval until ctx is done.
func (p *PostgresSessionStore) StartCleanup(ctx context.Context, interval time.Duration, log logrus.FieldLogger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.db.DeleteExpiredSessions(ctx)
			if err != nil {
				log.WithError(err).Warn("session cleanup failed")
				continue
			}
			if n > 0 {
				log.WithField("deleted", n).Debug("expired sessions removed")
			}
		}
	}
}

const redisSessionPrefix = "quill:session:"

// RedisSessionStore keeps sessions in redis with a TTL matching the session
// expiry, for deployments running several instances.
type RedisSessionStore struct {
	rdb    *redis.Client
	secret []byte
}

func NewRedisSessionStore(rdb *redis.Client, secret []byte) *RedisSessionStore {
	return &RedisSessionStore{rdb: rdb, secret: secret}
}

func (r *RedisSessionStore) key(token string) string {
	return redisSessionPrefix + hex.EncodeToString(tokenHash(r.secret, token))
}

func (r *RedisSessionStore) FindCtx(ctx context.Context, token string) ([]byte, bool, error) {
	b, err := r.rdb.Get(ctx, r.key(token)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "redis get session")
	}
	return b, true, nil
}

func (r *RedisSessionStore) CommitCtx(ctx context.Context, token string, b []byte, expiry time.Time) error {
	ttl := time.Until(expiry)
	if ttl <= 0 {
		return r.DeleteCtx(ctx, token)
	}
	return errors.Wrap(r.rdb.Set(ctx, r.key(token), b, ttl).Err(), "redis set session")
}

func (r *RedisSessionStore) DeleteCtx(ctx context.Context, token string) error {
	return errors.Wrap(r.rdb.Del(ctx, r.key(token)).Err(), "redis delete session")
}

func (r *RedisSessionStore) Find(token string) ([]byte, bool, error) {
	return r.FindCtx(context.Background(), token)
}

func (r *RedisSessionStore) Commit(token string, b []byte, expiry time.Time) error {
	return r.CommitCtx(context.Background(), token, b, expiry)
}

func (r *RedisSessionStore) Delete(token string) error {
	return r.DeleteCtx(context.Background(), token)
}
