package blog

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type ctxKeyLog struct{}
type ctxKeyRequestID struct{}

type logHandler struct {
	log  *logrus.Logger
	next http.Handler
}

type responseRecorder struct {
	b      int
	status int
	w      http.ResponseWriter
}

func (r *responseRecorder) Header() http.Header { return r.w.Header() }

func (r *responseRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.w.Write(p)
	r.b += n
	return n, err
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.w.WriteHeader(statusCode)
}

func (lh *logHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID, _ := uuid.NewRandom()
	ctx = context.WithValue(ctx, ctxKeyRequestID{}, requestID.String())

	start := time.Now()
	rr := &responseRecorder{w: w}
	log := lh.log.WithFields(logrus.Fields{
		"http.req.path":   r.URL.Path,
		"http.req.method": r.Method,
		"http.req.id":     requestID.String(),
	})
	log.Debug("request started")
	defer func() {
		log.WithFields(logrus.Fields{
			"http.resp.took_ms": int64(time.Since(start) / time.Millisecond),
			"http.resp.status":  rr.status,
			"http.resp.bytes":   rr.b}).Info("request complete")
	}()

	ctx = context.WithValue(ctx, ctxKeyLog{}, log)
	r = r.WithContext(ctx)
	lh.next.ServeHTTP(rr, r)
}

// logFrom returns the request-scoped logger set up by logHandler.
func logFrom(r *http.Request) logrus.FieldLogger {
	if log, ok := r.Context().Value(ctxKeyLog{}).(logrus.FieldLogger); ok {
		return log
	}
	return logrus.StandardLogger()
}

// loadActor resolves the session's user once per request and stores the
// result in the request context.
func (h *Handlers) loadActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := h.Session.CurrentActor(r)
		if err != nil {
			h.renderError(w, r, err, http.StatusInternalServerError)
			return
		}
		if actor.Authenticated() {
			if log, ok := r.Context().Value(ctxKeyLog{}).(*logrus.Entry); ok {
				r = r.WithContext(context.WithValue(r.Context(), ctxKeyLog{}, log.WithField("user_id", actor.ID())))
			}
		}
		next.ServeHTTP(w, r.WithContext(withActor(r.Context(), actor)))
	})
}

// requireAuthenticated ends the request with 403 for anonymous actors.
func (h *Handlers) requireAuthenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
		if err := h.gate.RequireAuthenticated(ActorFrom(r.Context())); err != nil {
			h.renderError(w, r, err, http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

func (h *Handlers) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return h.requireAuthenticated(func(w http.ResponseWriter, r *http.Request) {
		if err := h.gate.RequireAdmin(ActorFrom(r.Context())); err != nil {
			h.renderError(w, r, err, http.StatusForbidden)
			return
		}
		next(w, r)
	})
}
