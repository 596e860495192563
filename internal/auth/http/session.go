package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/aussiebroadwan/stepup/internal/auth/domain"
	"github.com/aussiebroadwan/stepup/internal/auth/service"
	"github.com/aussiebroadwan/stepup/pkg/authsdk"
	"github.com/aussiebroadwan/stepup/pkg/httpx"
	"github.com/aussiebroadwan/stepup/pkg/slogx"
	"github.com/gorilla/sessions"
)

const sessionTokenKey = "token"

// CookieOptions configures the session cookie.
type CookieOptions struct {
	Name     string
	HashKey  []byte // HMAC key, 32 or 64 bytes
	BlockKey []byte // optional AES key (16, 24 or 32 bytes) to encrypt the value
	Secure   bool
	MaxAge   time.Duration
}

// SessionCodec carries the opaque session token in a signed cookie. The
// token is meaningless without the server-side session record.
type SessionCodec struct {
	store *sessions.CookieStore
	name  string
}

func NewSessionCodec(opts CookieOptions) *SessionCodec {
	keys := [][]byte{opts.HashKey}
	if len(opts.BlockKey) > 0 {
		keys = append(keys, opts.BlockKey)
	}

	cs := sessions.NewCookieStore(keys...)
	cs.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	cs.MaxAge(int(opts.MaxAge.Seconds()))

	return &SessionCodec{store: cs, name: opts.Name}
}

// Token returns the session token from the request cookie, or "" when the
// cookie is absent or fails verification.
func (c *SessionCodec) Token(r *http.Request) string {
	sess, err := c.store.Get(r, c.name)
	if err != nil {
		return ""
	}
	token, _ := sess.Values[sessionTokenKey].(string)
	return token
}

// Save writes token into the session cookie.
func (c *SessionCodec) Save(w http.ResponseWriter, r *http.Request, token string) error {
	// Get hands back a fresh session when the old cookie is invalid.
	sess, _ := c.store.Get(r, c.name)
	sess.Values[sessionTokenKey] = token
	return sess.Save(r, w)
}

// Clear expires the session cookie.
func (c *SessionCodec) Clear(w http.ResponseWriter, r *http.Request) error {
	sess, _ := c.store.Get(r, c.name)
	sess.Values = map[any]any{}
	sess.Options.MaxAge = -1
	return sess.Save(r, w)
}

// SessionMiddleware resolves the session cookie to the current user and
// places it in the request context. Requests without a live session get 401.
func SessionMiddleware(codec *SessionCodec, sm *service.SessionManager) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			user, err := sm.Resolve(ctx, codec.Token(r))
			if err != nil {
				if errors.Is(err, service.ErrSessionIndeterminate) {
					slogx.FromContext(ctx).Warn("session lookup failed", "err", err)
				}
				authsdk.ErrUnauthenticated.WriteError(w)
				return
			}

			ctx = httpx.ContextWithUser(ctx, user)
			ctx = slogx.With(ctx, "user_id", user.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// sessionUser returns the user placed in the context by SessionMiddleware.
func sessionUser(r *http.Request) (domain.User, bool) {
	return httpx.UserFromContext[domain.User](r.Context())
}
