package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/stepup/internal/auth/service"
	"github.com/aussiebroadwan/stepup/internal/auth/store"
	"github.com/aussiebroadwan/stepup/pkg/httpx"
	"github.com/aussiebroadwan/stepup/pkg/jwtx"
	"github.com/aussiebroadwan/stepup/pkg/slogx"

	_ "github.com/aussiebroadwan/stepup/api/auth" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         *jwtx.KeyManager
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store               store.Store
	AuthService         *service.AuthService
	Cookies             *SessionCodec
	DistinctLoginErrors bool
}

func NewRouter(
	keys *jwtx.KeyManager,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
	corsOrigin string,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		keys:         keys,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	// Logging wraps CORS so rejected preflights are still logged.
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		httpx.CORS(corsOrigin),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerMFA()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			StepUp Authentication Service API
//	@version		0.1.0
//	@description	Password login with server-side sessions, an optional TOTP second factor and short-lived step-up tokens.
//	@description
//	@description	The session is carried in an HttpOnly cookie. Step-up tokens are JWTs (HS256 or EdDSA) valid for one hour.
//
//	@contact.name	AussieBroadWAN Team
//	@contact.url	https://github.com/aussiebroadwan/stepup
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host			localhost:5000
//	@BasePath		/
//
//	@schemes		http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Step-up token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{
		Auth:                r.AuthService,
		Cookies:             r.Cookies,
		DistinctLoginErrors: r.DistinctLoginErrors,
	}

	r.Mux.HandleFunc("POST /api/auth/register", h.HandleRegister)
	r.Mux.HandleFunc("POST /api/auth/login", h.HandleLogin)
	r.Mux.HandleFunc("GET /api/auth/status", h.HandleStatus)
	r.Mux.HandleFunc("POST /api/auth/logout", h.HandleLogout)
}

func (r *Router) registerMFA() {
	h := &MFAHandler{Auth: r.AuthService}
	requireSession := SessionMiddleware(r.Cookies, r.AuthService.Sessions)

	r.Mux.Handle("POST /api/auth/2fa/setup", httpx.Chain(http.HandlerFunc(h.HandleSetup), requireSession))
	r.Mux.Handle("POST /api/auth/2fa/verify", httpx.Chain(http.HandlerFunc(h.HandleVerify), requireSession))
	r.Mux.Handle("POST /api/auth/2fa/reset", httpx.Chain(http.HandlerFunc(h.HandleReset), requireSession))

	r.Mux.Handle("GET /api/auth/2fa/stepup",
		httpx.Chain(http.HandlerFunc(h.HandleStepUp),
			httpx.RequireStepUp(r.AuthService.StepUp),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /.well-known/jwks.json", JWKSHandler(r.keys.KeySet))
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store, r.keys))
}
