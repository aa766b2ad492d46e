package httpapi

import (
	"context"
	"net/http"

	"github.com/MrEthical07/lmsauth"
	"github.com/MrEthical07/lmsauth/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// Authority is the subset of *lmsauth.Authority the API drives.
type Authority interface {
	Login(ctx context.Context, creds lmsauth.Credentials, client lmsauth.ClientInfo) (*lmsauth.LoginResult, error)
	Authenticate(ctx context.Context, token string) (*lmsauth.Identity, error)
	Logout(ctx context.Context, sessionToken string) error
	ListSessions(ctx context.Context, userID string) ([]lmsauth.SessionView, error)
	KillSession(ctx context.Context, userID, sessionID string) (bool, error)
	ForceLogoutAll(ctx context.Context, userID string) (int, error)
	ChangePassword(ctx context.Context, userID, current, next string) error
	UpdateAccountState(ctx context.Context, userID string, state lmsauth.AccountState) error
	DeleteAccount(ctx context.Context, userID string) error
	Health(ctx context.Context) lmsauth.HealthStatus
}

// Options wires the router.
type Options struct {
	Authority Authority
	// Users, when set, lets /api/auth/me return the full profile.
	Users lmsauth.UserProvider
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	Logger  zerolog.Logger
}

type handler struct {
	auth     Authority
	users    lmsauth.UserProvider
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewRouter builds the HTTP API.
func NewRouter(opts Options) http.Handler {
	h := &handler{
		auth:     opts.Authority,
		users:    opts.Users,
		validate: newValidator(),
		logger:   opts.Logger,
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger(opts.Logger))
	r.Use(middleware.ClientMeta)

	r.Get("/healthz", h.health)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	authn := middleware.Authenticate(opts.Authority)
	admins := middleware.RequireRoles(lmsauth.AdminRoles...)
	ownerOrAdmin := middleware.RequireOwnerOrAdmin(func(r *http.Request) string {
		return chi.URLParam(r, "userId")
	})

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/login", h.login)
		r.With(authn).Post("/logout", h.logout)
		r.With(authn).Get("/me", h.me)
	})

	r.Route("/api/users", func(r chi.Router) {
		r.Use(authn)
		r.Put("/change-password", h.changePassword)

		r.Route("/{userId}", func(r chi.Router) {
			r.With(ownerOrAdmin).Get("/sessions", h.listSessions)
			r.With(ownerOrAdmin).Delete("/sessions/{sessionId}", h.killSession)
			r.With(admins).Post("/force-logout", h.forceLogout)
			r.With(admins).Patch("/status", h.updateStatus)
			r.With(middleware.RequireRoles(lmsauth.RoleSuperAdmin)).Delete("/", h.deleteUser)
		})
	})

	return r
}
