package httpapi

import (
	"net/http"
	"strings"

	challengeAuth "github.com/MrEthical07/challengeAuth"
	"github.com/MrEthical07/challengeAuth/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Permissions that guard the admin endpoints.
const (
	PermissionManageRoles       = "manage-roles"
	PermissionManagePermissions = "manage-permissions"
)

// Options configures the HTTP layer. Zero RateLimitRPS disables the per-IP
// limiter.
type Options struct {
	Logger         *zap.Logger
	Registerer     prometheus.Registerer
	RateLimitRPS   float64
	RateLimitBurst int
	// TrustForwardedFor takes the client IP from X-Forwarded-For. Enable only
	// behind a proxy that sets it.
	TrustForwardedFor bool
}

// API binds the engine to HTTP routes.
type API struct {
	engine   *challengeAuth.Engine
	logger   *zap.Logger
	validate *validator.Validate
	metrics  *httpMetrics
	limiter  *rateLimiter
	opts     Options
}

func New(engine *challengeAuth.Engine, opts Options) *API {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &API{
		engine:   engine,
		logger:   logger,
		validate: newValidator(),
		metrics:  newHTTPMetrics(opts.Registerer),
		opts:     opts,
	}
	if opts.RateLimitRPS > 0 {
		burst := opts.RateLimitBurst
		if burst <= 0 {
			burst = int(opts.RateLimitRPS) + 1
		}
		a.limiter = newRateLimiter(opts.RateLimitRPS, burst)
	}
	return a
}

// Handler returns the routed handler with logging, panic recovery, client
// IP and rate limiting applied.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	guard := middleware.Guard(a.engine)
	roles := middleware.RequirePermission(PermissionManageRoles)
	perms := middleware.RequirePermission(PermissionManagePermissions)

	a.handle(mux, "GET /healthz", http.HandlerFunc(a.healthz))

	a.handle(mux, "POST /auth/initLogin", http.HandlerFunc(a.initLogin))
	a.handle(mux, "POST /auth/verifyChallenge", http.HandlerFunc(a.verifyChallenge))
	a.handle(mux, "POST /auth/register", http.HandlerFunc(a.register))
	a.handle(mux, "POST /auth/sendVerificationEmail", http.HandlerFunc(a.sendVerificationEmail))
	a.handle(mux, "POST /auth/verifyEmail", http.HandlerFunc(a.verifyEmail))
	a.handle(mux, "POST /auth/askMfaActivation", guard(http.HandlerFunc(a.askMFAActivation)))
	a.handle(mux, "POST /auth/confirmMfaActivation", guard(http.HandlerFunc(a.confirmMFAActivation)))
	a.handle(mux, "POST /auth/verifyMfa", http.HandlerFunc(a.verifyMFA))
	a.handle(mux, "POST /auth/removeMfa", guard(http.HandlerFunc(a.removeMFA)))

	a.handle(mux, "GET /roles", guard(http.HandlerFunc(a.listRoles)))
	a.handle(mux, "POST /roles", guard(roles(http.HandlerFunc(a.createRole))))
	a.handle(mux, "PUT /roles/{id}", guard(roles(http.HandlerFunc(a.updateRole))))
	a.handle(mux, "DELETE /roles/{id}", guard(roles(http.HandlerFunc(a.deleteRole))))
	a.handle(mux, "POST /roles/addRoleToUser", guard(roles(http.HandlerFunc(a.addRoleToUser))))
	a.handle(mux, "POST /roles/removeRoleFromUser", guard(roles(http.HandlerFunc(a.removeRoleFromUser))))
	a.handle(mux, "POST /roles/addPermissionToRole", guard(roles(http.HandlerFunc(a.addPermissionToRole))))
	a.handle(mux, "POST /roles/removePermissionFromRole", guard(roles(http.HandlerFunc(a.removePermissionFromRole))))

	a.handle(mux, "GET /permissions", guard(http.HandlerFunc(a.listPermissions)))
	a.handle(mux, "POST /permissions", guard(perms(http.HandlerFunc(a.createPermission))))
	a.handle(mux, "POST /permissions/addPermissionToUser", guard(perms(http.HandlerFunc(a.addPermissionToUser))))
	a.handle(mux, "POST /permissions/removePermissionFromUser", guard(perms(http.HandlerFunc(a.removePermissionFromUser))))

	var h http.Handler = mux
	if a.limiter != nil {
		h = a.limiter.middleware(a.opts.TrustForwardedFor, h)
	}
	h = withClientIP(a.opts.TrustForwardedFor, h)
	h = recoverer(a.logger, h)
	return logging(a.logger, h)
}

func (a *API) handle(mux *http.ServeMux, pattern string, h http.Handler) {
	route := pattern
	if i := strings.IndexByte(pattern, ' '); i >= 0 {
		route = pattern[i+1:]
	}
	mux.Handle(pattern, a.metrics.instrument(route, h))
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	writeCode(w, http.StatusOK, challengeAuth.CodeOK, nil)
}
