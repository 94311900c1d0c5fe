package http

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"fintrack/internal/auth"
	"fintrack/internal/cache"
	"fintrack/internal/ledger"
	"fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/state"
	"fintrack/internal/syncer"
)

// Pinger is a dependency checked by /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options wires the server's collaborators. Auth and Sync are optional;
// without them the API runs signed-out against the local namespace only.
type Options struct {
	Registry *state.Registry
	Auth     *auth.Service
	Sync     *syncer.Service
	Buckets  ledger.Buckets
	Checks   map[string]Pinger
	Logger   *log.Logger

	RateLimitPerMin int
	CacheSize       int
	CacheTTL        time.Duration
	TrustedProxies  []string
}

type Server struct {
	http.Server

	registry *state.Registry
	auth     *auth.Service
	sync     *syncer.Service
	buckets  ledger.Buckets
	checks   map[string]Pinger
	logger   *log.Logger

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware

	analytics *cache.LRUCache[any]
	caches    *cache.Manager

	appMetrics *appMetrics

	// baseCtx outlives requests; realtime subscriptions run under it.
	baseCtx      context.Context
	cancelBase   context.CancelFunc
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.Buckets.Essentials == nil && opts.Buckets.Savings == nil {
		opts.Buckets = ledger.DefaultBuckets()
	}

	detector := security.NewDetector()
	for _, cidr := range opts.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", log.FieldError, err)
		}
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		registry:         opts.Registry,
		auth:             opts.Auth,
		sync:             opts.Sync,
		buckets:          opts.Buckets,
		checks:           opts.Checks,
		logger:           logger.WithComponent(log.ComponentHTTP),
		rateLimiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMin}),
		securityDetector: detector,
		analytics:        cache.NewLRUCache[any](opts.CacheSize, opts.CacheTTL),
		caches:           cache.NewManager(logger),
		appMetrics:       newAppMetrics(),
		baseCtx:          baseCtx,
		cancelBase:       cancel,
	}
	s.traceMiddleware = trace.NewMiddleware(logger, detector.ExtractClientIP)
	s.caches.Register(s.analytics)
	s.caches.StartCleanup(10 * time.Minute)

	s.routes(mux)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limited := s.rateLimiter.Middleware(detector.ExtractClientIP, s.onRateLimit,
		http.MethodPost, http.MethodPut, http.MethodDelete)

	var h http.Handler = mux
	h = s.withSession(h)
	h = limited(h)
	h = headers.Middleware(h)
	h = detector.Middleware(h)
	h = s.traceMiddleware.Middleware(h)
	s.Handler = h
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("POST /api/auth/signup", s.handleSignUp)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/magic-link", s.handleMagicLink)
	mux.HandleFunc("POST /api/auth/magic-link/redeem", s.handleRedeem)
	mux.HandleFunc("GET /api/auth/magic-link/redeem", s.handleRedeem)
	mux.HandleFunc("GET /api/auth/me", s.handleMe)

	mux.HandleFunc("GET /api/normalize", s.handleNormalize)
	mux.HandleFunc("GET /api/accounts", s.handleAccounts)

	mux.HandleFunc("GET /api/records", s.handleListRecords)
	mux.HandleFunc("POST /api/records", s.handleCreateRecord)
	mux.HandleFunc("DELETE /api/records", s.handleDeleteRecords)
	mux.HandleFunc("DELETE /api/records/{id}", s.handleDeleteRecord)
	mux.HandleFunc("POST /api/transfers", s.handleCreateTransfer)

	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("GET /api/balances", s.handleBalances)
	mux.HandleFunc("GET /api/series", s.handleSeries)
	mux.HandleFunc("GET /api/breakdown", s.handleBreakdown)
	mux.HandleFunc("GET /api/budget", s.handleGetBudget)
	mux.HandleFunc("PUT /api/budget", s.handlePutBudget)
	mux.HandleFunc("GET /api/month", s.handleGetMonth)
	mux.HandleFunc("PUT /api/month", s.handlePutMonth)

	mux.HandleFunc("GET /api/tags", s.handleGetTags)
	mux.HandleFunc("POST /api/tags", s.handleAddCategory)
	mux.HandleFunc("PUT /api/tags/{category}", s.handleRenameCategory)
	mux.HandleFunc("POST /api/tags/{category}", s.handleAddSubcategory)
	mux.HandleFunc("PUT /api/tags/{category}/{subcategory}", s.handleRenameSubcategory)

	mux.HandleFunc("GET /api/goals", s.handleListGoals)
	mux.HandleFunc("POST /api/goals", s.handleCreateGoal)
	mux.HandleFunc("PUT /api/goals/{id}", s.handleUpdateGoal)
	mux.HandleFunc("DELETE /api/goals/{id}", s.handleDeleteGoal)
	mux.HandleFunc("POST /api/goals/{id}/contribute", s.handleContributeGoal)

	mux.HandleFunc("POST /api/sync", s.handleSync)
	mux.HandleFunc("POST /api/sync/watch", s.handleWatch)
	mux.HandleFunc("DELETE /api/sync/watch", s.handleUnwatch)
	mux.HandleFunc("GET /api/export", s.handleExport)
	mux.HandleFunc("POST /api/import", s.handleImport)
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	_ = NewJSONResponse().Status(http.StatusTooManyRequests).
		Error(codeRateLimited, "Rate limit exceeded. Please try again later.").Send(w)
}

// withSession resolves a bearer token into a session. Requests without a
// token run signed out; an invalid token is rejected.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			writeError(w, r, auth.ErrInvalidToken)
			return
		}
		if s.auth == nil {
			writeError(w, r, errAuthDisabled)
			return
		}
		sess, err := s.auth.Parse(strings.TrimSpace(token))
		if err != nil {
			writeError(w, r, err)
			return
		}
		ctx := auth.WithSession(r.Context(), sess)
		ctx = log.WithContext(ctx, log.FromContext(ctx).With(log.FieldUserID, sess.UserID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// store returns the state of the caller: the user's namespace when signed
// in, the local namespace otherwise.
func (s *Server) store(r *http.Request) (*state.Store, error) {
	ns := state.LocalNamespace
	if sess, ok := auth.SessionFromContext(r.Context()); ok {
		ns = sess.UserID
	}
	return s.registry.Get(r.Context(), ns)
}

// Shutdown stops background work and the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cancelBase()
		if s.sync != nil {
			s.sync.Close()
		}
		s.caches.Stop()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
