package http

import (
	"context"
	"html/template"
	"net/http"
	"strings"
	"sync"
	"time"

	"fincast/internal/amqp"
	"fincast/internal/core"
	"fincast/internal/log"
	"fincast/internal/services"
	appweb "fincast/web"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

// ForecastComputer produces reports on demand.
type ForecastComputer interface {
	Recompute(ctx context.Context, horizon int) (*services.Report, error)
	Refresh(ctx context.Context, horizon int) (*services.Report, error)
}

// SnapshotSource reads and writes persisted reports. Optional.
type SnapshotSource interface {
	Latest(ctx context.Context, horizon int) (*services.Report, error)
	Process(ctx context.Context, horizon int, requestedAt time.Time) (*services.Report, bool, error)
}

// RefreshPublisher hands refresh requests to the worker. Optional.
type RefreshPublisher interface {
	PublishRefreshRequest(ctx context.Context, msg *amqp.RefreshRequestMessage) error
}

// Options configures a Server.
type Options struct {
	Addr           string
	DefaultHorizon int
	// RequestTimeout bounds ledger reads triggered by a request.
	RequestTimeout time.Duration
	Logger         *log.Logger
}

// Deps are the collaborators a Server calls into. Only Forecasts is required.
type Deps struct {
	Forecasts ForecastComputer
	Snapshots SnapshotSource
	Publisher RefreshPublisher
	// Ready checks backing services for /readyz.
	Ready func(ctx context.Context) error
}

type Server struct {
	http.Server
	templates      *template.Template
	logger         *log.Logger
	deps           Deps
	defaultHorizon int
	requestTimeout time.Duration
	started        time.Time

	rateLimiter *rateLimiter
	security    *securityMetrics

	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run http.Server.
func NewServer(opts Options, deps Deps) *Server {
	base := opts.Logger
	if base == nil {
		base = log.New(log.DefaultConfig())
	}
	logger := base.WithComponent(log.ComponentHTTP)
	if opts.DefaultHorizon == 0 {
		opts.DefaultHorizon = 6
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}

	router := mux.NewRouter()
	s := &Server{
		Server: http.Server{
			Addr:              opts.Addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      30 * time.Second,
		},
		logger:         logger,
		deps:           deps,
		defaultHorizon: opts.DefaultHorizon,
		requestTimeout: opts.RequestTimeout,
		started:        time.Now(),
		rateLimiter:    newRateLimiter(10, time.Minute),
		security:       &securityMetrics{},
	}

	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Warn("Failed parsing templates", log.FieldError, err)
	}
	s.templates = t

	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(
		log.Middleware(base),
		log.ComponentMiddleware(log.ComponentHTTP),
		log.RequestIDMiddleware(requestIDFromHeader),
		s.withSecurityHeaders,
	)
	api.HandleFunc("/forecast", s.handleForecast).Methods(http.MethodGet)
	api.HandleFunc("/forecast/refresh", s.handleRefresh).Methods(http.MethodPost)
	api.HandleFunc("/forecast/snapshot", s.handleSnapshot).Methods(http.MethodGet)

	ui := router.PathPrefix("/ui").Subrouter()
	ui.Use(
		log.Middleware(base),
		log.ComponentMiddleware(log.ComponentTemplate),
		log.RequestIDMiddleware(requestIDFromHeader),
		s.withSecurityHeaders,
	)
	ui.HandleFunc("/forecast", s.handleForecastPartial).Methods(http.MethodGet)

	return s
}

// Shutdown gracefully shuts down the server and its cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// withSecurityHeaders adds security headers, rate limiting and request logging.
func (s *Server) withSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := extractClientIP(r)

		w.Header().Set(requestIDHeader, requestIDFromHeader(r))

		ctx := r.Context()
		structured := log.NewStructuredLogger(log.FromContext(ctx))
		structured.LogHTTPStart(ctx, r, clientIP)

		if detectSuspiciousRequest(r, s.security) {
			log.FromContext(ctx).WarnContext(ctx, "Suspicious request",
				log.FieldClientIP, clientIP,
				log.FieldPath, r.URL.Path,
				log.FieldUserAgent, r.Header.Get("User-Agent"))
		}

		// Refreshes hit the ledger, so they are rate limited per client.
		if r.Method == http.MethodPost && !s.rateLimiter.allow(clientIP, s.security) {
			log.FromContext(ctx).WarnContext(ctx, "Rate limit exceeded",
				log.FieldClientIP, clientIP,
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path)
			ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, try again later").
				Header("Retry-After", "60").
				Write(w)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		structured.LogHTTPEnd(ctx, r, rw.statusCode, time.Since(start).Milliseconds(), clientIP)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

const requestIDHeader = "X-Request-ID"

func requestIDFromHeader(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(requestIDHeader)); id != "" {
		return id
	}
	id := generateRequestID()
	r.Header.Set(requestIDHeader, id)
	return id
}

var templateFuncs = template.FuncMap{
	"money": func(d decimal.Decimal, currency string) string {
		return core.FormatAmount(d, currency)
	},
	"percent": func(d decimal.Decimal) string {
		return d.StringFixed(2) + "%"
	},
	"date": func(d core.Date) string {
		return d.String()
	},
}
