// Package stubserver is an in-memory reference implementation of the
// agent-messaging API surface the conformance suite validates. It backs the
// axme-stub binary and serves as a deterministic fake in tests.
package stubserver

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"path"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultChangePageSize caps entries per change-feed page. It is deliberately
// small so a short session already produces a multi-page feed.
const DefaultChangePageSize = 2

// Config holds stub server options.
type Config struct {
	// APIKey, when set, is required as a bearer token on every request
	// outside the public paths. Empty disables authentication.
	APIKey string

	// ChangePageSize caps entries per change-feed page. Zero means
	// DefaultChangePageSize.
	ChangePageSize int

	// MetricsEnabled exposes Prometheus metrics on MetricsEndpoint.
	MetricsEnabled bool

	// MetricsEndpoint is the metrics path (default: /metrics).
	MetricsEndpoint string

	// Logger receives request logs. Nil discards them.
	Logger *slog.Logger
}

// Server wraps the Echo server plus all in-memory API state.
type Server struct {
	echo    *echo.Echo
	cfg     Config
	logger  *slog.Logger
	metrics *metrics

	mu            sync.Mutex
	idempotency   map[string]idempotencyRecord
	approvals     map[string]*approval
	threads       map[string][]*thread
	changes       map[string][]changeRecord
	invites       map[string]*invite
	uploads       map[string]*upload
	schemas       map[string]*schemaRecord
	nicks         map[string]string
	profiles      map[string]*profile
	subscriptions map[string]*subscription
	events        map[string]*webhookEvent
}

// New creates a stub server with empty state.
func New(cfg Config) *Server {
	if cfg.ChangePageSize <= 0 {
		cfg.ChangePageSize = DefaultChangePageSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Server{
		cfg:           cfg,
		logger:        logger,
		metrics:       newMetrics(),
		idempotency:   make(map[string]idempotencyRecord),
		approvals:     make(map[string]*approval),
		threads:       make(map[string][]*thread),
		changes:       make(map[string][]changeRecord),
		invites:       make(map[string]*invite),
		uploads:       make(map[string]*upload),
		schemas:       make(map[string]*schemaRecord),
		nicks:         make(map[string]string),
		profiles:      make(map[string]*profile),
		subscriptions: make(map[string]*subscription),
		events:        make(map[string]*webhookEvent),
	}

	e := echo.New()
	e.HideBanner = true

	// Paths that skip authentication
	authSkipPaths := []string{"/health"}
	metricsPath := "/metrics"
	if cfg.MetricsEnabled {
		if cfg.MetricsEndpoint != "" {
			metricsPath = path.Clean(cfg.MetricsEndpoint)
		}
		authSkipPaths = append(authSkipPaths, metricsPath)
	}

	// Global middleware stack (order matters)
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debug("request", "method", v.Method, "uri", v.URI, "status", v.Status)
			return nil
		},
	}))
	e.Use(s.metrics.middleware())
	if cfg.APIKey != "" {
		e.Use(authMiddleware(cfg.APIKey, authSkipPaths))
	}

	// Public routes
	e.GET("/health", s.handleHealth)
	if cfg.MetricsEnabled {
		e.GET(metricsPath, echo.WrapHandler(promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{})))
	}

	// API routes
	e.POST("/v1/intents", s.handleIntentCreate)
	e.GET("/v1/inbox", s.handleInboxList)
	e.POST("/v1/inbox/:thread_id/reply", s.handleInboxReply)
	e.GET("/v1/inbox/changes", s.handleInboxChanges)
	e.POST("/v1/approvals/:approval_id/decision", s.handleApprovalDecision)
	e.GET("/v1/capabilities", s.handleCapabilities)
	e.POST("/v1/invites", s.handleInviteCreate)
	e.GET("/v1/invites/:token", s.handleInviteGet)
	e.POST("/v1/invites/:token/accept", s.handleInviteAccept)
	e.POST("/v1/media/uploads", s.handleUploadCreate)
	e.GET("/v1/media/uploads/:upload_id", s.handleUploadGet)
	e.POST("/v1/media/uploads/:upload_id/finalize", s.handleUploadFinalize)
	e.POST("/v1/schemas", s.handleSchemaUpsert)
	e.GET("/v1/schemas/:semantic_type", s.handleSchemaGet)
	e.GET("/v1/users/nick-check", s.handleNickCheck)
	e.POST("/v1/users/nicks", s.handleNickRegister)
	e.POST("/v1/users/nicks/rename", s.handleNickRename)
	e.GET("/v1/users/profile", s.handleProfileGet)
	e.POST("/v1/users/profile", s.handleProfileUpdate)
	e.POST("/v1/webhooks/subscriptions", s.handleSubscriptionUpsert)
	e.GET("/v1/webhooks/subscriptions", s.handleSubscriptionList)
	e.DELETE("/v1/webhooks/subscriptions/:subscription_id", s.handleSubscriptionDelete)
	e.POST("/v1/webhooks/events", s.handleEventEmit)
	e.POST("/v1/webhooks/events/:event_id/replay", s.handleEventReplay)

	s.echo = e
	return s
}

// Start starts the HTTP server on the given address.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP implements http.Handler, allowing the stub to be mounted on
// httptest servers or called through an in-process transport.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// writeError renders the error envelope used on every failure path.
func writeError(c echo.Context, status int, errType, message string) error {
	return c.JSON(status, map[string]any{
		"error": map[string]any{
			"type":    errType,
			"message": message,
		},
	})
}
