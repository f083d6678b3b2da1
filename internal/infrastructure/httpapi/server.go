package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/ports"
	"NewsDigest/internal/usecase"
)

// Runner triggers one pipeline cycle.
type Runner interface {
	RunCycle(ctx context.Context, trigger time.Time) (usecase.RunReport, error)
}

// DigestReader loads the newest stored digest.
type DigestReader interface {
	LatestDigest(ctx context.Context) (domain.Digest, bool, error)
}

const defaultRunTimeout = 15 * time.Minute

// Handlers holds the route dependencies. Nil fields disable their routes.
type Handlers struct {
	Runner   Runner
	Digests  DigestReader
	Gatherer prometheus.Gatherer
	Clock    func() time.Time
	Logger   *slog.Logger
	// RunTimeout bounds a manual run; it is detached from the client connection.
	RunTimeout time.Duration
}

// NewRouter constructs a Gin engine with registered routes.
func NewRouter(h Handlers) *gin.Engine {
	if h.Clock == nil {
		h.Clock = time.Now
	}
	if h.Logger == nil {
		h.Logger = slog.New(slog.DiscardHandler)
	}
	if h.RunTimeout <= 0 {
		h.RunTimeout = defaultRunTimeout
	}

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", handleHealth)
	if h.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{})))
	}
	if h.Runner != nil {
		r.POST("/runs", h.handleRun)
		// Hook for external cron services that can only issue GET requests.
		r.GET("/api/cron/process-news", h.handleRun)
	}
	if h.Digests != nil {
		r.GET("/digests/latest", h.handleLatestDigest)
	}
	return r
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleRun executes a cycle synchronously and returns its report. A client
// disconnect does not cancel the run.
func (h Handlers) handleRun(c *gin.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), h.RunTimeout)
	defer cancel()

	report, err := h.Runner.RunCycle(ctx, h.Clock())
	switch {
	case err == nil:
		c.JSON(http.StatusOK, report)
	case errors.Is(err, ports.ErrLeaseHeld):
		c.JSON(http.StatusConflict, gin.H{"status": "skipped", "error": err.Error()})
	default:
		h.Logger.Error("manual run failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "failed", "error": err.Error(), "report": report})
	}
}

func (h Handlers) handleLatestDigest(c *gin.Context) {
	digest, ok, err := h.Digests.LatestDigest(c.Request.Context())
	if err != nil {
		h.Logger.Error("load latest digest failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load latest digest"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no digest generated yet"})
		return
	}
	c.JSON(http.StatusOK, digest)
}

// Server runs the router on an address until shut down.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewServer wraps handler in an http.Server.
func NewServer(addr string, handler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start serves in the background.
func (s *Server) Start() {
	go func() {
		s.logger.Info("http server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped", "error", err)
		}
	}()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
