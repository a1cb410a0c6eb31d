// Package api exposes team formation, linchpin listing and policy
// evaluation over JSON HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"smartchimera/internal/guardian"
	"smartchimera/internal/linchpin"
	"smartchimera/internal/logging"
	"smartchimera/internal/mission"
	"smartchimera/internal/policy"
	"smartchimera/internal/scoring"
	"smartchimera/internal/types"
)

// LinchpinLister is satisfied by *linchpin.Detector.
type LinchpinLister interface {
	ListLinchpins(ctx context.Context, minRisk types.RiskLevel) ([]linchpin.Report, error)
}

// Deps are the engines the server fronts. All are required except Recorder.
type Deps struct {
	Graph     types.EvidenceGraph
	Formation *guardian.Engine
	Linchpins LinchpinLister
	Policy    *policy.Engine
	Profiles  *mission.Registry
	Scorer    *scoring.Scorer
	// Recorder persists recomputed levels; nil makes recompute report-only.
	Recorder types.SkillLevelRecorder
}

// Options tune the HTTP surface.
type Options struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
	EvidenceLimit  int
	Logger         *zap.Logger
}

// Server routes HTTP requests to the engines.
type Server struct {
	deps Deps
	opts Options
	log  *zap.Logger
	now  func() time.Time
}

// New creates a server.
func New(deps Deps, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 20 * time.Second
	}
	if opts.EvidenceLimit <= 0 {
		opts.EvidenceLimit = policy.DefaultEvidenceLimit
	}
	if deps.Scorer == nil {
		deps.Scorer = scoring.Default()
	}
	return &Server{deps: deps, opts: opts, log: opts.Logger, now: time.Now}
}

// SetClock overrides the clock used by simulate and recompute.
func (s *Server) SetClock(now func() time.Time) {
	s.now = now
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger(), s.deadline())
	if len(s.opts.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     s.opts.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "X-Request-ID"},
			ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.GET("/health", s.health)

	v := r.Group("/api")
	{
		v.POST("/recommend", s.recommend)
		v.GET("/linchpins", s.linchpins)
		v.POST("/team/simulate", s.simulate)
		v.GET("/mission-profiles", s.missionProfiles)
		v.GET("/skills", s.skills)
	}

	admin := r.Group("/admin")
	admin.POST("/recompute-skills", s.recompute)
	return r
}

// Serve listens on addr until ctx is cancelled, then drains for up to five seconds.
func (s *Server) Serve(ctx context.Context, addr string, readTimeout, writeTimeout time.Duration) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", addr))
		logging.API("listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.log.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

const requestIDHeader = "X-Request-ID"

// requestLogger tags each request with an id and logs it through zap.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)

		c.Next()

		fields := []zap.Field{
			zap.String("request_id", id),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		switch status := c.Writer.Status(); {
		case status >= 500:
			s.log.Error("request", fields...)
		case status >= 400:
			s.log.Warn("request", fields...)
		default:
			s.log.Info("request", fields...)
		}
	}
}

// deadline bounds every request by the configured timeout.
func (s *Server) deadline() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), s.opts.RequestTimeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
