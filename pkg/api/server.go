// Package api exposes a ServerEngine over HTTP: the single sync
// endpoint plus the status, conflicts, health, and metrics surfaces a
// deployment needs to operate it.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/adrianco/the-goodies/pkg/model"
	"github.com/adrianco/the-goodies/pkg/syncengine"
	"github.com/adrianco/the-goodies/pkg/vectorclock"
)

// deviceState is the server's view of one device's last sync
// round-trip, kept so GET /api/v1/sync/status can answer without a
// client having to carry that bookkeeping itself. It is a cache
// derived from sync traffic, not authoritative data: losing it on
// restart only degrades the status endpoint, never the graph.
type deviceState struct {
	lastSync time.Time
	clock    vectorclock.Clock
}

// Server wires a ServerEngine to gin routes, JWT auth, and Prometheus
// metrics.
type Server struct {
	engine           *syncengine.ServerEngine
	metrics          *Metrics
	jwtSecret        []byte
	provisioningHash string
	tokenExpiry      time.Duration
	router           *gin.Engine
	http             *http.Server
	logger           zerolog.Logger

	mu      sync.Mutex
	devices map[string]deviceState
}

// Config controls the listener, auth secret, and device-provisioning
// hash a Server is built with.
type Config struct {
	Listen           string
	JWTSecret        string
	TokenExpiry      time.Duration
	ProvisioningHash string
	MaxBodySize      int64
}

// NewServer builds a Server around engine, ready to Start.
func NewServer(engine *syncengine.ServerEngine, cfg Config) *Server {
	if cfg.Listen == "" {
		cfg.Listen = "0.0.0.0:8080"
	}
	if cfg.TokenExpiry == 0 {
		cfg.TokenExpiry = 24 * time.Hour
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		engine:           engine,
		metrics:          NewMetrics(),
		jwtSecret:        []byte(cfg.JWTSecret),
		provisioningHash: cfg.ProvisioningHash,
		tokenExpiry:      cfg.TokenExpiry,
		router:           router,
		logger:           log.With().Str("component", "api.server").Logger(),
		devices:          make(map[string]deviceState),
	}

	if cfg.MaxBodySize > 0 {
		router.Use(func(c *gin.Context) {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, cfg.MaxBodySize)
			c.Next()
		})
	}
	router.Use(s.requestLogger())
	router.Use(s.authMiddleware())

	router.GET("/health", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})))
	router.POST("/api/v1/auth/token", s.handleIssueToken)

	v1 := router.Group("/api/v1/sync")
	v1.POST("/", s.handleSync)
	v1.GET("/status", s.handleStatus)
	v1.GET("/conflicts", s.handleConflicts)

	s.http = &http.Server{
		Addr:    cfg.Listen,
		Handler: router,
	}
	return s
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, model.HealthResponse{Status: "healthy"})
}

func (s *Server) handleSync(c *gin.Context) {
	start := time.Now()

	var req model.SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, model.ErrorInternal, "malformed request body: "+err.Error())
		return
	}

	resp, err := s.engine.Sync(c.Request.Context(), req)
	if err != nil {
		s.metrics.observe(start, "error", 0, 0)
		switch {
		case errors.Is(err, syncengine.ErrUnsupportedProtocol):
			writeError(c, http.StatusBadRequest, model.ErrorUnsupportedProtocol, err.Error())
		case errors.Is(err, syncengine.ErrBatchTooLarge):
			writeError(c, http.StatusBadRequest, model.ErrorBatchTooLarge, err.Error())
		default:
			writeError(c, http.StatusInternalServerError, model.ErrorInternal, err.Error())
		}
		return
	}

	s.metrics.observe(start, "ok", resp.SyncStats.Applied, resp.SyncStats.Conflicts)
	s.recordDeviceState(req.DeviceID, resp.VectorClock)
	c.JSON(http.StatusOK, resp)
}

// recordDeviceState caches the merged response clock the device was
// just handed, so a later status query computes pending_count against
// what the device now knows rather than what it sent.
func (s *Server) recordDeviceState(deviceID string, wire model.VectorClock) {
	clock, err := vectorclock.FromWire(wire)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[deviceID] = deviceState{lastSync: time.Now().UTC(), clock: clock}
}

func (s *Server) handleStatus(c *gin.Context) {
	deviceID := c.Query("device_id")
	if deviceID == "" {
		writeError(c, http.StatusBadRequest, model.ErrorInternal, "device_id query parameter is required")
		return
	}

	s.mu.Lock()
	state, known := s.devices[deviceID]
	s.mu.Unlock()

	resp := model.StatusResponse{VectorClock: vectorclock.ToWire(vectorclock.New())}
	if known {
		pending, err := s.engine.Store.Since(c.Request.Context(), state.clock)
		if err != nil {
			writeError(c, http.StatusInternalServerError, model.ErrorInternal, err.Error())
			return
		}
		ts := state.lastSync.Format(time.RFC3339)
		resp.LastSync = &ts
		resp.PendingCount = len(pending)
		resp.VectorClock = vectorclock.ToWire(state.clock)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleConflicts(c *gin.Context) {
	statuses, err := s.engine.Store.ConflictedEntities(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusInternalServerError, model.ErrorInternal, err.Error())
		return
	}

	reports := make([]model.ConflictReport, 0, len(statuses))
	for _, st := range statuses {
		leafVersions := make([]string, len(st.Leaves))
		for i, leaf := range st.Leaves {
			leafVersions[i] = leaf.Version
		}
		detail := "unresolved conflict with leaves: "
		for i, v := range leafVersions {
			if i > 0 {
				detail += ", "
			}
			detail += v
		}
		reports = append(reports, model.ConflictReport{
			EntityID: st.ID,
			Kind:     model.ConflictKindConcurrent,
			Detail:   detail,
		})
	}
	c.JSON(http.StatusOK, gin.H{"conflicts": reports})
}

// Start runs the HTTP listener until it errors or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.http.Addr).Msg("listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
