// Package httpserver serves the evidence API, parsed artifacts and metrics.
package httpserver

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kapeview/kapeview/internal/evidence"
	"github.com/kapeview/kapeview/internal/model"
)

const (
	defaultAddr       = "127.0.0.1:8000"
	recentCases       = 10
	maxMultipartBytes = 32 << 20
)

// Store is the read side of the evidence store.
type Store interface {
	model.RecordReader
	SecuritySummary(ctx context.Context, evidenceID string) ([]model.EventIDCount, error)
}

// Service runs the ingestion stages and builds evidence details.
type Service interface {
	model.EvidenceService
	Detail(ctx context.Context, id string) (*model.EvidenceDetail, error)
}

// Config configures the server.
type Config struct {
	Addr      string
	MediaRoot string
	// Debug adds gin's request logger.
	Debug bool
}

// Server provides the HTTP API over a store and an evidence service.
type Server struct {
	cfg       Config
	store     Store
	svc       Service
	startTime time.Time
}

// New creates a server. Nothing listens until Run.
func New(cfg Config, store Store, svc Service) *Server {
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	return &Server{cfg: cfg, store: store, svc: svc, startTime: time.Now()}
}

// Handler builds the gin engine with every route registered.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.MaxMultipartMemory = maxMultipartBytes
	r.Use(gin.Recovery(), countRequests())
	if s.cfg.Debug {
		r.Use(gin.Logger())
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if s.cfg.MediaRoot != "" {
		r.Static(evidence.MediaURL, s.cfg.MediaRoot)
	}

	api := r.Group("/api", csrf())
	api.GET("/health", s.handleHealth)
	api.GET("/dashboard/overview", s.handleOverview)
	api.GET("/api/preflight/", s.handlePreflight)
	api.GET("/evidence/:id/", s.handleEvidence)
	api.GET("/evidence/:id/:ds/", s.handlePage)
	api.GET("/evidence/:id/:ds/summary", s.handleSecuritySummary)
	api.POST("/upload-evidence/", s.handleUpload)
	api.POST("/start-extract/", s.handleExtract)
	api.POST("/start-parse/", s.handleParse)
	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 10 * time.Second,
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	log.Printf("httpserver: listening on %s", ln.Addr())

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Printf("httpserver: stopped")
	return nil
}
