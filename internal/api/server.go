// Package api serves the negotiation and contract operations over JSON.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/dealyard/internal/contractlog"
	"github.com/zulandar/dealyard/internal/identity"
	"github.com/zulandar/dealyard/internal/notify"
	"github.com/zulandar/dealyard/internal/offer"
	"github.com/zulandar/dealyard/internal/step"
	"github.com/zulandar/dealyard/internal/storage"
	"gorm.io/gorm"
)

// StartOpts holds configuration for the API server.
type StartOpts struct {
	DB       *gorm.DB
	Port     int
	Secret   string // HS256 key for bearer tokens
	Notifier notify.Notifier
	Verifier storage.Verifier // optional
	Out      io.Writer
}

// Start launches the API server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	router, err := NewRouter(opts)
	if err != nil {
		return err
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "API listening on http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(opts StartOpts) (*gin.Engine, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("api: db is required")
	}
	if opts.Secret == "" {
		return nil, fmt.Errorf("api: secret is required")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestID(), accessLog())

	h := &handlers{
		db:     opts.DB,
		offers: offer.NewService(opts.DB, opts.Notifier),
		steps:  step.NewService(opts.DB, opts.Notifier, opts.Verifier),
		logs:   contractlog.NewService(opts.DB, opts.Notifier),
	}
	router.GET("/healthz", h.health)

	authed := router.Group("/", identity.Middleware(opts.Secret))
	registerRoutes(authed, h)
	return router, nil
}
