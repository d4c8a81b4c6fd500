// Package server provides the public entry point for initializing the
// Brandbeam gateway server: it builds the principal store, quota ledger,
// agent registry, backend invoker, and HTTP router, and returns a ready
// Server for main.go to run.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/brandbeam/brandbeam/internal/api"
	"github.com/brandbeam/brandbeam/internal/api/handlers"
	"github.com/brandbeam/brandbeam/internal/api/middleware"
	"github.com/brandbeam/brandbeam/internal/config"
	"github.com/brandbeam/brandbeam/internal/gateway"
	"github.com/brandbeam/brandbeam/internal/invoker"
	"github.com/brandbeam/brandbeam/internal/quota"
	"github.com/brandbeam/brandbeam/internal/registry"
	"github.com/brandbeam/brandbeam/internal/store"
	"github.com/brandbeam/brandbeam/internal/telemetry"
)

// Server holds the initialized Brandbeam gateway.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Store is the principal store.
	Store store.Store

	// Port is the port the server should listen on.
	Port int

	// Janitor is the billing-cycle sweeper; main runs it as a background
	// goroutine for the life of the process.
	Janitor *quota.Janitor

	// ShutdownFunc should be called on graceful shutdown to flush telemetry.
	ShutdownFunc func(context.Context) error
}

// New initializes all gateway components from environment configuration.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig initializes the gateway with an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	shutdown, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	// Principal store: PostgreSQL when configured, in-memory otherwise.
	var principalStore store.Store
	if cfg.Database.URL != "" {
		principalStore, err = store.NewPostgresStore(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		log.Info().Msg("PostgreSQL principal store initialized")
	} else {
		principalStore = store.NewMemoryStore()
		log.Info().Msg("In-memory principal store initialized")
	}

	// Quota ledger: Redis counter cache when configured.
	ceilings := quota.CeilingsFromConfig(cfg.Quota)
	var ledger quota.Ledger
	if cfg.Quota.RedisURL != "" {
		ledger, err = quota.NewRedisLedger(ctx, cfg.Quota.RedisURL, principalStore, ceilings)
		if err != nil {
			return nil, fmt.Errorf("init redis ledger: %w", err)
		}
		log.Info().Msg("Redis quota ledger initialized")
	} else {
		ledger = quota.NewStoreLedger(principalStore, ceilings)
		log.Info().Msg("Store-backed quota ledger initialized")
	}

	reg, err := registry.New()
	if err != nil {
		return nil, fmt.Errorf("build agent registry: %w", err)
	}
	log.Info().Int("agents", len(reg.Names())).Msg("Agent registry loaded")

	inv := invoker.New(cfg.Backend)
	gw := gateway.New(reg, ledger, inv, cfg.Quota.FallbackCharge)

	h := handlers.New(gw)
	auth := middleware.NewAuth(principalStore)
	router := api.NewRouter(cfg, h, auth)

	janitor := quota.NewJanitor(principalStore, ledger, cfg.Quota.SweepInterval)

	return &Server{
		Handler:      router,
		Store:        principalStore,
		Port:         cfg.Port,
		Janitor:      janitor,
		ShutdownFunc: shutdown,
	}, nil
}
