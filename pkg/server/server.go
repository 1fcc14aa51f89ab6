// Package server provides the public entry point for initializing the
// Papermill action service.
//
// It wires the session manager to the backend-of-record client and the
// local library connector, compiles the optional auto-approval policy, and
// builds the HTTP router. Embedders that bring their own collaborators
// (tests, desktop hosts) use NewWithCollaborators.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/papermill-ai/papermill/internal/api"
	"github.com/papermill-ai/papermill/internal/api/handlers"
	"github.com/papermill-ai/papermill/internal/backend"
	"github.com/papermill-ai/papermill/internal/config"
	"github.com/papermill-ai/papermill/internal/host"
	"github.com/papermill-ai/papermill/internal/policy"
	"github.com/papermill-ai/papermill/internal/session"
	"github.com/papermill-ai/papermill/internal/telemetry"
	"github.com/papermill-ai/papermill/pkg/contracts"
)

// Server holds the initialized Papermill action service.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Sessions owns all live per-conversation state.
	Sessions *session.Manager

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown to flush telemetry.
	ShutdownFunc func(context.Context) error
}

// New initializes the service from environment configuration, with the
// default HTTP collaborators.
func New(ctx context.Context) (*Server, error) {
	cfg := config.Load()
	record := backend.NewClient(cfg.Backend.URL, cfg.Backend.APIKey)
	library := host.NewZoteroClient(cfg.Host.ConnectorURL, nil)
	return NewWithCollaborators(ctx, cfg, record, library)
}

// NewWithCollaborators initializes the service against explicit
// collaborator implementations.
func NewWithCollaborators(_ context.Context, cfg *config.Config, record contracts.BackendOfRecord, library contracts.HostStore) (*Server, error) {
	shutdown, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	pol, err := policy.Compile(cfg.Approval.PolicyRule)
	if err != nil {
		return nil, fmt.Errorf("compile approval policy: %w", err)
	}
	if pol != nil {
		log.Info().Str("rule", cfg.Approval.PolicyRule).Msg("approval auto-policy active")
	}

	sessions := session.NewManager(record, library, pol, cfg.Executor.Window)
	h := handlers.New(sessions, cfg.Version)
	router := api.NewRouter(cfg, h)

	log.Info().
		Str("backend", cfg.Backend.URL).
		Str("connector", cfg.Host.ConnectorURL).
		Int("batch_window", cfg.Executor.Window).
		Msg("action service initialized")

	return &Server{
		Handler:      router,
		Sessions:     sessions,
		Port:         cfg.Port,
		ShutdownFunc: shutdown,
	}, nil
}
