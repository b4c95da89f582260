// Package gateway provides the HTTP surface over the conversation archive:
// link-graph operations, context assembly, and a websocket event feed for
// live UI updates. It binds to loopback by default.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	ctxengine "github.com/flemzord/loom/internal/context"
	"github.com/flemzord/loom/internal/graph"
	"github.com/flemzord/loom/internal/store"
)

// Deps are the collaborators the gateway exposes over HTTP.
type Deps struct {
	Graph         *graph.Service
	Assembler     *ctxengine.Assembler
	Conversations store.ConversationStore
	Configs       store.ContextConfigStore
}

// Gateway is the HTTP server for the archive API.
type Gateway struct {
	config    Config
	deps      Deps
	logger    *slog.Logger
	server    *http.Server
	metrics   *Metrics
	hub       *EventHub
	startedAt time.Time
}

// New creates a Gateway. Call Start to begin serving.
func New(cfg Config, deps Deps, logger *slog.Logger) *Gateway {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		config:  cfg,
		deps:    deps,
		logger:  logger,
		metrics: &Metrics{},
		hub:     NewEventHub(logger),
	}
}

// Metrics returns the gateway's counters, for status reporting and tests.
func (g *Gateway) Metrics() *Metrics { return g.metrics }

// Events returns the event hub so other components can publish.
func (g *Gateway) Events() *EventHub { return g.hub }

// Validate checks the configuration before Start.
func (g *Gateway) Validate() error {
	if _, err := net.ResolveTCPAddr("tcp", g.config.Bind); err != nil {
		return errors.New("gateway: invalid bind address: " + g.config.Bind)
	}
	return nil
}

// Start begins serving in a background goroutine.
func (g *Gateway) Start() error {
	g.startedAt = time.Now()

	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}

	go func() {
		g.logger.Info("gateway listening", "addr", g.config.Bind)
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts the server down within the configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	g.hub.Close()
	return g.server.Shutdown(shutdownCtx)
}
