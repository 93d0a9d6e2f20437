// Package gateway assembles the model client, tools and dialogue service from
// configuration and runs them locally or behind the HTTP server.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"deephat/internal/browser"
	"deephat/internal/chat"
	"deephat/internal/config"
	"deephat/internal/llm"
	"deephat/internal/server"
	"deephat/internal/skills"
	"deephat/internal/tools"
)

const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 120 * time.Second
	shutdownTimeout   = 30 * time.Second
)

type Gateway struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *tools.Registry
	service  *chat.Service
	browser  *browser.Controller
}

// New wires every component. A browser that fails to launch is logged and
// left out of the catalogue rather than failing startup.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{cfg: cfg, logger: logger}

	client, err := llm.New(llm.OptionsFromConfig(cfg, logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize model client: %w", err)
	}

	if cfg.BrowserEnabled {
		ctrl := browser.New(browser.Config{Headless: true, ChromePath: cfg.ChromePath, Logger: logger})
		if err := ctrl.Start(ctx); err != nil {
			logger.Warn("browser unavailable, browse_page disabled", "error", err)
		} else {
			g.browser = ctrl
		}
	}

	reg, err := NewRegistry(skills.Options{Browser: g.browser})
	if err != nil {
		g.Close()
		return nil, err
	}
	g.registry = reg

	exec := tools.NewExecutor(reg, tools.WithTimeout(cfg.ToolTimeout), tools.WithLogger(logger))
	g.service = chat.NewService(client, reg,
		chat.WithToolRunner(exec),
		chat.WithMaxToolRounds(cfg.MaxToolRounds),
		chat.WithLogger(logger),
	)
	logger.Info("agent ready",
		"provider", cfg.Provider, "model", cfg.Model, "tools", reg.Names())
	return g, nil
}

// NewRegistry registers the built-in tools.
func NewRegistry(opts skills.Options) (*tools.Registry, error) {
	reg, err := tools.NewRegistry(skills.Builtins(opts)...)
	if err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	return reg, nil
}

func (g *Gateway) Registry() *tools.Registry { return g.registry }

// Ask runs one dialogue with no prior history.
func (g *Gateway) Ask(ctx context.Context, input string) (string, error) {
	if g.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.RequestTimeout)
		defer cancel()
	}
	return g.service.Reply(ctx, input, nil)
}

// Handler returns the HTTP API backed by this gateway.
func (g *Gateway) Handler() http.Handler {
	return server.New(g.service, server.Options{
		RequestTimeout: g.cfg.RequestTimeout,
		StreamDelay:    g.cfg.StreamDelay,
		CORSOrigins:    g.cfg.CORSOrigins,
		Logger:         g.logger,
	}).Handler()
}

// Serve listens on the configured address until ctx is done, then drains
// in-flight requests.
func (g *Gateway) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              g.cfg.Addr(),
		Handler:           g.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()
	g.logger.Info("server listening", "addr", srv.Addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	g.logger.Info("shutting down server", "timeout", shutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return <-errCh
}

// Close releases the browser, if one was started.
func (g *Gateway) Close() {
	if g.browser != nil {
		g.browser.Stop()
	}
}
