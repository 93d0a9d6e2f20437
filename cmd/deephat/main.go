package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"deephat/internal/browser"
	"deephat/internal/client"
	"deephat/internal/config"
	"deephat/internal/gateway"
	"deephat/internal/logging"
	"deephat/internal/server"
	"deephat/internal/skills"
	"deephat/internal/tui"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "deephat",
		Short:        "Cybersecurity and DevOps assistant with tool calling",
		Version:      server.Version,
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newAskCmd(), newChatCmd(), newToolsCmd())
	return root
}

// setup loads configuration and builds the logger. Unusable settings that
// fell back to defaults are reported once the logger exists.
func setup() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	for _, w := range cfg.Warnings {
		logger.Warn("config: " + w)
	}
	if err != nil {
		return cfg, logger, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, logger, nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			gw, err := gateway.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer gw.Close()
			return gw.Serve(ctx)
		},
	}
}

func newAskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <message...>",
		Short: "Ask a single question and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			gw, err := gateway.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer gw.Close()

			answer, err := gw.Ask(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), answer)
			return nil
		},
	}
}

func newChatCmd() *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open a terminal chat against a running server",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return tui.Run(client.New(url, nil))
		},
	}
	cmd.Flags().StringVar(&url, "url", "http://localhost:8000", "base URL of the DeepHat server")
	return cmd
}

func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools the agent can call",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Listing tools needs no model credentials.
			cfg, _ := config.Load()
			var opts skills.Options
			if cfg.BrowserEnabled {
				// Not launched; listing only needs the tool to be registered.
				opts.Browser = browser.New(browser.Config{ChromePath: cfg.ChromePath})
			}
			reg, err := gateway.NewRegistry(opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), reg.Catalogue())
			return nil
		},
	}
}
