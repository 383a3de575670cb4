// Package main provides the CLI entry point for the agent-to-agent HTTP
// server: it exposes every locally configured agent at
// <base-url>/<agent-name>, following the teacher's cmd/nexus serve command
// (config loading, signal-driven shutdown, structured logging).
//
// # Basic Usage
//
//	a2a-server serve --config orchestrator.yaml
//
// # Environment Variables
//
//   - ORCHESTRATOR_CONFIG: Path to configuration file (default: orchestrator.yaml)
//   - ORCHESTRATOR_HOST: Overrides server.host
//   - ORCHESTRATOR_HTTP_PORT: Overrides server.http_port
//   - ANTHROPIC_API_KEY: Anthropic API key for Claude models
//   - OPENAI_API_KEY: OpenAI API key for GPT models
//   - GEMINI_API_KEY: Google Gemini API key
//   - GROQ_API_KEY, DEEPINFRA_API_KEY: OpenAI-compatible gateway providers
//   - TAVILY_API_KEY: web_search tool's Tavily backend
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/agentcore/orchestrator/internal/a2aserver"
	"github.com/agentcore/orchestrator/internal/bootstrap"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("a2a-server exited with error", "error", err)
		os.Exit(bootstrap.ExitCode(err))
	}
}

func buildRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "a2a-server",
		Short:        "Expose local agents over an agent-to-agent HTTP endpoint",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "path to YAML configuration file")

	root.AddCommand(buildServeCmd(&configPath))
	return root
}

func buildServeCmd(configPath *string) *cobra.Command {
	var (
		host     string
		port     int
		provider string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the A2A HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath, host, port, provider)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "override server.host")
	cmd.Flags().IntVar(&port, "port", 0, "override server.http_port")
	cmd.Flags().StringVar(&provider, "provider", "", "override llm.default_provider")

	return cmd
}

func runServe(ctx context.Context, configPath, host string, port int, provider string) error {
	rt, err := bootstrap.Build(ctx, bootstrap.Options{ConfigPath: configPath, ProviderOverride: provider}, slog.Default())
	if err != nil {
		return err
	}

	if host != "" {
		rt.Config.Server.Host = host
	}
	if port != 0 {
		rt.Config.Server.HTTPPort = port
	}

	srv := a2aserver.NewServer(rt.Agents, rt.Engine, rt.Store, slog.Default())

	addr := fmt.Sprintf("%s:%d", rt.Config.Server.Host, rt.Config.Server.HTTPPort)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsAddr := fmt.Sprintf("%s:%d", rt.Config.Server.Host, rt.Config.Server.MetricsPort)
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              metricsAddr,
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		slog.Info("a2a server listening", "addr", addr, "agents", rt.Agents.Names())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	go func() {
		slog.Info("metrics server listening", "addr", metricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down a2a server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = metricsServer.Shutdown(shutdownCtx)
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return &bootstrap.CLIError{Code: bootstrap.ExitInternal, Err: err}
	}
}

func defaultConfigPath() string {
	if v := os.Getenv("ORCHESTRATOR_CONFIG"); v != "" {
		return v
	}
	return "orchestrator.yaml"
}
