package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/a3tai/pdf-playground/internal/backend"
	"github.com/a3tai/pdf-playground/internal/config"
	"github.com/a3tai/pdf-playground/internal/logging"
	"github.com/a3tai/pdf-playground/internal/mcp"
	"github.com/a3tai/pdf-playground/internal/web"
)

var (
	version   = "dev"     // This will be set by build flags
	buildTime = "unknown" // This will be set by build flags
	gitCommit = "unknown" // This will be set by build flags
)

// runner is implemented by both front-ends.
type runner interface {
	Run(ctx context.Context) error
}

// runServerMode runs the browser front-end until a signal arrives or it fails
func runServerMode(ctx context.Context, cancel context.CancelFunc, server runner, logger *logrus.Logger) int {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(signalCh)

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- server.Run(ctx)
	}()

	select {
	case sig := <-signalCh:
		logger.WithField("signal", sig.String()).Info("Initiating graceful shutdown")
		cancel()

		if err := <-serverErrCh; err != nil {
			logger.WithError(err).Error("Server shutdown with error")
			return 1
		}

	case err := <-serverErrCh:
		if err != nil {
			logger.WithError(err).Error("Server error")
			return 1
		}
	}

	logger.Info("Server stopped successfully")
	return 0
}

// runStdioMode serves MCP tools until the client closes stdin
func runStdioMode(ctx context.Context, server runner, logger *logrus.Logger) int {
	if err := server.Run(ctx); err != nil {
		logger.WithError(err).Error("Server error")
		return 1
	}
	return 0
}

func newServer(cfg *config.Config, client *backend.Client, logger *logrus.Logger) (runner, error) {
	if cfg.IsServerMode() {
		return web.NewServer(cfg, client, logger)
	}
	return mcp.NewServer(cfg, client, logger)
}

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			printVersion(os.Stdout)
			return
		}
	}

	cfg, err := config.LoadFromFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(2)
	}

	if version != "dev" {
		cfg.Version = version
	}

	logger := logging.New(cfg)
	if cfg.IsDebug() {
		logger.WithField("config", cfg.String()).Debug("Starting")
	}

	client, err := backend.NewClient(cfg.BackendURL,
		backend.WithTimeout(cfg.RequestTimeout),
		backend.WithRateLimit(cfg.RateLimit),
		backend.WithLogger(logger),
	)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create backend client")
	}

	server, err := newServer(cfg, client, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create server")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var code int
	if cfg.IsServerMode() {
		code = runServerMode(ctx, cancel, server, logger)
	} else {
		code = runStdioMode(ctx, server, logger)
	}
	if code != 0 {
		cancel()
		os.Exit(code)
	}
}

// printVersion prints version information
func printVersion(w io.Writer) {
	fmt.Fprintf(w, "PDF Playground\n")
	fmt.Fprintf(w, "Version: %s\n", version)
	fmt.Fprintf(w, "Build Time: %s\n", buildTime)
	fmt.Fprintf(w, "Git Commit: %s\n", gitCommit)
	fmt.Fprintf(w, "Built with: %s\n", runtime.Version())
}
