package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/akshayaggarwal99/sandboxd/internal/apiserver"
	"github.com/akshayaggarwal99/sandboxd/internal/config"
	"github.com/akshayaggarwal99/sandboxd/internal/orchestrator"
	dockersandbox "github.com/akshayaggarwal99/sandboxd/internal/sandbox/docker"
	"github.com/akshayaggarwal99/sandboxd/internal/telemetry"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var configPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the sandboxd API server",
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", ".", "directory to search for sandboxd.yaml")
}

// runServer wires config, tracing, the Docker provisioner, the
// orchestrator, and the API handler together, then serves until an
// interrupt triggers graceful shutdown. Grounded on
// boxed/internal/cli/serve.go's runServer: same signal-channel shutdown,
// same pre-serve health check, same echo.New() + HideBanner/HidePort.
func runServer() {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("sandboxd: failed to load config")
	}
	telemetry.InitLogging(cfg.Verbose || verbose, cfg.Environment)

	log.Info().Str("listen_addr", cfg.ListenAddr).Int("worker_pool_size", cfg.WorkerPoolSize).Msg("starting sandboxd")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.InitTracing(ctx, os.Stderr)
	if err != nil {
		log.Fatal().Err(err).Msg("sandboxd: failed to init tracing")
	}
	defer func() {
		if tErr := shutdownTracing(context.Background()); tErr != nil {
			log.Error().Err(tErr).Msg("sandboxd: tracer shutdown failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
		cancel()
	}()

	provisioner, err := dockersandbox.New(cfg.DockerHost)
	if err != nil {
		log.Fatal().Err(err).Msg("sandboxd: failed to initialize docker provisioner")
	}
	defer provisioner.Close()

	ctxTimeout, cancelTimeout := context.WithTimeout(ctx, 5*time.Second)
	if err := provisioner.Healthy(ctxTimeout); err != nil {
		cancelTimeout()
		log.Fatal().Err(err).Msg("sandboxd: docker health check failed")
	}
	cancelTimeout()

	orch := orchestrator.New(provisioner, cfg.DefaultImage, cfg.DefaultTestTimeout)
	handler := apiserver.NewHandler(orch, cfg.APIKey, cfg.WorkerPoolSize)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	handler.RegisterRoutes(e)

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("listening")
		serverErr <- e.Start(cfg.ListenAddr)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server forced to shutdown")
		}
	case err := <-serverErr:
		log.Fatal().Err(err).Msg("server startup failed")
	}
}
