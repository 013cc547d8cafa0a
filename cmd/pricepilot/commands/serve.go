package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pricepilot-ai/pricepilot/internal/chat"
	"github.com/pricepilot-ai/pricepilot/internal/config"
	"github.com/pricepilot-ai/pricepilot/internal/event"
	"github.com/pricepilot-ai/pricepilot/internal/logging"
	"github.com/pricepilot-ai/pricepilot/internal/market"
	"github.com/pricepilot-ai/pricepilot/internal/server"
	"github.com/pricepilot-ai/pricepilot/internal/storage"
	"github.com/pricepilot-ai/pricepilot/internal/transcript"
	"github.com/pricepilot-ai/pricepilot/internal/transport"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the pricepilot HTTP server",
	Long: `Start pricepilot as an HTTP server exposing the chat pipeline:
turn submission, transcript access and live SSE/WebSocket event feeds.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir()
	if err != nil {
		return err
	}

	cfg, err := config.Load(workDir)
	if err != nil {
		return err
	}
	if servePort > 0 {
		cfg.Port = servePort
	}
	if cfg.LogLevel != "" {
		logging.Init(logging.Config{Level: logging.ParseLevel(cfg.LogLevel), Pretty: prettyLogs})
	}

	logging.Info().
		Str("version", Version).
		Str("upstream", cfg.UpstreamURL).
		Msg("starting pricepilot server")

	bus := event.NewBus()
	defer bus.Close()

	store := transcript.New(bus)

	var contexts chat.ContextProvider
	if cfg.MarketContextURL != "" {
		contexts = market.NewHTTPProvider(cfg.MarketContextURL, market.DefaultTTL)
	}

	orchestrator := chat.NewOrchestrator(chat.Options{
		Transport:        transport.NewClient(cfg.UpstreamURL),
		Contexts:         contexts,
		Store:            store,
		Policy:           chat.NewFallbackPolicy(cfg.FailureThreshold),
		HeartbeatSeconds: cfg.HeartbeatSeconds,
	})

	var archive *storage.Storage
	if cfg.DataDir != "" {
		archive = storage.New(cfg.DataDir)
	}

	// Config changes are picked up on the next restart; the watcher only
	// announces them on the bus so connected clients can prompt a reload.
	watcher, err := config.NewWatcher(workDir, bus)
	if err != nil {
		logging.Warn().Err(err).Msg("config watcher unavailable")
	} else {
		watcher.Start()
		defer watcher.Stop()
	}

	serverConfig := server.DefaultConfig()
	serverConfig.Port = cfg.Port
	serverConfig.HeartbeatInterval = cfg.HeartbeatInterval()

	srv := server.New(serverConfig, orchestrator, store, bus, archive)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	orchestrator.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
