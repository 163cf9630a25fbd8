package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/guiperry/gollm_cerebras/utils"
	"github.com/joho/godotenv"
	"github.com/philippgille/chromem-go"

	"codeguardian/data_engine"
	"codeguardian/inference_engine"
	"codeguardian/internal/config"
	"codeguardian/internal/credentials"
	"codeguardian/internal/guardian"
	"codeguardian/internal/logging"
	"codeguardian/internal/server"
	"codeguardian/internal/websocket"
)

// Version is set at compile time
var Version = "dev"

const (
	settingsFileName = "settings.json"
	keyStoreDirName  = "chromem-db"
	eventWindow      = time.Minute
	eventWindowsKept = 60
	shutdownTimeout  = 10 * time.Second
)

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	logging.Init(&logging.Config{
		Level:      logging.ParseLevel(cfg.LogLevel),
		TimeFormat: "15:04:05",
	})
	if envErr != nil {
		logging.L_info("⚠️  No .env file found, using environment variables only")
	} else {
		logging.L_info("✅ .env file loaded")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logging.L_error("❌ CodeGuardian stopped", "error", err)
		os.Exit(1)
	}
	logging.L_info("👋 CodeGuardian shut down cleanly")
}

func run(ctx context.Context, cfg *config.Config) error {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	settings := config.NewSettingsManager(cfg)
	settingsFile := filepath.Join(cfg.DataDir, settingsFileName)
	if _, err := os.Stat(settingsFile); err == nil {
		if err := settings.LoadFromFile(settingsFile); err != nil {
			logging.L_warn("⚠️  Ignoring saved settings", "file", settingsFile, "error", err)
		} else {
			logging.L_info("✅ Saved settings loaded", "file", settingsFile)
		}
	}
	cfg = settings.GetSettings()

	keyStorePath := filepath.Join(cfg.DataDir, keyStoreDirName)
	db, err := chromem.NewPersistentDB(keyStorePath, true)
	if err != nil {
		return fmt.Errorf("failed to open key store at %s: %w", keyStorePath, err)
	}
	store, err := credentials.NewChromemKeyStore(db)
	if err != nil {
		return err
	}
	vault, err := credentials.NewVault(ctx, store)
	if err != nil {
		return fmt.Errorf("failed to load credentials: %w", err)
	}
	if err := vault.Seed(ctx, cfg.SeedAPIKeys()); err != nil {
		logging.L_warn("⚠️  Failed to seed API keys from environment", "error", err)
	}

	registry := inference_engine.NewProviderRegistry(cfg.ProviderConfigs(), vault)
	settings.AddChangeListener(registry)

	transport := inference_engine.NewSimulatedTransport(cfg.Simulation.Latency)
	transport.InjectFaults(cfg.Simulation.Failures)
	dispatcher := inference_engine.NewFallbackDispatcher(
		registry,
		inference_engine.NewCodecClient(transport, utils.NewLogger(utils.LogLevelInfo)),
		inference_engine.NewSimulationClient(cfg.Simulation.Latency),
	)

	sessions := guardian.NewSessionManager(cfg.History.TokenLimit, cfg.History.TokenModel)
	core := guardian.NewCodeGuardian(dispatcher, sessions, nil, nil)

	events := data_engine.NewWindowedAggregator(eventWindow, eventWindowsKept)
	core.AddEventSink(events)

	var hub *websocket.Hub
	if cfg.DataEngine.EnableWebSocket {
		hub = websocket.NewHub()
		go hub.Run(ctx)
		core.AddEventSink(hub)
	}

	if cfg.DataEngine.EnableKafka {
		producer := data_engine.NewEventProducer(data_engine.EventProducerConfig{
			KafkaBrokers: cfg.DataEngine.KafkaBrokers,
			Topic:        cfg.DataEngine.KafkaTopic,
			Async:        true,
		})
		producer.Connect()
		defer func() {
			if err := producer.Close(); err != nil {
				logging.L_warn("⚠️  Error closing Kafka producer", "error", err)
			}
		}()
		core.AddEventSink(producer)
	}

	srv := server.NewServer(cfg, server.Dependencies{
		Guardian:     core,
		Registry:     registry,
		Vault:        vault,
		Settings:     settings,
		SettingsFile: settingsFile,
		Hub:          hub,
		Events:       events,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()
	printStartupBanner(cfg, registry)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logging.L_info("🛑 Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if err := settings.SaveToFile(settingsFile); err != nil {
		logging.L_warn("⚠️  Failed to save settings", "error", err)
	}
	return nil
}

// printStartupBanner prints the startup information banner
func printStartupBanner(cfg *config.Config, registry *inference_engine.ProviderRegistry) {
	available := registry.Available()
	logging.L_info("╔════════════════════════════════════════════════════════════════╗")
	logging.L_info("║                  🚀 Starting CodeGuardian 🚀                   ║")
	logging.L_infof("║  Version: %s", Version)
	logging.L_infof("║  🤖 Providers with keys: %d of %d", len(available), len(registry.ListInPriorityOrder()))
	logging.L_infof("║  📊 Dashboard: http://localhost:%d", cfg.ServerPort)
	logging.L_infof("║  🔗 WebSocket: ws://localhost:%d/ws", cfg.ServerPort)
	logging.L_info("╚════════════════════════════════════════════════════════════════╝")
	if len(available) == 0 {
		logging.L_warn("⚠️  No API keys set. Chat is disabled until a key is saved in settings; code analysis uses the simulated provider.")
	}
}
