// escpos-sim - Virtual ESC/POS Printer Emulator
//
// This is the main entry point for the emulator daemon. It accepts raw
// ESC/POS byte streams over TCP, decodes them into structured commands,
// and exposes a harness control surface over HTTP and WebSocket:
//   - Deterministic, seedable fault and network degradation simulation
//   - Append-only command, print and error history
//   - Optional SQLite persistence and MQTT status bridging
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/escpos-sim/internal/api"
	"github.com/nerrad567/escpos-sim/internal/emulator"
	"github.com/nerrad567/escpos-sim/internal/history"
	"github.com/nerrad567/escpos-sim/internal/infrastructure/config"
	"github.com/nerrad567/escpos-sim/internal/infrastructure/database"
	"github.com/nerrad567/escpos-sim/internal/infrastructure/logging"
	"github.com/nerrad567/escpos-sim/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting escpos-sim",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Build the emulator
	emuOpts := []emulator.Option{emulator.WithLogger(log)}
	if cfg.Emulator.Seed != 0 {
		emuOpts = append(emuOpts, emulator.WithSeed(cfg.Emulator.Seed))
		log.Info("deterministic mode", "seed", cfg.Emulator.Seed)
	}

	// Open the history database (optional)
	if cfg.History.Persist {
		db, openErr := database.Open(database.Config{
			Path:        cfg.History.Database.Path,
			WALMode:     cfg.History.Database.WALMode,
			BusyTimeout: cfg.History.Database.BusyTimeout,
		})
		if openErr != nil {
			return fmt.Errorf("opening history database: %w", openErr)
		}
		defer func() {
			log.Info("closing history database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing history database", "error", closeErr)
			}
		}()
		log.Info("history database connected", "path", cfg.History.Database.Path)

		recorder, recErr := history.NewSQLiteRecorder(db.DB)
		if recErr != nil {
			return fmt.Errorf("initialising history recorder: %w", recErr)
		}
		emuOpts = append(emuOpts, emulator.WithRecorder(recorder))
	} else {
		log.Info("history persistence disabled")
	}

	emu := emulator.New(emulator.Config{
		ListenAddr:     cfg.ListenAddr(),
		BufferCapacity: cfg.Emulator.BufferCapacity,
		IdleTimeout:    cfg.GetIdleTimeout(),
		OfflinePolicy:  emulator.OfflinePolicy(cfg.Emulator.OfflinePolicy),
	}, emuOpts...)

	if err := emu.Start(ctx); err != nil {
		return fmt.Errorf("starting emulator: %w", err)
	}
	defer func() {
		log.Info("stopping emulator")
		emu.Stop()
	}()
	log.Info("emulator listening", "address", emu.Addr(), "offline_policy", cfg.Emulator.OfflinePolicy)

	// Connect the MQTT status bridge (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = startMQTTBridge(ctx, cfg, emu, log)
		if err != nil {
			return fmt.Errorf("starting MQTT bridge: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
	} else {
		log.Info("MQTT bridge disabled")
	}

	// Start the HTTP control API
	apiServer, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Logger:   log,
		Emulator: emu,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify everything came up healthy
	if err := healthCheck(ctx, apiServer, mqttClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. MQTT (if enabled)
	// 3. Emulator
	// 4. History database (if enabled)

	log.Info("escpos-sim stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses ESCPOSSIM_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("ESCPOSSIM_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// startMQTTBridge connects to the broker and forwards printer activity.
func startMQTTBridge(ctx context.Context, cfg *config.Config, emu *emulator.Emulator, log *logging.Logger) (*mqtt.Client, error) {
	client, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
	)

	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	bridge := mqtt.NewBridge(client, emu.Machine(), emu.History(), byte(cfg.MQTT.QoS))
	bridge.SetLogger(log)
	go bridge.Run(ctx)
	log.Info("MQTT status bridge started", "prefix", mqtt.TopicPrefix)

	return client, nil
}

// healthCheck verifies the started components are responsive.
func healthCheck(ctx context.Context, apiServer *api.Server, mqttClient *mqtt.Client) error {
	if err := apiServer.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	return nil
}
