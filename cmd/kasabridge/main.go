// Gray Logic Kasa Bridge
//
// This is the main entry point for the Kasa bridge. It queues device
// operations from MQTT and the HTTP API onto a single dispatch worker that
// owns all device I/O, and reports each outcome back on the channel named
// in the request.
//
// Issue an API token with:
//
//	kasabridge -issue-token panel-1 -token-ttl 720h
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/gray-logic-kasa/internal/api"
	"github.com/nerrad567/gray-logic-kasa/internal/audit"
	"github.com/nerrad567/gray-logic-kasa/internal/bridges/kasa"
	"github.com/nerrad567/gray-logic-kasa/internal/device"
	"github.com/nerrad567/gray-logic-kasa/internal/device/simulated"
	"github.com/nerrad567/gray-logic-kasa/internal/dispatch"
	"github.com/nerrad567/gray-logic-kasa/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-kasa/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-kasa/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-kasa/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-kasa/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-kasa/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	// defaultConfigPath is used when KASABRIDGE_CONFIG is unset.
	defaultConfigPath = "configs/kasabridge.yaml"

	// historyPruneInterval is how often expired snapshot history is deleted.
	historyPruneInterval = time.Hour
)

func main() {
	issueFor := flag.String("issue-token", "", "print an API token for `subject` and exit")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of an issued token")
	flag.Parse()

	if *issueFor != "" {
		if err := issueToken(os.Stdout, *issueFor, *tokenTTL); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component, blocks until ctx is cancelled and then shuts
// down in order: intake first, then the worker, then the transports it
// reports through, then storage.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting Kasa bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"bridge_id", cfg.Bridge.ID,
		"driver", cfg.Kasa.Driver,
	)

	// Storage
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	jobLog := audit.NewSQLiteRepository(db.DB)
	history := device.NewSQLiteHistoryRepository(db.DB)

	controller, err := newController(cfg.Kasa)
	if err != nil {
		return err
	}

	var (
		notifiers = dispatch.Notifiers{}
		recorders = []dispatch.Recorder{jobLog}
		sinks     = []dispatch.SnapshotSink{history}
	)

	// Telemetry (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		recorders = append(recorders, influxRecorder{client: influxClient})
		sinks = append(sinks, influxSink{client: influxClient})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// MQTT transport (optional)
	var (
		mqttClient *mqtt.Client
		publisher  *kasa.Publisher
	)
	if cfg.MQTT.Enabled {
		will, willErr := kasa.WillMessage(cfg.Bridge.ID)
		if willErr != nil {
			return fmt.Errorf("building MQTT will: %w", willErr)
		}
		mqttClient, err = mqtt.Connect(cfg.MQTT, will)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		//nolint:gosec // QoS validated to 0..2 by config
		publisher = kasa.NewPublisher(mqttClient, byte(cfg.MQTT.QoS))
		notifiers = append(notifiers, publisher)
		sinks = append(sinks, publisher)
	} else {
		log.Info("MQTT disabled")
	}

	// WebSocket hub. It outlives the API listener so responses for jobs
	// abandoned at shutdown still reach connected clients.
	var hub *api.Hub
	if cfg.API.Enabled {
		hub = api.NewHub(cfg.WebSocket, log.Component("websocket"))
		hubCtx, stopHub := context.WithCancel(context.Background())
		go hub.Run(hubCtx)
		defer stopHub()
		notifiers = append(notifiers, hub)
		sinks = append(sinks, hub)
	}

	// Dispatcher
	registry := device.NewRegistry()
	registry.SetLogger(log.Component("registry"))

	dispatcher, err := dispatch.New(dispatch.Options{
		Controller:    controller,
		Notifier:      notifiers,
		Registry:      registry,
		Recorders:     recorders,
		SnapshotSinks: sinks,
		PollInterval:  cfg.Kasa.PollInterval,
		IOTimeout:     cfg.Kasa.IOTimeout,
		Logger:        log.Component("dispatch"),
	})
	if err != nil {
		return fmt.Errorf("creating dispatcher: %w", err)
	}
	if err := dispatcher.Start(); err != nil {
		return fmt.Errorf("starting dispatcher: %w", err)
	}
	defer func() {
		log.Info("stopping dispatcher", "queued", dispatcher.Stats().QueueDepth)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Kasa.ShutdownTimeout)
		defer cancel()
		if stopErr := dispatcher.ShutdownContext(shutdownCtx); stopErr != nil {
			log.Error("dispatcher did not stop in time", "error", stopErr)
		}
	}()

	// MQTT intake
	if mqttClient != nil {
		bridge, bridgeErr := kasa.NewBridge(kasa.BridgeOptions{
			BridgeID:       cfg.Bridge.ID,
			Version:        version,
			MQTTClient:     mqttClient,
			Dispatcher:     dispatcher,
			Publisher:      publisher,
			HealthInterval: cfg.Kasa.HealthInterval,
			Logger:         log.Component("kasa-bridge"),
		})
		if bridgeErr != nil {
			return fmt.Errorf("creating bridge: %w", bridgeErr)
		}
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
			if pubErr := bridge.PublishHealth(); pubErr != nil {
				log.Warn("publishing health after reconnect failed", "error", pubErr)
			}
		})
		if startErr := bridge.Start(ctx); startErr != nil {
			return fmt.Errorf("starting bridge: %w", startErr)
		}
		defer func() {
			log.Info("stopping bridge")
			bridge.Stop()
		}()
	}

	// HTTP intake
	if cfg.API.Enabled {
		deps := api.Deps{
			Config:     cfg.API,
			WS:         cfg.WebSocket,
			Security:   cfg.Security,
			Logger:     log.Component("api"),
			Dispatcher: dispatcher,
			Registry:   registry,
			Jobs:       jobLog,
			History:    history,
			DB:         db.DB,
			Hub:        hub,
			Version:    version,
		}
		if mqttClient != nil {
			deps.MQTT = mqttClient
		}
		server, apiErr := api.New(deps)
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			log.Info("stopping API server")
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error stopping API server", "error", closeErr)
			}
		}()
	}

	if cfg.Database.HistoryRetention > 0 {
		go pruneHistoryLoop(ctx, history, cfg.Database.HistoryRetention, log)
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse: API, bridge, dispatcher, hub, MQTT,
	// InfluxDB, database.
	return nil
}

// newController builds the device driver named in cfg.
func newController(cfg config.KasaConfig) (device.Controller, error) {
	switch cfg.Driver {
	case config.DriverSimulated:
		return simulated.New(cfg.Simulated), nil
	default:
		return nil, fmt.Errorf("unsupported kasa driver %q", cfg.Driver)
	}
}

// getConfigPath returns the configuration file path.
// Uses KASABRIDGE_CONFIG if set, otherwise the default.
func getConfigPath() string {
	if path := os.Getenv("KASABRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies the infrastructure connections that are enabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// historyPruner is the part of the history repository the prune loop uses.
type historyPruner interface {
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// pruneHistoryLoop deletes snapshot history older than retention, once at
// startup and then every historyPruneInterval, until ctx is cancelled.
func pruneHistoryLoop(ctx context.Context, repo historyPruner, retention time.Duration, log *logging.Logger) {
	ticker := time.NewTicker(historyPruneInterval)
	defer ticker.Stop()

	for {
		n, err := repo.Prune(ctx, retention)
		switch {
		case errors.Is(err, context.Canceled):
			return
		case err != nil:
			log.Warn("pruning snapshot history failed", "error", err)
		case n > 0:
			log.Info("pruned snapshot history", "removed", n, "retention", retention.String())
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
