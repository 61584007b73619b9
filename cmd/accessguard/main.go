// AccessGuard Core - RFID access authorization service
//
// This is the main entry point for the AccessGuard Core service. It wires:
//   - the MQTT device protocol router (readings, control commands, replies)
//   - the card registry and access log (SQLite)
//   - the intrusion detector
//   - the backup manager, its change queue and its wall-clock scheduler
//   - the optional admin HTTP API and live WebSocket feed
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/accessguard-core/migrations"

	"github.com/nerrad567/accessguard-core/internal/api"
	"github.com/nerrad567/accessguard-core/internal/audit"
	"github.com/nerrad567/accessguard-core/internal/backup"
	"github.com/nerrad567/accessguard-core/internal/card"
	"github.com/nerrad567/accessguard-core/internal/infrastructure/config"
	"github.com/nerrad567/accessguard-core/internal/infrastructure/database"
	"github.com/nerrad567/accessguard-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/accessguard-core/internal/infrastructure/logging"
	"github.com/nerrad567/accessguard-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/accessguard-core/internal/router"
	"github.com/nerrad567/accessguard-core/internal/security"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// configEnv overrides defaultConfigPath.
const configEnv = "ACCESSGUARD_CONFIG"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Deferred cleanup runs in reverse order of start-up, so the API stops
// before the router, the router before the broker connection, and the
// database closes last.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear start-up sequence
	log := logging.Default()
	log.Info("starting AccessGuard Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "site_id", cfg.Site.ID, "site_name", cfg.Site.Name)

	// Database
	db, err := database.Open(ctx, database.Config{
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
	log.Info("database connected", "path", cfg.Database.Path)

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database migrations complete")

	// Telemetry is optional; a disabled or unreachable InfluxDB never
	// blocks start-up.
	influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		log.Warn("InfluxDB unavailable, continuing without telemetry", "error", err)
		influxClient = nil
	default:
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	// Backups: store rows and files, the change queue and the schedule.
	files, err := backup.NewFileStore(cfg.Backup)
	if err != nil {
		return fmt.Errorf("opening backup file store: %w", err)
	}
	cardRepo := card.NewSQLiteRepository(db)
	backups := backup.NewManager(cardRepo, backup.NewSQLiteRepository(db), files, cfg.Backup)
	backups.SetLogger(log.With("component", "backup"))
	if influxClient != nil {
		backups.SetTelemetry(influxClient)
	}
	log.Info("backup storage ready", "location", files.Location(), "compress", cfg.Backup.Compress)

	queue := backup.NewQueue(backups, cfg.Backup)
	queue.SetLogger(log.With("component", "backup_queue"))

	// The queue outlives the router so in-flight card-change backups
	// finish before the database closes.
	queueCtx, stopQueue := context.WithCancel(context.WithoutCancel(ctx))
	queue.Start(queueCtx)
	defer func() {
		stopQueue()
		queue.Wait()
		log.Info("backup queue drained")
	}()

	scheduler, err := backup.NewScheduler(backups, cfg.Backup.Schedule)
	if err != nil {
		return fmt.Errorf("creating backup scheduler: %w", err)
	}
	scheduler.SetLogger(log.With("component", "backup_scheduler"))
	// A scheduled backup in progress at shutdown finishes before the
	// queue drains and the database closes.
	schedCtx, stopScheduler := context.WithCancel(ctx)
	scheduler.Start(schedCtx)
	defer func() {
		stopScheduler()
		scheduler.Wait()
		log.Info("backup scheduler finished")
	}()

	// Registry and detector.
	tracker := card.NewTracker(cardRepo, queue)
	tracker.SetLogger(log.With("component", "card"))

	detector := security.NewDetector(cardRepo, security.NewSQLiteRepository(db), cfg.Intrusion)
	detector.SetLogger(log.With("component", "security"))

	// The hub exists even without the API so the router and detector can
	// publish to it unconditionally.
	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)

	detector.SetOnEvent(func(e security.Event) {
		influxClient.WriteSecurityEvent(string(e.Type), e.CardID, e.DeviceID, e.Attempts, e.Timestamp)
		hub.BroadcastSecurityEvent(e)
	})

	// MQTT
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	mqttClient.SetLogger(log.With("component", "mqtt"))
	defer func() {
		log.Info("closing MQTT connection")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT connected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"topic", cfg.MQTT.Topic,
	)

	// #nosec G115 -- qos validated to 0..2 by config.Validate
	opts := router.Options{
		Transport:   mqttClient,
		Tracker:     tracker,
		Detector:    detector,
		Topics:      mqttClient.Topics(),
		QoS:         byte(cfg.MQTT.QoS),
		ResponseQoS: byte(cfg.MQTT.ResponseQoS),
		OnDecision:  hub.BroadcastDecision,
		Logger:      log.With("component", "router"),
	}
	if influxClient != nil {
		opts.Telemetry = influxClient
	}
	rtr, err := router.New(opts)
	if err != nil {
		return fmt.Errorf("creating device router: %w", err)
	}
	if err := rtr.Start(ctx); err != nil {
		return fmt.Errorf("starting device router: %w", err)
	}
	if influxClient != nil {
		statsCtx, stopStats := context.WithCancel(ctx)
		statsDone := make(chan struct{})
		go func() {
			defer close(statsDone)
			rtr.ReportStats(statsCtx, influxClient, statsReportInterval)
		}()
		defer func() {
			stopStats()
			<-statsDone
		}()
	}

	// Admin API
	if cfg.API.Enabled {
		apiServer, err := api.New(api.Deps{
			Config:      cfg.API,
			WS:          cfg.WebSocket,
			Security:    cfg.Security,
			Logger:      log,
			Tracker:     tracker,
			Detector:    detector,
			Backups:     backups,
			DB:          db,
			MQTT:        mqttClient,
			Router:      rtr,
			Audit:       audit.NewSQLiteRepository(db),
			ExternalHub: hub,
			Version:     version,
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
	} else {
		log.Info("admin API disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up", "router_stats", rtr.Stats())

	log.Info("AccessGuard Core stopped")
	return nil
}

// getConfigPath returns the config file path from ACCESSGUARD_CONFIG or
// the default.
func getConfigPath() string {
	if path := os.Getenv(configEnv); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheckTimeout bounds the start-up health check.
const healthCheckTimeout = 5 * time.Second

// statsReportInterval is how often router counters go to InfluxDB.
const statsReportInterval = time.Minute

func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	for _, topic := range []string{mqttClient.Topics().Readings(), mqttClient.Topics().Control()} {
		if !mqttClient.HasSubscription(topic) {
			return fmt.Errorf("mqtt: not subscribed to %s", topic)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
