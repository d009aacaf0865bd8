// VYON Authentication Service
//
// This is the main entry point for the VYON auth service: multi-tenant
// login, session-bound JWTs, and the user, organization and role directory
// behind the school platform.
//
// For the HTTP surface, see internal/api.
// For the session and policy model, see internal/auth.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/vyon/auth-service/internal/api"
	"github.com/vyon/auth-service/internal/audit"
	"github.com/vyon/auth-service/internal/auth"
	"github.com/vyon/auth-service/internal/infrastructure/config"
	"github.com/vyon/auth-service/internal/infrastructure/database"
	"github.com/vyon/auth-service/internal/infrastructure/influxdb"
	"github.com/vyon/auth-service/internal/infrastructure/logging"
	"github.com/vyon/auth-service/internal/infrastructure/mqtt"
	"github.com/vyon/auth-service/internal/notify"
	"github.com/vyon/auth-service/migrations"
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
	// Cancel on Ctrl+C or SIGTERM so deferred closes run in order.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting VYON auth service",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

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
		"environment", cfg.Service.Environment,
	)

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

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	store := auth.NewStore(db)
	hasher := auth.NewHasher()

	if _, seedErr := auth.SeedRoles(ctx, store, log.Logger); seedErr != nil {
		return fmt.Errorf("seeding roles: %w", seedErr)
	}
	if _, seedErr := auth.SeedSystemAdmin(ctx, store, hasher, auth.BootstrapAdmin{
		Email:    cfg.Bootstrap.AdminEmail,
		Username: cfg.Bootstrap.AdminUsername,
		Password: cfg.Bootstrap.AdminPassword,
	}, log.Logger); seedErr != nil {
		return fmt.Errorf("seeding system admin: %w", seedErr)
	}

	// Connect to MQTT broker (optional). Without it notifications are
	// logged and dropped.
	var mqttClient *mqtt.Client
	var notifier auth.Notifier
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		notifier = notify.NewMQTTNotifier(mqttClient, cfg.Service.Name, log.Logger)
	} else {
		log.Info("MQTT disabled, notifications will be logged only")
		notifier = notify.NewLogNotifier(log.Logger)
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	var events auth.EventRecorder
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		events = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	codec, err := auth.NewTokenCodec(auth.TokenConfig{
		Secret:     cfg.Security.JWT.Secret,
		Algorithm:  cfg.Security.JWT.Algorithm,
		AccessTTL:  cfg.AccessTokenTTL(),
		RefreshTTL: cfg.RefreshTokenTTL(),
	})
	if err != nil {
		return fmt.Errorf("creating token codec: %w", err)
	}

	service, err := auth.NewService(auth.ServiceDeps{
		Store:  store,
		Codec:  codec,
		Hasher: hasher,
		Config: auth.ServiceConfig{
			PasswordResetURL: cfg.Security.PasswordReset.URL,
			ExposeResetToken: cfg.Security.PasswordReset.ExposeToken,
		},
		Notifier: notifier,
		Events:   events,
		Logger:   log.Logger,
	})
	if err != nil {
		return fmt.Errorf("creating auth service: %w", err)
	}
	// Runs after the API server closes, while MQTT is still connected.
	defer service.Wait()

	server, err := api.New(api.Deps{
		Config:      cfg.API,
		Environment: cfg.Service.Environment,
		Logger:      log,
		Service:     service,
		Gate:        auth.NewGate(store, codec),
		AuditRepo:   audit.NewSQLiteRepository(db),
		DB:          db,
		MQTT:        mqttClient,
		Influx:      influxClient,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	janitorDone := make(chan struct{})
	go func() {
		defer close(janitorDone)
		runJanitor(ctx, cfg.HousekeepingInterval(), service, statsSink(influxClient), log)
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	<-janitorDone

	// Deferred Close() calls will run in reverse order:
	// 1. API server (drains the audit queue)
	// 2. Pending notifications
	// 3. InfluxDB (if enabled)
	// 4. MQTT (if enabled)
	// 5. Database

	log.Info("VYON auth service stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses VYON_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("VYON_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// mqttClient and influxClient may be nil when disabled.
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
