package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-fx/internal/api"
	"github.com/nerrad567/gray-logic-fx/internal/effect"
	"github.com/nerrad567/gray-logic-fx/internal/events"
	"github.com/nerrad567/gray-logic-fx/internal/hal"
	"github.com/nerrad567/gray-logic-fx/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-fx/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-fx/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-fx/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-fx/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-fx/internal/journal"
	"github.com/nerrad567/gray-logic-fx/internal/routing"
	"github.com/nerrad567/gray-logic-fx/internal/uniqueid"
	"github.com/nerrad567/gray-logic-fx/migrations"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the device effect service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts.ConfigPath)
		},
	}
}

// run is the daemon, separated from the command for testability. It returns
// nil on a clean shutdown.
func run(ctx context.Context, configPath string) error { //nolint:gocognit,gocyclo // Linear startup sequence
	log := logging.Default()
	log.Info("starting Gray Logic FX",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

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
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Effect registry
	catalog, factory, minVersion, err := buildHAL(cfg.Effects)
	if err != nil {
		return err
	}
	ids := uniqueid.New()
	registry := effect.NewRegistry(factory, ids)
	registry.SetLogger(log.Component("effect"))
	registry.SetMinimumHalVersion(minVersion)
	registry.SetDumpTimeout(cfg.Effects.DumpLockTimeout)
	log.Info("effect registry initialised",
		"hal", factory.VersionInfo().String(),
		"min_device_hal", minVersion.String(),
		"catalog", catalog.Len(),
	)

	// Event fan-out
	bus := events.NewBus(cfg.Effects.EventBuffer)
	bus.SetLogger(log.Component("events"))
	registry.SetObserver(bus)

	recorder := journal.NewRecorder(journal.NewSQLiteRepository(db.DB))
	recorder.SetLogger(log.Component("journal"))
	bus.Subscribe(recorder)

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	bus.Subscribe(events.NewPromCollector(promRegistry, registry, bus))

	// MQTT
	mqttClient, err := mqtt.Connect(cfg.MQTT)
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
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	publisher := events.NewMQTTPublisher(mqttClient, mqttClient.QoS())
	publisher.SetLogger(log.Component("events"))
	bus.Subscribe(publisher)
	registry.SetSuspendCoordinator(publisher)

	// InfluxDB (optional)
	var influxClient *influxdb.Client
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
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		bus.Subscribe(events.NewInfluxRecorder(influxClient, cfg.Site.ID))
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Routing
	panel := routing.NewPatchPanel(ids)
	panel.SetLogger(log.Component("routing"))
	panel.AddListener(registry)
	if loadErr := panel.LoadConfig(cfg.Routing.Patches); loadErr != nil {
		return fmt.Errorf("loading static patches: %w", loadErr)
	}
	if subErr := panel.SubscribeMQTT(mqttClient, mqttClient.QoS()); subErr != nil {
		return fmt.Errorf("subscribing to patch events: %w", subErr)
	}
	log.Info("patch panel initialised", "patches", panel.Len())

	// API
	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log,
		Registry: registry,
		Catalog:  catalog,
		Panel:    panel,
		Journal:  journal.NewSQLiteRepository(db.DB),
		MQTT:     mqttClient,
		Gatherer: promRegistry,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	bus.Subscribe(server.Hub())

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	// The bus outlives the API server so the evictions caused by closing
	// client handles still reach the journal.
	busCtx, stopBus := context.WithCancel(context.Background())
	defer stopBus()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bus.Run(busCtx)
	})
	if err := server.Start(gctx); err != nil {
		stopBus()
		return fmt.Errorf("starting API server: %w", err)
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, cleaning up")
		defer stopBus()
		return server.Close()
	})

	log.Info("initialisation complete, waiting for shutdown signal")
	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("Gray Logic FX stopped",
		"events_delivered", bus.Delivered(),
		"events_dropped", bus.Dropped(),
	)
	return nil
}

// buildHAL creates the effect catalog, the software HAL and the minimum HAL
// version for device effects from the effects config section.
func buildHAL(cfg config.EffectsConfig) (*hal.Catalog, *hal.SoftwareFactory, effect.HalVersion, error) {
	catalog, err := hal.CatalogFromConfig(cfg.Library)
	if err != nil {
		return nil, nil, effect.HalVersion{}, fmt.Errorf("loading effect library: %w", err)
	}
	halVersion, err := hal.VersionFromConfig(cfg.HAL)
	if err != nil {
		return nil, nil, effect.HalVersion{}, fmt.Errorf("effects.hal: %w", err)
	}
	minVersion, err := hal.VersionFromConfig(cfg.MinDeviceHAL)
	if err != nil {
		return nil, nil, effect.HalVersion{}, fmt.Errorf("effects.min_device_hal: %w", err)
	}
	return catalog, hal.NewSoftwareFactory(catalog, halVersion), minVersion, nil
}

func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
