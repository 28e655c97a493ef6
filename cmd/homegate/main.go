// Homegate core - home security gateway control plane.
//
// The binary wires the control plane together: the SQLite store, the
// alarm engine, the notification center, the two MQTT buses and the
// periodic rule checker. The sensor mesh attaches through the radio
// driver; without a coordinator the core still serves the full
// app-facing surface.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/dicomiot/dhome-core/migrations"

	"github.com/dicomiot/dhome-core/internal/alarm"
	"github.com/dicomiot/dhome-core/internal/bus"
	"github.com/dicomiot/dhome-core/internal/camera"
	"github.com/dicomiot/dhome-core/internal/device"
	"github.com/dicomiot/dhome-core/internal/event"
	"github.com/dicomiot/dhome-core/internal/gateway"
	"github.com/dicomiot/dhome-core/internal/homegate"
	"github.com/dicomiot/dhome-core/internal/infrastructure/config"
	"github.com/dicomiot/dhome-core/internal/infrastructure/database"
	"github.com/dicomiot/dhome-core/internal/infrastructure/influxdb"
	"github.com/dicomiot/dhome-core/internal/infrastructure/logging"
	"github.com/dicomiot/dhome-core/internal/infrastructure/mqtt"
	"github.com/dicomiot/dhome-core/internal/netconf"
	"github.com/dicomiot/dhome-core/internal/notification"
	"github.com/dicomiot/dhome-core/internal/radio"
	"github.com/dicomiot/dhome-core/internal/room"
	"github.com/dicomiot/dhome-core/internal/scheduler"
	"github.com/dicomiot/dhome-core/internal/user"
)

// Version information - set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Homegate core",
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

	log = logging.New(cfg.Logging, version)

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

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	identity := homegate.Identity{
		ID:     cfg.Gateway.ID,
		Site:   cfg.Gateway.Site,
		Name:   cfg.Gateway.Name,
		Model:  cfg.Gateway.Model,
		Serial: cfg.Gateway.Serial,
		Token:  cfg.Gateway.Token,
	}
	if err := homegate.Provision(ctx, db.DB, identity); err != nil {
		return fmt.Errorf("provisioning gateway: %w", err)
	}

	// Domain components over the shared database.
	devices := device.NewStore(db.DB)
	rules := alarm.NewSQLiteRepository(db.DB)
	engine := alarm.NewEngine(db.DB, rules, alarm.Options{
		DoorReminderThreshold: secondsDuration(cfg.Alarm.DoorReminderThreshold),
		SirenDuration:         cfg.Alarm.SirenDuration,
		SirenLevel:            cfg.Alarm.SirenLevel,
	})
	users := user.NewSQLiteRepository(db.DB)
	rooms := room.NewSQLiteRepository(db.DB)
	cameras := camera.NewSQLiteRepository(db.DB)
	hgRepo := homegate.NewSQLiteRepository(db.DB)
	snapshotter := homegate.NewSnapshotter(hgRepo, devices, rules, rooms, cameras)
	center := notification.NewCenter(db.DB, notification.DefaultCapacity)
	events := event.NewBus(log.Logger)
	net := netconf.NewRunner(log.Logger)

	// Keep the local broker's gateway credential in step with the
	// provisioned token. Best effort: a dev machine has no broker
	// password file.
	if err := net.SetBrokerPassword(ctx, cfg.Gateway.Token); err != nil {
		log.Warn("updating broker credential", "error", err)
	}

	// Telemetry is optional; a disabled config is not an error.
	telemetry, err := influxdb.Connect(cfg.Telemetry)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("telemetry disabled")
		telemetry = nil
	case err != nil:
		return fmt.Errorf("connecting to telemetry store: %w", err)
	default:
		defer func() {
			if closeErr := telemetry.Close(); closeErr != nil {
				log.Error("error closing telemetry store", "error", closeErr)
			}
		}()
		log.Info("telemetry connected", "url", cfg.Telemetry.URL)
	}

	// The orchestrator is the radio's sink. The coordinator driver is
	// a no-op until the mesh process attaches.
	var driver radio.Driver = radio.NopDriver{}
	orch := gateway.New(devices, engine, rules, center, rooms, users,
		events, telemetry, log.Logger)

	deps := bus.Deps{
		Users:    users,
		Devices:  devices,
		Rules:    rules,
		Engine:   engine,
		Rooms:    rooms,
		Cameras:  cameras,
		Homegate: hgRepo,
		Snapshot: snapshotter,
		Center:   center,
		Radio:    driver,
		Net:      net,
		Events:   events,
		Logger:   log.Logger,
	}

	local, err := startLocalBus(ctx, cfg, deps, log)
	if err != nil {
		return fmt.Errorf("starting local bus: %w", err)
	}
	defer func() {
		log.Info("disconnecting local bus")
		if closeErr := local.client.Close(); closeErr != nil {
			log.Error("error closing local bus", "error", closeErr)
		}
	}()
	orch.SetRunner(local.sync)

	if cfg.CloudBus.Host != "" {
		cloud, err := startCloudBus(ctx, cfg, deps, local.sync, log)
		if err != nil {
			return fmt.Errorf("starting cloud bus: %w", err)
		}
		defer func() {
			log.Info("disconnecting cloud bus")
			if closeErr := cloud.Close(); closeErr != nil {
				log.Error("error closing cloud bus", "error", closeErr)
			}
		}()
	} else {
		log.Info("cloud bus disabled")
	}

	checker := scheduler.New(engine, local.sync, center, rooms, users, events,
		cfg.Scheduler, log.Logger)
	go checker.Run(ctx)

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

type localBus struct {
	client *mqtt.Client
	sync   *bus.LocalSync
}

// startLocalBus connects to the LAN broker with a persistent session
// and the offline testament, then attaches the sync layer.
func startLocalBus(ctx context.Context, cfg *config.Config, deps bus.Deps, log *logging.Logger) (*localBus, error) {
	busCfg := bus.Config{
		RootTopic:    cfg.LocalBus.RootTopic,
		QoS:          byte(cfg.LocalBus.QoS),
		GatewayID:    cfg.Gateway.ID,
		GatewayToken: cfg.Gateway.Token,
		AppID:        cfg.Gateway.AppID,
	}

	// The testament is built before the connection exists; the sync
	// layer only needs the topic root to shape it.
	probe := bus.NewLocalSync(nil, busCfg, deps)
	will, err := probe.Will()
	if err != nil {
		return nil, err
	}

	client, err := mqtt.Connect(cfg.LocalBus, mqtt.Options{
		ClientID: cfg.Gateway.Serial,
		Will:     will,
	})
	if err != nil {
		return nil, err
	}

	sync := bus.NewLocalSync(client, busCfg, deps)
	if err := sync.Start(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	client.SetOnConnect(func() {
		log.Info("local bus reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("local bus disconnected", "error", err)
	})
	log.Info("local bus connected",
		"broker", fmt.Sprintf("%s:%d", cfg.LocalBus.Host, cfg.LocalBus.Port),
		"root_topic", cfg.LocalBus.RootTopic,
	)
	return &localBus{client: client, sync: sync}, nil
}

// startCloudBus connects to the remote broker, authenticating with
// the gateway identity, and attaches the cloud sync layer.
func startCloudBus(ctx context.Context, cfg *config.Config, deps bus.Deps, runner bus.RuleRunner, log *logging.Logger) (*mqtt.Client, error) {
	busCfg := bus.Config{
		RootTopic:    cfg.CloudBus.RootTopic,
		QoS:          byte(cfg.CloudBus.QoS),
		GatewayID:    cfg.Gateway.ID,
		GatewayToken: cfg.Gateway.Token,
		AppID:        cfg.Gateway.AppID,
	}

	probe := bus.NewCloudSync(nil, busCfg, deps, runner)
	will, err := probe.Will()
	if err != nil {
		return nil, err
	}

	client, err := mqtt.Connect(cfg.CloudBus, mqtt.Options{
		ClientID:     cfg.Gateway.ID,
		Username:     cfg.Gateway.ID,
		Password:     cfg.Gateway.Token,
		Will:         will,
		CleanSession: true,
	})
	if err != nil {
		return nil, err
	}

	sync := bus.NewCloudSync(client, busCfg, deps, runner)
	if err := sync.Start(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	client.SetOnConnect(func() {
		log.Info("cloud bus reconnected, resyncing")
		if err := sync.Resync(context.Background()); err != nil {
			log.Error("cloud resync failed", "error", err)
		}
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("cloud bus disconnected", "error", err)
	})
	log.Info("cloud bus connected",
		"broker", fmt.Sprintf("%s:%d", cfg.CloudBus.Host, cfg.CloudBus.Port),
		"gateway", cfg.Gateway.ID,
	)
	return client, nil
}

func getConfigPath() string {
	if path := os.Getenv("DHOME_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// secondsDuration converts a configured second count to a duration;
// zero keeps the engine's default.
func secondsDuration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}
