package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	adactor "github.com/berfenger/echarge2mqtt/internal/adapter/actor"
	"github.com/berfenger/echarge2mqtt/internal/config"
	"github.com/berfenger/echarge2mqtt/internal/core/actor"
	"github.com/berfenger/echarge2mqtt/internal/core/domain"
	"github.com/berfenger/echarge2mqtt/internal/core/events"
	"github.com/berfenger/echarge2mqtt/internal/core/port"
	"github.com/berfenger/echarge2mqtt/internal/metrics"
	"github.com/berfenger/echarge2mqtt/internal/server"
	"github.com/berfenger/echarge2mqtt/internal/util/actorutil"
	"github.com/berfenger/echarge2mqtt/pkg/echarge"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		os.Exit(1)
	}
	slog.Info("Using", "config", cfg.Redacted())

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	root := as.Root

	// metrics
	var registry *prometheus.Registry
	var recorder *metrics.Recorder
	var coordMetrics port.CoordinatorMetrics
	var instrument *echarge.Instrument
	if cfg.Metrics.Enable {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		recorder, err = metrics.NewRecorder(registry)
		if err != nil {
			logger.Fatal("metrics registration failed", zap.Error(err))
		}
		coordMetrics = recorder
		instrument = recorder.Instrument()
	}

	// device client
	client, err := echarge.CreateHTTPClient(cfg.Device.BaseURL, cfg.Device.Username, cfg.Device.Password,
		cfg.Device.RequestTimeout(), logger, instrument)
	if err != nil {
		logger.Fatal("device client", zap.Error(err))
	}

	mergeConfig := domain.DefaultMergeConfig()
	coordinator, err := actor.StartCoordinator(as, actor.CoordinatorConfig{
		BaseURL:        cfg.Device.BaseURL,
		Station:        cfg.Device.Station,
		RequestTimeout: cfg.Device.RequestTimeout(),
		PollInterval:   cfg.Device.PollInterval(),
		MergeConfig:    mergeConfig,
	}, client, coordMetrics, logger)
	if err != nil {
		logger.Fatal("coordinator", zap.Error(err))
	}
	if registry != nil {
		registry.MustRegister(metrics.NewSnapshotCollector(coordinator.Snapshot, mergeConfig))
	}

	if err := startStation(coordinator, logger); err != nil {
		logger.Error("station rejected the configured credentials, set new device.username and device.password", zap.Error(err))
		coordinator.Stop()
		as.Shutdown()
		os.Exit(2)
	}

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, mergeConfig, coordinator, mqttActorProvider(cfg, logger), logger)
	})
	pid, err := root.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	if err != nil {
		logger.Fatal("master", zap.Error(err))
	}

	var gatherer prometheus.Gatherer
	if registry != nil {
		gatherer = registry
	}
	server := server.NewServer(*cfg, root, pid, coordinator, gatherer)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	root.Stop(pid)
	coordinator.Stop()
	as.Shutdown()
}

// startStation validates credentials, runs the first refresh and starts polling.
// Only rejected credentials stop the startup.
func startStation(coordinator *actor.CoordinatorClient, logger *zap.Logger) error {
	ctx := context.Background()

	if err := coordinator.Validate(ctx); err != nil {
		if errors.Is(err, domain.ErrAuthDenied) {
			return err
		}
		logger.Warn("station not reachable, polling anyway", zap.Error(err))
	} else if title, err := coordinator.StationTitle(ctx); err == nil {
		logger.Info("station", zap.String("title", title.Title), zap.String("unique_id", title.UniqueId))
	} else {
		logger.Warn("station title unavailable", zap.Error(err))
	}

	if snapshot, err := coordinator.Refresh(ctx); err != nil {
		logger.Warn("first refresh failed", zap.Error(err))
	} else {
		logger.Info("first refresh", zap.Uint64("version", snapshot.Version()), zap.Int("fields", snapshot.Len()))
	}

	return coordinator.StartPolling(ctx)
}

func initConfig() (*config.Config, error) {

	// alias PORT => ECHARGE_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("ECHARGE_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("echarge")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	if err := cfg.Check(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(coordinator *pactor.PID, table events.EntityTable) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, coordinator, table, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("port", 8080)
	viper.SetDefault("http_log", false)
	viper.SetDefault("device.base_url", "")
	viper.SetDefault("device.station", 1)
	viper.SetDefault("device.username", "")
	viper.SetDefault("device.password", "")
	viper.SetDefault("device.poll_interval_millis", config.DEFAULT_POLL_INTERVAL_MILLIS)
	viper.SetDefault("device.request_timeout_millis", 10000)
	viper.SetDefault("mqtt.host", "localhost")
	viper.SetDefault("mqtt.port", 1883)
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.base_topic", "echarge")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("metrics.enable", true)
}
