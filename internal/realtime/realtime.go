// Package realtime assembles the full processing stack and runs it until the
// process is told to stop.
package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/featherwatch/featherwatch/internal/api"
	"github.com/featherwatch/featherwatch/internal/audiomatch"
	"github.com/featherwatch/featherwatch/internal/broadcast"
	"github.com/featherwatch/featherwatch/internal/classifier"
	"github.com/featherwatch/featherwatch/internal/conf"
	"github.com/featherwatch/featherwatch/internal/datastore"
	"github.com/featherwatch/featherwatch/internal/frigate"
	"github.com/featherwatch/featherwatch/internal/logging"
	"github.com/featherwatch/featherwatch/internal/notify"
	"github.com/featherwatch/featherwatch/internal/observability"
	"github.com/featherwatch/featherwatch/internal/pipeline"
	"github.com/featherwatch/featherwatch/internal/taxonomy"
	"github.com/featherwatch/featherwatch/internal/videowait"
	"github.com/featherwatch/featherwatch/internal/weather"
)

// Run starts the full service: storage, pipeline, MQTT event source, and the
// HTTP front end. It blocks until SIGINT or SIGTERM, then shuts everything
// down in reverse order.
func Run(settings *conf.Settings) error {
	logger := logging.ForService("realtime")

	if settings.Main.LogFile != "" {
		fileLogger, closeLog, err := logging.NewFileLogger(
			settings.Main.LogFile, "realtime", slog.LevelInfo,
			logging.DefaultFileLoggerOptions())
		if err != nil {
			logger.Warn("file logging disabled", "path", settings.Main.LogFile, "error", err)
		} else {
			logger = fileLogger
			defer closeLog()
		}
	}

	metrics, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("initializing metrics: %w", err)
	}

	store := datastore.NewSQLiteStore(settings.Output.SQLite.Path)
	if err := store.Open(); err != nil {
		return fmt.Errorf("opening datastore: %w", err)
	}
	defer store.Close()

	filter := classifier.New(classifier.Config{
		MinConfidence:    settings.Classifier.MinConfidence,
		Threshold:        settings.Classifier.Threshold,
		UnknownLabels:    settings.Classifier.UnknownLabels,
		BlockedLabels:    settings.Classifier.BlockedLabels,
		SublabelFallback: settings.Classifier.SublabelFallback,
	})

	correlator := audiomatch.NewCorrelator(settings.Audio.Retention, settings.Audio.SensorMap)

	waiter := videowait.New(settings.Video.StateTTL, settings.Video.MaxEntries)
	waiter.SetCountObserver(func(n int) {
		metrics.WaiterEntries.Set(float64(n))
	})

	broadcaster := broadcast.NewBroadcaster(settings.Broadcast.OverflowThreshold)
	broadcaster.SetObservers(
		func() { metrics.BroadcastDrops.Inc() },
		func() { metrics.SubscriberEvictions.Inc() },
		func(n int) { metrics.ActiveSubscribers.Set(float64(n)) },
	)

	var transport notify.Transport
	if settings.Notify.Enabled && len(settings.Notify.URLs) > 0 {
		t, err := notify.NewShoutrrrTransport(settings.Notify.URLs, 10*time.Second)
		if err != nil {
			return fmt.Errorf("configuring notification transport: %w", err)
		}
		transport = t
	}

	orchestrator := notify.NewOrchestrator(store, waiter, transport, notify.Config{
		Threshold:   settings.Classifier.Threshold,
		WaitTimeout: settings.Video.WaitTimeout,
		TitlePrefix: settings.Main.Name,
	})
	orchestrator.SetObservers(
		func() { metrics.NotificationsSent.Inc() },
		func(reason string) { metrics.NotificationsSkipped.WithLabelValues(reason).Inc() },
	)

	var taxonomyResolver taxonomy.Resolver
	if settings.Taxonomy.Enabled && settings.Taxonomy.Endpoint != "" {
		taxonomyResolver = taxonomy.NewClient(settings.Taxonomy.Endpoint, settings.Taxonomy.CacheTTL)
	}
	var weatherProvider weather.Provider
	if settings.Weather.Enabled && settings.Weather.Endpoint != "" {
		weatherProvider = weather.NewClient(settings.Weather.Endpoint, settings.Weather.APIKey, settings.Weather.PollInterval)
	}

	pipe := pipeline.New(
		frigate.NewSightingClassifier(),
		filter,
		correlator,
		store,
		waiter,
		broadcaster,
		orchestrator,
		taxonomyResolver,
		weatherProvider,
		metrics,
		pipeline.Config{AudioWindowSeconds: settings.Audio.WindowSeconds},
	)

	var mqttClient *frigate.Client
	if settings.MQTT.Broker != "" {
		cfg := frigate.DefaultConfig()
		cfg.Broker = settings.MQTT.Broker
		cfg.ClientID = settings.Main.Name
		cfg.Topic = settings.MQTT.Topic
		cfg.Username = settings.MQTT.Username
		cfg.Password = settings.MQTT.Password

		mqttClient = frigate.NewClient(cfg, pipe)
		ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
		err := mqttClient.Connect(ctx)
		cancel()
		if err != nil {
			// The event source retries on its own, a cold broker should
			// not keep the rest of the service down.
			logger.Warn("initial broker connection failed, retrying in background",
				"broker", settings.MQTT.Broker, "error", err)
		}
		defer mqttClient.Disconnect()
	}

	var httpServer *api.Server
	httpErr := make(chan error, 1)
	if settings.WebServer.Enabled {
		httpServer = api.New(api.Config{
			Port:      settings.WebServer.Port,
			Debug:     settings.WebServer.Debug,
			QueueSize: settings.Broadcast.QueueSize,
		}, pipe, broadcaster, store, metrics)
		go func() {
			httpErr <- httpServer.Start()
		}()
	}

	logger.Info("featherwatch running",
		"name", settings.Main.Name,
		"broker", settings.MQTT.Broker,
		"webserver", settings.WebServer.Enabled)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-httpErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	if httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Warn("http shutdown incomplete", "error", err)
		}
	}

	return nil
}
