package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/shiva/freightroute/config"
	"github.com/shiva/freightroute/internal/events"
	"github.com/shiva/freightroute/internal/handler"
	"github.com/shiva/freightroute/internal/middleware"
	"github.com/shiva/freightroute/internal/service"
	"github.com/shiva/freightroute/internal/telemetry"
	"github.com/shiva/freightroute/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the route planning HTTP API",
	RunE:  serve,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func costModel(cfg *config.Config) service.CostModel {
	return service.CostModel{
		FuelPricePerLiter:       cfg.Cost.FuelPricePerLiter,
		FuelConsumptionPer100Km: cfg.Cost.FuelConsumptionPer100Km,
		AverageSpeedKmph:        cfg.Cost.AverageSpeedKmph,
	}
}

func serve(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ── Load configuration ──────────────────────────────
	cfg, err := config.Load(envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New("server")

	// ── Storage ─────────────────────────────────────────
	be, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer be.Close()

	// ── Telemetry ───────────────────────────────────────
	var rec telemetry.Recorder = telemetry.Nop{}
	if cfg.Metrics.Enabled {
		sink, err := telemetry.NewPromSink()
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		rec = sink
	}

	// ── Events ──────────────────────────────────────────
	bus := events.NewBus()
	defer bus.Close()
	sinks, err := eventSinks(cfg.Events, log)
	if err != nil {
		return err
	}
	fwdDone := make(chan struct{})
	if len(sinks) > 0 {
		fwd := events.NewForwarder(bus, sinks, 5*time.Second, logger.New("events"))
		go func() {
			defer close(fwdDone)
			fwd.Run(ctx)
		}()
	} else {
		close(fwdDone)
	}

	// ── Services and handlers ───────────────────────────
	opts := service.Options{
		Store:        be.store,
		Directory:    be.dir,
		Calculator:   service.NewMetricCalculator(be.dir, costModel(cfg)),
		Events:       bus,
		Telemetry:    rec,
		Logger:       logger.New("service"),
		WriteTimeout: cfg.App.WriteTimeout,
	}
	httpLog := logger.New("http")

	router := mux.NewRouter()
	router.HandleFunc("/health", handler.Health(be.checks)).Methods(http.MethodGet)
	if cfg.Metrics.Enabled {
		router.Handle(cfg.Metrics.Path, promhttp.Handler()).Methods(http.MethodGet)
	}

	api := router.PathPrefix("/api/v1").Subrouter()
	handler.NewRouteHandler(service.NewRouteService(opts), httpLog).Register(api)
	handler.NewSimulationHandler(service.NewSimulationService(opts), httpLog).Register(api)
	handler.NewPlacementHandler(service.NewPlacementService(opts), httpLog).Register(api)

	router.Use(middleware.Recoverer(httpLog), middleware.RequestLogger(httpLog))

	// ── Start HTTP server ───────────────────────────────
	srv := &http.Server{
		Addr:         cfg.Server.ServerAddr(),
		Handler:      middleware.CORS(router),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s (store=%s)", srv.Addr, cfg.App.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// ── Graceful shutdown ───────────────────────────────
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
	}
	log.Infof("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	stop()
	<-fwdDone

	log.Infof("server stopped")
	return nil
}

// eventSinks builds the Kafka and MQTT sinks that are configured.
func eventSinks(cfg config.EventsConfig, log logger.Logger) ([]events.Sink, error) {
	var sinks []events.Sink
	if len(cfg.KafkaBrokers) > 0 {
		sinks = append(sinks, events.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic))
		log.Infof("forwarding events to kafka topic %s", cfg.KafkaTopic)
	}
	if cfg.MQTTBroker != "" {
		s, err := events.NewMQTTSink(cfg.MQTTBroker, cfg.MQTTClientID, cfg.MQTTTopic, logger.New("mqtt"))
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
		log.Infof("forwarding events to mqtt %s under %s", cfg.MQTTBroker, cfg.MQTTTopic)
	}
	return sinks, nil
}
