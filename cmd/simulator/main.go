// Package main is the entry point for the tankersim simulation daemon.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"tankersim/internal/admin"
	"tankersim/internal/config"
	"tankersim/internal/events"
	"tankersim/internal/logger"
	"tankersim/internal/observability"
	"tankersim/internal/retrain"
	"tankersim/internal/sim"
	"tankersim/internal/store/postgres"
)

var cfgPath string

func main() {
	root := &cobra.Command{
		Use:   "tankersim",
		Short: "Tanker fleet lifecycle simulation engine",
		Long: `tankersim continuously simulates a fleet of oil tankers moving through
their operational lifecycle: synthesizing telemetry, advancing a time-boxed
state machine, and persisting current state plus append-only history for
downstream consumers (prediction models, real-time UI, analytics).`,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to config file (default: tankersim.yaml in current directory)")
	root.AddCommand(newRunCmd(), newMigrateCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			ctx := cmd.Context()
			st, err := postgres.New(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer st.Close()

			if err := postgres.Migrate(st.DB()); err != nil {
				return err
			}
			cmd.Println("Migrations completed successfully")
			return nil
		},
	}
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the simulation engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return run(cfg)
		},
	}
}

func run(cfg *config.Config) error {
	slogger := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer st.Close()

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "tankersim", cfg.OTELEndpoint)
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Printf("Failed to shutdown tracer: %v", err)
		}
	}()

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		return fmt.Errorf("failed to init metrics: %w", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Printf("Failed to shutdown metrics: %v", err)
		}
	}()

	// Observable gauges query the DB only when scraped.
	meter := otel.Meter("tankersim")
	_, err = meter.Int64ObservableGauge("tankersim.fleet.size",
		metric.WithDescription("Number of tankers in the fleet"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			count, err := st.CountTankers(ctx)
			if err != nil {
				slogger.Warn("failed to count fleet size", "error", err)
				return nil // Don't crash metrics scrape on DB error
			}
			obs.Observe(count)
			return nil
		}),
	)
	if err != nil {
		slogger.Warn("failed to register fleet size gauge", "error", err)
	}
	_, err = meter.Int64ObservableGauge("tankersim.history.depth",
		metric.WithDescription("Total number of history records"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			count, err := st.CountHistory(ctx)
			if err != nil {
				slogger.Warn("failed to count history depth", "error", err)
				return nil
			}
			obs.Observe(count)
			return nil
		}),
	)
	if err != nil {
		slogger.Warn("failed to register history depth gauge", "error", err)
	}

	// Event plumbing: always an in-process bus, plus MQTT when configured.
	bus := events.NewBus()
	defer bus.Close()

	emitter := events.Fanout{bus}
	if cfg.MQTTBroker != "" {
		mqttEmitter, err := events.NewMQTTEmitter(ctx, events.MQTTConfig{
			BrokerURL: cfg.MQTTBroker,
			ClientID:  cfg.MQTTClientID,
			Username:  cfg.MQTTUsername,
			Password:  cfg.MQTTPassword,
		}, slogger)
		if err != nil {
			return fmt.Errorf("failed to start mqtt emitter: %w", err)
		}
		defer mqttEmitter.Close(context.Background())
		emitter = append(emitter, mqttEmitter)
	}

	// Retrain trigger: the model pipeline itself is external; until one is
	// attached, the trigger only records that a retrain is due.
	retrainCh, unsubscribe := bus.Subscribe(256)
	defer unsubscribe()

	trigger := retrain.TriggerFunc(func(ctx context.Context) error {
		slogger.Info("retrain due, signaling model pipeline")
		return nil
	})
	scheduler := retrain.New(st, trigger, slogger, retrain.Config{
		Interval:     cfg.RetrainInterval,
		MinSamples:   int64(cfg.RetrainMinSamples),
		InitialDelay: cfg.RetrainInitialDelay,
	})
	go scheduler.Run(ctx, retrainCh)

	// Admin surface
	addr := fmt.Sprintf(":%d", cfg.AdminPort)
	adminSrv := admin.New(addr, st, metricsHandler)
	go func() {
		slogger.Info("admin server starting", "addr", addr)
		if err := adminSrv.Run(ctx); err != nil {
			slogger.Error("admin server stopped", "error", err)
		}
	}()

	// The engine
	synth := sim.NewSynthesizer(sim.TelemetryConfig{
		SpeedMinKmh: cfg.SpeedMinKmh,
		SpeedMaxKmh: cfg.SpeedMaxKmh,
	})
	policy := sim.NewPolicy(sim.PolicyConfig{
		Dwell:            cfg.Dwell,
		DelayProbability: cfg.DelayProbability,
	})
	coordinator := sim.NewCoordinator(st, synth, policy, emitter, slogger, sim.CoordinatorConfig{
		WorkerPoolSize: cfg.WorkerPoolSize,
		CommitTimeout:  cfg.CommitTimeout,
		DormantAfter:   cfg.DormantAfter,
		Seed:           cfg.Seed,
	})
	engine := sim.NewEngine(coordinator, cfg.TickInterval, slogger)

	if err := engine.Run(ctx); err != nil && err != context.Canceled {
		return fmt.Errorf("engine stopped: %w", err)
	}

	slogger.Info("simulator exited cleanly")
	return nil
}
