package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/ericogr/home-env-log/pkg/acquire"
	"github.com/ericogr/home-env-log/pkg/config"
	"github.com/ericogr/home-env-log/pkg/logging"
	"github.com/ericogr/home-env-log/pkg/metrics"
	"github.com/ericogr/home-env-log/pkg/output"
	"github.com/ericogr/home-env-log/pkg/output/console"
	"github.com/ericogr/home-env-log/pkg/output/mqtt"
	"github.com/ericogr/home-env-log/pkg/retry"
	"github.com/ericogr/home-env-log/pkg/sensor"
	"github.com/ericogr/home-env-log/pkg/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, cfgErr := config.Load(os.Getenv(config.EnvConfigFile))
	log, lvlErr := logging.New(cfg.LogLevel, os.Stderr)
	if cfgErr != nil {
		log.WithError(cfgErr).Fatal("invalid configuration")
	}
	if lvlErr != nil {
		log.WithError(lvlErr).Warn("unknown log level, using info")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Fatal("startup failed")
	}
	log.Info("shutdown complete")
}

func run(ctx context.Context, cfg config.Config, log *logrus.Logger) error {
	reg := prometheus.NewRegistry()
	rec := metrics.New(reg)

	s, err := sensor.NewFromConfig(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			log.WithError(err).Warn("closing sensors")
		}
	}()

	initLog := log.WithField("stage", "init")
	if err := retry.Run(ctx, retry.Default, initLog, s.Init); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("sensor init: %w", err)
	}
	log.WithField("sensor_type", cfg.SensorType).Info("sensors initialized")

	store, err := openStorage(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer store.Close()

	outs, err := initOutputs(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		for _, o := range outs {
			_ = o.Close()
		}
	}()

	var wg sync.WaitGroup
	if cfg.MetricsAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := metrics.Serve(ctx, cfg.MetricsAddr, reg, log); err != nil {
				log.WithError(err).Error("metrics server")
			}
		}()
	}

	loop := acquire.New(s, store,
		acquire.WithLogger(log),
		acquire.WithOutputs(outs...),
		acquire.WithMetrics(rec),
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := loop.RunEvery(ctx, acquire.Interval); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("acquisition loop stopped")
		}
	}()
	log.WithField("interval", acquire.Interval).Info("acquisition started")

	<-ctx.Done()
	log.Info("interrupt received, stopping")
	wg.Wait()
	return nil
}

// openStorage opens the database and creates the schema. Schema creation is
// not interrupted by shutdown.
func openStorage(ctx context.Context, cfg config.DatabaseConfig) (*storage.DB, error) {
	store, err := storage.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := store.Init(context.WithoutCancel(ctx)); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// initOutputs builds the configured outputs in order.
func initOutputs(cfg config.Config, log logrus.FieldLogger) ([]output.Output, error) {
	var outs []output.Output
	for _, oc := range cfg.Outputs {
		switch strings.ToLower(oc.Type) {
		case "console":
			outs = append(outs, console.NewConsole())
		case "mqtt":
			if oc.MQTT == nil {
				return closeAll(outs), fmt.Errorf("mqtt output without mqtt settings")
			}
			o, err := mqtt.NewMQTT(*oc.MQTT, log)
			if err != nil {
				return closeAll(outs), err
			}
			outs = append(outs, o)
		default:
			return closeAll(outs), fmt.Errorf("unknown output type %q", oc.Type)
		}
	}
	return outs, nil
}

func closeAll(outs []output.Output) []output.Output {
	for _, o := range outs {
		_ = o.Close()
	}
	return nil
}
