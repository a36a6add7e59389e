// Package daemon runs replication batches on a cron schedule and serves
// Prometheus metrics.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/zfsync/zfsync/internal/config"
	"github.com/zfsync/zfsync/internal/logging"
	"github.com/zfsync/zfsync/internal/metrics"
	"github.com/zfsync/zfsync/internal/replicate"
	"github.com/zfsync/zfsync/internal/zfs"
)

// Daemon schedules replication batches. The config file is re-read before
// every batch, so retention or dataset edits take effect without a
// restart; only the schedule and metrics address are fixed at startup.
type Daemon struct {
	client     *zfs.Client
	configPath string
	log        zerolog.Logger
}

// New creates a Daemon reading its config from configPath, or the default
// location when empty.
func New(client *zfs.Client, configPath string) *Daemon {
	return &Daemon{
		client:     client,
		configPath: configPath,
		log:        logging.WithComponent("daemon"),
	}
}

// Run blocks until ctx is canceled, then waits for an in-flight batch to
// finish before returning.
func (d *Daemon) Run(ctx context.Context, cfg *config.Config) error {
	c := cron.New()
	if _, err := c.AddFunc(cfg.Daemon.Schedule, d.runBatch); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", cfg.Daemon.Schedule, err)
	}

	var srv *http.Server
	if cfg.Daemon.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv = &http.Server{Addr: cfg.Daemon.MetricsAddr, Handler: mux}
		go func() {
			d.log.Info().Str("addr", cfg.Daemon.MetricsAddr).Msg("serving metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				d.log.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	c.Start()
	d.log.Info().Str("schedule", cfg.Daemon.Schedule).Msg("daemon started")

	<-ctx.Done()
	d.log.Info().Msg("shutting down")

	<-c.Stop().Done()
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			d.log.Error().Err(err).Msg("metrics server shutdown failed")
		}
	}
	return nil
}

func (d *Daemon) runBatch() {
	cfg, err := config.Load(d.configPath)
	if err != nil {
		d.log.Error().Err(err).Msg("config reload failed, skipping batch")
		return
	}
	if err := cfg.Validate(); err != nil {
		d.log.Error().Err(err).Msg("config invalid, skipping batch")
		return
	}

	start := time.Now()
	summary := replicate.NewRunner(d.client, cfg).Run()
	observe(summary, time.Since(start))
}

// observe publishes one batch outcome to the Prometheus metrics.
func observe(summary replicate.Summary, elapsed time.Duration) {
	metrics.RunsTotal.Inc()
	metrics.RunDuration.Observe(elapsed.Seconds())
	metrics.LastRunTimestamp.SetToCurrentTime()

	if summary.Failed() {
		metrics.RunFailuresTotal.Inc()
		metrics.LastRunSuccess.Set(0)
	} else {
		metrics.LastRunSuccess.Set(1)
	}

	for _, res := range summary.Results {
		if res.Failed() {
			metrics.PairsTotal.WithLabelValues("failure").Inc()
			metrics.PairFailuresTotal.WithLabelValues(string(res.FailedStep)).Inc()
			continue
		}
		metrics.PairsTotal.WithLabelValues("success").Inc()
		kind := "incremental"
		if res.Full {
			kind = "full"
		}
		metrics.TransfersTotal.WithLabelValues(kind).Inc()
		metrics.SnapshotsPrunedTotal.WithLabelValues("local").Add(float64(len(res.PrunedLocal)))
		metrics.SnapshotsPrunedTotal.WithLabelValues("remote").Add(float64(len(res.PrunedRemote)))
	}
}
