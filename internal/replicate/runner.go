package replicate

import (
	"time"

	"github.com/google/uuid"

	"github.com/zfsync/zfsync/internal/config"
	"github.com/zfsync/zfsync/internal/logging"
	"github.com/zfsync/zfsync/internal/zfs"
)

// Runner sweeps every configured dataset pair once. Pairs run
// sequentially in configuration order and fail independently; the batch
// is a best-effort sweep, not a transaction.
type Runner struct {
	client *zfs.Client
	cfg    *config.Config
	now    func() time.Time
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithNow overrides the clock used to mint the batch label.
func WithNow(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// NewRunner creates a Runner for cfg.
func NewRunner(client *zfs.Client, cfg *config.Config, opts ...RunnerOption) *Runner {
	r := &Runner{
		client: client,
		cfg:    cfg,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one batch. All pairs share one label minted at the start,
// so snapshots taken by the same run can be matched across datasets by
// label equality.
func (r *Runner) Run() Summary {
	summary := Summary{
		RunID: uuid.NewString(),
		Label: zfs.MakeLabel(r.now()),
	}
	log := logging.WithRunID(summary.RunID)
	log.Info().Str("label", summary.Label).Int("datasets", len(r.cfg.Datasets)).Msg("starting replication batch")

	pipeline := NewPipeline(r.client, r.cfg.Remote.Host, r.cfg.Retention)
	for _, pair := range r.cfg.Datasets {
		res := pipeline.Run(pair, summary.Label)
		if res.Failed() {
			log.Error().Err(res.Err).
				Str("dataset", pair.Source).
				Str("step", string(res.FailedStep)).
				Msg("replication failed")
		}
		summary.Results = append(summary.Results, res)
	}

	if failed := summary.Failures(); len(failed) > 0 {
		log.Warn().Int("failed", len(failed)).Int("total", len(summary.Results)).Msg("batch finished with failures")
	} else {
		log.Info().Int("datasets", len(summary.Results)).Msg("batch finished")
	}
	return summary
}
