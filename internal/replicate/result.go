package replicate

import "github.com/zfsync/zfsync/internal/config"

// Step identifies one stage of a dataset pair's pipeline.
type Step string

const (
	StepSnapshot    Step = "snapshot"
	StepRemoteList  Step = "remote-list"
	StepTransfer    Step = "transfer"
	StepPruneLocal  Step = "prune-local"
	StepPruneRemote Step = "prune-remote"
)

// Result is the outcome of replicating one dataset pair. A failed step
// aborts the pair, so fields describing later steps stay zero.
type Result struct {
	Pair  config.DatasetPair
	Label string

	// BaseLabel is the incremental base used for the transfer; empty when
	// Full is set and the whole snapshot was streamed.
	BaseLabel string
	Full      bool

	KeptLocal    []string
	PrunedLocal  []string
	KeptRemote   []string
	PrunedRemote []string

	FailedStep Step
	Err        error
}

// Failed reports whether any step of this pair failed.
func (r Result) Failed() bool {
	return r.Err != nil
}

func (r *Result) fail(step Step, err error) {
	r.FailedStep = step
	r.Err = err
}

// Summary aggregates every pair outcome of one batch run. It is built
// fresh per run and never persisted.
type Summary struct {
	RunID   string
	Label   string
	Results []Result
}

// Failures returns the failed pair results, in configuration order.
func (s Summary) Failures() []Result {
	var failed []Result
	for _, r := range s.Results {
		if r.Failed() {
			failed = append(failed, r)
		}
	}
	return failed
}

// Failed reports whether any pair in the batch failed.
func (s Summary) Failed() bool {
	return len(s.Failures()) > 0
}
