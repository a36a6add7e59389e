// Package replicate orchestrates snapshot replication: per-dataset
// pipelines and the batch runner that sweeps all configured pairs.
package replicate

import (
	"github.com/zfsync/zfsync/internal/config"
	"github.com/zfsync/zfsync/internal/logging"
	"github.com/zfsync/zfsync/internal/retention"
	"github.com/zfsync/zfsync/internal/zfs"
)

// Pipeline replicates a single dataset pair through a strict step
// sequence: snapshot, remote listing, transfer, local prune, remote
// prune. Any failure aborts the remaining steps for that pair only.
type Pipeline struct {
	client *zfs.Client
	host   string
	policy retention.Policy
}

// NewPipeline creates a Pipeline replicating to host under policy.
func NewPipeline(client *zfs.Client, host string, policy retention.Policy) *Pipeline {
	return &Pipeline{
		client: client,
		host:   host,
		policy: policy,
	}
}

// Run replicates one dataset pair using the batch's shared label.
func (p *Pipeline) Run(pair config.DatasetPair, label string) Result {
	res := Result{Pair: pair, Label: label}
	log := logging.WithDataset(pair.Source)

	snap, err := p.client.CreateSnapshot(pair.Source, label)
	if err != nil {
		res.fail(StepSnapshot, err)
		return res
	}
	log.Info().Str("snapshot", snap.Name()).Msg("created snapshot")

	// The pre-transfer remote listing picks the incremental base. A
	// transport failure here means the host is down, so the pair stops
	// before any transfer is attempted.
	remote, err := p.client.ListRemoteSnapshots(p.host, pair.Target)
	if err != nil {
		res.fail(StepRemoteList, err)
		return res
	}

	if len(remote) > 0 {
		res.BaseLabel = remote[len(remote)-1].Label
	} else {
		res.Full = true
	}
	if err := p.client.Transfer(snap, res.BaseLabel, p.host, pair.Target); err != nil {
		res.fail(StepTransfer, err)
		return res
	}
	if res.Full {
		log.Info().Str("target", pair.Target).Msg("sent full stream")
	} else {
		log.Info().Str("target", pair.Target).Str("base", res.BaseLabel).Msg("sent incremental stream")
	}

	res.KeptLocal, res.PrunedLocal, err = p.pruneLocal(pair.Source)
	if err != nil {
		res.fail(StepPruneLocal, err)
		return res
	}
	if len(res.PrunedLocal) > 0 {
		log.Info().Strs("pruned", res.PrunedLocal).Msg("pruned local snapshots")
	}

	res.KeptRemote, res.PrunedRemote, err = p.pruneRemote(pair.Target)
	if err != nil {
		res.fail(StepPruneRemote, err)
		return res
	}
	if len(res.PrunedRemote) > 0 {
		log.Info().Strs("pruned", res.PrunedRemote).Msg("pruned remote snapshots")
	}

	return res
}

func (p *Pipeline) pruneLocal(dataset string) (kept, pruned []string, err error) {
	snaps, err := p.client.ListSnapshots(dataset)
	if err != nil {
		return nil, nil, err
	}
	plan, err := retention.Classify(snaps, p.policy)
	if err != nil {
		return nil, nil, err
	}
	if err := p.client.DestroySnapshots(dataset, plan.PruneLabels()); err != nil {
		return nil, nil, err
	}
	return labelsOf(plan.Keep), plan.PruneLabels(), nil
}

// pruneRemote re-lists the target dataset because the transfer just added
// the new snapshot there; pruning against the pre-transfer listing would
// decide on stale state.
func (p *Pipeline) pruneRemote(dataset string) (kept, pruned []string, err error) {
	snaps, err := p.client.ListRemoteSnapshots(p.host, dataset)
	if err != nil {
		return nil, nil, err
	}
	plan, err := retention.Classify(snaps, p.policy)
	if err != nil {
		return nil, nil, err
	}
	if err := p.client.DestroyRemoteSnapshots(p.host, dataset, plan.PruneLabels()); err != nil {
		return nil, nil, err
	}
	return labelsOf(plan.Keep), plan.PruneLabels(), nil
}

func labelsOf(snaps []zfs.Snapshot) []string {
	labels := make([]string, len(snaps))
	for i, s := range snaps {
		labels[i] = s.Label
	}
	return labels
}
