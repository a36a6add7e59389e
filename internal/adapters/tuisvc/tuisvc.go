// Package tuisvc provides the real implementation of tuiport.TUIService.
package tuisvc

import (
	"fmt"
	"strings"
	"time"

	"github.com/zfsync/zfsync/internal/config"
	"github.com/zfsync/zfsync/internal/ports/tuiport"
	"github.com/zfsync/zfsync/internal/replicate"
	"github.com/zfsync/zfsync/internal/retention"
	"github.com/zfsync/zfsync/internal/zfs"
)

// Service implements tuiport.TUIService against the local zfs install.
type Service struct {
	client     *zfs.Client
	configPath string
}

// New creates a new TUI service.
func New(client *zfs.Client, configPath string) *Service {
	return &Service{client: client, configPath: configPath}
}

// LoadConfig loads the application configuration.
func (s *Service) LoadConfig() (*config.Config, error) {
	return config.Load(s.configPath)
}

// ListDatasets returns all configured dataset pairs with their metadata.
func (s *Service) ListDatasets(cfg *config.Config) ([]tuiport.TUIDatasetInfo, error) {
	var result []tuiport.TUIDatasetInfo
	for _, pair := range cfg.Datasets {
		item := tuiport.TUIDatasetInfo{
			Source: pair.Source,
			Target: pair.Target,
		}

		snaps, err := s.client.ListSnapshots(pair.Source)
		if err == nil && len(snaps) > 0 {
			item.Snapshots = len(snaps)
			item.LastSnapshot = snaps[len(snaps)-1].Time
		}

		result = append(result, item)
	}
	return result, nil
}

// ListSnapshots returns all snapshots of a source dataset, newest first,
// annotated with the retention decision under the configured policy.
func (s *Service) ListSnapshots(cfg *config.Config, dataset string) ([]tuiport.TUISnapshotInfo, error) {
	snaps, err := s.client.ListSnapshots(dataset)
	if err != nil {
		return nil, err
	}

	plan, err := retention.Classify(snaps, cfg.Retention)
	if err != nil {
		return nil, fmt.Errorf("classifying snapshots: %w", err)
	}

	kept := make(map[string]bool, len(plan.Keep))
	for _, snap := range plan.Keep {
		kept[snap.Label] = true
	}

	result := make([]tuiport.TUISnapshotInfo, len(snaps))
	for i, snap := range snaps {
		result[i] = tuiport.TUISnapshotInfo{
			Label:     snap.Label,
			CreatedAt: snap.Time,
			Keep:      kept[snap.Label],
			Tier:      strings.Join(plan.Tiers[snap.Label], "+"),
		}
	}

	// Reverse so newest is first
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}

	return result, nil
}

// Diff reports filesystem changes since the given snapshot was taken.
func (s *Service) Diff(cfg *config.Config, dataset, label string) (string, error) {
	return s.client.Diff(dataset, label)
}

// Replicate snapshots and transfers a single dataset pair.
func (s *Service) Replicate(cfg *config.Config, dataset string) tuiport.TUIReplicateResult {
	var pair config.DatasetPair
	found := false
	for _, p := range cfg.Datasets {
		if p.Source == dataset {
			pair = p
			found = true
			break
		}
	}
	if !found {
		return tuiport.TUIReplicateResult{Error: fmt.Errorf("dataset %s is not configured", dataset)}
	}

	pipeline := replicate.NewPipeline(s.client, cfg.Remote.Host, cfg.Retention)
	res := pipeline.Run(pair, zfs.MakeLabel(time.Now()))
	return tuiport.TUIReplicateResult{
		Label:       res.Label,
		Error:       res.Err,
		PrunedLocal: len(res.PrunedLocal),
	}
}

// Compile-time check that Service implements tuiport.TUIService.
var _ tuiport.TUIService = (*Service)(nil)
