// Package tuiport defines the TUI service contract. It lives apart from
// package ports because its signatures reference config.Config, whose
// package depends (via retention and zfs) on ports itself.
package tuiport

import (
	"time"

	"github.com/zfsync/zfsync/internal/config"
)

// TUIDatasetInfo contains replicated-dataset metadata for display.
type TUIDatasetInfo struct {
	Source       string
	Target       string
	Snapshots    int
	LastSnapshot time.Time
}

// TUISnapshotInfo contains snapshot metadata for display, annotated with
// the retention decision the current policy would make for it.
type TUISnapshotInfo struct {
	Label     string
	CreatedAt time.Time
	Keep      bool
	Tier      string
}

// TUIReplicateResult contains the result of replicating one dataset.
type TUIReplicateResult struct {
	Label       string
	Error       error
	PrunedLocal int
}

// TUIService provides operations needed by the TUI.
// This abstraction allows the TUI to be tested without a real zfs install.
type TUIService interface {
	// LoadConfig loads the application configuration.
	LoadConfig() (*config.Config, error)

	// ListDatasets returns all configured dataset pairs with their metadata.
	ListDatasets(cfg *config.Config) ([]TUIDatasetInfo, error)

	// ListSnapshots returns all snapshots of a source dataset, annotated
	// with the retention decision under the configured policy.
	ListSnapshots(cfg *config.Config, dataset string) ([]TUISnapshotInfo, error)

	// Diff reports filesystem changes since the given snapshot was taken.
	Diff(cfg *config.Config, dataset, label string) (string, error)

	// Replicate snapshots and transfers a single dataset pair.
	Replicate(cfg *config.Config, dataset string) TUIReplicateResult
}
