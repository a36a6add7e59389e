package mocks

import (
	"github.com/zfsync/zfsync/internal/config"
	"github.com/zfsync/zfsync/internal/ports/tuiport"
)

// MockTUIService implements tuiport.TUIService for testing.
type MockTUIService struct {
	// ConfigResult is the config to return from LoadConfig
	ConfigResult *config.Config
	// ConfigError is the error to return from LoadConfig
	ConfigError error

	// Datasets is the list of dataset pairs to return
	Datasets []tuiport.TUIDatasetInfo
	// DatasetsError is the error to return from ListDatasets
	DatasetsError error

	// Snapshots maps source datasets to their snapshots
	Snapshots map[string][]tuiport.TUISnapshotInfo
	// SnapshotsError is the error to return from ListSnapshots
	SnapshotsError error

	// Diffs maps dataset@label to diff output
	Diffs map[string]string
	// DiffError is the error to return from Diff
	DiffError error

	// ReplicateResults maps source datasets to replication results
	ReplicateResults map[string]tuiport.TUIReplicateResult

	// Call tracking
	LoadConfigCalls    int
	ListDatasetsCalls  int
	ListSnapshotsCalls []string
	DiffCalls          []string
	ReplicateCalls     []string
}

// NewMockTUIService creates a new mock TUI service.
func NewMockTUIService() *MockTUIService {
	return &MockTUIService{
		ConfigResult:     config.DefaultConfig(),
		Snapshots:        make(map[string][]tuiport.TUISnapshotInfo),
		Diffs:            make(map[string]string),
		ReplicateResults: make(map[string]tuiport.TUIReplicateResult),
	}
}

// LoadConfig loads the application configuration.
func (m *MockTUIService) LoadConfig() (*config.Config, error) {
	m.LoadConfigCalls++
	if m.ConfigError != nil {
		return nil, m.ConfigError
	}
	return m.ConfigResult, nil
}

// ListDatasets returns all configured dataset pairs with their metadata.
func (m *MockTUIService) ListDatasets(cfg *config.Config) ([]tuiport.TUIDatasetInfo, error) {
	m.ListDatasetsCalls++
	if m.DatasetsError != nil {
		return nil, m.DatasetsError
	}
	return m.Datasets, nil
}

// ListSnapshots returns all snapshots of a source dataset.
func (m *MockTUIService) ListSnapshots(cfg *config.Config, dataset string) ([]tuiport.TUISnapshotInfo, error) {
	m.ListSnapshotsCalls = append(m.ListSnapshotsCalls, dataset)
	if m.SnapshotsError != nil {
		return nil, m.SnapshotsError
	}
	if snaps, ok := m.Snapshots[dataset]; ok {
		return snaps, nil
	}
	return nil, nil
}

// Diff reports filesystem changes since the given snapshot was taken.
func (m *MockTUIService) Diff(cfg *config.Config, dataset, label string) (string, error) {
	m.DiffCalls = append(m.DiffCalls, dataset+"@"+label)
	if m.DiffError != nil {
		return "", m.DiffError
	}
	return m.Diffs[dataset+"@"+label], nil
}

// Replicate snapshots and transfers a single dataset pair.
func (m *MockTUIService) Replicate(cfg *config.Config, dataset string) tuiport.TUIReplicateResult {
	m.ReplicateCalls = append(m.ReplicateCalls, dataset)
	if result, ok := m.ReplicateResults[dataset]; ok {
		return result
	}
	return tuiport.TUIReplicateResult{Label: "snap-2024-01-09T12:00:00"}
}

// Compile-time check that MockTUIService implements tuiport.TUIService.
var _ tuiport.TUIService = (*MockTUIService)(nil)
