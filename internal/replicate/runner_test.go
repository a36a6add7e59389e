package replicate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zfsync/zfsync/internal/config"
	"github.com/zfsync/zfsync/internal/mocks"
	"github.com/zfsync/zfsync/internal/ports"
	"github.com/zfsync/zfsync/internal/retention"
	"github.com/zfsync/zfsync/internal/zfs"
)

func fixedClock() func() time.Time {
	ts := time.Date(2024, 1, 9, 12, 0, 0, 0, time.Local)
	return func() time.Time { return ts }
}

func batchConfig(pairs ...config.DatasetPair) *config.Config {
	return &config.Config{
		Remote:    config.Remote{Host: testHost},
		Retention: retention.Policy{Daily: 1},
		Datasets:  pairs,
	}
}

// TestRunnerPartialFailure runs two pairs where the first one's receiver
// dies. The batch must finish, record exactly one failure, and leave the
// second pair fully replicated and pruned.
func TestRunnerPartialFailure(t *testing.T) {
	exec := mocks.NewMockExecutor()

	// First pair: empty replica, then the receiver fails.
	exec.RemoteResults[listCmd("backup/a")] = []ports.Result{
		{ExitCode: 1, Stderr: "dataset does not exist"},
	}
	exec.PipeResults["zfs send tank/a@"+testLabel] = []ports.PipeResult{{
		Send: ports.Result{ExitCode: 0},
		Recv: ports.Result{ExitCode: 1, Stderr: "cannot receive: out of space"},
	}}

	// Second pair: incremental transfer, then both sides prune the old
	// snapshot under the keep-one policy.
	exec.RemoteResults[listCmd("backup/b")] = []ports.Result{
		{Stdout: "backup/b@snap-2024-01-03T00:00:00\n"},
		{Stdout: "backup/b@snap-2024-01-03T00:00:00\nbackup/b@" + testLabel + "\n"},
	}
	exec.Results[listCmd("tank/b")] = []ports.Result{
		{Stdout: "tank/b@snap-2024-01-03T00:00:00\ntank/b@" + testLabel + "\n"},
	}

	cfg := batchConfig(
		config.DatasetPair{Source: "tank/a", Target: "backup/a"},
		config.DatasetPair{Source: "tank/b", Target: "backup/b"},
	)
	runner := NewRunner(zfs.NewClient(exec), cfg, WithNow(fixedClock()))
	summary := runner.Run()

	require.Len(t, summary.Results, 2, "a failed pair must not stop the batch")
	assert.True(t, summary.Failed())

	failures := summary.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "tank/a", failures[0].Pair.Source)
	assert.Equal(t, StepTransfer, failures[0].FailedStep)

	var xfer *zfs.TransferError
	require.ErrorAs(t, failures[0].Err, &xfer)
	assert.Equal(t, 1, xfer.RecvExit)

	second := summary.Results[1]
	require.NoError(t, second.Err)
	assert.Equal(t, "snap-2024-01-03T00:00:00", second.BaseLabel)
	assert.Equal(t, []string{"snap-2024-01-03T00:00:00"}, second.PrunedLocal)
	assert.Equal(t, []string{"snap-2024-01-03T00:00:00"}, second.PrunedRemote)

	// The first pair must not have pruned anything after its failure.
	for _, c := range destroyCalls(exec) {
		assert.NotContains(t, c.Cmd, "tank/a@")
		assert.NotContains(t, c.Cmd, "backup/a@")
	}
}

// TestRunnerSharedLabel verifies that every pair in one batch snapshots
// under the same label, minted once from the batch clock.
func TestRunnerSharedLabel(t *testing.T) {
	exec := mocks.NewMockExecutor()
	exec.RemoteResults[listCmd("backup/a")] = []ports.Result{{ExitCode: 1}}
	exec.RemoteResults[listCmd("backup/b")] = []ports.Result{{ExitCode: 1}}
	exec.Results[listCmd("tank/a")] = []ports.Result{{Stdout: "tank/a@" + testLabel + "\n"}}
	exec.Results[listCmd("tank/b")] = []ports.Result{{Stdout: "tank/b@" + testLabel + "\n"}}

	cfg := batchConfig(
		config.DatasetPair{Source: "tank/a", Target: "backup/a"},
		config.DatasetPair{Source: "tank/b", Target: "backup/b"},
	)
	runner := NewRunner(zfs.NewClient(exec), cfg, WithNow(fixedClock()))
	summary := runner.Run()

	assert.Equal(t, testLabel, summary.Label)
	assert.False(t, summary.Failed())
	assert.NotEmpty(t, summary.RunID)

	var snapshotCmds []string
	for _, c := range exec.CallsOfKind("run") {
		if len(c.Cmd) > 12 && c.Cmd[:12] == "zfs snapshot" {
			snapshotCmds = append(snapshotCmds, c.Cmd)
		}
	}
	require.Len(t, snapshotCmds, 2)
	assert.Equal(t, "zfs snapshot tank/a@"+testLabel, snapshotCmds[0])
	assert.Equal(t, "zfs snapshot tank/b@"+testLabel, snapshotCmds[1])
}

// TestRunnerConfigOrder checks pairs run in configuration order.
func TestRunnerConfigOrder(t *testing.T) {
	exec := mocks.NewMockExecutor()
	exec.RemoteResults[listCmd("backup/z")] = []ports.Result{{ExitCode: 1}}
	exec.RemoteResults[listCmd("backup/a")] = []ports.Result{{ExitCode: 1}}
	exec.Results[listCmd("tank/z")] = []ports.Result{{Stdout: "tank/z@" + testLabel + "\n"}}
	exec.Results[listCmd("tank/a")] = []ports.Result{{Stdout: "tank/a@" + testLabel + "\n"}}

	cfg := batchConfig(
		config.DatasetPair{Source: "tank/z", Target: "backup/z"},
		config.DatasetPair{Source: "tank/a", Target: "backup/a"},
	)
	summary := NewRunner(zfs.NewClient(exec), cfg, WithNow(fixedClock())).Run()

	require.Len(t, summary.Results, 2)
	assert.Equal(t, "tank/z", summary.Results[0].Pair.Source)
	assert.Equal(t, "tank/a", summary.Results[1].Pair.Source)
	assert.Equal(t, "zfs snapshot tank/z@"+testLabel, exec.Calls[0].Cmd)
}
