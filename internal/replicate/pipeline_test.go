package replicate

import (
	"errors"
	"strings"
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

const (
	testHost  = "replica.example.com"
	testLabel = "snap-2024-01-09T12:00:00"
)

func listCmd(dataset string) string {
	return "zfs list -H -t snapshot -o name -s creation -d 1 " + dataset
}

func destroyCalls(exec *mocks.MockExecutor) []mocks.ExecutorCall {
	var calls []mocks.ExecutorCall
	for _, c := range exec.Calls {
		if strings.HasPrefix(c.Cmd, "zfs destroy") {
			calls = append(calls, c)
		}
	}
	return calls
}

// TestPipelineFullTransfer covers an empty replica: the pipeline must
// request one full stream with no base argument.
func TestPipelineFullTransfer(t *testing.T) {
	exec := mocks.NewMockExecutor()
	exec.RemoteResults[listCmd("backup/data")] = []ports.Result{
		{ExitCode: 1, Stderr: "cannot open 'backup/data': dataset does not exist"},
		{Stdout: "backup/data@" + testLabel + "\n"},
	}
	exec.Results[listCmd("tank/data")] = []ports.Result{
		{Stdout: "tank/data@" + testLabel + "\n"},
	}

	pipeline := NewPipeline(zfs.NewClient(exec), testHost, retention.Policy{Daily: 7})
	res := pipeline.Run(config.DatasetPair{Source: "tank/data", Target: "backup/data"}, testLabel)

	require.NoError(t, res.Err)
	assert.True(t, res.Full)
	assert.Empty(t, res.BaseLabel)

	pipes := exec.CallsOfKind("pipe")
	require.Len(t, pipes, 1)
	assert.Equal(t, "zfs send tank/data@"+testLabel, pipes[0].Cmd)
	assert.Equal(t, "zfs receive backup/data", pipes[0].Recv)
	assert.Equal(t, testHost, pipes[0].Host)

	// Nothing qualifies for pruning on either side.
	assert.Empty(t, destroyCalls(exec))
	assert.Equal(t, []string{testLabel}, res.KeptLocal)
}

// TestPipelineIncrementalTransfer covers a populated replica: the base
// must be the chronologically last remote entry.
func TestPipelineIncrementalTransfer(t *testing.T) {
	exec := mocks.NewMockExecutor()
	exec.RemoteResults[listCmd("backup/data")] = []ports.Result{
		{Stdout: "backup/data@snap-2024-01-01T00:00:00\nbackup/data@snap-2024-01-05T00:00:00\n"},
		{Stdout: "backup/data@snap-2024-01-01T00:00:00\nbackup/data@snap-2024-01-05T00:00:00\nbackup/data@" + testLabel + "\n"},
	}
	exec.Results[listCmd("tank/data")] = []ports.Result{
		{Stdout: "tank/data@snap-2024-01-01T00:00:00\ntank/data@snap-2024-01-05T00:00:00\ntank/data@" + testLabel + "\n"},
	}

	pipeline := NewPipeline(zfs.NewClient(exec), testHost, retention.Policy{Daily: 7})
	res := pipeline.Run(config.DatasetPair{Source: "tank/data", Target: "backup/data"}, testLabel)

	require.NoError(t, res.Err)
	assert.False(t, res.Full)
	assert.Equal(t, "snap-2024-01-05T00:00:00", res.BaseLabel)

	pipes := exec.CallsOfKind("pipe")
	require.Len(t, pipes, 1)
	assert.Equal(t, "zfs send -i tank/data@snap-2024-01-05T00:00:00 tank/data@"+testLabel, pipes[0].Cmd)
}

// TestPipelineTransportFailureShortCircuits covers an unreachable host:
// the pair stops at the remote listing, before any transfer or prune.
func TestPipelineTransportFailureShortCircuits(t *testing.T) {
	exec := mocks.NewMockExecutor()
	exec.RemoteResults[listCmd("backup/data")] = []ports.Result{
		{ExitCode: ports.RemoteConnFailureExit, Stderr: "ssh: connect to host replica.example.com port 22: Connection refused"},
	}

	pipeline := NewPipeline(zfs.NewClient(exec), testHost, retention.Policy{Daily: 7})
	res := pipeline.Run(config.DatasetPair{Source: "tank/data", Target: "backup/data"}, testLabel)

	require.Error(t, res.Err)
	assert.Equal(t, StepRemoteList, res.FailedStep)
	assert.True(t, zfs.IsTransportError(res.Err), "failure must classify as transport, not logical-empty")

	// The snapshot was already taken, but nothing else may run.
	assert.Empty(t, exec.CallsOfKind("pipe"))
	assert.Empty(t, destroyCalls(exec))
	runs := exec.CallsOfKind("run")
	require.Len(t, runs, 1)
	assert.Equal(t, "zfs snapshot tank/data@"+testLabel, runs[0].Cmd)
}

// TestPipelineSnapshotFailureAborts covers a failing snapshot creation.
func TestPipelineSnapshotFailureAborts(t *testing.T) {
	exec := mocks.NewMockExecutor()
	exec.Results["zfs snapshot tank/data@"+testLabel] = []ports.Result{
		{ExitCode: 1, Stderr: "cannot create snapshot: out of space"},
	}

	pipeline := NewPipeline(zfs.NewClient(exec), testHost, retention.Policy{Daily: 7})
	res := pipeline.Run(config.DatasetPair{Source: "tank/data", Target: "backup/data"}, testLabel)

	require.Error(t, res.Err)
	assert.Equal(t, StepSnapshot, res.FailedStep)
	assert.Empty(t, exec.CallsOfKind("remote"))
	assert.Empty(t, exec.CallsOfKind("pipe"))
}

// TestPipelinePrunesBothSides verifies the prune steps: local against the
// local listing, remote against a fresh post-transfer listing.
func TestPipelinePrunesBothSides(t *testing.T) {
	exec := mocks.NewMockExecutor()
	exec.RemoteResults[listCmd("backup/data")] = []ports.Result{
		{Stdout: "backup/data@snap-2024-01-03T00:00:00\n"},
		{Stdout: "backup/data@snap-2024-01-03T00:00:00\nbackup/data@" + testLabel + "\n"},
	}
	exec.Results[listCmd("tank/data")] = []ports.Result{
		{Stdout: "tank/data@snap-2024-01-03T00:00:00\ntank/data@" + testLabel + "\n"},
	}

	pipeline := NewPipeline(zfs.NewClient(exec), testHost, retention.Policy{Daily: 1})
	res := pipeline.Run(config.DatasetPair{Source: "tank/data", Target: "backup/data"}, testLabel)

	require.NoError(t, res.Err)
	assert.Equal(t, []string{"snap-2024-01-03T00:00:00"}, res.PrunedLocal)
	assert.Equal(t, []string{"snap-2024-01-03T00:00:00"}, res.PrunedRemote)
	assert.Equal(t, []string{testLabel}, res.KeptLocal)
	assert.Equal(t, []string{testLabel}, res.KeptRemote)

	destroys := destroyCalls(exec)
	require.Len(t, destroys, 2)
	assert.Equal(t, "run", destroys[0].Kind)
	assert.Equal(t, "zfs destroy tank/data@snap-2024-01-03T00:00:00", destroys[0].Cmd)
	assert.Equal(t, "remote", destroys[1].Kind)
	assert.Equal(t, "zfs destroy backup/data@snap-2024-01-03T00:00:00", destroys[1].Cmd)

	// Two remote listings: base selection and the post-transfer re-list.
	assert.Len(t, exec.CallsOfKind("remote"), 3) // list, list, destroy
}

// TestPipelineRetentionInvariantAborts feeds a keep-nothing policy past
// config validation and expects the prune step to refuse destruction.
func TestPipelineRetentionInvariantAborts(t *testing.T) {
	exec := mocks.NewMockExecutor()
	exec.RemoteResults[listCmd("backup/data")] = []ports.Result{
		{ExitCode: 1, Stderr: "dataset does not exist"},
	}
	exec.Results[listCmd("tank/data")] = []ports.Result{
		{Stdout: "tank/data@" + testLabel + "\n"},
	}

	pipeline := NewPipeline(zfs.NewClient(exec), testHost, retention.Policy{})
	res := pipeline.Run(config.DatasetPair{Source: "tank/data", Target: "backup/data"}, testLabel)

	require.Error(t, res.Err)
	assert.Equal(t, StepPruneLocal, res.FailedStep)

	var invErr *retention.InvariantError
	require.True(t, errors.As(res.Err, &invErr))
	assert.Empty(t, destroyCalls(exec), "an invariant violation must never reach destroy")
}

func TestPipelineLabelTime(t *testing.T) {
	// The shared label carries the batch time at second resolution.
	ts := time.Date(2024, 1, 9, 12, 0, 0, 0, time.Local)
	assert.Equal(t, testLabel, zfs.MakeLabel(ts))
}
