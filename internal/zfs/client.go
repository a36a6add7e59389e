package zfs

import (
	"fmt"
	"strings"

	"github.com/zfsync/zfsync/internal/ports"
)

// Client drives the zfs command line tool through a ports.Executor. It owns
// command construction, output parsing, and failure classification; process
// and transport mechanics stay behind the executor.
type Client struct {
	exec   ports.Executor
	zfsBin string
}

// Option configures a Client.
type Option func(*Client)

// WithZFSBinary overrides the zfs binary name, e.g. to point at a wrapper
// script or an absolute path outside PATH.
func WithZFSBinary(path string) Option {
	return func(c *Client) { c.zfsBin = path }
}

// NewClient creates a Client that invokes zfs via exec.
func NewClient(exec ports.Executor, opts ...Option) *Client {
	c := &Client{
		exec:   exec,
		zfsBin: "zfs",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateSnapshot takes a point-in-time snapshot of dataset under label.
// The label must have been minted by MakeLabel.
func (c *Client) CreateSnapshot(dataset, label string) (Snapshot, error) {
	snap, ok := ParseSnapshotName(dataset + "@" + label)
	if !ok {
		return Snapshot{}, fmt.Errorf("invalid snapshot label %q", label)
	}
	cmd := c.command("snapshot", snap.Name())
	res, err := c.exec.Run(cmd)
	if err != nil {
		return Snapshot{}, fmt.Errorf("running zfs snapshot: %w", err)
	}
	if res.ExitCode != 0 {
		return Snapshot{}, &ToolError{Op: "snapshot", Cmd: cmd.String(), ExitCode: res.ExitCode, Stderr: res.Stderr}
	}
	return snap, nil
}

// ListSnapshots returns dataset's snapshots in creation order, oldest first.
// Snapshot names that do not match the label pattern are invisible: never
// listed, never pruned, never used as an incremental base.
func (c *Client) ListSnapshots(dataset string) ([]Snapshot, error) {
	cmd := c.listCommand(dataset)
	res, err := c.exec.Run(cmd)
	if err != nil {
		return nil, fmt.Errorf("running zfs list: %w", err)
	}
	if res.ExitCode != 0 {
		return nil, &ToolError{Op: "list", Cmd: cmd.String(), ExitCode: res.ExitCode, Stderr: res.Stderr}
	}
	return parseSnapshotList(res.Stdout), nil
}

// ListRemoteSnapshots returns dataset's snapshots on host, oldest first.
//
// Exit codes split three ways: ports.RemoteConnFailureExit means the host
// was unreachable and becomes a TransportError; any other nonzero exit is
// read as "no snapshots yet", since zfs list exits nonzero when the target
// dataset does not exist. That boundary conflates real remote errors such
// as permission denial with an empty replica, so first transfers after a
// remote-side problem fall back to a full stream instead of failing fast.
func (c *Client) ListRemoteSnapshots(host, dataset string) ([]Snapshot, error) {
	cmd := c.listCommand(dataset)
	res, err := c.exec.RunRemote(host, cmd)
	if err != nil {
		return nil, fmt.Errorf("running remote zfs list: %w", err)
	}
	if res.ExitCode == ports.RemoteConnFailureExit {
		return nil, &TransportError{Host: host, Stderr: res.Stderr}
	}
	if res.ExitCode != 0 {
		return nil, nil
	}
	return parseSnapshotList(res.Stdout), nil
}

// Transfer streams snap to target on host. With a non-empty baseLabel it
// requests an incremental stream relative to that base, which the remote
// side must already hold; otherwise a full stream. The send and receive
// processes fail independently and both outcomes are reported together.
func (c *Client) Transfer(snap Snapshot, baseLabel, host, target string) error {
	var sendArgs []string
	if baseLabel != "" {
		sendArgs = append(sendArgs, "send", "-i", snap.Dataset+"@"+baseLabel, snap.Name())
	} else {
		sendArgs = append(sendArgs, "send", snap.Name())
	}
	send := c.command(sendArgs...)
	recv := c.command("receive", target)

	res, err := c.exec.Pipe(send, host, recv)
	if err != nil {
		return fmt.Errorf("running zfs send/receive: %w", err)
	}
	if res.Send.ExitCode != 0 || res.Recv.ExitCode != 0 {
		return &TransferError{
			Snapshot:   snap.Name(),
			SendExit:   res.Send.ExitCode,
			SendStderr: res.Send.Stderr,
			RecvExit:   res.Recv.ExitCode,
			RecvStderr: res.Recv.Stderr,
		}
	}
	return nil
}

// Restore streams the snapshot of dataset with the given label from host
// back into localTarget, the reverse of Transfer. The target dataset must
// not exist yet; zfs receive refuses to clobber one that does.
func (c *Client) Restore(host, dataset, label, localTarget string) error {
	send := c.command("send", dataset+"@"+label)
	recv := c.command("receive", localTarget)

	res, err := c.exec.PipeFrom(host, send, recv)
	if err != nil {
		return fmt.Errorf("running zfs send/receive: %w", err)
	}
	if res.Send.ExitCode == ports.RemoteConnFailureExit {
		return &TransportError{Host: host, Stderr: res.Send.Stderr}
	}
	if res.Send.ExitCode != 0 || res.Recv.ExitCode != 0 {
		return &TransferError{
			Snapshot:   dataset + "@" + label,
			SendExit:   res.Send.ExitCode,
			SendStderr: res.Send.Stderr,
			RecvExit:   res.Recv.ExitCode,
			RecvStderr: res.Recv.Stderr,
		}
	}
	return nil
}

// DestroySnapshots destroys the given snapshots of dataset in one
// invocation, using the comma-separated label form zfs destroy accepts.
func (c *Client) DestroySnapshots(dataset string, labels []string) error {
	if len(labels) == 0 {
		return nil
	}
	cmd := c.command("destroy", destroyArg(dataset, labels))
	res, err := c.exec.Run(cmd)
	if err != nil {
		return fmt.Errorf("running zfs destroy: %w", err)
	}
	if res.ExitCode != 0 {
		return &ToolError{Op: "destroy", Cmd: cmd.String(), ExitCode: res.ExitCode, Stderr: res.Stderr}
	}
	return nil
}

// DestroyRemoteSnapshots destroys the given snapshots of dataset on host in
// one invocation.
func (c *Client) DestroyRemoteSnapshots(host, dataset string, labels []string) error {
	if len(labels) == 0 {
		return nil
	}
	cmd := c.command("destroy", destroyArg(dataset, labels))
	res, err := c.exec.RunRemote(host, cmd)
	if err != nil {
		return fmt.Errorf("running remote zfs destroy: %w", err)
	}
	if res.ExitCode == ports.RemoteConnFailureExit {
		return &TransportError{Host: host, Stderr: res.Stderr}
	}
	if res.ExitCode != 0 {
		return &ToolError{Op: "destroy", Host: host, Cmd: cmd.String(), ExitCode: res.ExitCode, Stderr: res.Stderr}
	}
	return nil
}

// Diff reports filesystem changes in dataset since the snapshot with the
// given label was taken, as the tool's tab-separated change lines.
func (c *Client) Diff(dataset, label string) (string, error) {
	cmd := c.command("diff", "-H", dataset+"@"+label)
	res, err := c.exec.Run(cmd)
	if err != nil {
		return "", fmt.Errorf("running zfs diff: %w", err)
	}
	if res.ExitCode != 0 {
		return "", &ToolError{Op: "diff", Cmd: cmd.String(), ExitCode: res.ExitCode, Stderr: res.Stderr}
	}
	return res.Stdout, nil
}

func (c *Client) command(args ...string) ports.Command {
	return ports.Command{Name: c.zfsBin, Args: args}
}

// listCommand lists snapshot names one per line, ascending by creation
// time, limited to direct snapshots of dataset.
func (c *Client) listCommand(dataset string) ports.Command {
	return c.command("list", "-H", "-t", "snapshot", "-o", "name", "-s", "creation", "-d", "1", dataset)
}

func destroyArg(dataset string, labels []string) string {
	return dataset + "@" + strings.Join(labels, ",")
}

func parseSnapshotList(out string) []Snapshot {
	var snaps []Snapshot
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		snap, ok := ParseSnapshotName(line)
		if !ok {
			continue
		}
		snaps = append(snaps, snap)
	}
	return snaps
}
