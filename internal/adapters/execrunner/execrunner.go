// Package execrunner provides a ports.Executor backed by exec.Command,
// reaching the remote host through the ssh binary.
package execrunner

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"sync"

	"github.com/zfsync/zfsync/internal/ports"
)

// Runner implements ports.Executor using exec.Command. Remote commands are
// wrapped in an ssh invocation; ssh reserves exit code 255 for its own
// connection failures, which is what ports.RemoteConnFailureExit encodes.
type Runner struct {
	sshPath    string
	sshOptions []string
}

// Option is a functional option for configuring Runner.
type Option func(*Runner)

// WithSSHPath sets a custom path to the ssh binary.
func WithSSHPath(path string) Option {
	return func(r *Runner) {
		r.sshPath = path
	}
}

// WithSSHOptions sets options inserted before the host on every remote
// invocation, e.g. -o BatchMode=yes.
func WithSSHOptions(opts ...string) Option {
	return func(r *Runner) {
		r.sshOptions = opts
	}
}

// New creates a new Runner adapter.
func New(opts ...Option) *Runner {
	r := &Runner{
		sshPath: "ssh",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes cmd on the local machine.
func (r *Runner) Run(cmd ports.Command) (ports.Result, error) {
	return runCapture(exec.Command(cmd.Name, cmd.Args...))
}

// RunRemote executes cmd on host via ssh.
func (r *Runner) RunRemote(host string, cmd ports.Command) (ports.Result, error) {
	return runCapture(exec.Command(r.sshPath, r.remoteArgs(host, cmd)...))
}

// Pipe executes send locally and recv on host, with send's stdout streamed
// into recv's stdin.
func (r *Runner) Pipe(send ports.Command, host string, recv ports.Command) (ports.PipeResult, error) {
	sendCmd := exec.Command(send.Name, send.Args...)
	recvCmd := exec.Command(r.sshPath, r.remoteArgs(host, recv)...)
	return runPipe(sendCmd, recvCmd)
}

// PipeFrom executes send on host via ssh and recv locally, the reverse
// direction of Pipe.
func (r *Runner) PipeFrom(host string, send ports.Command, recv ports.Command) (ports.PipeResult, error) {
	sendCmd := exec.Command(r.sshPath, r.remoteArgs(host, send)...)
	recvCmd := exec.Command(recv.Name, recv.Args...)
	return runPipe(sendCmd, recvCmd)
}

// runPipe wires sendCmd's stdout directly into recvCmd's stdin as a kernel
// pipe, so the stream is never buffered in this process. Both sides are
// waited on concurrently; a sequential wait could deadlock on a full pipe
// buffer once either side stalls.
func runPipe(sendCmd, recvCmd *exec.Cmd) (ports.PipeResult, error) {
	pipe, err := sendCmd.StdoutPipe()
	if err != nil {
		return ports.PipeResult{}, fmt.Errorf("creating pipe: %w", err)
	}
	recvCmd.Stdin = pipe

	var sendStderr, recvStdout, recvStderr bytes.Buffer
	sendCmd.Stderr = &sendStderr
	recvCmd.Stdout = &recvStdout
	recvCmd.Stderr = &recvStderr

	if err := sendCmd.Start(); err != nil {
		return ports.PipeResult{}, fmt.Errorf("starting %s: %w", sendCmd.Args[0], err)
	}
	if err := recvCmd.Start(); err != nil {
		_ = sendCmd.Process.Kill()
		_ = sendCmd.Wait()
		return ports.PipeResult{}, fmt.Errorf("starting %s: %w", recvCmd.Args[0], err)
	}

	var wg sync.WaitGroup
	var sendWait, recvWait error
	wg.Add(2)
	go func() {
		defer wg.Done()
		sendWait = sendCmd.Wait()
	}()
	go func() {
		defer wg.Done()
		recvWait = recvCmd.Wait()
	}()
	wg.Wait()

	sendExit, err := exitCode(sendWait)
	if err != nil {
		return ports.PipeResult{}, fmt.Errorf("waiting for %s: %w", sendCmd.Args[0], err)
	}
	recvExit, err := exitCode(recvWait)
	if err != nil {
		return ports.PipeResult{}, fmt.Errorf("waiting for %s: %w", recvCmd.Args[0], err)
	}

	return ports.PipeResult{
		Send: ports.Result{Stderr: sendStderr.String(), ExitCode: sendExit},
		Recv: ports.Result{Stdout: recvStdout.String(), Stderr: recvStderr.String(), ExitCode: recvExit},
	}, nil
}

// remoteArgs builds the ssh argument vector for running cmd on host.
func (r *Runner) remoteArgs(host string, cmd ports.Command) []string {
	args := make([]string, 0, len(r.sshOptions)+len(cmd.Args)+2)
	args = append(args, r.sshOptions...)
	args = append(args, host, cmd.Name)
	args = append(args, cmd.Args...)
	return args
}

// runCapture runs c to completion with stdout and stderr captured. A
// nonzero exit is reported in the Result, not as an error; an error means
// the process could not be started or waited on.
func runCapture(c *exec.Cmd) (ports.Result, error) {
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	res := ports.Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		code, err := exitCode(err)
		if err != nil {
			return ports.Result{}, err
		}
		res.ExitCode = code
	}
	return res, nil
}

func exitCode(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return 0, err
}

// Compile-time check that Runner implements ports.Executor.
var _ ports.Executor = (*Runner)(nil)
