// Package mocks provides mock implementations of the ports interfaces for testing.
package mocks

import "github.com/zfsync/zfsync/internal/ports"

// ExecutorCall records one invocation made through the mock.
type ExecutorCall struct {
	// Kind is "run", "remote", "pipe", or "pipe-from".
	Kind string
	// Host is set for remote and pipe calls.
	Host string
	// Cmd is the command string; for pipes, the send side.
	Cmd string
	// Recv is the receive side command string for pipe calls.
	Recv string
}

// MockExecutor implements ports.Executor for testing.
//
// Results are scripted per command string as FIFO queues: each call pops
// the head, and the final entry sticks for any further calls with the same
// key. This lets a test return a different remote listing before and after
// a transfer. Unscripted commands succeed with empty output.
type MockExecutor struct {
	// Results queues canned results for local Run calls by command string.
	Results map[string][]ports.Result
	// RemoteResults queues canned results for RunRemote calls by command string.
	RemoteResults map[string][]ports.Result
	// PipeResults queues canned results for Pipe calls by send command string.
	PipeResults map[string][]ports.PipeResult
	// PipeFromResults queues canned results for PipeFrom calls by send command string.
	PipeFromResults map[string][]ports.PipeResult
	// Calls records every invocation in order.
	Calls []ExecutorCall
	// Errors allows simulating start failures for specific operations.
	Errors struct {
		Run       error
		RunRemote error
		Pipe      error
		PipeFrom  error
	}
}

// NewMockExecutor creates a new mock executor.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{
		Results:         make(map[string][]ports.Result),
		RemoteResults:   make(map[string][]ports.Result),
		PipeResults:     make(map[string][]ports.PipeResult),
		PipeFromResults: make(map[string][]ports.PipeResult),
	}
}

// Run executes cmd on the local machine.
func (m *MockExecutor) Run(cmd ports.Command) (ports.Result, error) {
	m.Calls = append(m.Calls, ExecutorCall{Kind: "run", Cmd: cmd.String()})
	if m.Errors.Run != nil {
		return ports.Result{}, m.Errors.Run
	}
	return m.popResult(m.Results, cmd.String()), nil
}

// RunRemote executes cmd on host via the remote shell.
func (m *MockExecutor) RunRemote(host string, cmd ports.Command) (ports.Result, error) {
	m.Calls = append(m.Calls, ExecutorCall{Kind: "remote", Host: host, Cmd: cmd.String()})
	if m.Errors.RunRemote != nil {
		return ports.Result{}, m.Errors.RunRemote
	}
	return m.popResult(m.RemoteResults, cmd.String()), nil
}

// Pipe executes send locally and recv on host.
func (m *MockExecutor) Pipe(send ports.Command, host string, recv ports.Command) (ports.PipeResult, error) {
	m.Calls = append(m.Calls, ExecutorCall{Kind: "pipe", Host: host, Cmd: send.String(), Recv: recv.String()})
	if m.Errors.Pipe != nil {
		return ports.PipeResult{}, m.Errors.Pipe
	}
	return m.popPipeResult(m.PipeResults, send.String()), nil
}

// PipeFrom executes send on host and recv locally.
func (m *MockExecutor) PipeFrom(host string, send ports.Command, recv ports.Command) (ports.PipeResult, error) {
	m.Calls = append(m.Calls, ExecutorCall{Kind: "pipe-from", Host: host, Cmd: send.String(), Recv: recv.String()})
	if m.Errors.PipeFrom != nil {
		return ports.PipeResult{}, m.Errors.PipeFrom
	}
	return m.popPipeResult(m.PipeFromResults, send.String()), nil
}

// CallsOfKind returns the recorded calls of one kind, in order.
func (m *MockExecutor) CallsOfKind(kind string) []ExecutorCall {
	var calls []ExecutorCall
	for _, c := range m.Calls {
		if c.Kind == kind {
			calls = append(calls, c)
		}
	}
	return calls
}

func (m *MockExecutor) popResult(results map[string][]ports.Result, key string) ports.Result {
	queue := results[key]
	if len(queue) == 0 {
		return ports.Result{}
	}
	res := queue[0]
	if len(queue) > 1 {
		results[key] = queue[1:]
	}
	return res
}

func (m *MockExecutor) popPipeResult(results map[string][]ports.PipeResult, key string) ports.PipeResult {
	queue := results[key]
	if len(queue) == 0 {
		return ports.PipeResult{}
	}
	res := queue[0]
	if len(queue) > 1 {
		results[key] = queue[1:]
	}
	return res
}

// Compile-time check that MockExecutor implements ports.Executor.
var _ ports.Executor = (*MockExecutor)(nil)
