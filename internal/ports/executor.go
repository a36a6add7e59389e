// Package ports defines interfaces (contracts) for external dependencies.
// These enable dependency injection and testability via mock implementations.
package ports

import "strings"

// RemoteConnFailureExit is the exit code the remote-shell transport
// reserves for "could not connect or authenticate". Every other nonzero
// exit means the remote command ran and failed on its own.
const RemoteConnFailureExit = 255

// Command is an argument vector for an external tool.
type Command struct {
	Name string
	Args []string
}

// String renders the command the way a shell user would type it.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Result captures one finished invocation. ExitCode is zero on success;
// Stderr keeps the tool's diagnostics for error reporting.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// PipeResult captures both ends of a piped transfer. The two processes
// exit independently, so both results are always populated.
type PipeResult struct {
	Send Result
	Recv Result
}

// Executor runs external tools. Production code uses the execrunner
// adapter; tests use mocks.Executor.
//
// All three methods return a non-nil error only when the invocation could
// not be started at all (missing binary, fork failure). A command that ran
// and exited nonzero is reported through Result.ExitCode, leaving the
// interpretation of failure codes to the caller.
type Executor interface {
	// Run executes cmd on the local machine.
	Run(cmd Command) (Result, error)

	// RunRemote executes cmd on host via the remote shell. An exit code of
	// RemoteConnFailureExit means the transport itself failed.
	RunRemote(host string, cmd Command) (Result, error)

	// Pipe executes send locally and recv on host, streaming send's stdout
	// into recv's stdin without buffering the stream, and waits on both
	// processes independently.
	Pipe(send Command, host string, recv Command) (PipeResult, error)

	// PipeFrom is Pipe with the direction reversed: send runs on host via
	// the remote shell and recv runs locally. An exit code of
	// RemoteConnFailureExit on the send side means the transport itself
	// failed.
	PipeFrom(host string, send Command, recv Command) (PipeResult, error)
}
