package zfs

import (
	"errors"
	"fmt"
	"strings"
)

// ToolError is returned when a zfs invocation ran to completion and exited
// nonzero. Host is empty for local invocations.
type ToolError struct {
	Op       string
	Host     string
	Cmd      string
	ExitCode int
	Stderr   string
}

var _ error = (*ToolError)(nil)

func (e *ToolError) Error() string {
	where := ""
	if e.Host != "" {
		where = " on " + e.Host
	}
	return fmt.Sprintf("zfs %s%s failed with exit %d: %s", e.Op, where, e.ExitCode, firstLine(e.Stderr))
}

// TransportError is returned when the remote shell could not reach the
// host at all. The remote command never ran, so the operation can be
// retried without side effects.
type TransportError struct {
	Host   string
	Stderr string
}

var _ error = (*TransportError)(nil)

func (e *TransportError) Error() string {
	return fmt.Sprintf("remote shell to %s failed: %s", e.Host, firstLine(e.Stderr))
}

// IsTransportError returns true when the supplied error is caused by a
// TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// TransferError is returned when a send/receive pipe failed. The sender and
// receiver exit independently, so both sides are always reported even when
// only one of them failed.
type TransferError struct {
	Snapshot   string
	SendExit   int
	SendStderr string
	RecvExit   int
	RecvStderr string
}

var _ error = (*TransferError)(nil)

func (e *TransferError) Error() string {
	var parts []string
	if e.SendExit != 0 {
		parts = append(parts, fmt.Sprintf("send exit %d: %s", e.SendExit, firstLine(e.SendStderr)))
	}
	if e.RecvExit != 0 {
		parts = append(parts, fmt.Sprintf("receive exit %d: %s", e.RecvExit, firstLine(e.RecvStderr)))
	}
	if len(parts) == 0 {
		parts = append(parts, "pipe failed")
	}
	return fmt.Sprintf("transfer of %s failed: %s", e.Snapshot, strings.Join(parts, "; "))
}

// firstLine trims tool stderr down to its leading line so wrapped errors
// stay readable in logs and CLI output.
func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return "(no stderr)"
	}
	return s
}
