package execrunner

import (
	"reflect"
	"testing"

	"github.com/zfsync/zfsync/internal/ports"
)

func TestRunCapturesOutput(t *testing.T) {
	r := New()

	res, err := r.Run(ports.Command{Name: "sh", Args: []string{"-c", "echo out; echo err >&2"}})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Stdout != "out\n" {
		t.Errorf("Stdout = %q, want %q", res.Stdout, "out\n")
	}
	if res.Stderr != "err\n" {
		t.Errorf("Stderr = %q, want %q", res.Stderr, "err\n")
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
}

func TestRunNonzeroExit(t *testing.T) {
	r := New()

	res, err := r.Run(ports.Command{Name: "sh", Args: []string{"-c", "exit 3"}})
	if err != nil {
		t.Fatalf("Run() error = %v, nonzero exits should be reported in the result", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
}

func TestRunStartFailure(t *testing.T) {
	r := New()

	_, err := r.Run(ports.Command{Name: "/nonexistent/zfsync-test-binary"})
	if err == nil {
		t.Fatal("Run() error = nil, want start failure")
	}
}

func TestRemoteArgs(t *testing.T) {
	r := New(WithSSHOptions("-o", "BatchMode=yes"))

	got := r.remoteArgs("backup@replica.example.com", ports.Command{
		Name: "zfs",
		Args: []string{"list", "-H"},
	})
	want := []string{"-o", "BatchMode=yes", "backup@replica.example.com", "zfs", "list", "-H"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("remoteArgs() = %v, want %v", got, want)
	}
}

func TestRunRemoteArgOrder(t *testing.T) {
	// echo stands in for ssh so the assembled argument vector comes back
	// verbatim on stdout.
	r := New(WithSSHPath("echo"))

	res, err := r.RunRemote("replica.example.com", ports.Command{
		Name: "zfs",
		Args: []string{"list", "-t", "snapshot"},
	})
	if err != nil {
		t.Fatalf("RunRemote() error = %v", err)
	}
	want := "replica.example.com zfs list -t snapshot\n"
	if res.Stdout != want {
		t.Errorf("Stdout = %q, want %q", res.Stdout, want)
	}
}

func TestPipeConnectsStreams(t *testing.T) {
	// sh stands in for ssh: the host slot carries -c, so the receive
	// command runs as a local shell line reading the piped stdin.
	r := New(WithSSHPath("sh"))

	res, err := r.Pipe(
		ports.Command{Name: "sh", Args: []string{"-c", "printf abc"}},
		"-c",
		ports.Command{Name: "cat"},
	)
	if err != nil {
		t.Fatalf("Pipe() error = %v", err)
	}
	if res.Send.ExitCode != 0 || res.Recv.ExitCode != 0 {
		t.Fatalf("exit codes = %d/%d, want 0/0", res.Send.ExitCode, res.Recv.ExitCode)
	}
	if res.Recv.Stdout != "abc" {
		t.Errorf("Recv.Stdout = %q, want %q", res.Recv.Stdout, "abc")
	}
}

func TestPipeReportsBothSides(t *testing.T) {
	r := New(WithSSHPath("sh"))

	res, err := r.Pipe(
		ports.Command{Name: "sh", Args: []string{"-c", "echo boom >&2; exit 2"}},
		"-c",
		ports.Command{Name: "cat >/dev/null; echo bust >&2; exit 5"},
	)
	if err != nil {
		t.Fatalf("Pipe() error = %v", err)
	}
	if res.Send.ExitCode != 2 {
		t.Errorf("Send.ExitCode = %d, want 2", res.Send.ExitCode)
	}
	if res.Send.Stderr != "boom\n" {
		t.Errorf("Send.Stderr = %q, want %q", res.Send.Stderr, "boom\n")
	}
	if res.Recv.ExitCode != 5 {
		t.Errorf("Recv.ExitCode = %d, want 5", res.Recv.ExitCode)
	}
	if res.Recv.Stderr != "bust\n" {
		t.Errorf("Recv.Stderr = %q, want %q", res.Recv.Stderr, "bust\n")
	}
}

func TestPipeLargeStream(t *testing.T) {
	// A megabyte exceeds the kernel pipe buffer, so this deadlocks if
	// the two sides are not waited on concurrently.
	r := New(WithSSHPath("sh"))

	res, err := r.Pipe(
		ports.Command{Name: "dd", Args: []string{"if=/dev/zero", "bs=1024", "count=1024"}},
		"-c",
		ports.Command{Name: "cat"},
	)
	if err != nil {
		t.Fatalf("Pipe() error = %v", err)
	}
	if res.Send.ExitCode != 0 || res.Recv.ExitCode != 0 {
		t.Fatalf("exit codes = %d/%d, want 0/0", res.Send.ExitCode, res.Recv.ExitCode)
	}
	if len(res.Recv.Stdout) != 1024*1024 {
		t.Errorf("Recv.Stdout length = %d, want %d", len(res.Recv.Stdout), 1024*1024)
	}
}

func TestPipeStartFailure(t *testing.T) {
	r := New()

	_, err := r.Pipe(
		ports.Command{Name: "/nonexistent/zfsync-test-binary"},
		"replica.example.com",
		ports.Command{Name: "cat"},
	)
	if err == nil {
		t.Fatal("Pipe() error = nil, want start failure")
	}
}

func TestPipeFromConnectsStreams(t *testing.T) {
	// Reverse direction: the send side goes through the ssh stand-in and
	// the receive side runs as a plain local process.
	r := New(WithSSHPath("sh"))

	res, err := r.PipeFrom(
		"-c",
		ports.Command{Name: "printf xyz"},
		ports.Command{Name: "cat"},
	)
	if err != nil {
		t.Fatalf("PipeFrom() error = %v", err)
	}
	if res.Send.ExitCode != 0 || res.Recv.ExitCode != 0 {
		t.Fatalf("exit codes = %d/%d, want 0/0", res.Send.ExitCode, res.Recv.ExitCode)
	}
	if res.Recv.Stdout != "xyz" {
		t.Errorf("Recv.Stdout = %q, want %q", res.Recv.Stdout, "xyz")
	}
}

func TestPipeFromReportsBothSides(t *testing.T) {
	r := New(WithSSHPath("sh"))

	res, err := r.PipeFrom(
		"-c",
		ports.Command{Name: "echo down >&2; exit 255"},
		ports.Command{Name: "sh", Args: []string{"-c", "cat >/dev/null; exit 4"}},
	)
	if err != nil {
		t.Fatalf("PipeFrom() error = %v", err)
	}
	if res.Send.ExitCode != ports.RemoteConnFailureExit {
		t.Errorf("Send.ExitCode = %d, want %d", res.Send.ExitCode, ports.RemoteConnFailureExit)
	}
	if res.Send.Stderr != "down\n" {
		t.Errorf("Send.Stderr = %q, want %q", res.Send.Stderr, "down\n")
	}
	if res.Recv.ExitCode != 4 {
		t.Errorf("Recv.ExitCode = %d, want 4", res.Recv.ExitCode)
	}
}
