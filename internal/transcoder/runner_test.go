package transcoder

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExecRunSuccess(t *testing.T) {
	requireShell(t)
	e := NewExec()

	if err := e.Run(context.Background(), "sh", []string{"-c", "exit 0"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if e.Running() != 0 {
		t.Errorf("Running() = %d after completion, want 0", e.Running())
	}
}

func TestExecRunFailureCarriesStderr(t *testing.T) {
	requireShell(t)
	e := NewExec()

	err := e.Run(context.Background(), "sh", []string{"-c", "echo 'bad input' >&2; exit 3"})
	if err == nil {
		t.Fatal("Run() should fail on non-zero exit")
	}

	var perr *ProcessError
	if !errors.As(err, &perr) {
		t.Fatalf("error %T is not *ProcessError", err)
	}
	if !strings.Contains(perr.Stderr, "bad input") {
		t.Errorf("Stderr = %q, want it to contain the tool output", perr.Stderr)
	}
	if perr.Command[0] != "sh" || perr.Command[1] != "-c" {
		t.Errorf("Command = %v, want sh -c ...", perr.Command)
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) || exitErr.ExitCode() != 3 {
		t.Errorf("error should unwrap to exit status 3, got %v", err)
	}
}

func TestExecRunMissingBinary(t *testing.T) {
	e := NewExec()

	err := e.Run(context.Background(), "/nonexistent/convert", []string{"a", "b"})
	var perr *ProcessError
	if !errors.As(err, &perr) {
		t.Fatalf("error %T is not *ProcessError", err)
	}
	if !strings.Contains(err.Error(), "convert failed") {
		t.Errorf("Error() = %q, want tool name", err.Error())
	}
}

func TestExecOutput(t *testing.T) {
	requireShell(t)
	e := NewExec()

	out, err := e.Output(context.Background(), "sh", []string{"-c", "printf hello"})
	if err != nil {
		t.Fatalf("Output() error = %v", err)
	}
	if string(out) != "hello" {
		t.Errorf("Output() = %q, want hello", out)
	}
}

func TestExecRunContextCanceled(t *testing.T) {
	requireShell(t)
	e := NewExec()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := e.Run(ctx, "sh", []string{"-c", "sleep 5"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() error = %v, want deadline exceeded", err)
	}
}

func TestExecCleanupKillsRunning(t *testing.T) {
	requireShell(t)
	e := NewExec()

	done := make(chan error, 1)
	go func() {
		done <- e.Run(context.Background(), "sh", []string{"-c", "sleep 10"})
	}()

	deadline := time.Now().Add(2 * time.Second)
	for e.Running() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("process never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	e.Cleanup()

	select {
	case err := <-done:
		if err == nil {
			t.Error("killed process should report an error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Cleanup did not stop the process")
	}
}

func TestProcessErrorCommandLine(t *testing.T) {
	tests := []struct {
		name    string
		command []string
		want    string
	}{
		{"plain", []string{"convert", "-strip", "in.jpg[0]", "out.jpg"}, "convert -strip in.jpg[0] out.jpg"},
		{"spaces", []string{"ffmpeg", "-i", "my clip.mp4"}, `ffmpeg -i "my clip.mp4"`},
		{"empty arg", []string{"tool", ""}, `tool ""`},
		{"quote", []string{"tool", `it's`}, `tool "it's"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &ProcessError{Command: tt.command}
			if got := e.CommandLine(); got != tt.want {
				t.Errorf("CommandLine() = %q, want %q", got, tt.want)
			}
		})
	}
}
