package transcoder

import (
	"bytes"
	"context"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"backup-timeline/internal/logging"
	"backup-timeline/internal/metrics"
)

// Runner runs an external tool to completion.
type Runner interface {
	Run(ctx context.Context, name string, args []string) error
}

// Exec runs tools as child processes.
type Exec struct {
	processes map[int]*exec.Cmd
	nextID    int
	processMu sync.Mutex
}

// NewExec creates an Exec runner.
func NewExec() *Exec {
	return &Exec{processes: make(map[int]*exec.Cmd)}
}

// Run runs name with args and waits for it. A non-zero exit is reported as a
// *ProcessError.
func (e *Exec) Run(ctx context.Context, name string, args []string) error {
	_, err := e.run(ctx, name, args, false)
	return err
}

// Output runs name with args and returns its stdout.
func (e *Exec) Output(ctx context.Context, name string, args []string) ([]byte, error) {
	return e.run(ctx, name, args, true)
}

func (e *Exec) run(ctx context.Context, name string, args []string, wantStdout bool) ([]byte, error) {
	tool := toolName(name)
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	if wantStdout {
		cmd.Stdout = &stdout
	}
	cmd.Stderr = &stderr

	logging.Debug("Running %s %v", name, args)

	start := time.Now()
	metrics.TranscoderProcessesInProgress.Inc()
	defer metrics.TranscoderProcessesInProgress.Dec()

	if err := cmd.Start(); err != nil {
		metrics.TranscoderProcessesTotal.WithLabelValues(tool, "error").Inc()
		return nil, &ProcessError{Command: append([]string{name}, args...), Err: err}
	}

	id := e.track(cmd)
	err := cmd.Wait()
	e.untrack(id)

	metrics.TranscoderProcessDuration.WithLabelValues(tool).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.TranscoderProcessesTotal.WithLabelValues(tool, "error").Inc()
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, &ProcessError{
			Command: append([]string{name}, args...),
			Stderr:  stderr.String(),
			Err:     err,
		}
	}

	metrics.TranscoderProcessesTotal.WithLabelValues(tool, "success").Inc()
	return stdout.Bytes(), nil
}

func (e *Exec) track(cmd *exec.Cmd) int {
	e.processMu.Lock()
	defer e.processMu.Unlock()
	e.nextID++
	e.processes[e.nextID] = cmd
	return e.nextID
}

func (e *Exec) untrack(id int) {
	e.processMu.Lock()
	defer e.processMu.Unlock()
	delete(e.processes, id)
}

// Running returns the number of processes currently running.
func (e *Exec) Running() int {
	e.processMu.Lock()
	defer e.processMu.Unlock()
	return len(e.processes)
}

// Cleanup kills all running processes.
func (e *Exec) Cleanup() {
	e.processMu.Lock()
	defer e.processMu.Unlock()

	for _, cmd := range e.processes {
		if cmd.Process != nil {
			logging.Info("Killing %s process (pid %d)", toolName(cmd.Path), cmd.Process.Pid)
			if err := cmd.Process.Kill(); err != nil {
				logging.Warn("failed to kill process %d: %v", cmd.Process.Pid, err)
			}
		}
	}
}

func toolName(name string) string {
	return filepath.Base(name)
}
