package runtime

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-go-golems/stackctl/pkg/state"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ProcessRuntime runs each service as a local process in its own process
// group, with stdout/stderr captured to log files.
type ProcessRuntime struct{}

var _ Runtime = (*ProcessRuntime)(nil)

func NewProcessRuntime() *ProcessRuntime {
	return &ProcessRuntime{}
}

func (r *ProcessRuntime) Start(ctx context.Context, spec StartSpec) (*Proc, error) {
	if spec.Name == "" {
		return nil, errors.New("service name is required")
	}
	if len(spec.Command) == 0 {
		return nil, errors.Errorf("service %q missing command", spec.Name)
	}

	stdoutFile, err := openLog(spec.StdoutPath)
	if err != nil {
		return nil, errors.Wrap(err, "open stdout log")
	}
	stderrFile, err := openLog(spec.StderrPath)
	if err != nil {
		_ = stdoutFile.Close()
		return nil, errors.Wrap(err, "open stderr log")
	}

	// #nosec G204 -- command comes from the deployment descriptor.
	cmd := exec.Command(spec.Command[0], spec.Command[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	cmd.Stdout = stdoutFile
	cmd.Stderr = stderrFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		_ = stdoutFile.Close()
		_ = stderrFile.Close()
		return nil, errors.Wrap(err, "start service")
	}

	proc, report := NewProc(cmd.Process.Pid, time.Now())
	log.Info().Str("service", spec.Name).Int("pid", proc.PID).Msg("service started")

	go func() {
		defer func() { _ = stdoutFile.Close() }()
		defer func() { _ = stderrFile.Close() }()

		report(exitStatus(cmd.Wait()))
	}()

	return proc, nil
}

// Stop terminates the instance's process group: SIGTERM, then SIGKILL once
// the grace period runs out.
func (r *ProcessRuntime) Stop(ctx context.Context, proc *Proc, grace time.Duration) error {
	if proc == nil {
		return nil
	}
	return TerminateGroup(ctx, proc.PID, grace)
}

func openLog(path string) (*os.File, error) {
	if path == "" {
		return os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
}

func exitStatus(waitErr error) ExitStatus {
	st := ExitStatus{ExitedAt: time.Now()}
	if waitErr == nil {
		return st
	}

	var ee *exec.ExitError
	if errors.As(waitErr, &ee) {
		if ws, ok := ee.Sys().(syscall.WaitStatus); ok {
			if ws.Signaled() {
				st.Signal = ws.Signal().String()
				st.Code = 128 + int(ws.Signal())
				return st
			}
			st.Code = ws.ExitStatus()
			return st
		}
		st.Code = ee.ExitCode()
		return st
	}

	st.Err = waitErr
	st.Code = -1
	return st
}

// TerminateGroup stops the process group of pid, escalating from SIGTERM to
// SIGKILL after grace. It also works on PIDs recorded by a previous run.
func TerminateGroup(ctx context.Context, pid int, grace time.Duration) error {
	if pid <= 0 {
		return nil
	}
	pgid, pgidErr := syscall.Getpgid(pid)
	if pgidErr == nil {
		_ = syscall.Kill(-pgid, syscall.SIGTERM)
	} else {
		_ = syscall.Kill(pid, syscall.SIGTERM)
	}

	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < grace {
			grace = remaining
		}
	}

	t := time.NewTicker(100 * time.Millisecond)
	defer t.Stop()

	termDeadline := time.Now().Add(grace)
	for state.ProcessAlive(pid) && time.Now().Before(termDeadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	if !state.ProcessAlive(pid) {
		return nil
	}

	if pgidErr == nil {
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
	} else {
		_ = syscall.Kill(pid, syscall.SIGKILL)
	}

	killDeadline := time.Now().Add(2 * time.Second)
	for state.ProcessAlive(pid) && time.Now().Before(killDeadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}

	if state.ProcessAlive(pid) {
		return errors.Errorf("failed to stop pid %d", pid)
	}
	return nil
}
