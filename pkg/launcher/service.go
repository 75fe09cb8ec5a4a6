package launcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/go-go-golems/stackctl/pkg/compose"
	"github.com/go-go-golems/stackctl/pkg/envfile"
	"github.com/go-go-golems/stackctl/pkg/health"
	"github.com/go-go-golems/stackctl/pkg/runtime"
	"github.com/go-go-golems/stackctl/pkg/state"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// instance is the launcher-side record of one service. All fields are
// guarded by the launcher mutex except the settle channel.
type instance struct {
	spec *compose.Service

	state    State
	reason   string
	exitCode *int
	proc     *runtime.Proc
	restarts int
	built    bool

	stopRequested   bool
	cancelSupervise context.CancelFunc

	stdoutLog    string
	stderrLog    string
	exitInfoPath string
	env          map[string]string
	startedAt    time.Time

	settled    chan struct{}
	settleOnce sync.Once
	failed     bool
}

func newInstance(spec *compose.Service, root string) *instance {
	ts := time.Now().Format("20060102-150405")
	logsDir := state.LogsDir(root)
	return &instance{
		spec:         spec,
		state:        StatePending,
		stdoutLog:    filepath.Join(logsDir, spec.Name+"-"+ts+".stdout.log"),
		stderrLog:    filepath.Join(logsDir, spec.Name+"-"+ts+".stderr.log"),
		exitInfoPath: filepath.Join(logsDir, spec.Name+"-"+ts+".exit.json"),
		settled:      make(chan struct{}),
	}
}

// settle marks the service as having reached its initial steady state (or
// definitively failed to). Only the first call counts.
func (i *instance) settle(failed bool) {
	i.settleOnce.Do(func() {
		i.failed = failed
		close(i.settled)
	})
}

func (i *instance) settleFailed() bool {
	select {
	case <-i.settled:
		return i.failed
	default:
		return false
	}
}

// supervise runs one service's full lifecycle: await dependencies, build,
// start, probe, handle exits, restart per policy.
func (l *Launcher) supervise(runCtx context.Context, inst *instance) {
	defer l.wg.Done()
	name := inst.spec.Name

	ctx, cancel := context.WithCancel(runCtx)
	defer cancel()
	l.mu.Lock()
	inst.cancelSupervise = cancel
	l.mu.Unlock()

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			l.mu.Lock()
			restarts := inst.restarts
			l.mu.Unlock()
			if !l.backoff(ctx, restarts) {
				l.finishCancelled(inst)
				return
			}
		}

		if err := l.awaitDependencies(ctx, inst); err != nil {
			if errors.Is(err, ErrDependencyTimeout) {
				l.setState(name, StateFailed, err.Error(), nil)
				inst.settle(true)
				return
			}
			l.finishCancelled(inst)
			return
		}

		if !inst.built {
			if err := l.builder.Build(ctx, inst.spec); err != nil {
				l.setState(name, StateFailed, fmt.Sprintf("build failed: %v", err), nil)
				inst.settle(true)
				return
			}
			l.mu.Lock()
			inst.built = true
			l.mu.Unlock()
		}

		// Environment is read fresh for every instance start.
		fileEnv, err := envfile.Load(resolvePaths(l.opts.Root, inst.spec.EnvFiles))
		if err != nil {
			l.setState(name, StateFailed, fmt.Sprintf("environment: %v", err), nil)
			inst.settle(true)
			return
		}
		extra := envfile.Merge(fileEnv, inst.spec.Environment)
		l.mu.Lock()
		inst.env = extra
		l.mu.Unlock()

		l.setState(name, StateStarting, "", nil)

		proc, err := l.rt.Start(ctx, runtime.StartSpec{
			Name:       name,
			Dir:        workingDir(l.opts.Root, inst.spec.WorkingDir),
			Command:    inst.spec.Command,
			Env:        append(os.Environ(), envfile.Flatten(extra)...),
			StdoutPath: inst.stdoutLog,
			StderrPath: inst.stderrLog,
		})
		if err != nil {
			l.setState(name, StateCrashed, fmt.Sprintf("start failed: %v", err), nil)
			if ctx.Err() == nil && l.shouldRestart(inst, 1) {
				l.bumpRestarts(inst)
				continue
			}
			inst.settle(true)
			return
		}
		l.mu.Lock()
		inst.proc = proc
		inst.startedAt = proc.StartedAt
		l.mu.Unlock()
		l.setState(name, StateStarted, "process started", nil)

		proberCtx, proberCancel := context.WithCancel(ctx)
		if hc := inst.spec.Health; hc != nil {
			probe, perr := l.opts.Probes(hc)
			if perr != nil {
				proberCancel()
				_ = l.rt.Stop(context.Background(), proc, l.opts.ShutdownTimeout)
				l.setState(name, StateFailed, fmt.Sprintf("healthcheck: %v", perr), nil)
				inst.settle(true)
				return
			}
			prober := &health.Prober{
				Service:          name,
				Probe:            probe,
				Interval:         hc.Interval,
				Timeout:          hc.Timeout,
				StartPeriod:      hc.StartPeriod,
				Retries:          hc.Retries,
				SuccessThreshold: hc.SuccessThreshold,
				OnTransition: func(healthy bool, reason string) {
					if healthy {
						l.setState(name, StateHealthy, reason, nil)
						inst.settle(false)
					} else {
						l.setState(name, StateUnhealthy, reason, nil)
						inst.settle(true)
					}
				},
			}
			go prober.Run(proberCtx)
		} else {
			// Running without a healthcheck is already steady state.
			inst.settle(false)
		}

		select {
		case st := <-proc.Done():
			proberCancel()
			l.recordExit(inst, st)
			if st.Success() {
				code := 0
				l.setState(name, StateExited, "exited with code 0", &code)
				inst.settle(false)
			} else {
				l.setState(name, StateCrashed, exitReason(st), exitCodePtr(st))
			}
			if ctx.Err() != nil {
				l.finishCancelled(inst)
				return
			}
			if l.shouldRestart(inst, st.Code) {
				l.bumpRestarts(inst)
				continue
			}
			if !st.Success() {
				inst.settle(true)
			}
			return

		case <-ctx.Done():
			proberCancel()
			stopCtx, stopCancel := context.WithTimeout(context.Background(), l.opts.ShutdownTimeout+3*time.Second)
			_ = l.rt.Stop(stopCtx, proc, l.opts.ShutdownTimeout)
			stopCancel()
			st := <-proc.Done()
			l.recordExit(inst, st)
			l.finishCancelled(inst)
			return
		}
	}
}

// awaitDependencies blocks until every depends_on condition holds, the
// configured dependency deadline elapses, or ctx is cancelled.
func (l *Launcher) awaitDependencies(ctx context.Context, inst *instance) error {
	deps := inst.spec.DependsOn
	if len(deps) == 0 {
		return nil
	}

	waitCtx := ctx
	if l.opts.DepTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.opts.DepTimeout)
		defer cancel()
	}

	names := make([]string, 0, len(deps))
	for dep := range deps {
		names = append(names, dep)
	}
	sort.Strings(names)

	for _, dep := range names {
		cond := deps[dep]
		l.setState(inst.spec.Name, StatePending, fmt.Sprintf("waiting for %s (%s)", dep, cond), nil)
		if err := l.awaitCondition(waitCtx, dep, cond); err != nil {
			if waitCtx.Err() != nil && ctx.Err() == nil {
				return errors.Wrapf(ErrDependencyTimeout, "service %q waiting for %s (%s)", inst.spec.Name, dep, cond)
			}
			return err
		}
	}
	return nil
}

// awaitCondition subscribes to state transitions, then checks the current
// snapshot, so no transition can be missed in between.
func (l *Launcher) awaitCondition(ctx context.Context, dep string, cond compose.Condition) error {
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	msgs, err := l.bus.Subscribe(subCtx)
	if err != nil {
		return err
	}

	if satisfies(cond, l.stateOf(dep)) {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("event bus closed")
			}
			ev, decodeErr := DecodeEvent(msg)
			msg.Ack()
			if decodeErr != nil {
				continue
			}
			if ev.Service == dep && satisfies(cond, ev.State) {
				return nil
			}
		}
	}
}

// shouldRestart applies the restart policy to an exit.
func (l *Launcher) shouldRestart(inst *instance, exitCode int) bool {
	l.mu.Lock()
	stopRequested := inst.stopRequested
	l.mu.Unlock()
	if stopRequested {
		return false
	}

	switch inst.spec.Restart {
	case compose.RestartAlways, compose.RestartUnlessStopped:
		return true
	case compose.RestartOnFailure:
		return exitCode != 0
	default:
		return false
	}
}

func (l *Launcher) bumpRestarts(inst *instance) {
	l.mu.Lock()
	inst.restarts++
	restarts := inst.restarts
	l.mu.Unlock()
	log.Info().Str("service", inst.spec.Name).Int("restarts", restarts).Msg("restarting service")
}

// backoff sleeps before a restart, doubling per consecutive restart.
func (l *Launcher) backoff(ctx context.Context, restarts int) bool {
	d := l.opts.RestartBackoff
	for i := 1; i < restarts && d < l.opts.MaxRestartBackoff; i++ {
		d *= 2
	}
	if d > l.opts.MaxRestartBackoff {
		d = l.opts.MaxRestartBackoff
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// finishCancelled records the terminal state after a cancelled supervise
// loop: stopped if the operator asked, otherwise left pending.
func (l *Launcher) finishCancelled(inst *instance) {
	l.mu.Lock()
	stopRequested := inst.stopRequested
	l.mu.Unlock()

	if stopRequested {
		l.setState(inst.spec.Name, StateStopped, "stopped by operator", nil)
	}
	inst.settle(false)
}

func (l *Launcher) recordExit(inst *instance, st runtime.ExitStatus) {
	info := state.ExitInfo{
		Service:   inst.spec.Name,
		StartedAt: inst.startedAt,
		ExitedAt:  st.ExitedAt,
		Signal:    st.Signal,
	}
	if inst.proc != nil {
		info.PID = inst.proc.PID
	}
	if st.Err != nil {
		info.Error = st.Err.Error()
	} else {
		code := st.Code
		info.ExitCode = &code
	}
	if tail, err := state.TailLines(inst.stderrLog, 20, 1<<20); err == nil {
		info.StderrTail = tail
	}
	if err := state.WriteExitInfo(inst.exitInfoPath, info); err != nil {
		log.Warn().Err(err).Str("service", inst.spec.Name).Msg("write exit info")
	}
}

func exitReason(st runtime.ExitStatus) string {
	if st.Err != nil {
		return fmt.Sprintf("wait failed: %v", st.Err)
	}
	if st.Signal != "" {
		return fmt.Sprintf("terminated by signal %s", st.Signal)
	}
	return fmt.Sprintf("exited with code %d", st.Code)
}

func exitCodePtr(st runtime.ExitStatus) *int {
	if st.Err != nil {
		return nil
	}
	code := st.Code
	return &code
}

func resolvePaths(root string, paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if !filepath.IsAbs(p) {
			p = filepath.Join(root, p)
		}
		out = append(out, p)
	}
	return out
}

func workingDir(root, dir string) string {
	if dir == "" {
		return root
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(root, dir)
}
