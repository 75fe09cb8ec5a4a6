package launcher

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-go-golems/stackctl/pkg/compose"
	"github.com/go-go-golems/stackctl/pkg/graph"
	"github.com/go-go-golems/stackctl/pkg/health"
	"github.com/go-go-golems/stackctl/pkg/runtime"
	"github.com/go-go-golems/stackctl/pkg/state"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrDependencyTimeout is returned when a service's dependency wait exceeds
// the configured deadline. It is fatal for the waiting service only.
var ErrDependencyTimeout = errors.New("dependency timeout")

// ProbeFactory builds a health probe from a descriptor healthcheck.
type ProbeFactory func(*compose.HealthCheck) (health.Probe, error)

type Options struct {
	// Root anchors relative descriptor paths, logs and run state.
	Root string
	// DepTimeout bounds each service's dependency wait; 0 waits forever.
	DepTimeout time.Duration
	// ShutdownTimeout is the SIGTERM grace period per instance.
	ShutdownTimeout time.Duration
	// RestartBackoff is the initial delay before a policy restart; it doubles
	// per consecutive restart up to MaxRestartBackoff.
	RestartBackoff    time.Duration
	MaxRestartBackoff time.Duration
	// Probes overrides probe construction (tests).
	Probes ProbeFactory
}

// Launcher drives one run of a deployment graph.
type Launcher struct {
	project *compose.Project
	rt      runtime.Runtime
	builder runtime.Builder
	bus     *Bus
	opts    Options

	mu        sync.Mutex
	instances map[string]*instance
	order     []string
	createdAt time.Time

	wg sync.WaitGroup
}

func New(project *compose.Project, rt runtime.Runtime, builder runtime.Builder, opts Options) *Launcher {
	if opts.Root == "" {
		opts.Root = "."
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	if opts.RestartBackoff <= 0 {
		opts.RestartBackoff = 500 * time.Millisecond
	}
	if opts.MaxRestartBackoff <= 0 {
		opts.MaxRestartBackoff = 30 * time.Second
	}
	if opts.Probes == nil {
		opts.Probes = health.NewProbe
	}
	return &Launcher{
		project: project,
		rt:      rt,
		builder: builder,
		bus:     NewBus(),
		opts:    opts,
	}
}

// Up resolves the graph and launches every service, gating each start on its
// depends_on conditions. Graph errors abort before anything starts. Up
// returns once every service has settled into its initial steady state (or
// failed); supervision keeps running until Stop.
func (l *Launcher) Up(ctx context.Context) error {
	order, err := graph.Resolve(l.project)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.order = order
	l.createdAt = time.Now()
	l.instances = make(map[string]*instance, len(order))
	for _, name := range order {
		l.instances[name] = newInstance(l.project.Services[name], l.opts.Root)
	}
	l.mu.Unlock()

	log.Info().
		Str("project", l.project.Name).
		Str("network", l.project.Network.Name).
		Bool("ipv6", l.project.Network.EnableIPv6).
		Int("services", len(order)).
		Msg("launching stack")

	for _, name := range order {
		l.setState(name, StatePending, "waiting to start", nil)
	}

	l.wg.Add(len(order))
	for _, name := range order {
		go l.supervise(ctx, l.instances[name])
	}

	var failed []string
	for _, name := range order {
		inst := l.instances[name]
		select {
		case <-inst.settled:
			if inst.settleFailed() {
				failed = append(failed, name)
			}
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "launch interrupted")
		}
	}
	if len(failed) > 0 {
		return errors.Errorf("services failed to start: %s", strings.Join(failed, ", "))
	}
	return nil
}

// Stop is the operator stop for the whole stack, dependents first. Stopped
// services are never restarted.
func (l *Launcher) Stop(ctx context.Context) error {
	l.mu.Lock()
	order := append([]string{}, l.order...)
	l.mu.Unlock()

	for _, name := range graph.Reverse(order) {
		_ = l.StopService(name)
	}

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "stop")
	}
}

// StopService is the operator stop for a single service. Dependents blocked
// on it stay pending; they are not failed.
func (l *Launcher) StopService(name string) error {
	l.mu.Lock()
	inst, ok := l.instances[name]
	if !ok {
		l.mu.Unlock()
		return errors.Errorf("unknown service %q", name)
	}
	inst.stopRequested = true
	cancel := inst.cancelSupervise
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

// Snapshot returns the current per-service state, including the reason for
// any blocked or failed service.
func (l *Launcher) Snapshot() *state.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

func (l *Launcher) snapshotLocked() *state.State {
	network := l.project.Network.Name
	if l.project.Network.EnableIPv6 {
		network += " (ipv6)"
	}

	st := &state.State{
		Project:   l.project.Name,
		Root:      l.opts.Root,
		Network:   network,
		CreatedAt: l.createdAt,
		Services:  make([]state.ServiceRecord, 0, len(l.order)),
	}
	for _, name := range l.order {
		inst := l.instances[name]
		rec := state.ServiceRecord{
			Name:      name,
			State:     string(inst.state),
			Reason:    inst.reason,
			Command:   inst.spec.Command,
			Env:       state.SanitizeEnv(inst.env),
			Restarts:  inst.restarts,
			StdoutLog: inst.stdoutLog,
			StderrLog: inst.stderrLog,
			ExitInfo:  inst.exitInfoPath,
			StartedAt: inst.startedAt,
			HasHealth: inst.spec.Health != nil,
		}
		if pub := inst.spec.RuntimeName(); pub != name {
			rec.PublicName = pub
		}
		if inst.proc != nil {
			rec.PID = inst.proc.PID
		}
		st.Services = append(st.Services, rec)
	}
	return st
}

func (l *Launcher) setState(name string, st State, reason string, exitCode *int) {
	l.mu.Lock()
	inst, ok := l.instances[name]
	if !ok {
		l.mu.Unlock()
		return
	}
	inst.state = st
	inst.reason = reason
	if exitCode != nil {
		inst.exitCode = exitCode
	}
	l.mu.Unlock()

	ev := log.Info().Str("service", name).Str("state", string(st))
	if reason != "" {
		ev = ev.Str("reason", reason)
	}
	ev.Msg("service state")

	if err := l.bus.Publish(Event{Service: name, State: st, Reason: reason, ExitCode: exitCode, At: time.Now()}); err != nil {
		log.Warn().Err(err).Str("service", name).Msg("publish state event")
	}
	l.persist()
}

func (l *Launcher) stateOf(name string) State {
	l.mu.Lock()
	defer l.mu.Unlock()
	if inst, ok := l.instances[name]; ok {
		return inst.state
	}
	return ""
}

func (l *Launcher) persist() {
	l.mu.Lock()
	st := l.snapshotLocked()
	l.mu.Unlock()
	if err := state.Save(l.opts.Root, st); err != nil {
		log.Warn().Err(err).Msg("persist run state")
	}
}
