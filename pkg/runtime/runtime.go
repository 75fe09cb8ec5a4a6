// Package runtime is the process runtime the launcher delegates to. Service
// isolation is a process group per instance; the launcher itself never execs.
package runtime

import (
	"context"
	"sync"
	"time"
)

// StartSpec describes one service instance to launch.
type StartSpec struct {
	Name       string
	Dir        string
	Command    []string
	Env        []string // full environment, KEY=VALUE
	StdoutPath string
	StderrPath string
}

// ExitStatus is how an instance ended.
type ExitStatus struct {
	Code     int
	Signal   string
	Err      error
	ExitedAt time.Time
}

// Success reports a clean zero exit.
func (e ExitStatus) Success() bool {
	return e.Err == nil && e.Signal == "" && e.Code == 0
}

// Proc is a handle on a running instance.
type Proc struct {
	PID       int
	StartedAt time.Time

	done chan ExitStatus
}

// NewProc wraps an already started instance. The returned report function
// delivers the exit status; only the first call counts.
func NewProc(pid int, startedAt time.Time) (*Proc, func(ExitStatus)) {
	p := &Proc{PID: pid, StartedAt: startedAt, done: make(chan ExitStatus, 1)}
	var once sync.Once
	report := func(st ExitStatus) {
		once.Do(func() {
			p.done <- st
			close(p.done)
		})
	}
	return p, report
}

// Done delivers the exit status exactly once, then stays closed.
func (p *Proc) Done() <-chan ExitStatus {
	return p.done
}

// Runtime launches and stops service instances.
type Runtime interface {
	Start(ctx context.Context, spec StartSpec) (*Proc, error)
	Stop(ctx context.Context, proc *Proc, grace time.Duration) error
}
