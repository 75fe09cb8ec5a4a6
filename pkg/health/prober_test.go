package health

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// scriptProbe returns its scripted results in order; the last one repeats.
type scriptProbe struct {
	mu      sync.Mutex
	results []error
}

func (p *scriptProbe) Check(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.results) == 0 {
		return nil
	}
	r := p.results[0]
	if len(p.results) > 1 {
		p.results = p.results[1:]
	}
	return r
}

type transition struct {
	healthy bool
	reason  string
}

func runProber(t *testing.T, p *Prober) (<-chan transition, context.CancelFunc) {
	t.Helper()
	transitions := make(chan transition, 16)
	p.OnTransition = func(healthy bool, reason string) {
		transitions <- transition{healthy: healthy, reason: reason}
	}

	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)
	return transitions, cancel
}

func awaitTransition(t *testing.T, ch <-chan transition) transition {
	t.Helper()
	select {
	case tr := <-ch:
		return tr
	case <-time.After(5 * time.Second):
		t.Fatal("no transition")
		return transition{}
	}
}

func TestProber_HealthyAfterSuccessThreshold(t *testing.T) {
	p := &Prober{
		Service:          "relay",
		Probe:            &scriptProbe{},
		Interval:         5 * time.Millisecond,
		Timeout:          time.Second,
		Retries:          3,
		SuccessThreshold: 2,
	}
	transitions, cancel := runProber(t, p)
	defer cancel()

	tr := awaitTransition(t, transitions)
	require.True(t, tr.healthy)
	require.Contains(t, tr.reason, "2 consecutive probe successes")
}

func TestProber_UnhealthyAfterRetries(t *testing.T) {
	p := &Prober{
		Service:          "relay",
		Probe:            &scriptProbe{results: []error{errors.New("boom")}},
		Interval:         5 * time.Millisecond,
		Timeout:          time.Second,
		Retries:          3,
		SuccessThreshold: 1,
	}
	transitions, cancel := runProber(t, p)
	defer cancel()

	tr := awaitTransition(t, transitions)
	require.False(t, tr.healthy)
	require.Contains(t, tr.reason, "3 consecutive probe failures")
	require.Contains(t, tr.reason, "boom")
}

func TestProber_HealthyThenUnhealthy(t *testing.T) {
	boom := errors.New("boom")
	p := &Prober{
		Service:          "relay",
		Probe:            &scriptProbe{results: []error{nil, boom}},
		Interval:         5 * time.Millisecond,
		Timeout:          time.Second,
		Retries:          2,
		SuccessThreshold: 1,
	}
	transitions, cancel := runProber(t, p)
	defer cancel()

	tr := awaitTransition(t, transitions)
	require.True(t, tr.healthy)

	tr = awaitTransition(t, transitions)
	require.False(t, tr.healthy)
}

func TestProber_StartPeriodIgnoresEarlyFailures(t *testing.T) {
	boom := errors.New("warming up")
	p := &Prober{
		Service:          "relay",
		Probe:            &scriptProbe{results: []error{boom, boom, boom, nil}},
		Interval:         5 * time.Millisecond,
		Timeout:          time.Second,
		StartPeriod:      time.Hour,
		Retries:          1,
		SuccessThreshold: 1,
	}
	transitions, cancel := runProber(t, p)
	defer cancel()

	// The first verdict must be healthy: start-period failures don't count.
	tr := awaitTransition(t, transitions)
	require.True(t, tr.healthy)
}

func TestProber_SingleTransitionWhileStable(t *testing.T) {
	p := &Prober{
		Service:          "relay",
		Probe:            &scriptProbe{},
		Interval:         2 * time.Millisecond,
		Timeout:          time.Second,
		Retries:          1,
		SuccessThreshold: 1,
	}
	transitions, cancel := runProber(t, p)
	defer cancel()

	tr := awaitTransition(t, transitions)
	require.True(t, tr.healthy)

	// Plenty of further successes, but no further transitions.
	select {
	case tr := <-transitions:
		t.Fatalf("unexpected transition: %+v", tr)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestProber_StopsOnCancel(t *testing.T) {
	p := &Prober{
		Service:          "relay",
		Probe:            &scriptProbe{results: []error{errors.New("down")}},
		Interval:         time.Millisecond,
		Timeout:          time.Second,
		Retries:          1000,
		SuccessThreshold: 1,
	}
	transitions, cancel := runProber(t, p)

	time.Sleep(20 * time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)

	select {
	case tr := <-transitions:
		t.Fatalf("unexpected transition: %+v", tr)
	default:
	}
}
