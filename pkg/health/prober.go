package health

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Prober runs one service's probe on a recurring timer and reports
// healthy/unhealthy transitions. It holds no service state beyond its
// consecutive counters; the launcher owns the state machine.
type Prober struct {
	Service          string
	Probe            Probe
	Interval         time.Duration
	Timeout          time.Duration
	StartPeriod      time.Duration
	Retries          int
	SuccessThreshold int

	// OnTransition fires once per healthy<->unhealthy edge.
	OnTransition func(healthy bool, reason string)
}

// Run probes until ctx is cancelled. The first probe fires one interval
// after start; failures during the start period are not counted until the
// service has been healthy once.
func (p *Prober) Run(ctx context.Context) {
	interval := p.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retries := p.Retries
	if retries < 1 {
		retries = 1
	}
	threshold := p.SuccessThreshold
	if threshold < 1 {
		threshold = 1
	}

	start := time.Now()
	var (
		fails      int
		successes  int
		healthy    bool
		everProbed bool // true once a transition has been reported
	)

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		probeCtx, cancel := context.WithTimeout(ctx, timeout)
		err := p.Probe.Check(probeCtx)
		cancel()

		if ctx.Err() != nil {
			return
		}

		if err != nil {
			if !everProbed && time.Since(start) < p.StartPeriod {
				// Grace period: failures before first health don't count.
				continue
			}
			successes = 0
			fails++
			log.Debug().Str("service", p.Service).Int("fails", fails).Err(err).Msg("probe failed")
			if fails >= retries && (healthy || !everProbed) {
				healthy = false
				everProbed = true
				p.OnTransition(false, fmt.Sprintf("%d consecutive probe failures: %v", fails, err))
			}
			continue
		}

		fails = 0
		successes++
		log.Debug().Str("service", p.Service).Int("successes", successes).Msg("probe succeeded")
		if successes >= threshold && !healthy {
			healthy = true
			everProbed = true
			p.OnTransition(true, fmt.Sprintf("%d consecutive probe successes", successes))
		}
	}
}
