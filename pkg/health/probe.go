// Package health runs recurring health probes against service instances.
package health

import (
	"context"
	"net"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/go-go-golems/stackctl/pkg/compose"
	"github.com/pkg/errors"
)

// Probe is a single health check invocation. A nil error is one healthy
// signal; any error counts as one failure.
type Probe interface {
	Check(ctx context.Context) error
}

// NewProbe builds a probe from the descriptor's healthcheck test vector.
// CMD and CMD-SHELL follow compose; HTTP and TCP are the launcher's own
// probe kinds (an HTTP probe issues HEAD, falling back to GET).
func NewProbe(hc *compose.HealthCheck) (Probe, error) {
	if hc == nil || len(hc.Test) == 0 {
		return nil, errors.New("healthcheck has no test")
	}

	switch strings.ToUpper(hc.Test[0]) {
	case "CMD":
		if len(hc.Test) < 2 {
			return nil, errors.New("CMD probe missing command")
		}
		return &execProbe{argv: hc.Test[1:]}, nil
	case "CMD-SHELL":
		if len(hc.Test) < 2 {
			return nil, errors.New("CMD-SHELL probe missing command")
		}
		return &execProbe{argv: []string{"/bin/sh", "-c", strings.Join(hc.Test[1:], " ")}}, nil
	case "HTTP":
		if len(hc.Test) < 2 || hc.Test[1] == "" {
			return nil, errors.New("HTTP probe missing url")
		}
		return &httpProbe{url: hc.Test[1]}, nil
	case "TCP":
		if len(hc.Test) < 2 || hc.Test[1] == "" {
			return nil, errors.New("TCP probe missing address")
		}
		return &tcpProbe{address: hc.Test[1]}, nil
	default:
		return nil, errors.Errorf("unsupported probe type %q", hc.Test[0])
	}
}

type execProbe struct {
	argv []string
}

func (p *execProbe) Check(ctx context.Context) error {
	// #nosec G204 -- probe command comes from the deployment descriptor.
	cmd := exec.CommandContext(ctx, p.argv[0], p.argv[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if len(msg) > 200 {
			msg = msg[len(msg)-200:]
		}
		if msg != "" {
			return errors.Wrapf(err, "probe failed: %s", msg)
		}
		return errors.Wrap(err, "probe failed")
	}
	return nil
}

type httpProbe struct {
	url string
}

func (p *httpProbe) Check(ctx context.Context) error {
	client := &http.Client{}

	status, err := p.request(ctx, client, http.MethodHead)
	if err == nil && status == http.StatusMethodNotAllowed {
		status, err = p.request(ctx, client, http.MethodGet)
	}
	if err != nil {
		return errors.Wrap(err, "http probe")
	}
	if status < 200 || status >= 400 {
		return errors.Errorf("http probe: status %d", status)
	}
	return nil
}

func (p *httpProbe) request(ctx context.Context, client *http.Client, method string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, p.url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}

type tcpProbe struct {
	address string
}

func (p *tcpProbe) Check(ctx context.Context) error {
	d := net.Dialer{Timeout: time.Second}
	conn, err := d.DialContext(ctx, "tcp", p.address)
	if err != nil {
		return errors.Wrap(err, "tcp probe")
	}
	_ = conn.Close()
	return nil
}
