package health

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-go-golems/stackctl/pkg/compose"
	"github.com/stretchr/testify/require"
)

func TestNewProbe_Kinds(t *testing.T) {
	probe, err := NewProbe(&compose.HealthCheck{Test: []string{"CMD", "true"}})
	require.NoError(t, err)
	require.IsType(t, &execProbe{}, probe)

	probe, err = NewProbe(&compose.HealthCheck{Test: []string{"CMD-SHELL", "exit 0"}})
	require.NoError(t, err)
	require.IsType(t, &execProbe{}, probe)

	probe, err = NewProbe(&compose.HealthCheck{Test: []string{"HTTP", "http://localhost:2333/version"}})
	require.NoError(t, err)
	require.IsType(t, &httpProbe{}, probe)

	probe, err = NewProbe(&compose.HealthCheck{Test: []string{"TCP", "127.0.0.1:2333"}})
	require.NoError(t, err)
	require.IsType(t, &tcpProbe{}, probe)
}

func TestNewProbe_Errors(t *testing.T) {
	_, err := NewProbe(nil)
	require.Error(t, err)

	_, err = NewProbe(&compose.HealthCheck{})
	require.Error(t, err)

	_, err = NewProbe(&compose.HealthCheck{Test: []string{"CMD"}})
	require.Error(t, err)

	_, err = NewProbe(&compose.HealthCheck{Test: []string{"HTTP"}})
	require.Error(t, err)

	_, err = NewProbe(&compose.HealthCheck{Test: []string{"TELNET", "x"}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "TELNET")
}

func TestExecProbe(t *testing.T) {
	probe, err := NewProbe(&compose.HealthCheck{Test: []string{"CMD-SHELL", "exit 0"}})
	require.NoError(t, err)
	require.NoError(t, probe.Check(context.Background()))

	probe, err = NewProbe(&compose.HealthCheck{Test: []string{"CMD-SHELL", "echo broken; exit 1"}})
	require.NoError(t, err)
	err = probe.Check(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "broken")
}

func TestHTTPProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/healthy":
			w.WriteHeader(http.StatusNoContent)
		case "/get-only":
			if r.Method == http.MethodHead {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	probe := &httpProbe{url: srv.URL + "/healthy"}
	require.NoError(t, probe.Check(context.Background()))

	probe = &httpProbe{url: srv.URL + "/get-only"}
	require.NoError(t, probe.Check(context.Background()))

	probe = &httpProbe{url: srv.URL + "/boom"}
	require.Error(t, probe.Check(context.Background()))

	probe = &httpProbe{url: "http://127.0.0.1:1/unreachable"}
	require.Error(t, probe.Check(context.Background()))
}

func TestTCPProbe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	probe := &tcpProbe{address: ln.Addr().String()}
	require.NoError(t, probe.Check(context.Background()))

	require.NoError(t, ln.Close())
	require.Error(t, probe.Check(context.Background()))
}
