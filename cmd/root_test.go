package cmd

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/gameresult-crawler/internal/app"
	"github.com/JakeFAU/gameresult-crawler/internal/config"
	"github.com/JakeFAU/gameresult-crawler/internal/notify"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestMissingConfigFile(t *testing.T) {
	_, err := execute(t, "probe", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "load config")
}

func TestProbePrintsAcquiredResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tai_xiu" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result": "tai", "session_id": "round-9", "timestamp": "2024-01-01T00:00:00"}`))
	}))
	defer srv.Close()

	path := writeConfig(t, `
site:
  base_url: `+srv.URL+`
browser:
  enabled: false
http:
  requests_per_second: 1000
  burst: 10
  timeout: 5s
logging:
  level: error
`)

	out, err := execute(t, "probe", "--config", path, "--game", "tai_xiu")
	require.NoError(t, err)
	require.Contains(t, out, "tai_xiu")
	require.Contains(t, out, "round-9")
	require.Contains(t, out, "OK")
}

func TestProbeRejectsUnknownGame(t *testing.T) {
	path := writeConfig(t, "browser:\n  enabled: false\nlogging:\n  level: error\n")
	_, err := execute(t, "probe", "--config", path, "--game", "roulette")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown game type")
}

func TestNotifyTestDeliversThroughWebhook(t *testing.T) {
	hits := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		select {
		case hits <- struct{}{}:
		default:
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	path := writeConfig(t, `
browser:
  enabled: false
notify:
  timeout: 5s
  webhook:
    url: `+srv.URL+`
logging:
  level: error
`)

	out, err := execute(t, "notify-test", "--config", path)
	require.NoError(t, err)
	require.Contains(t, out, "webhook")
	require.Contains(t, out, "OK")
	select {
	case <-hits:
	default:
		t.Fatal("webhook was not called")
	}
}

func TestNotifyTestWithoutChannels(t *testing.T) {
	path := writeConfig(t, "browser:\n  enabled: false\nlogging:\n  level: error\n")
	_, err := execute(t, "notify-test", "--config", path)
	require.EqualError(t, err, "no notification channels configured")
}

func TestProbeReportsAppFactoryFailure(t *testing.T) {
	orig := newApp
	newApp = func(context.Context, config.Config, *zap.Logger) (*app.App, error) {
		return nil, errors.New("store unavailable")
	}
	t.Cleanup(func() { newApp = orig })

	path := writeConfig(t, "browser:\n  enabled: false\nlogging:\n  level: error\n")
	_, err := execute(t, "probe", "--config", path)
	require.ErrorContains(t, err, "initialize application services: store unavailable")
}

func TestRenderOutcomes(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	renderOutcomes(&buf, []notify.Outcome{
		{Channel: "telegram", Duration: 12 * time.Millisecond},
		{Channel: "email", Err: errors.New("dial tcp: refused")},
	})
	out := buf.String()
	require.Contains(t, out, "CHANNEL")
	require.Contains(t, out, "telegram")
	require.Contains(t, out, "FAILED")
	require.Contains(t, out, "dial tcp: refused")
}

func TestResolveRuntimeRequiresPreRun(t *testing.T) {
	t.Parallel()

	_, err := resolveRuntime(context.Background())
	require.Error(t, err)
}
