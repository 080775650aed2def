package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ramonfullstack/automation-scripts/internal/audit"
	"github.com/ramonfullstack/automation-scripts/internal/config"
	"github.com/ramonfullstack/automation-scripts/internal/retry"
)

const sessionTestTimeout = 45 * time.Second

// requireChrome skips when no browser binary chromedp knows about is installed.
func requireChrome(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("browser tests are skipped in short mode")
	}
	for _, name := range []string{"headless-shell", "chromium", "chromium-browser", "google-chrome", "google-chrome-stable"} {
		if _, err := exec.LookPath(name); err == nil {
			return
		}
	}
	t.Skip("no Chrome binary found")
}

const loginPage = `<html><body>
<form onsubmit="event.preventDefault(); go();">
  <label for="u">Usuário</label><input id="u">
  <label for="p">Senha</label><input id="p" type="password">
  <button>Entrar</button>
</form>
<script>
localStorage.setItem("access_token", "stored-value");
function go() {
  fetch("/api/InventoryStock/GetInventoryStockSummary", {
    method: "POST",
    headers: {
      "Authorization": "Bearer " + document.getElementById("u").value + "-" + document.getElementById("p").value,
      "x-tenantid": "tenant-42"
    }
  });
}
</script>
</body></html>`

func TestSession_LoginObserveSnapshot(t *testing.T) {
	requireChrome(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, loginPage)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), sessionTestTimeout)
	defer cancel()

	m, err := NewManager(ctx, zap.NewNop(), config.BrowserConfig{
		Headless:   true,
		Args:       []string{"--no-sandbox"},
		Navigation: retry.Policy{MaxAttempts: 1},
	})
	require.NoError(t, err)
	defer func() { _ = m.Shutdown(context.Background()) }()

	s, err := m.NewSession(ctx)
	require.NoError(t, err)

	rec := audit.NewRecorder(audit.RecorderOptions{Label: "test", Target: audit.DefaultTargetURL})
	stop := s.OnRequest(rec.Observe)
	defer stop()

	require.NoError(t, s.Navigate(ctx, server.URL+"/", 15*time.Second))
	require.NoError(t, s.Login(ctx, "alice", "correct-horse-battery", config.LoginSelectors{
		Username: []string{"#missing", "label:usu[aá]rio"},
		Password: []string{"label:senha"},
		Submit:   []string{"text:entrar"},
	}))

	filter := audit.TargetFilter{Matcher: audit.NewMatcher(audit.DefaultTargetURL, audit.DefaultTargetHints), Method: "POST"}
	assert.Eventually(t, func() bool {
		return len(filter.Select(rec.Hits())) == 1
	}, 10*time.Second, 100*time.Millisecond)

	target := filter.Select(rec.Freeze())[0]
	assert.Equal(t, "alice-correct-horse-battery", target.Token())
	assert.Equal(t, "tenant-42", target.Tenant())

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "stored-value", snap.LocalStorage["access_token"])
	assert.NotNil(t, snap.SessionStorage)

	require.NoError(t, s.Close(ctx))
	require.NoError(t, s.Close(ctx), "closing twice is a no-op")
}

func TestSession_LoginFieldMissing(t *testing.T) {
	requireChrome(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body><p>maintenance</p></body></html>")
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), sessionTestTimeout)
	defer cancel()

	m, err := NewManager(ctx, zap.NewNop(), config.BrowserConfig{Headless: true, Args: []string{"--no-sandbox"}})
	require.NoError(t, err)
	defer func() { _ = m.Shutdown(context.Background()) }()

	s, err := m.NewSession(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Navigate(ctx, server.URL, 15*time.Second))

	err = s.Login(ctx, "u", "p", config.LoginSelectors{Username: []string{"input#user"}})
	assert.ErrorIs(t, err, ErrElementNotFound)
}
