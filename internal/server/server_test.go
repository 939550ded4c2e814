package server

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/krittin/tallyscan/internal/config"
	"github.com/krittin/tallyscan/internal/gateway"
	"github.com/krittin/tallyscan/internal/telemetry"
)

func testConfigManager(t *testing.T) *config.Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := config.WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	mgr, err := config.NewManager(path)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return mgr
}

func TestNew(t *testing.T) {
	t.Run("requires config manager", func(t *testing.T) {
		if _, err := New(Config{}); err == nil {
			t.Error("New() without config manager should fail")
		}
	})

	t.Run("builds with injected gateway and sink", func(t *testing.T) {
		srv, err := New(Config{
			Port:          "0",
			ConfigManager: testConfigManager(t),
			Gateway:       gateway.NewMockClient(),
			Sink:          telemetry.NewMemorySink(),
		})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if srv.IsRunning() {
			t.Error("server should not be running before Start")
		}
		if srv.Orchestrator() == nil {
			t.Error("orchestrator should be wired")
		}
	})

	t.Run("defaults flow from config", func(t *testing.T) {
		mgr := testConfigManager(t)
		srv, err := New(Config{
			ConfigManager: mgr,
			Gateway:       gateway.NewMockClient(),
			Sink:          telemetry.NewMemorySink(),
		})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		defaults := srv.Orchestrator().Defaults()
		want := mgr.Get().Defaults
		if defaults.Model != want.Model || defaults.MaxTokens != want.MaxTokens {
			t.Errorf("orchestrator defaults %+v do not match config %+v", defaults, want)
		}
	})
}

func TestRequireInit(t *testing.T) {
	srv, err := New(Config{
		ConfigManager: testConfigManager(t),
		Gateway:       gateway.NewMockClient(),
		Sink:          telemetry.NewMemorySink(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	called := false
	handler := srv.requireInit(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest("POST", "/extract", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 before Start", rec.Code)
	}
	if called {
		t.Error("handler must not run before initialization")
	}
}
