package ilw_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aponysus/ilw/config"
	"github.com/aponysus/ilw/ilw"
	"github.com/aponysus/ilw/observe"
	"github.com/aponysus/ilw/store/sqlite"
	"github.com/aponysus/ilw/timeline"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func wsCollector(t *testing.T) (string, <-chan []byte) {
	t.Helper()
	frames := make(chan []byte, 32)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			frames <- data
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), frames
}

func TestFromConfig_WiresEverySink(t *testing.T) {
	url, frames := wsCollector(t)
	dbPath := filepath.Join(t.TempDir(), "ilw.db")

	cfg := config.Default()
	cfg.Level = "INFO"
	cfg.NoColor = true
	cfg.Metrics = true
	cfg.MetricsNamespace = "web-app"
	cfg.Tracing = true
	cfg.PersistPath = dbPath
	cfg.ReportURL = url

	var console bytes.Buffer
	reg := prometheus.NewRegistry()
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	defer tp.Shutdown(context.Background())
	extra := observe.NewRecorder()

	setup, err := ilw.FromConfig(context.Background(), cfg, ilw.Sinks{
		Console:        &console,
		Registerer:     reg,
		TracerProvider: tp,
		Extra:          map[string]observe.Observer{"recorder": extra},
	})
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}

	wantSinks := []string{"console", "metrics", "persist", "recorder", "report", "tracing"}
	names := setup.Registry.Names()
	if strings.Join(names, ",") != strings.Join(wantSinks, ",") {
		t.Fatalf("expected sinks %v, got %v", wantSinks, names)
	}

	log := setup.Logger
	log.Debug("filtered")
	log.Report().Persist().Info("kept")

	root := log.Persist().Timeline("fetch", timeline.Hooks{})
	root.Info("start")
	_ = root.Reject(errors.New("network-error"))

	if got := len(extra.Logs()); got != 1 {
		t.Fatalf("expected debug log to be filtered, got %d logs", got)
	}
	if !strings.Contains(console.String(), "kept") {
		t.Fatalf("expected console output, got %q", console.String())
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var sawLogs bool
	for _, mf := range families {
		if mf.GetName() == "web_app_logs_total" {
			sawLogs = true
		}
	}
	if !sawLogs {
		t.Fatal("expected web_app_logs_total to be registered")
	}

	if got := len(spans.Ended()); got != 1 {
		t.Fatalf("expected 1 span, got %d", got)
	}

	select {
	case frame := <-frames:
		if !strings.Contains(string(frame), `"type":"log"`) {
			t.Fatalf("unexpected frame %s", frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for report frame")
	}

	id := root.ID()
	if err := setup.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	store, err := sqlite.Open(dbPath)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer store.Close()
	marks, err := store.Marks(context.Background(), id)
	if err != nil || len(marks) != 1 {
		t.Fatalf("expected 1 persisted mark, got %d (%v)", len(marks), err)
	}
	logs, err := store.Logs(context.Background())
	if err != nil || len(logs) != 1 {
		t.Fatalf("expected 1 persisted log, got %d (%v)", len(logs), err)
	}
}

func TestFromConfig_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Level = "loud"
	_, err := ilw.FromConfig(context.Background(), cfg, ilw.Sinks{})
	var nerr *config.NormalizeError
	if !errors.As(err, &nerr) || nerr.Field != "level" {
		t.Fatalf("expected level NormalizeError, got %v", err)
	}
}

func TestFromConfig_DuplicateMetricsIsError(t *testing.T) {
	reg := prometheus.NewRegistry()
	cfg := config.Default()
	cfg.Console = false
	cfg.Metrics = true

	first, err := ilw.FromConfig(context.Background(), cfg, ilw.Sinks{Registerer: reg})
	if err != nil {
		t.Fatalf("first FromConfig: %v", err)
	}
	defer first.Close()
	if _, err := ilw.FromConfig(context.Background(), cfg, ilw.Sinks{Registerer: reg}); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}

func TestFromConfig_ReportDialFailureClosesStore(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	cfg := config.Default()
	cfg.Console = false
	cfg.PersistPath = filepath.Join(t.TempDir(), "ilw.db")
	cfg.ReportURL = "ws" + strings.TrimPrefix(srv.URL, "http")

	if _, err := ilw.FromConfig(context.Background(), cfg, ilw.Sinks{}); err == nil {
		t.Fatal("expected dial error")
	}
}

func TestFromConfig_NothingEnabled(t *testing.T) {
	cfg := config.Default()
	cfg.Console = false
	setup, err := ilw.FromConfig(context.Background(), cfg, ilw.Sinks{})
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	if len(setup.Registry.Names()) != 0 {
		t.Fatalf("expected no sinks, got %v", setup.Registry.Names())
	}
	setup.Logger.Info("dropped")
	if err := setup.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
