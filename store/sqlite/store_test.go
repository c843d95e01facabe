package sqlite_test

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aponysus/ilw/clock"
	"github.com/aponysus/ilw/observe"
	"github.com/aponysus/ilw/store/sqlite"
	"github.com/aponysus/ilw/timeline"
	"github.com/rs/zerolog"
)

func openStore(t *testing.T, opts ...sqlite.Option) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "ilw.db"), opts...)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func TestOpen_RequiresPath(t *testing.T) {
	if _, err := sqlite.Open("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestOpen_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ilw.db")
	store, err := sqlite.Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.SaveSettlement(context.Background(), observe.SettleRecord{
		Timeline: "doc", TimelineID: "id-1", Outcome: observe.OutcomeResolved,
	}); err != nil {
		t.Fatalf("save settlement: %v", err)
	}
	_ = store.Close()

	store, err = sqlite.Open(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer store.Close()
	got, err := store.Settlements(context.Background(), "id-1")
	if err != nil {
		t.Fatalf("settlements: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 settlement after reopen, got %d", len(got))
	}
}

func TestStore_PersistsFlaggedMarksAndAllSettlements(t *testing.T) {
	store := openStore(t)
	clk := clock.NewManual(time.Unix(1_700_000_000, 0))
	eng := timeline.NewEngine(
		timeline.WithObserver(store),
		timeline.WithClock(clk),
		timeline.WithIDGenerator(func() string { return "tl-1" }),
	)

	quiet := eng.Create("quiet", timeline.Hooks{})
	quiet.Info("not-stored")
	_ = quiet.Resolve()

	persisted := eng.With(
		timeline.WithFlags(observe.Flags{Persist: true}),
		timeline.WithMeta(map[string]any{"page": "home"}),
		timeline.WithIDGenerator(func() string { return "tl-2" }),
	)
	root := persisted.Create("fetch", timeline.Hooks{})
	kids, err := root.All(2)
	if err != nil {
		t.Fatalf("fork: %v", err)
	}
	clk.Advance(40 * time.Millisecond)
	kids[0].Info("first-byte", timeline.WithPayload(map[string]any{"bytes": 512}))
	_ = kids[0].Resolve()
	clk.Advance(10 * time.Millisecond)
	kids[1].Error("fetchFailed", timeline.WithMessage("network-error"))
	_ = kids[1].Reject(errors.New("network-error"))

	ctx := context.Background()
	if marks, err := store.Marks(ctx, "tl-1"); err != nil || len(marks) != 0 {
		t.Fatalf("expected no marks for unflagged timeline, got %d (%v)", len(marks), err)
	}
	if settled, err := store.Settlements(ctx, "tl-1"); err != nil || len(settled) != 1 {
		t.Fatalf("expected unflagged settlement to be stored, got %d (%v)", len(settled), err)
	}

	marks, err := store.Marks(ctx, "tl-2")
	if err != nil {
		t.Fatalf("marks: %v", err)
	}
	if len(marks) != 2 {
		t.Fatalf("expected 2 marks, got %d", len(marks))
	}
	first := marks[0]
	if first.Name != "first-byte" || first.Branch != "0" || first.Duration != 40*time.Millisecond {
		t.Fatalf("unexpected first mark: %+v", first)
	}
	payload, ok := first.Payload.(map[string]any)
	if !ok || payload["bytes"] != float64(512) {
		t.Fatalf("unexpected payload: %#v", first.Payload)
	}
	meta, ok := first.Meta.(map[string]any)
	if !ok || meta["page"] != "home" {
		t.Fatalf("unexpected meta: %#v", first.Meta)
	}
	if marks[1].Level != observe.LevelError || marks[1].Message != "network-error" {
		t.Fatalf("unexpected second mark: %+v", marks[1])
	}

	settled, err := store.Settlements(ctx, "tl-2")
	if err != nil {
		t.Fatalf("settlements: %v", err)
	}
	if len(settled) != 3 {
		t.Fatalf("expected 3 settlements (two children, root), got %d", len(settled))
	}
	last := settled[2]
	if !last.IsRoot() || last.Outcome != observe.OutcomeRejected || last.ReasonString() != "network-error" {
		t.Fatalf("unexpected root settlement: %+v", last)
	}
	if last.Duration != 50*time.Millisecond {
		t.Fatalf("expected root duration 50ms, got %v", last.Duration)
	}
}

func TestStore_LogsAndEvents(t *testing.T) {
	store := openStore(t)
	now := time.Unix(1_700_000_000, 123).UTC()

	store.OnLog(observe.LogRecord{Level: observe.LevelWarn, Messages: []any{"hello", 2}, Time: now})
	store.OnLog(observe.LogRecord{Level: observe.LevelInfo, Messages: []any{"kept"}, Time: now, Flags: observe.Flags{Persist: true}})
	store.OnEvent(observe.EventRecord{Level: observe.LevelInfo, Name: "click", Detail: "buy", Time: now, Flags: observe.Flags{Persist: true}})
	store.OnEvent(observe.EventRecord{Level: observe.LevelDebug, Name: "scroll", Time: now, Flags: observe.Flags{Persist: true}})

	ctx := context.Background()
	logs, err := store.Logs(ctx)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if len(logs) != 1 || len(logs[0].Messages) != 1 || logs[0].Messages[0] != "kept" {
		t.Fatalf("unexpected logs: %+v", logs)
	}
	if !logs[0].Time.Equal(now) {
		t.Fatalf("expected time %v, got %v", now, logs[0].Time)
	}

	all, err := store.Events(ctx, "")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 events, got %d", len(all))
	}
	clicks, err := store.Events(ctx, "click")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(clicks) != 1 || clicks[0].Detail != "buy" {
		t.Fatalf("unexpected click events: %+v", clicks)
	}
}

func TestStore_UnencodablePayloadFallsBackToText(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	err := store.SaveMark(ctx, observe.MarkRecord{
		Name: "odd", TimelineID: "tl", Timeline: "x", Payload: make(chan int),
	})
	if err != nil {
		t.Fatalf("save mark: %v", err)
	}
	marks, err := store.Marks(ctx, "tl")
	if err != nil || len(marks) != 1 {
		t.Fatalf("expected 1 mark, got %d (%v)", len(marks), err)
	}
	if _, ok := marks[0].Payload.(string); !ok {
		t.Fatalf("expected string payload, got %T", marks[0].Payload)
	}
}

func TestStore_WriteFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "ilw.db"), sqlite.WithLogger(zerolog.New(&buf)))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	_ = store.Close()

	store.OnSettle(observe.SettleRecord{Timeline: "x", TimelineID: "id"})
	if !strings.Contains(buf.String(), `"record":"settlement"`) {
		t.Fatalf("expected logged failure, got %q", buf.String())
	}
}

func TestStore_CanceledContext(t *testing.T) {
	store := openStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := store.SaveEvent(ctx, observe.EventRecord{Name: "x"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := store.SaveEvent(context.Background(), observe.EventRecord{}); err == nil {
		t.Fatal("expected error for unnamed event")
	}
}
