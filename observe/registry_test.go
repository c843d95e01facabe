package observe_test

import (
	"testing"

	"github.com/aponysus/ilw/observe"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := observe.NewRegistry()
	rec := observe.NewRecorder()
	if err := reg.RegisterE(" Memory ", rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok := reg.Get("memory")
	if !ok {
		t.Fatal("expected observer to be registered")
	}
	if got != observe.Observer(rec) {
		t.Fatal("expected registered recorder back")
	}
	if _, ok := reg.Get(""); ok {
		t.Fatal("expected empty name lookup to fail")
	}
}

func TestRegistry_RejectsInvalid(t *testing.T) {
	reg := observe.NewRegistry()
	var typedNil *observe.Recorder

	if err := reg.RegisterE("", observe.NoopObserver{}); err == nil {
		t.Fatal("expected error for empty name")
	}
	if err := reg.RegisterE("nil", typedNil); err == nil {
		t.Fatal("expected error for typed nil observer")
	}
	var nilReg *observe.Registry
	if err := nilReg.RegisterE("x", observe.NoopObserver{}); err == nil {
		t.Fatal("expected error for nil registry")
	}
	if _, ok := nilReg.Get("x"); ok {
		t.Fatal("expected nil registry lookup to fail")
	}

	defer func() {
		if recover() == nil {
			t.Fatal("expected MustRegister to panic")
		}
	}()
	reg.MustRegister(" ", observe.NoopObserver{})
}

func TestRegistry_ObserverCombinesInNameOrder(t *testing.T) {
	reg := observe.NewRegistry()
	var order []string
	reg.MustRegister("b", observe.Funcs{Mark: func(observe.MarkRecord) { order = append(order, "b") }})
	reg.MustRegister("a", observe.Funcs{Mark: func(observe.MarkRecord) { order = append(order, "a") }})

	reg.Observer().OnMark(observe.MarkRecord{})

	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("expected [a b], got %v", order)
	}
	if names := reg.Names(); len(names) != 2 {
		t.Fatalf("expected 2 names, got %v", names)
	}
}
