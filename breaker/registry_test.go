package breaker

import (
	"testing"
	"time"

	"github.com/goliatone/go-integrations/core"
)

func TestRegistry_GetCreatesOncePerService(t *testing.T) {
	registry := NewRegistry(core.DefaultConfig().Circuit)
	first := registry.Get("Slack")
	second := registry.Get(" slack ")
	if first != second {
		t.Fatalf("expected the same circuit for normalized names")
	}
	if first.Name() != "slack" {
		t.Fatalf("expected normalized name, got %q", first.Name())
	}
	registry.Get("google")
	names := registry.Names()
	if len(names) != 2 || names[0] != "google" || names[1] != "slack" {
		t.Fatalf("expected sorted names, got %#v", names)
	}
}

func TestRegistry_UsesPerServiceOverrides(t *testing.T) {
	cfg := core.DefaultConfig().Circuit
	cfg.Services = map[string]core.CircuitSettings{
		"google": {FailureThreshold: 2, OpenTimeoutMs: 5_000},
	}
	registry := NewRegistry(cfg)

	google := registry.Get("google").Config()
	if google.FailureThreshold != 2 || google.SuccessThreshold != 2 || google.OpenTimeout != 5*time.Second {
		t.Fatalf("unexpected google config: %#v", google)
	}
	slack := registry.Get("slack").Config()
	if slack.FailureThreshold != 5 || slack.OpenTimeout != time.Minute {
		t.Fatalf("unexpected slack config: %#v", slack)
	}
}

func TestRegistry_SnapshotsAndReset(t *testing.T) {
	var transitions []Transition
	registry := NewRegistry(core.CircuitConfig{Preset: core.CircuitPresetQuick},
		WithStateChangeHook(func(tr Transition) { transitions = append(transitions, tr) }),
	)
	slack := registry.Get("slack")
	for i := 0; i < 3; i++ {
		slack.RecordFailure()
	}
	registry.Get("google").RecordFailure()

	snapshots := registry.Snapshots()
	if len(snapshots) != 2 {
		t.Fatalf("expected two snapshots, got %d", len(snapshots))
	}
	if snapshots[1].Service != "slack" || snapshots[1].State != StateOpen {
		t.Fatalf("expected slack open, got %#v", snapshots[1])
	}
	if snapshots[0].FailureCount != 1 {
		t.Fatalf("expected google failure count 1, got %d", snapshots[0].FailureCount)
	}

	if err := registry.Reset("slack"); err != nil {
		t.Fatalf("reset slack: %v", err)
	}
	if slack.State() != StateClosed {
		t.Fatalf("expected slack closed after reset")
	}
	if err := registry.Reset("unknown"); err == nil {
		t.Fatalf("expected reset of unknown circuit to fail")
	}

	registry.ResetAll()
	if registry.Get("google").Snapshot().FailureCount != 0 {
		t.Fatalf("expected reset all to clear google counters")
	}
	if len(transitions) != 2 {
		t.Fatalf("expected open and close transitions for slack, got %#v", transitions)
	}
}
