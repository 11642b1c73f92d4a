package task

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestSupervisor_StopWaitsForAllTeardowns(t *testing.T) {
	const n = 8

	sup := NewSupervisor("sensors")
	runners := make([]*countingRunner, n)
	for i := range runners {
		runners[i] = &countingRunner{}
		sup.Add(fmt.Sprintf("sensor-%d", i), runners[i])
	}

	if err := sup.Start(); err != nil {
		t.Fatalf("Failed to start supervisor: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	if err := sup.Stop(); err != nil {
		t.Errorf("Expected clean stop, got %v", err)
	}

	for i, r := range runners {
		if got := r.teardowns.Load(); got != 1 {
			t.Errorf("Runner %d: expected 1 teardown before Stop returned, got %d", i, got)
		}
	}
	for _, tk := range sup.Tasks() {
		select {
		case <-tk.Done():
		default:
			t.Errorf("Task %s still running after Stop", tk.Name())
		}
	}

	if err := sup.Stop(); err != nil {
		t.Errorf("Expected second Stop to return the same nil error, got %v", err)
	}
	for i, r := range runners {
		if got := r.teardowns.Load(); got != 1 {
			t.Errorf("Runner %d: teardown ran again on second Stop (%d)", i, got)
		}
	}
}

func TestSupervisor_FailureIsIsolated(t *testing.T) {
	sup := NewSupervisor("consumers")

	healthy := &countingRunner{}
	faulty := &countingRunner{panicOn: true}
	sup.Add("telemetry", healthy)
	failing := sup.Add("payload", faulty)

	if err := sup.Start(); err != nil {
		t.Fatalf("Failed to start supervisor: %v", err)
	}

	select {
	case <-failing.Done():
	case <-time.After(time.Second):
		t.Fatal("Faulty task did not terminate")
	}

	before := healthy.updates.Load()
	time.Sleep(20 * time.Millisecond)
	if after := healthy.updates.Load(); after <= before {
		t.Errorf("Healthy task stopped updating after a sibling fault (%d -> %d)", before, after)
	}

	err := sup.Stop()
	if !errors.Is(err, ErrPanic) {
		t.Errorf("Expected joined error to contain ErrPanic, got %v", err)
	}
	if n := healthy.teardowns.Load(); n != 1 {
		t.Errorf("Expected healthy teardown once, got %d", n)
	}
	if n := faulty.teardowns.Load(); n != 1 {
		t.Errorf("Expected faulty teardown once, got %d", n)
	}
}

func TestSupervisor_ScopeStopsOnError(t *testing.T) {
	sup := NewSupervisor("scoped")
	r := &countingRunner{}
	sup.Add("sensor", r)

	want := errors.New("radio failed to open")
	err := sup.Scope(func() error {
		time.Sleep(5 * time.Millisecond)
		return want
	})

	if !errors.Is(err, want) {
		t.Errorf("Expected %v, got %v", want, err)
	}
	if n := r.teardowns.Load(); n != 1 {
		t.Errorf("Expected teardown once after scope exit, got %d", n)
	}
	if err := sup.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("Expected ErrAlreadyStarted, got %v", err)
	}
}

func TestSupervisor_ScopeStopsOnPanic(t *testing.T) {
	sup := NewSupervisor("scoped")
	r := &countingRunner{}
	sup.Add("sensor", r)

	func() {
		defer func() { _ = recover() }()
		_ = sup.Scope(func() error {
			panic("operator pulled the plug")
		})
	}()

	if n := r.teardowns.Load(); n != 1 {
		t.Errorf("Expected teardown once after panic in scope, got %d", n)
	}
}
