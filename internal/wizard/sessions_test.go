package wizard_test

import (
	"errors"
	"testing"
	"time"

	"bountywizard/internal/wizard"
)

func TestSessionsOwnership(t *testing.T) {
	reg := wizard.NewSessions(wizard.SessionsConfig{})
	id, store := reg.Create("alice")
	got, err := reg.Get(id, "alice")
	if err != nil || got != store {
		t.Fatalf("get own session: %v", err)
	}
	if _, err := reg.Get(id, "bob"); !errors.Is(err, wizard.ErrSessionNotFound) {
		t.Fatalf("foreign actor should not see session, got %v", err)
	}
	if err := reg.Delete(id, "bob"); !errors.Is(err, wizard.ErrSessionNotFound) {
		t.Fatalf("foreign delete should fail, got %v", err)
	}
	if err := reg.Delete(id, "alice"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if reg.Len() != 0 {
		t.Fatalf("expected empty registry")
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	reg := wizard.NewSessions(wizard.SessionsConfig{})
	_, a := reg.Create("alice")
	_, b := reg.Create("alice")
	if err := a.SetField("title", "first"); err != nil {
		t.Fatal(err)
	}
	if _, ok := b.Field("title"); ok {
		t.Fatalf("sessions share state")
	}
}

func TestSessionsSweep(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	reg := wizard.NewSessions(wizard.SessionsConfig{
		TTL: time.Minute,
		Now: func() time.Time { return clock },
	})
	stale, _ := reg.Create("alice")
	clock = clock.Add(50 * time.Second)
	fresh, _ := reg.Create("alice")

	if n := reg.Sweep(clock.Add(30 * time.Second)); n != 1 {
		t.Fatalf("expected one expired session, got %d", n)
	}
	if _, err := reg.Get(stale, "alice"); !errors.Is(err, wizard.ErrSessionNotFound) {
		t.Fatalf("stale session should be gone")
	}
	if _, err := reg.Get(fresh, "alice"); err != nil {
		t.Fatalf("fresh session should survive: %v", err)
	}
}

func TestSweepWithoutTTLKeepsEverything(t *testing.T) {
	reg := wizard.NewSessions(wizard.SessionsConfig{})
	reg.Create("alice")
	if n := reg.Sweep(time.Now().Add(24 * time.Hour)); n != 0 {
		t.Fatalf("expected no sweep without ttl, got %d", n)
	}
}
