package memo

import (
	"errors"
	"testing"
	"time"
)

func TestLockoutGuard_BlocksAfterFailure(t *testing.T) {
	g := NewLockoutGuard(16, time.Hour)

	if err := g.Check("fp-1"); err != nil {
		t.Fatalf("Check() before any failure = %v, want nil", err)
	}

	g.RecordFailure("fp-1")

	if err := g.Check("fp-1"); !errors.Is(err, ErrLockedOut) {
		t.Fatalf("Check() after failure = %v, want ErrLockedOut", err)
	}
	if err := g.Check("fp-2"); err != nil {
		t.Errorf("Check() for unrelated fingerprint = %v, want nil", err)
	}
}

func TestLockoutGuard_LapsesWithWindow(t *testing.T) {
	clock := newFakeClock()
	g := NewLockoutGuard(16, time.Hour)
	g.now = clock.Now

	g.RecordFailure("fp-1")
	if err := g.Check("fp-1"); !errors.Is(err, ErrLockedOut) {
		t.Fatalf("Check() within window = %v, want ErrLockedOut", err)
	}

	clock.Advance(30 * time.Minute)
	if err := g.Check("fp-1"); !errors.Is(err, ErrLockedOut) {
		t.Fatalf("Check() still within window = %v, want ErrLockedOut", err)
	}

	clock.Advance(31 * time.Minute)
	if err := g.Check("fp-1"); err != nil {
		t.Fatalf("Check() after window lapsed = %v, want nil (implicitly forgotten)", err)
	}
}

func TestLockoutGuard_IndependentInstances(t *testing.T) {
	g1 := NewLockoutGuard(16, time.Hour)
	g2 := NewLockoutGuard(16, time.Hour)

	g1.RecordFailure("fp-1")

	if err := g1.Check("fp-1"); !errors.Is(err, ErrLockedOut) {
		t.Errorf("g1.Check() = %v, want ErrLockedOut", err)
	}
	if err := g2.Check("fp-1"); err != nil {
		t.Errorf("g2.Check() = %v, want nil (guards must not share state)", err)
	}
}

func TestNewLockoutGuard_Defaults(t *testing.T) {
	g := NewLockoutGuard(0, 0)

	if g.window != DefaultLockoutWindow {
		t.Errorf("window = %v, want %v", g.window, DefaultLockoutWindow)
	}
	g.RecordFailure("fp")
	if err := g.Check("fp"); !errors.Is(err, ErrLockedOut) {
		t.Errorf("Check() = %v, want ErrLockedOut", err)
	}
}
