package relaybank

import (
	"testing"

	"github.com/jamesmunns-fleet/fleetradio/internal/icd"
	"github.com/jamesmunns-fleet/fleetradio/internal/timer"
)

// TestOverrideOutranksSchedule checks a manual override wins the resolve
// pass even when the scheduled program keeps asserting the opposite state.
func TestOverrideOutranksSchedule(t *testing.T) {
	clk := timer.NewManual(0)
	b, fakes := newBank(clk)
	a := NewArbiter(b, clk)

	a.Schedule(icd.Relay0, icd.RelayOff)
	a.Override(icd.Relay0, icd.RelayOn, 60)
	a.Resolve()

	if fakes[0].v != 0 {
		t.Fatalf("expected override to drive relay 0 On (low), got %d", fakes[0].v)
	}
}

// TestScheduleResumesAfterOverrideExpires lets the override's hold lapse
// and checks the refreshed scheduled entry takes back control.
func TestScheduleResumesAfterOverrideExpires(t *testing.T) {
	clk := timer.NewManual(0)
	b, fakes := newBank(clk)
	a := NewArbiter(b, clk)

	a.Schedule(icd.Relay0, icd.RelayOff)
	a.Override(icd.Relay0, icd.RelayOn, 10)
	a.Resolve()
	if fakes[0].v != 0 {
		t.Fatalf("expected relay 0 On under override, got %d", fakes[0].v)
	}

	// Past the override hold; the program re-asserts Off on its next pass,
	// as the real relay_periodic task does every second.
	clk.Set(11 * timer.TicksPerSecond)
	a.Schedule(icd.Relay0, icd.RelayOff)
	a.Resolve()

	if fakes[0].v != 1 {
		t.Fatalf("expected schedule to drive relay 0 Off (high) after override expiry, got %d", fakes[0].v)
	}
}

// TestResolveConvergesPastAntiFlap checks a denied toggle inside the dwell
// window is retried by a later pass rather than lost.
func TestResolveConvergesPastAntiFlap(t *testing.T) {
	clk := timer.NewManual(0)
	b, fakes := newBank(clk)
	a := NewArbiter(b, clk)

	a.Override(icd.Relay1, icd.RelayOn, 120)
	a.Resolve()
	if fakes[1].v != 0 {
		t.Fatalf("expected relay 1 On, got %d", fakes[1].v)
	}

	// Inside the dwell window the opposite override is recorded but the
	// GPIO can't move yet.
	clk.Set(1 * timer.TicksPerSecond)
	a.Override(icd.Relay1, icd.RelayOff, 120)
	a.Resolve()
	if fakes[1].v != 0 {
		t.Fatalf("expected relay 1 still On inside dwell window, got %d", fakes[1].v)
	}

	// Once the window opens, a later pass applies the pending winner.
	clk.Set(4 * timer.TicksPerSecond)
	a.Resolve()
	if fakes[1].v != 1 {
		t.Fatalf("expected relay 1 Off after dwell window opened, got %d", fakes[1].v)
	}
}

// TestResolveDoesNotPetDeadMan checks that locally re-asserted states can't
// keep the comms dead-man alive: only Override (a command from the gateway)
// counts, so a silent link still forces everything Off.
func TestResolveDoesNotPetDeadMan(t *testing.T) {
	clk := timer.NewManual(0)
	b, fakes := newBank(clk)
	a := NewArbiter(b, clk)

	a.Override(icd.Relay0, icd.RelayOn, 3600)
	a.Resolve()
	if fakes[0].v != 0 {
		t.Fatalf("expected relay 0 On, got %d", fakes[0].v)
	}

	// The arbiter keeps resolving locally, but no new command arrives.
	clk.Set(150 * timer.TicksPerSecond)
	a.Resolve()
	clk.Set(301 * timer.TicksPerSecond)
	a.Resolve()
	a.CheckTimeout()

	if fakes[0].v != 1 {
		t.Fatalf("expected dead-man to force relay 0 Off despite local resolves, got %d", fakes[0].v)
	}

	// The tables were emptied when the dead-man fired, so later passes
	// can't resurrect the stale override.
	clk.Set(310 * timer.TicksPerSecond)
	a.Resolve()
	if fakes[0].v != 1 {
		t.Fatalf("expected relay 0 to stay Off after dead-man cleared the tables, got %d", fakes[0].v)
	}
}
