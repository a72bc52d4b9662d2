// The arbiter merges a scheduled lighting program with manual overrides
// into one resolved state per relay: one topq override table per relay,
// resolved every pass.

package relaybank

import (
	"github.com/jamesmunns-fleet/fleetradio/internal/icd"
	"github.com/jamesmunns-fleet/fleetradio/internal/timer"
	"github.com/jamesmunns-fleet/fleetradio/internal/topq"
)

// Arbitration priorities: a manual override always outranks the scheduled
// program.
const (
	PriorityScheduled int32 = 0
	PriorityOverride  int32 = 1
)

// ScheduleHoldSec is how long a scheduled-program entry stays live without
// being refreshed. The program re-inserts its desired state every resolve
// pass, so this only has to outlast a few missed passes before the table
// falls back to whatever else is live.
const ScheduleHoldSec = 15

// Arbiter owns one override table per relay and applies the winning entry
// to the bank on every Resolve pass.
type Arbiter struct {
	bank   *Bank
	timer  timer.RollingTimer
	tables [4]*topq.TopQ[icd.RelayState]
}

// NewArbiter wraps bank with an empty override table per relay.
func NewArbiter(bank *Bank, tick timer.RollingTimer) *Arbiter {
	a := &Arbiter{bank: bank, timer: tick}
	for i := range a.tables {
		a.tables[i] = topq.New[icd.RelayState]()
	}
	return a
}

func (a *Arbiter) insert(idx icd.RelayIdx, state icd.RelayState, priority int32, holdSec uint32) {
	now := a.timer.CurrentTick()
	expiry := now + holdSec*timer.TicksPerSecond // wrapping add
	a.tables[idx].Insert(state, priority, expiry, now)
}

// Schedule records the lighting program's desired state for idx. Meant to be
// re-asserted on every program evaluation pass; the entry expires after
// ScheduleHoldSec if the program stops refreshing it.
func (a *Arbiter) Schedule(idx icd.RelayIdx, state icd.RelayState) {
	a.insert(idx, state, PriorityScheduled, ScheduleHoldSec)
}

// Override records a manual command for idx that outranks the scheduled
// program for holdSec seconds, after which the program resumes control.
// Overrides arrive from the gateway, so each one also counts as a relay
// command for the bank's dead-man tracking.
func (a *Arbiter) Override(idx icd.RelayIdx, state icd.RelayState, holdSec uint32) {
	a.bank.markComms()
	a.insert(idx, state, PriorityOverride, holdSec)
}

// Resolve applies each relay's winning live entry to the bank. Anti-flap
// denials are tolerated silently — the arbiter keeps re-asserting the
// winning state every pass, so the relay converges once the dwell window
// opens. Relays with no live entry are left alone; the dead-man failsafe
// is the bank's own CheckTimeout, not the arbiter's concern.
func (a *Arbiter) Resolve() {
	now := a.timer.CurrentTick()
	for i := range a.tables {
		state, ok := a.tables[i].GetTop(now)
		if !ok {
			continue
		}
		if err := a.bank.applyRelay(icd.RelayIdx(i), state); err != nil {
			if _, denied := err.(ErrAntiFlap); !denied {
				log.Warn("arbiter set-relay failed", "relay", i, "err", err)
			}
		}
	}
}

// CheckTimeout runs the bank's dead-man check and, if it fired, empties
// every override table — otherwise a still-live entry would re-assert On
// on the next resolve pass and defeat the failsafe.
func (a *Arbiter) CheckTimeout() {
	if !a.bank.CheckTimeout() {
		return
	}
	for i := range a.tables {
		a.tables[i] = topq.New[icd.RelayState]()
	}
}
