// Package relaybank drives the four physical relay lines: anti-flap
// toggle denial, dead-man failsafe on communication loss, and lifetime
// seconds-in-state accounting.
//
// The lines are active-low: driving a pin low turns its relay On, and
// startup drives every pin high before anything else runs.
package relaybank

import (
	"github.com/jamesmunns-fleet/fleetradio/internal/fleetlog"
	"github.com/jamesmunns-fleet/fleetradio/internal/icd"
	"github.com/jamesmunns-fleet/fleetradio/internal/timer"
)

var log = fleetlog.For("relaybank")

// MinToggleDelta is the anti-flap dwell time.
const MinToggleDelta = 3 * timer.TicksPerSecond

// CommsTimeout is the dead-man window: five minutes without a relay
// command forces every relay Off.
const CommsTimeout = 300 * timer.TicksPerSecond

// ErrAntiFlap is returned when a toggle is attempted inside the dwell
// window.
type ErrAntiFlap struct{}

func (ErrAntiFlap) Error() string { return "relay toggle denied: anti-flap window active" }

// Line is the minimal GPIO contract this package needs; production code
// satisfies it with github.com/warthog618/go-gpiocdev's *gpiocdev.Line
// (requested as plain outputs; Bank applies the active-low polarity itself),
// tests with an in-memory fake.
type Line interface {
	SetValue(v int) error
	Value() (int, error)
}

type relay struct {
	gpio           Line
	lastToggleTick uint32
	onLifetimeSec  uint32
	offLifetimeSec uint32
}

// Bank is the four-relay shelf controller.
type Bank struct {
	relays          [4]relay
	timer           timer.RollingTimer
	lastMessageTick uint32
}

// New constructs a Bank from four already-requested active-low GPIO
// lines, driving every line Off (electrically high) before returning.
//
// lastToggleTick is seeded one dwell window in the past (now -
// MinToggleDelta - 1, wrapping) rather than at now, so the first command
// after boot is always eligible; seeding at now would leave the anti-flap
// check rejecting a SetRelay issued in the same tick the board came up.
func New(lines [4]Line, tick timer.RollingTimer) *Bank {
	now := tick.CurrentTick()
	staleTick := now - MinToggleDelta - 1 // wrapping subtract
	b := &Bank{timer: tick, lastMessageTick: now}
	for i, l := range lines {
		l.SetValue(1) // electrically high == Off for active-low wiring
		b.relays[i] = relay{gpio: l, lastToggleTick: staleTick}
	}
	return b
}

func relayValue(state icd.RelayState) int {
	if state == icd.RelayOn {
		return 0 // active-low: On drives the line low
	}
	return 1
}

func valueToState(v int) icd.RelayState {
	if v == 0 {
		return icd.RelayOn
	}
	return icd.RelayOff
}

// SetRelay drives idx to state, subject to the anti-flap dwell time.
// Returns ErrAntiFlap if the relay toggled within the last MinToggleDelta
// ticks; the relay is left in its prior state and the call is a no-op on
// the GPIO line in that case. A successful call counts as a relay
// command for dead-man purposes.
func (b *Bank) SetRelay(idx icd.RelayIdx, state icd.RelayState) error {
	if err := b.applyRelay(idx, state); err != nil {
		return err
	}
	b.lastMessageTick = b.timer.CurrentTick()
	return nil
}

// applyRelay drives the GPIO without touching the dead-man tracking. The
// arbiter's resolve pass uses this so locally re-asserted states can't keep
// the comms dead-man alive on their own.
func (b *Bank) applyRelay(idx icd.RelayIdx, state icd.RelayState) error {
	r := &b.relays[idx]
	now := b.timer.CurrentTick()
	delta := now - r.lastToggleTick // wrapping subtract

	if delta <= MinToggleDelta {
		return ErrAntiFlap{}
	}

	curVal, err := r.gpio.Value()
	if err != nil {
		return err
	}
	wantVal := relayValue(state)

	if curVal != wantVal {
		b.accrueLifetime(r, now)
		if err := r.gpio.SetValue(wantVal); err != nil {
			return err
		}
		r.lastToggleTick = now
	}
	return nil
}

// markComms records that a relay command arrived from the gateway, feeding
// the dead-man tracking even when the command's state matches what the
// relay already shows.
func (b *Bank) markComms() {
	b.lastMessageTick = b.timer.CurrentTick()
}

// CheckTimeout forces every relay Off if CommsTimeout ticks have elapsed
// since the last relay command, reporting whether the dead-man fired. This
// is the failsafe on loss of communication with the gateway.
func (b *Bank) CheckTimeout() bool {
	now := b.timer.CurrentTick()
	delta := now - b.lastMessageTick
	if delta < CommsTimeout {
		return false
	}
	log.Warn("comms timeout, forcing relays off", "delta_ticks", delta)
	for i := range b.relays {
		r := &b.relays[i]
		curVal, err := r.gpio.Value()
		if err == nil && curVal == relayValue(icd.RelayOn) {
			b.accrueLifetime(r, now)
			r.gpio.SetValue(relayValue(icd.RelayOff))
			r.lastToggleTick = now
		}
	}
	return true
}

func (b *Bank) accrueLifetime(r *relay, now uint32) {
	heldSec := (now - r.lastToggleTick) / timer.TicksPerSecond
	curVal, err := r.gpio.Value()
	if err != nil {
		return
	}
	if curVal == relayValue(icd.RelayOn) {
		r.onLifetimeSec += heldSec
	} else {
		r.offLifetimeSec += heldSec
	}
}

// SetCounters reseeds idx's cumulative lifetime counters, e.g. after a
// board swap where the physical relay's history doesn't match the
// software's.
func (b *Bank) SetCounters(idx icd.RelayIdx, onLifetimeSec, offLifetimeSec uint32) {
	r := &b.relays[idx]
	r.onLifetimeSec = onLifetimeSec
	r.offLifetimeSec = offLifetimeSec
}

// CurrentState reads back GPIO state and computes seconds-in-current-state
// for every relay.
func (b *Bank) CurrentState() icd.ShelfStatus {
	now := b.timer.CurrentTick()
	var status icd.ShelfStatus
	for i := range b.relays {
		r := &b.relays[i]
		curVal, _ := r.gpio.Value()
		state := valueToState(curVal)
		secondsInState := (now - r.lastToggleTick) / timer.TicksPerSecond
		status.Relays[i] = icd.RelayStatus{
			Enabled:            state == icd.RelayOn,
			SecondsInState:     secondsInState,
			SecondsOnLifetime:  r.onLifetimeSec,
			SecondsOffLifetime: r.offLifetimeSec,
		}
	}
	return status
}
