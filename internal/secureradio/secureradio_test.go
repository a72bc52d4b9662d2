package secureradio

import (
	"testing"

	"github.com/jamesmunns-fleet/fleetradio/internal/esbsim"
	"github.com/jamesmunns-fleet/fleetradio/internal/icd"
	"github.com/jamesmunns-fleet/fleetradio/internal/timer"
)

func testKey() [32]byte {
	var k [32]byte
	for i := range k {
		k[i] = 0x42
	}
	return k
}

func newPair(t *testing.T) (*PTX[icd.HostToDevice, icd.DeviceToHost], *PRX[icd.DeviceToHost, icd.HostToDevice], *timer.Manual) {
	t.Helper()
	a, b := esbsim.NewLinkPair(8)
	clk := timer.NewManual(0)
	ptx, err := NewPTX[icd.HostToDevice, icd.DeviceToHost](a, testKey(), clk, 100)
	if err != nil {
		t.Fatalf("NewPTX: %v", err)
	}
	prx, err := NewPRX[icd.DeviceToHost, icd.HostToDevice](b, testKey())
	if err != nil {
		t.Fatalf("NewPRX: %v", err)
	}
	return ptx, prx, clk
}

// TestRoundTrip: encrypt on one side, decrypt correctly on the peer.
func TestRoundTrip(t *testing.T) {
	ptx, prx, _ := newPair(t)

	msg := icd.HostToDevice{Kind: icd.HostPlantLightSetRelay, SetRelay: icd.SetRelay{Relay: icd.Relay2, State: icd.RelayOn}}
	if err := ptx.Send(msg, 3); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got, err := prx.Receive()
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if got == nil {
		t.Fatal("expected a message, got none")
	}
	if got.Msg.Kind != icd.HostPlantLightSetRelay || got.Msg.SetRelay != msg.SetRelay {
		t.Fatalf("round trip mismatch: got %+v want %+v", got.Msg, msg)
	}
	if got.Pipe != 3 {
		t.Fatalf("expected pipe 3, got %d", got.Pipe)
	}
}

// TestReplayRejection: replaying an already-accepted frame at the PTX is
// rejected as InvalidNonce because the counter hasn't advanced even though
// the tick equality passes.
func TestReplayRejection(t *testing.T) {
	a, b := esbsim.NewLinkPair(8)
	clk := timer.NewManual(0x1000)
	prx, err := NewPRX[icd.DeviceToHost, icd.HostToDevice](a, testKey())
	if err != nil {
		t.Fatalf("NewPRX: %v", err)
	}
	ptx, err := NewPTX[icd.HostToDevice, icd.DeviceToHost](b, testKey(), clk, 0x10000)
	if err != nil {
		t.Fatalf("NewPTX: %v", err)
	}

	// Pin the PTX as if it had just sent frame #1 at tick 0x1000 with no
	// clock offset, so the nonce the PRX mirrors below is one it accepts.
	ptx.tickOffset = 0
	ptx.msgCount = 1
	ptx.lastRxCount = 0
	ptx.lastRxTick = 0

	// Prime the PRX's mirrored nonce state and send a reply once.
	prx.lastRxTick = 0x00001000
	prx.lastRxCount = 0x00000001

	msg := icd.DeviceToHost{Kind: icd.DevicePlantLightStatus}
	if err := prx.Send(msg, 1); err != nil {
		t.Fatalf("Send: %v", err)
	}

	raw, err := ptx.Receive()
	if err != nil {
		t.Fatalf("first receive should succeed: %v", err)
	}
	if raw == nil {
		t.Fatal("expected a message")
	}

	// Replay: send the identical frame bytes again by re-sending with the
	// same mirrored state (PRX hasn't observed a new PTX nonce to mirror).
	if err := prx.Send(msg, 1); err != nil {
		t.Fatalf("Send (replay): %v", err)
	}
	_, err = ptx.Receive()
	if err != ErrInvalidNonce {
		t.Fatalf("expected ErrInvalidNonce on replay, got %v", err)
	}
}

// TestTooSmallFrame: anything at or below 28 bytes can't carry ciphertext
// plus tag plus nonce and is rejected as PacketTooSmol. We drive this
// directly against the PTX receive path by injecting a short packet onto
// the link.
func TestTooSmallFrame(t *testing.T) {
	a, b := esbsim.NewLinkPair(8)
	clk := timer.NewManual(0)
	ptx, err := NewPTX[icd.HostToDevice, icd.DeviceToHost](a, testKey(), clk, 100)
	if err != nil {
		t.Fatalf("NewPTX: %v", err)
	}
	_ = b

	grant, _ := b.GrantPacket(0, 28)
	if err := grant.Commit(28); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	_, err = ptx.Receive()
	if err != ErrPacketTooSmol {
		t.Fatalf("expected ErrPacketTooSmol, got %v", err)
	}
}

// TestEmptyAckSkipped: zero-length payloads (ESB empty ACKs) are silently
// skipped, not surfaced as errors.
func TestEmptyAckSkipped(t *testing.T) {
	a, b := esbsim.NewLinkPair(8)
	clk := timer.NewManual(0)
	ptx, err := NewPTX[icd.HostToDevice, icd.DeviceToHost](a, testKey(), clk, 100)
	if err != nil {
		t.Fatalf("NewPTX: %v", err)
	}

	grant, _ := b.GrantPacket(0, 0)
	grant.Commit(0)

	msg, err := ptx.Receive()
	if err != nil {
		t.Fatalf("expected no error skipping empty ack, got %v", err)
	}
	if msg != nil {
		t.Fatalf("expected nil message after skipping empty ack, got %+v", msg)
	}
}
