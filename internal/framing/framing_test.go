package framing

import "testing"

func TestNonceRoundTrip(t *testing.T) {
	n := FleetNonce{MsgCount: 0x01020304, Tick: 0xAABBCCDD}
	b := n.ToBytes()
	got, err := NonceFromBytes(b[:])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != n {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, n)
	}
}

func TestNonceBadMagic(t *testing.T) {
	n := FleetNonce{MsgCount: 1, Tick: 2}
	b := n.ToBytes()
	b[11] ^= 0xFF // flip a bit of the magic word
	if _, err := NonceFromBytes(b[:]); err != ErrBadNonce {
		t.Fatalf("expected ErrBadNonce, got %v", err)
	}
}

func TestNonceWrongLength(t *testing.T) {
	if _, err := NonceFromBytes(make([]byte, 11)); err != ErrBadNonce {
		t.Fatalf("expected ErrBadNonce for short buffer, got %v", err)
	}
	if _, err := NonceFromBytes(make([]byte, 13)); err != ErrBadNonce {
		t.Fatalf("expected ErrBadNonce for long buffer, got %v", err)
	}
}

func TestLilBufExtendCap(t *testing.T) {
	backing := make([]byte, 300)
	lb := &LilBuf{Buf: backing}
	if err := lb.ExtendFromSlice(make([]byte, 250)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := lb.ExtendFromSlice(make([]byte, 10)); err != ErrBufferTooSmall {
		t.Fatalf("expected overflow past 255-byte cap, got %v", err)
	}
}

func TestLilBufTruncate(t *testing.T) {
	lb := &LilBuf{Buf: make([]byte, 10), Used: 8}
	lb.Truncate(20) // clamp to Used
	if lb.Len() != 8 {
		t.Fatalf("truncate should clamp to used length, got %d", lb.Len())
	}
	lb.Truncate(3)
	if lb.Len() != 3 {
		t.Fatalf("expected len 3, got %d", lb.Len())
	}
}
