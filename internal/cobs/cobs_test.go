package cobs

import (
	"bytes"
	"testing"

	"pgregory.net/rapid"
)

func roundTrip(t *testing.T, src []byte) {
	t.Helper()
	dst := make([]byte, MaxEncodedLen(len(src)))
	n := Encode(dst, src)
	encoded := dst[:n]

	for _, b := range encoded {
		if b == 0 {
			t.Fatalf("encoded block must not contain zero bytes: %v", encoded)
		}
	}

	out := make([]byte, len(src)+8)
	m, err := Decode(out, encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(out[:m], src) {
		t.Fatalf("round trip mismatch: got %v want %v", out[:m], src)
	}
}

func TestRoundTripFixedCases(t *testing.T) {
	cases := [][]byte{
		{},
		{0x00},
		{0x01, 0x02, 0x03},
		{0x00, 0x00, 0x00},
		{0x11, 0x22, 0x00, 0x33},
		bytes.Repeat([]byte{0xAB}, 300), // exceeds one 254-byte block
	}
	for _, c := range cases {
		roundTrip(t, c)
	}
}

func TestRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		src := rapid.SliceOfN(rapid.Byte(), 0, 600).Draw(rt, "src")
		roundTrip(t, src)
	})
}

// TestDecoderFeedsDelimitedFrames exercises the incremental Decoder's
// consumed and decoded outcomes across a full frame.
func TestDecoderFeedsDelimitedFrames(t *testing.T) {
	d := NewDecoder(256)

	src := []byte{0x01, 0x00, 0x02}
	dst := make([]byte, MaxEncodedLen(len(src)))
	n := Encode(dst, src)
	encoded := dst[:n]

	var lastOutcome Outcome
	var lastFrame []byte
	for _, b := range encoded {
		lastOutcome, lastFrame = d.Feed(b)
		if lastOutcome != Consumed {
			t.Fatalf("expected Consumed mid-frame, got %v", lastOutcome)
		}
	}
	outcome, frame := d.Feed(0x00)
	if outcome != Decoded {
		t.Fatalf("expected Decoded at delimiter, got %v", outcome)
	}
	if !bytes.Equal(frame, src) {
		t.Fatalf("decoded frame mismatch: got %v want %v", frame, src)
	}
	_ = lastOutcome
	_ = lastFrame
}

// TestDecoderOverfull checks the bounded-buffer overflow outcome.
func TestDecoderOverfull(t *testing.T) {
	d := NewDecoder(4)
	for i := 0; i < 4; i++ {
		outcome, _ := d.Feed(0xAA)
		if outcome != Consumed {
			t.Fatalf("expected Consumed at byte %d, got %v", i, outcome)
		}
	}
	outcome, _ := d.Feed(0xAA)
	if outcome != Overfull {
		t.Fatalf("expected Overfull once buffer exceeded, got %v", outcome)
	}
}

// TestDecoderResyncsAfterOverfull checks the decoder is usable again after
// an overfull frame is discarded.
func TestDecoderResyncsAfterOverfull(t *testing.T) {
	d := NewDecoder(4)
	for i := 0; i < 5; i++ {
		d.Feed(0xAA)
	}
	d.Feed(0x00) // discard whatever partial garbage remains, resync point

	src := []byte{0x01, 0x02}
	dst := make([]byte, MaxEncodedLen(len(src)))
	n := Encode(dst, src)
	for _, b := range dst[:n] {
		d.Feed(b)
	}
	outcome, frame := d.Feed(0x00)
	if outcome != Decoded || !bytes.Equal(frame, src) {
		t.Fatalf("expected clean decode after resync, got outcome=%v frame=%v", outcome, frame)
	}
}
