package ring

import (
	"testing"

	"pgregory.net/rapid"
)

func TestBasicWriteRead(t *testing.T) {
	r := New(8)
	g, err := r.WriteGrant(4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	copy(g, []byte{1, 2, 3, 4})
	r.Commit(4)

	rg := r.ReadGrant()
	if string(rg) != string([]byte{1, 2, 3, 4}) {
		t.Fatalf("unexpected read: %v", rg)
	}
	r.Release(4)
}

func TestOneOutstandingGrantPerSide(t *testing.T) {
	r := New(8)
	if _, err := r.WriteGrant(4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.WriteGrant(2); err != ErrGrantInProgress {
		t.Fatalf("expected ErrGrantInProgress, got %v", err)
	}
}

func TestWrapSplitsGrant(t *testing.T) {
	r := New(8)
	g, _ := r.WriteGrant(6)
	copy(g, []byte{1, 2, 3, 4, 5, 6})
	r.Commit(6)
	rg := r.ReadGrant()
	r.Release(len(rg))

	// write and read are both at 6 (empty ring); writing 4 bytes can't fit
	// contiguously before the buffer end (only 2 bytes remain), but wrapping
	// to the front gives read-1 = 5 bytes.
	g2, err := r.WriteGrant(4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(g2) < 4 {
		t.Fatalf("expected a grant of at least 4 bytes, got %d", len(g2))
	}
}

// TestFIFOProperty drives arbitrary interleavings of write/read through
// the ring and checks bytes come out in the order they went in, none
// duplicated, none lost.
func TestFIFOProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		capacity := rapid.IntRange(4, 64).Draw(rt, "capacity")
		r := New(capacity)

		var written, read []byte
		steps := rapid.IntRange(1, 200).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			if rapid.Bool().Draw(rt, "doWrite") {
				n := rapid.IntRange(1, capacity).Draw(rt, "writeLen")
				g, err := r.WriteGrant(n)
				if err != nil {
					continue
				}
				data := rapid.SliceOfN(rapid.Byte(), len(g), len(g)).Draw(rt, "data")
				copy(g, data)
				r.Commit(len(g))
				written = append(written, data...)
			} else {
				g := r.ReadGrant()
				if g == nil {
					continue
				}
				read = append(read, g...)
				r.Release(len(g))
			}
		}
		// Drain whatever remains so the final comparison covers everything
		// committed.
		for {
			g := r.ReadGrant()
			if g == nil {
				break
			}
			read = append(read, g...)
			r.Release(len(g))
		}

		if len(read) != len(written) {
			rt.Fatalf("byte count mismatch: wrote %d read %d", len(written), len(read))
		}
		for i := range written {
			if written[i] != read[i] {
				rt.Fatalf("byte order mismatch at %d: wrote %v read %v", i, written[i], read[i])
			}
		}
	})
}
