// Package ring implements a fixed-capacity single-producer/single-consumer
// bipartite byte ring: write_grant/commit on the producer side, read_grant/
// release on the consumer side, with at most one outstanding grant per side
// and wrap handled by splitting the active region at the buffer end.
package ring

import (
	"errors"
	"sync/atomic"
)

var (
	// ErrGrantInProgress is returned when a second grant is requested on a
	// side that already has one outstanding.
	ErrGrantInProgress = errors.New("ring: grant already in progress")
	// ErrInsufficientSize is returned when no contiguous region of the
	// requested size is currently available.
	ErrInsufficientSize = errors.New("ring: insufficient contiguous space")
)

// Ring is a fixed-capacity byte ring shared between exactly one producer and
// one consumer, each confined to its own execution context (e.g. an ISR
// goroutine vs. an application goroutine); only the write/read/last indices
// are shared, and only atomically.
//
// The index discipline: write and read are positions in
// [0, cap]. When write >= read the readable data is [read, write). When the
// producer wraps to the front of the buffer before the consumer has caught
// up (write < read, the "inverted" state), last marks where valid data ends
// at the buffer tail: readable data is [read, last) followed by [0, write),
// and the bytes in [last, cap) were abandoned by the wrapping grant — the
// consumer jumps over them, never seeing them as data.
type Ring struct {
	buf   []byte
	write atomic.Uint32
	read  atomic.Uint32
	last  atomic.Uint32

	writeGranted bool
	writeStart   uint32
	writeLen     int
	writeWrapped bool

	readGranted bool
	readLen     int
}

// New allocates a ring of the given capacity. Capacity need not be a
// power of two, but callers conventionally pick one to match peripheral
// block sizes.
func New(capacity int) *Ring {
	return &Ring{buf: make([]byte, capacity)}
}

func (r *Ring) cap() uint32 { return uint32(len(r.buf)) }

// WriteGrant returns a contiguous writable region of length >= n, or an
// error if one isn't currently available. Only one write grant may be
// outstanding at a time. When the space before the buffer end is too small,
// the grant wraps to the front and the unreachable tail bytes are marked
// abandoned at Commit time.
func (r *Ring) WriteGrant(n int) ([]byte, error) {
	if r.writeGranted {
		return nil, ErrGrantInProgress
	}
	w := r.write.Load()
	rd := r.read.Load()
	capacity := r.cap()

	var start, maxLen uint32
	wrapped := false
	if w >= rd {
		switch {
		case capacity-w >= uint32(n):
			start, maxLen = w, capacity-w
		case rd > uint32(n):
			// Wrap to the front. The committed write position must stay
			// strictly below read so an inverted ring is never mistaken
			// for an empty one, hence the strict > above and the -1 here.
			start, maxLen = 0, rd-1
			wrapped = w != 0
		default:
			return nil, ErrInsufficientSize
		}
	} else {
		if rd-w <= uint32(n) {
			return nil, ErrInsufficientSize
		}
		start, maxLen = w, rd-w-1
	}

	r.writeGranted = true
	r.writeStart = start
	r.writeLen = int(maxLen)
	r.writeWrapped = wrapped
	return r.buf[start : start+maxLen], nil
}

// Commit publishes the first k <= n bytes of the outstanding write grant,
// advancing the producer index. k may be zero (nothing received this
// cycle). For a wrapping grant, the watermark is set so the consumer skips
// the abandoned tail bytes.
func (r *Ring) Commit(k int) {
	if !r.writeGranted {
		return
	}
	if k > r.writeLen {
		k = r.writeLen
	}
	if r.writeWrapped {
		// The watermark must be visible before the wrapped write position:
		// a consumer that observes write < read is guaranteed to see the
		// fresh watermark (both stores are sequentially consistent).
		r.last.Store(r.write.Load())
		r.write.Store(uint32(k))
	} else {
		r.write.Store(r.write.Load() + uint32(k))
	}
	r.writeGranted = false
	r.writeLen = 0
	r.writeWrapped = false
}

// ReadGrant returns the longest currently-readable contiguous region. If the
// unread data wraps past the buffer end, only the pre-wrap portion is
// returned; the post-wrap portion becomes available on the next ReadGrant
// after Release.
func (r *Ring) ReadGrant() []byte {
	if r.readGranted {
		return nil
	}
	w := r.write.Load()
	rd := r.read.Load()

	if w < rd {
		// Inverted: data runs [rd, last) then [0, w). Once the consumer
		// reaches the watermark it jumps to the front, stepping over the
		// bytes the wrapping grant abandoned.
		last := r.last.Load()
		if rd >= last {
			r.read.Store(0)
			rd = 0
		} else {
			r.readGranted = true
			r.readLen = int(last - rd)
			return r.buf[rd:last]
		}
	}
	if w == rd {
		return nil
	}
	r.readGranted = true
	r.readLen = int(w - rd)
	return r.buf[rd:w]
}

// Release consumes k <= len(last ReadGrant) bytes, advancing the consumer
// index.
func (r *Ring) Release(k int) {
	if !r.readGranted {
		return
	}
	if k > r.readLen {
		k = r.readLen
	}
	r.read.Store(r.read.Load() + uint32(k))
	r.readGranted = false
	r.readLen = 0
}

// Capacity reports the ring's fixed byte capacity.
func (r *Ring) Capacity() int { return len(r.buf) }
