// Package framing holds the small, allocation-free primitives that sit
// underneath secureradio: the in-place AEAD buffer adapter and the 12-byte
// nonce layout.
package framing

import (
	"encoding/binary"
	"errors"
)

const (
	// NonceSize is the wire size of a FleetNonce: msg_count || tick || magic.
	NonceSize = 12
	// TagSize is the Poly1305 authentication tag size.
	TagSize = 16
	// MinCryptSize is the minimum number of trailing bytes (nonce + tag)
	// any accepted frame must carry, plus at least one byte of ciphertext.
	MinCryptSize = NonceSize + TagSize

	// MaxPayload reflects the ESB payload length field width (a single
	// byte), and is the cap LilBuf enforces regardless of backing capacity.
	MaxPayload = 255

	// MagicWord encodes protocol version major=7, minor=0, trivial=0,
	// with the low nibble reserved (0x1).
	MagicWord uint32 = 0xF1337001
)

// ErrBadNonce is returned when a byte slice cannot be parsed as a FleetNonce.
var ErrBadNonce = errors.New("framing: bad nonce")

// ErrBufferTooSmall is returned by LilBuf operations that would overflow
// the 255-byte ESB payload cap or the backing slice.
var ErrBufferTooSmall = errors.New("framing: buffer too small")

// FleetNonce is the 12-byte nonce carried in cleartext at the tail of every
// frame and used verbatim as the AEAD nonce.
type FleetNonce struct {
	MsgCount uint32
	Tick     uint32
}

// ToBytes serializes the nonce little-endian: msg_count || tick || magic.
func (n FleetNonce) ToBytes() [NonceSize]byte {
	var out [NonceSize]byte
	binary.LittleEndian.PutUint32(out[0:4], n.MsgCount)
	binary.LittleEndian.PutUint32(out[4:8], n.Tick)
	binary.LittleEndian.PutUint32(out[8:12], MagicWord)
	return out
}

// NonceFromBytes parses exactly NonceSize bytes, rejecting anything whose
// trailing magic word doesn't match before the caller spends a decrypt on it.
func NonceFromBytes(buf []byte) (FleetNonce, error) {
	if len(buf) != NonceSize {
		return FleetNonce{}, ErrBadNonce
	}
	if binary.LittleEndian.Uint32(buf[8:12]) != MagicWord {
		return FleetNonce{}, ErrBadNonce
	}
	return FleetNonce{
		MsgCount: binary.LittleEndian.Uint32(buf[0:4]),
		Tick:     binary.LittleEndian.Uint32(buf[4:8]),
	}, nil
}

// LilBuf presents a fixed backing slice plus a used-length to the AEAD
// library's in-place Buffer contract (extend/truncate/len), capping growth
// at the smaller of 255 bytes (the ESB payload length field width) and the
// backing slice's length.
type LilBuf struct {
	Buf  []byte
	Used int
}

// Bytes returns the used prefix of the backing slice.
func (b *LilBuf) Bytes() []byte {
	return b.Buf[:b.Used]
}

// ExtendFromSlice appends other, failing if doing so would exceed
// min(255, len(Buf)).
func (b *LilBuf) ExtendFromSlice(other []byte) error {
	limit := len(b.Buf)
	if limit > MaxPayload {
		limit = MaxPayload
	}
	newUsed := b.Used + len(other)
	if newUsed > limit {
		return ErrBufferTooSmall
	}
	copy(b.Buf[b.Used:newUsed], other)
	b.Used = newUsed
	return nil
}

// Truncate clamps Used to min(n, Used, 255).
func (b *LilBuf) Truncate(n int) {
	if n > b.Used {
		n = b.Used
	}
	if n > MaxPayload {
		n = MaxPayload
	}
	b.Used = n
}

// Len reports the current used length.
func (b *LilBuf) Len() int { return b.Used }

// IsEmpty reports whether Used is zero.
func (b *LilBuf) IsEmpty() bool { return b.Used == 0 }
