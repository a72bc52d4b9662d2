// Package schema is the binary codec secureradio and the gateway bridge use
// to turn typed icd messages into bytes and back: ugorji/go's CBOR handle,
// a compact self-describing binary encoding that keeps every message in the
// catalog well under the 255-byte radio payload cap.
package schema

import (
	"errors"

	"github.com/ugorji/go/codec"
)

// StructToArray encodes structs as positional arrays instead of maps keyed by
// field name; the field names alone would push a ShelfStatus past the cap.
var handle = func() *codec.CborHandle {
	h := &codec.CborHandle{}
	h.StructToArray = true
	return h
}()

// ErrOverflow is returned by EncodeInto when v's encoding doesn't fit dst.
var ErrOverflow = errors.New("schema: encoded message exceeds buffer")

// EncodeInto serializes v into dst, returning the number of bytes used.
// The CBOR encoder builds its output in a scratch buffer first, so filling
// a radio grant costs one extra copy.
func EncodeInto(dst []byte, v interface{}) (int, error) {
	var enc []byte
	e := codec.NewEncoderBytes(&enc, handle)
	if err := e.Encode(v); err != nil {
		return 0, err
	}
	if len(enc) > len(dst) {
		return 0, ErrOverflow
	}
	n := copy(dst, enc)
	return n, nil
}

// Decode deserializes src into v.
func Decode(src []byte, v interface{}) error {
	d := codec.NewDecoderBytes(src, handle)
	return d.Decode(v)
}
