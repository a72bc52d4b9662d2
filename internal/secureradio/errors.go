package secureradio

import "errors"

// Error discriminants. Each is a distinct sentinel rather than a single
// wrapped error type so callers can switch on the failure mode.
var (
	ErrPacketTooSmol = errors.New("secureradio: packet too small")
	ErrBadNonce      = errors.New("secureradio: bad nonce")
	ErrInvalidNonce  = errors.New("secureradio: invalid nonce")
	ErrNoData        = errors.New("secureradio: no data")
	ErrQueueFull     = errors.New("secureradio: queue full")
	ErrHeaderError   = errors.New("secureradio: header error")
	ErrSer           = errors.New("secureradio: serialization failed")
	ErrEncrypt       = errors.New("secureradio: encrypt failed")
	ErrDecrypt       = errors.New("secureradio: decrypt failed")
	ErrBufferTooSmol = errors.New("secureradio: buffer too small")
	ErrCodec         = errors.New("secureradio: codec error")
)
