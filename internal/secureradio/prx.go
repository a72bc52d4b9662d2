// PRX is the fixed gateway's secure-radio role: the "authority" side,
// which mirrors the last observed nonce values into its own sends and
// performs no replay rejection of its own — a deliberate tradeoff,
// compensated by the PTX side enforcing its acceptance policy on every
// reply.
package secureradio

import (
	"github.com/jamesmunns-fleet/fleetradio/internal/esbsim"
	"github.com/jamesmunns-fleet/fleetradio/internal/fleetcrypto"
	"github.com/jamesmunns-fleet/fleetradio/internal/framing"
	"github.com/jamesmunns-fleet/fleetradio/internal/schema"
)

// PRX is the gateway-side secure-radio role.
type PRX[Out any, In any] struct {
	link  *esbsim.Link
	crypt *fleetcrypto.AEAD

	lastRxTick  uint32
	lastRxCount uint32
}

// NewPRX binds the underlying simulated ESB link and key. Unlike PTX, PRX
// starts with zeroed nonce-tracking state — it has no clock of its own to
// hide and nothing to replay-check against yet.
func NewPRX[Out any, In any](link *esbsim.Link, key [32]byte) (*PRX[Out, In], error) {
	crypt, err := fleetcrypto.New(key)
	if err != nil {
		return nil, err
	}
	return &PRX[Out, In]{link: link, crypt: crypt}, nil
}

// Send mirrors the last observed (rx_tick, rx_count) into the outgoing
// nonce — "replying in kind" so the PTX can validate the response against
// its own clock without the PRX keeping a counter of its own.
func (p *PRX[Out, In]) Send(msg Out, pipe uint8) error {
	grant, err := p.link.GrantPacket(pipe, framing.MaxPayload)
	if err != nil {
		return ErrQueueFull
	}
	buf := grant.Bytes()

	used, err := schema.EncodeInto(buf[:len(buf)-framing.MinCryptSize], msg)
	if err != nil {
		return ErrSer
	}

	nonce := framing.FleetNonce{MsgCount: p.lastRxCount, Tick: p.lastRxTick}
	nonceBytes := nonce.ToBytes()

	lb := framing.LilBuf{Buf: buf, Used: used}
	var aeadNonce [12]byte
	copy(aeadNonce[:], nonceBytes[:])
	sealedLen, err := p.crypt.SealInPlace(lb.Buf, lb.Used, aeadNonce)
	if err != nil {
		return ErrEncrypt
	}
	lb.Used = sealedLen

	if err := lb.ExtendFromSlice(nonceBytes[:]); err != nil {
		return ErrBufferTooSmol
	}

	if err := grant.Commit(lb.Used); err != nil {
		return ErrQueueFull
	}
	return nil
}

// Receive decodes the next inbound packet. No acceptance predicate runs
// here: crypto integrity alone gates acceptance, and the observed nonce is
// unconditionally mirrored into lastRxTick/lastRxCount for the next Send.
func (p *PRX[Out, In]) Receive() (*RxMessage[In], error) {
	var pkt *esbsim.InPacket
	for {
		pkt = p.link.ReadPacket()
		if pkt == nil {
			return nil, nil
		}
		if pkt.PayloadLen() == 0 {
			pkt.Release()
			continue
		}
		break
	}
	if pkt.PayloadLen() <= framing.MinCryptSize {
		pkt.Release()
		return nil, ErrPacketTooSmol
	}

	raw := pkt.Bytes()
	split := len(raw) - framing.NonceSize
	payload, nonceBytes := raw[:split], raw[split:]

	nonce, err := framing.NonceFromBytes(nonceBytes)
	if err != nil {
		pkt.Release()
		return nil, ErrBadNonce
	}

	// Deliberately not validated — see the role comment above.
	p.lastRxTick = nonce.Tick
	p.lastRxCount = nonce.MsgCount

	var aeadNonce [12]byte
	nb := nonce.ToBytes()
	copy(aeadNonce[:], nb[:])
	plainLen, err := p.crypt.OpenInPlace(payload, len(payload), aeadNonce)
	if err != nil {
		pkt.Release()
		return nil, ErrDecrypt
	}

	var msg In
	if err := schema.Decode(payload[:plainLen], &msg); err != nil {
		pkt.Release()
		return nil, ErrCodec
	}
	pipe := pkt.Pipe()
	pkt.Release()
	return &RxMessage[In]{Msg: msg, Pipe: pipe}, nil
}
