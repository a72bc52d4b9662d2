// Package gateway is the PC↔modem bridge: it reads typed messages off the
// ESB receive path, wraps each in {pipe, msg}, serializes with COBS, and
// queues the bytes onto a UART outbound ring; in reverse it feeds UART
// inbound bytes into an incremental COBS decoder that yields typed
// {pipe, msg} records and forwards each via secureradio's send.
package gateway

import (
	"sync"

	"github.com/jamesmunns-fleet/fleetradio/internal/cobs"
	"github.com/jamesmunns-fleet/fleetradio/internal/fleetlog"
	"github.com/jamesmunns-fleet/fleetradio/internal/icd"
	"github.com/jamesmunns-fleet/fleetradio/internal/schema"
	"github.com/jamesmunns-fleet/fleetradio/internal/secureradio"
	"github.com/jamesmunns-fleet/fleetradio/internal/uartdma"
	"github.com/jamesmunns-fleet/fleetradio/internal/watchdog"
)

var log = fleetlog.For("gateway")

// MaxUARTFrame bounds the COBS decoder's scratch buffer.
const MaxUARTFrame = 256

// Radio is the secure-radio role the gateway bridges against: it sends
// host-to-device commands and receives device-to-host status.
type Radio interface {
	Send(msg icd.HostToDevice, pipe uint8) error
	Receive() (*secureradio.RxMessage[icd.DeviceToHost], error)
}

// Bridge couples a secure-radio role to a UART transport via COBS framing.
type Bridge struct {
	radio Radio
	uart  *uartdma.Bridge
	dec   *cobs.Decoder

	RadioWatchdog *watchdog.Watchdog
	UARTWatchdog  *watchdog.Watchdog

	mu      sync.Mutex
	pending map[uint8]map[icd.RelayIdx]icd.SetRelay
}

// New constructs a Bridge. Call PumpRadioToUART and PumpUARTToRadio (each
// typically as its own goroutine, or scheduled as taskrt software tasks)
// to run the two directions.
func New(radio Radio, uart *uartdma.Bridge) *Bridge {
	return &Bridge{
		radio:         radio,
		uart:          uart,
		dec:           cobs.NewDecoder(MaxUARTFrame),
		RadioWatchdog: watchdog.New("gateway-radio-rx", watchdog.DefaultTimeout),
		UARTWatchdog:  watchdog.New("gateway-uart-decode", watchdog.DefaultTimeout),
		pending:       make(map[uint8]map[icd.RelayIdx]icd.SetRelay),
	}
}

// PumpRadioToUART drains one pending radio message (if any) and, on
// success, serializes {pipe, msg} as a ModemToPc envelope, COBS-encodes
// it, and writes it to the UART outbound ring. Returns (false, nil) when
// there was nothing to send.
func (b *Bridge) PumpRadioToUART() (bool, error) {
	rx, err := b.radio.Receive()
	if err != nil {
		log.Warn("radio receive error", "err", err)
		return false, err
	}
	if rx == nil {
		return false, nil
	}
	b.RadioWatchdog.Pet()

	// A device that just rebooted announces InitializeSession (or later
	// asks again with MessageRequest if it missed the reply); the gateway
	// answers by re-sending every buffered SetRelay for that device's pipe
	// rather than waiting for the PC host to notice the device was gone
	// and re-issue its commands.
	if rx.Msg.Kind == icd.DeviceGeneralInitializeSession || rx.Msg.Kind == icd.DeviceGeneralMessageRequest {
		b.replayPending(rx.Pipe)
	}

	envelope := icd.ModemToPc{IsPong: false, Pipe: rx.Pipe, Msg: rx.Msg}
	if err := b.writeToUART(envelope); err != nil {
		return true, err
	}
	return true, nil
}

// writeToUART serializes envelope, COBS-frames it with the trailing zero
// delimiter, and queues the bytes on the UART outbound ring.
func (b *Bridge) writeToUART(envelope icd.ModemToPc) error {
	plain := make([]byte, MaxUARTFrame)
	n, err := schema.EncodeInto(plain, envelope)
	if err != nil {
		log.Warn("envelope encode error", "err", err)
		return err
	}

	encoded := make([]byte, cobs.MaxEncodedLen(n))
	encLen := cobs.Encode(encoded, plain[:n])

	grant, err := b.uart.WriteGrant(encLen + 1)
	if err != nil {
		log.Warn("uart outbound grant failed", "err", err)
		return err
	}
	copy(grant, encoded[:encLen])
	grant[encLen] = 0x00
	b.uart.Commit(encLen + 1)
	return nil
}

// PumpUARTToRadio drains whatever bytes are currently available from the
// UART inbound ring through the COBS decoder, forwarding each completed
// PcToModem frame to the radio's Send. It processes at most one decoded
// frame per call so a caller running this as a cooperative task doesn't
// block arbitrarily long.
func (b *Bridge) PumpUARTToRadio() (bool, error) {
	// One byte per Read, so returning on a decoded frame leaves every later
	// byte in the inbound ring for the next call.
	var scratch [1]byte
	for {
		n := b.uart.Read(scratch[:])
		if n == 0 {
			return false, nil
		}
		for _, byteVal := range scratch[:n] {
			outcome, frame := b.dec.Feed(byteVal)
			switch outcome {
			case cobs.Decoded:
				b.UARTWatchdog.Pet()
				if err := b.forwardToRadio(frame); err != nil {
					return true, err
				}
				return true, nil
			case cobs.DecodeError:
				log.Warn("cobs decode error, frame discarded")
			case cobs.Overfull:
				log.Warn("uart decoder overfull, frame discarded")
			}
		}
	}
}

func (b *Bridge) forwardToRadio(frame []byte) error {
	var envelope icd.PcToModem
	if err := schema.Decode(frame, &envelope); err != nil {
		log.Warn("envelope decode error", "err", err)
		return err
	}
	if envelope.IsPing {
		// Pings answer locally; nothing crosses the radio. The Ping/Pong
		// pair is a link-liveness probe for the UART leg only.
		return b.writeToUART(icd.ModemToPc{IsPong: true})
	}
	if envelope.Msg.Kind == icd.HostPlantLightSetRelay {
		b.rememberPending(envelope.Pipe, envelope.Msg.SetRelay)
	}
	return b.radio.Send(envelope.Msg, envelope.Pipe)
}

// rememberPending records the most recent SetRelay command issued to each
// (pipe, relay) so it can be replayed if that device reports a reset.
func (b *Bridge) rememberPending(pipe uint8, cmd icd.SetRelay) {
	b.mu.Lock()
	defer b.mu.Unlock()
	byRelay, ok := b.pending[pipe]
	if !ok {
		byRelay = make(map[icd.RelayIdx]icd.SetRelay)
		b.pending[pipe] = byRelay
	}
	byRelay[cmd.Relay] = cmd
}

// replayPending re-sends every buffered SetRelay command for pipe. Send
// errors are logged and otherwise ignored — a lost retransmission here is
// no worse than the first send being lost, and the device will ask
// again on its next InitializeSession/MessageRequest if it's still out of
// sync.
func (b *Bridge) replayPending(pipe uint8) {
	b.mu.Lock()
	byRelay := b.pending[pipe]
	cmds := make([]icd.SetRelay, 0, len(byRelay))
	for _, cmd := range byRelay {
		cmds = append(cmds, cmd)
	}
	b.mu.Unlock()

	for _, cmd := range cmds {
		msg := icd.HostToDevice{Kind: icd.HostPlantLightSetRelay, SetRelay: cmd}
		if err := b.radio.Send(msg, pipe); err != nil {
			log.Warn("replay of buffered SetRelay failed", "pipe", pipe, "relay", cmd.Relay, "err", err)
		}
	}
}
