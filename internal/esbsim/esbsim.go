// Package esbsim simulates the Nordic Enhanced ShockBurst link layer that
// secure-radio sits on top of: an 8-pipe packet transport with a PRX (fixed
// base station) side and a PTX (roaming node) side, each exposing
// grant/commit/read/release semantics over a pipe-tagged packet queue.
//
// A real ESB radio peripheral isn't reachable from a host Go process, so
// this package supplies the driver surface secureradio builds on:
// GrantPacket, ReadPacket, and StartTX. Two Link endpoints created by
// NewLinkPair communicate in-process over buffered channels; the pipe
// number is carried alongside each packet instead of being encoded in
// ESB's own header, since that header (PID/pipe/no_ack) belongs to the
// link layer, not to this framing.
package esbsim

import (
	"errors"
	"net"
)

// MaxPipe is the highest valid ESB pipe index (pipes are 0-7).
const MaxPipe = 7

// ErrQueueFull is returned when a Link's outbound queue has no room for
// another packet.
var ErrQueueFull = errors.New("esbsim: queue full")

// Packet is a single ESB-layer payload, exactly as secure-radio reads and
// writes it: opaque bytes with a pipe tag. PayloadLen of 0 represents an
// empty-ACK packet, which secure-radio skips without decrypting.
type Packet struct {
	Pipe    uint8
	Payload []byte
}

// Link is one side of a simulated ESB radio connection (either PTX or PRX;
// the struct itself doesn't distinguish roles — secureradio layers that
// distinction on top).
type Link struct {
	out  chan Packet
	in   chan Packet
	kick chan struct{}
}

// NewLinkPair returns two Links wired to each other: packets sent on one
// arrive for reading on the other.
func NewLinkPair(queueDepth int) (a, b *Link) {
	ab := make(chan Packet, queueDepth)
	ba := make(chan Packet, queueDepth)
	a = &Link{out: ab, in: ba, kick: make(chan struct{}, 1)}
	b = &Link{out: ba, in: ab, kick: make(chan struct{}, 1)}
	return a, b
}

// GrantPacket reserves space for an outgoing packet of the given pipe and
// returns a byte slice to fill in; committing happens via Grant.Commit.
// Since this simulation has no fixed backing ring (a real driver grants
// straight out of its transmit queue), GrantPacket simply hands back a
// freshly sized buffer — the grant/commit split is preserved at the API
// boundary secureradio relies on even though nothing needs reserving here.
func (l *Link) GrantPacket(pipe uint8, maxLen int) (*Grant, error) {
	return &Grant{link: l, pipe: pipe, buf: make([]byte, maxLen)}, nil
}

// Grant is an in-progress outbound packet.
type Grant struct {
	link *Link
	pipe uint8
	buf  []byte
}

// Bytes exposes the grant's backing buffer for in-place serialization and
// encryption.
func (g *Grant) Bytes() []byte { return g.buf }

// Commit publishes the first n bytes of the grant onto the link's outbound
// queue.
func (g *Grant) Commit(n int) error {
	select {
	case g.link.out <- Packet{Pipe: g.pipe, Payload: append([]byte(nil), g.buf[:n]...)}:
		return nil
	default:
		return ErrQueueFull
	}
}

// StartTX kicks the radio to flush the just-committed packet. In-process
// sends are synchronous, so this is a no-op retained so call sites read
// the same against a real driver, where the kick is what arms the radio.
func (l *Link) StartTX() {}

// ReadPacket returns the next inbound packet, or nil if none is queued.
func (l *Link) ReadPacket() *InPacket {
	select {
	case p := <-l.in:
		return &InPacket{pkt: p}
	default:
		return nil
	}
}

// InPacket is an inbound packet pending release.
type InPacket struct {
	pkt Packet
}

// Pipe reports which ESB pipe the packet arrived on.
func (p *InPacket) Pipe() uint8 { return p.pkt.Pipe }

// PayloadLen reports the payload length.
func (p *InPacket) PayloadLen() int { return len(p.pkt.Payload) }

// Bytes exposes the payload for in-place decryption.
func (p *InPacket) Bytes() []byte { return p.pkt.Payload }

// Release is a no-op here (the simulated packet has no backing ring slot
// to free) kept so receive paths always pair a read with a release.
func (p *InPacket) Release() {}

// NewUDPLink builds a Link whose two ends live in separate OS processes
// instead of in-process channels, standing in for the radio medium when
// cmd/plant-light and cmd/fleet-gateway run as separate binaries. UDP's
// datagram semantics (unordered, droppable, boundary-preserving) are a
// fair stand-in for a lossy packet radio.
func NewUDPLink(localAddr, remoteAddr string, queueDepth int) (*Link, error) {
	local, err := net.ResolveUDPAddr("udp", localAddr)
	if err != nil {
		return nil, err
	}
	remote, err := net.ResolveUDPAddr("udp", remoteAddr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", local)
	if err != nil {
		return nil, err
	}

	l := &Link{
		out:  make(chan Packet, queueDepth),
		in:   make(chan Packet, queueDepth),
		kick: make(chan struct{}, 1),
	}
	go l.udpSendLoop(conn, remote)
	go l.udpRecvLoop(conn)
	return l, nil
}

// udpSendLoop drains committed packets onto the wire: a 1-byte pipe tag
// followed by the payload, one packet per datagram (UDP already preserves
// datagram boundaries, so no further framing is needed).
func (l *Link) udpSendLoop(conn *net.UDPConn, remote *net.UDPAddr) {
	for p := range l.out {
		buf := make([]byte, 1+len(p.Payload))
		buf[0] = p.Pipe
		copy(buf[1:], p.Payload)
		conn.WriteToUDP(buf, remote)
	}
}

// udpRecvLoop reads datagrams off the wire and feeds them into the same in
// channel ReadPacket already drains.
func (l *Link) udpRecvLoop(conn *net.UDPConn) {
	buf := make([]byte, 512)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		if n < 1 {
			continue
		}
		payload := append([]byte(nil), buf[1:n]...)
		l.in <- Packet{Pipe: buf[0], Payload: payload}
	}
}
