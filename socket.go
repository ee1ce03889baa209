// This file implements the socket abstraction. Socket is a small
// capability interface with two
// concrete implementations — a dedicated per-transfer UDP socket, and a
// queue-fed virtual socket used in single-port mode — so the Worker is
// agnostic to which one it's driving. Grounded on
// original_source/src/socket.rs's Socket trait (UdpSocket / ServerSocket)
// and eahydra-gotftp's root server.go, which already shares one listening
// socket across client peers via a channel and a sync.Pool.
package tftp

import (
	"net"
	"time"
)

// Socket is the capability set the Worker and the Listener drive a
// transfer through. Implementations: *UDPSocket (one dedicated OS port
// per transfer) and *VirtualSocket (single-port mode, backed by a queue
// the Listener feeds).
type Socket interface {
	Send(p Packet) error
	SendTo(p Packet, addr net.Addr) error
	Recv(buf []byte) (Packet, error)
	RecvFrom(buf []byte) (Packet, net.Addr, error)
	SetReadTimeout(d time.Duration) error
	SetWriteTimeout(d time.Duration) error
	SetNonblocking(on bool) error
	RemoteAddr() net.Addr
	Close() error
}

// IsTimeout reports whether err represents an expired deadline — either
// a genuine wall-clock timeout in blocking mode, or "nothing pending
// right now" while polling in non-blocking mode. Both are spelled the
// same way in this package: a deadline in the past.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if ne, ok := err.(net.Error); ok {
		return ne.Timeout()
	}
	return false
}

// UDPSocket is a dedicated UDP socket bound to an ephemeral port and
// connected to a single remote peer. Used for every transfer unless
// single-port mode is on.
type UDPSocket struct {
	conn        *net.UDPConn
	remote      net.Addr
	readTimeout time.Duration
	nonblocking bool
}

// DialUDPSocket binds local (which may have port 0 for an ephemeral
// port) and connects to remote.
func DialUDPSocket(local, remote *net.UDPAddr) (*UDPSocket, error) {
	conn, err := net.DialUDP("udp", local, remote)
	if err != nil {
		return nil, err
	}
	return &UDPSocket{conn: conn, remote: remote}, nil
}

func (s *UDPSocket) Send(p Packet) error {
	_, err := s.conn.Write(Encode(p))
	return err
}

func (s *UDPSocket) SendTo(p Packet, addr net.Addr) error {
	_, err := s.conn.WriteTo(Encode(p), addr)
	return err
}

func (s *UDPSocket) Recv(buf []byte) (Packet, error) {
	s.pollDeadline()
	n, err := s.conn.Read(buf)
	if err != nil {
		return nil, err
	}
	return DecodePacket(buf[:n])
}

func (s *UDPSocket) RecvFrom(buf []byte) (Packet, net.Addr, error) {
	s.pollDeadline()
	n, addr, err := s.conn.ReadFrom(buf)
	if err != nil {
		return nil, addr, err
	}
	p, err := DecodePacket(buf[:n])
	return p, addr, err
}

func (s *UDPSocket) SetReadTimeout(d time.Duration) error {
	s.readTimeout = d
	return s.conn.SetReadDeadline(time.Now().Add(d + timeoutPad()))
}

func (s *UDPSocket) SetWriteTimeout(d time.Duration) error {
	return s.conn.SetWriteDeadline(time.Now().Add(d + timeoutPad()))
}

// SetNonblocking polls for an already-arrived packet instead of waiting:
// while on, each Recv/RecvFrom arms a 1ms read deadline, returning a
// queued packet at once or a timeout error when nothing is queued.
// Turning it off re-arms the read timeout set by SetReadTimeout.
func (s *UDPSocket) SetNonblocking(on bool) error {
	s.nonblocking = on
	if on {
		return nil
	}
	return s.conn.SetReadDeadline(time.Now().Add(s.readTimeout + timeoutPad()))
}

func (s *UDPSocket) pollDeadline() {
	if s.nonblocking {
		s.conn.SetReadDeadline(time.Now().Add(time.Millisecond))
	}
}

func (s *UDPSocket) RemoteAddr() net.Addr { return s.remote }

func (s *UDPSocket) Close() error { return s.conn.Close() }

// VirtualSocket shares the listener's socket for outbound sends; inbound
// packets for this peer arrive on a channel the Listener's demultiplexer
// feeds. The listener is the sole producer, the transfer's Worker the
// sole consumer.
type VirtualSocket struct {
	shared      net.PacketConn
	remote      net.Addr
	queue       <-chan []byte
	readTimeout time.Duration
	nonblocking bool
}

// NewVirtualSocket wraps shared (the listener's bound socket) and queue
// (this peer's inbound datagram feed) into a Socket.
func NewVirtualSocket(shared net.PacketConn, remote net.Addr, queue <-chan []byte) *VirtualSocket {
	return &VirtualSocket{shared: shared, remote: remote, queue: queue, readTimeout: DefaultTimeout}
}

func (s *VirtualSocket) Send(p Packet) error {
	return s.SendTo(p, s.remote)
}

func (s *VirtualSocket) SendTo(p Packet, addr net.Addr) error {
	_, err := s.shared.WriteTo(Encode(p), addr)
	return err
}

func (s *VirtualSocket) Recv(buf []byte) (Packet, error) {
	p, _, err := s.recvQueue(buf)
	return p, err
}

func (s *VirtualSocket) RecvFrom(buf []byte) (Packet, net.Addr, error) {
	return s.recvQueue(buf)
}

func (s *VirtualSocket) recvQueue(buf []byte) (Packet, net.Addr, error) {
	if s.nonblocking {
		select {
		case raw, ok := <-s.queue:
			if !ok {
				return nil, s.remote, &net.OpError{Op: "read", Err: errClosedQueue}
			}
			return decodeInto(buf, raw)
		default:
			return nil, s.remote, errVirtualTimeout
		}
	}
	timer := time.NewTimer(s.readTimeout + timeoutPad())
	defer timer.Stop()
	select {
	case raw, ok := <-s.queue:
		if !ok {
			return nil, s.remote, &net.OpError{Op: "read", Err: errClosedQueue}
		}
		return decodeInto(buf, raw)
	case <-timer.C:
		return nil, s.remote, errVirtualTimeout
	}
}

func decodeInto(buf, raw []byte) (Packet, net.Addr, error) {
	n := copy(buf, raw)
	p, err := DecodePacket(buf[:n])
	return p, nil, err
}

func (s *VirtualSocket) SetReadTimeout(d time.Duration) error {
	s.readTimeout = d
	return nil
}

func (s *VirtualSocket) SetWriteTimeout(d time.Duration) error { return nil }

func (s *VirtualSocket) SetNonblocking(on bool) error {
	s.nonblocking = on
	return nil
}

func (s *VirtualSocket) RemoteAddr() net.Addr { return s.remote }

func (s *VirtualSocket) Close() error { return nil }

type virtualTimeoutError struct{}

func (virtualTimeoutError) Error() string   { return "tftp: virtual socket: i/o timeout" }
func (virtualTimeoutError) Timeout() bool   { return true }
func (virtualTimeoutError) Temporary() bool { return true }

var errVirtualTimeout net.Error = virtualTimeoutError{}

var errClosedQueue = &closedQueueError{}

type closedQueueError struct{}

func (*closedQueueError) Error() string { return "tftp: peer queue closed" }
