// This file replaces eahydra-gotftp's root server.go with a
// listener/dispatcher: bind a socket, accept RRQ/WRQ, sanitize the
// path, negotiate options, decide single-port vs. direct-socket mode,
// and hand off to a transfer worker. It keeps eahydra-gotftp's
// peerMap/packetChan/sync.Pool shape (the shared-socket, per-peer-queue
// architecture its root revision already has) and generalizes it into
// a virtual-socket design covering both single-port and per-transfer
// sockets.
package tftp

import (
	"net"
	"os"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

type inboundPacket struct {
	data []byte
	addr net.Addr
}

// Listener binds one UDP socket and dispatches every accepted request to
// its own Worker goroutine. In single-port mode it also demultiplexes
// subsequent datagrams to the matching transfer's queue.
type Listener struct {
	Config ServerConfig

	conn net.PacketConn
	pool *sync.Pool

	mu    sync.Mutex
	peers map[string]chan []byte

	workers errgroup.Group

	closeOnce sync.Once
	closed    chan struct{}
}

func allocRecvBuffer() interface{} {
	return make([]byte, MaxRequestSize)
}

// NewListener binds cfg.Addr() and returns a ready Listener.
func NewListener(cfg ServerConfig) (*Listener, error) {
	cfg.Normalize()
	conn, err := net.ListenPacket("udp", cfg.Addr())
	if err != nil {
		return nil, err
	}
	return &Listener{
		Config: cfg,
		conn:   conn,
		pool:   &sync.Pool{New: allocRecvBuffer},
		peers:  make(map[string]chan []byte),
		closed: make(chan struct{}),
	}, nil
}

// Addr returns the address the listener is bound to, useful to discover
// the actual port after binding to port 0.
func (l *Listener) Addr() net.Addr { return l.conn.LocalAddr() }

// Close stops accepting new requests and waits for in-flight workers to
// finish, returning the listening socket's close error combined with the
// first error any worker returned.
func (l *Listener) Close() error {
	var closeErr error
	l.closeOnce.Do(func() {
		close(l.closed)
		closeErr = l.conn.Close()
	})
	return multierr.Append(closeErr, l.workers.Wait())
}

// Run accepts requests until Close is called or the socket fails.
func (l *Listener) Run() error {
	for {
		buf := l.pool.Get().([]byte)
		n, addr, err := l.conn.ReadFrom(buf)
		if err != nil {
			l.pool.Put(buf)
			select {
			case <-l.closed:
				return nil
			default:
				return err
			}
		}

		raw := append([]byte(nil), buf[:n]...)
		l.pool.Put(buf)

		pkt, derr := DecodePacket(raw)
		if derr != nil {
			Warningf("discarding unparseable packet from %s: %v", addr, derr)
			continue
		}

		switch p := pkt.(type) {
		case *RRQ:
			l.workers.Go(func() error { return l.serveRRQ(p, addr) })
		case *WRQ:
			l.workers.Go(func() error { return l.serveWRQ(p, addr) })
		default:
			l.routeOrRefuse(addr, raw)
		}
	}
}

// routeOrRefuse forwards a non-request datagram to its transfer's queue
// in single-port mode, or refuses it when no such transfer is known.
func (l *Listener) routeOrRefuse(addr net.Addr, raw []byte) {
	if l.Config.SinglePort {
		l.mu.Lock()
		queue, ok := l.peers[addr.String()]
		l.mu.Unlock()
		if ok {
			select {
			case queue <- raw:
			default:
				Warningf("peer queue full for %s, dropping packet", addr)
			}
			return
		}
	}
	_ = SendErrorTo(&udpSendOnly{l.conn}, addr, ErrIllegalOperation, "invalid request")
}

// udpSendOnly adapts a net.PacketConn to the narrow send side of Socket
// so SendErrorTo can reply before any per-transfer Socket exists.
type udpSendOnly struct{ conn net.PacketConn }

func (u *udpSendOnly) Send(Packet) error { return nil }
func (u *udpSendOnly) SendTo(p Packet, addr net.Addr) error {
	_, err := u.conn.WriteTo(Encode(p), addr)
	return err
}
func (u *udpSendOnly) Recv(_ []byte) (Packet, error)               { return nil, net.ErrClosed }
func (u *udpSendOnly) RecvFrom(_ []byte) (Packet, net.Addr, error) { return nil, nil, net.ErrClosed }
func (u *udpSendOnly) SetReadTimeout(time.Duration) error          { return nil }
func (u *udpSendOnly) SetWriteTimeout(time.Duration) error         { return nil }
func (u *udpSendOnly) SetNonblocking(bool) error                   { return nil }
func (u *udpSendOnly) RemoteAddr() net.Addr                        { return nil }
func (u *udpSendOnly) Close() error                                { return nil }

func (l *Listener) serveRRQ(req *RRQ, addr net.Addr) error {
	path, perr := SanitizePath(l.Config.SendDirectory, req.Filename)
	if perr != nil {
		return SendErrorTo(&udpSendOnly{l.conn}, addr, ErrAccessViolation, "path escapes served directory")
	}

	info, serr := os.Stat(path)
	if serr != nil {
		return SendErrorTo(&udpSendOnly{l.conn}, addr, ErrFileNotFound, "file not found")
	}

	file, oerr := os.Open(path)
	if oerr != nil {
		return SendErrorTo(&udpSendOnly{l.conn}, addr, ErrAccessViolation, "cannot open file")
	}

	result := Negotiate(req.Options, l.Config.Options, info.Size(), false)

	sock, serr := l.newTransferSocket(addr)
	if serr != nil {
		file.Close()
		return serr
	}

	checkResponse := len(result.Response) > 0
	if checkResponse {
		if err := SendOack(sock, result.Response); err != nil {
			file.Close()
			l.teardownSocket(sock, addr)
			return err
		}
	}

	worker := NewSenderTransfer(sock, file, result.Options, l.Config.Private, checkResponse)
	err := worker.Run()

	file.Close()
	l.teardownSocket(sock, addr)
	if err != nil {
		Errorf("RRQ %s from %s failed: %v", req.Filename, addr, err)
	}
	return err
}

func (l *Listener) serveWRQ(req *WRQ, addr net.Addr) error {
	if l.Config.ReadOnly {
		return SendErrorTo(&udpSendOnly{l.conn}, addr, ErrAccessViolation, "server is read-only")
	}

	path, perr := SanitizePath(l.Config.ReceiveDirectory, req.Filename)
	if perr != nil {
		return SendErrorTo(&udpSendOnly{l.conn}, addr, ErrAccessViolation, "path escapes served directory")
	}

	if _, serr := os.Stat(path); serr == nil && !l.Config.Overwrite {
		return SendErrorTo(&udpSendOnly{l.conn}, addr, ErrFileExists, "file already exists")
	}

	file, cerr := os.Create(path)
	if cerr != nil {
		return SendErrorTo(&udpSendOnly{l.conn}, addr, ErrAccessViolation, "cannot create file")
	}

	result := Negotiate(req.Options, l.Config.Options, 0, true)

	sock, serr := l.newTransferSocket(addr)
	if serr != nil {
		file.Close()
		return serr
	}

	var err error
	if len(result.Response) > 0 {
		err = SendOack(sock, result.Response)
	} else {
		err = SendAck(sock, 0)
	}
	if err != nil {
		file.Close()
		l.teardownSocket(sock, addr)
		return err
	}

	worker := NewReceiverTransfer(sock, file, result.Options, l.Config.Private)
	err = worker.Run()

	file.Close()
	l.teardownSocket(sock, addr)
	if err != nil {
		Errorf("WRQ %s from %s failed: %v", req.Filename, addr, err)
		if l.Config.Private.CleanOnError {
			os.Remove(path)
		}
	}
	return err
}

// newTransferSocket builds either a dedicated UDP socket or, in
// single-port mode, a VirtualSocket registered against addr.
func (l *Listener) newTransferSocket(addr net.Addr) (Socket, error) {
	if l.Config.SinglePort {
		queue := make(chan []byte, 64)
		l.mu.Lock()
		l.peers[addr.String()] = queue
		l.mu.Unlock()
		return NewVirtualSocket(l.conn, addr, queue), nil
	}

	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		resolved, err := net.ResolveUDPAddr("udp", addr.String())
		if err != nil {
			return nil, err
		}
		udpAddr = resolved
	}
	return DialUDPSocket(&net.UDPAddr{IP: l.Config.IPAddress, Port: 0}, udpAddr)
}

func (l *Listener) teardownSocket(sock Socket, addr net.Addr) {
	if l.Config.SinglePort {
		l.mu.Lock()
		delete(l.peers, addr.String())
		l.mu.Unlock()
		return
	}
	if err := sock.Close(); err != nil {
		Warningf("error closing transfer socket for %s: %v", addr, err)
	}
}
