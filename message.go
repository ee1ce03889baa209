// This file ports original_source/src/message.rs's Message helper: a
// small set of free functions over the Socket capability set so the
// transfer workers and the listener don't each re-derive buffer sizes
// and packet construction at every call site.
package tftp

import "net"

// SendData sends a DATA packet for block carrying data.
func SendData(s Socket, block uint16, data []byte) error {
	return s.Send(&Data{Block: block, Bytes: data})
}

// SendAck sends an ACK for block.
func SendAck(s Socket, block uint16) error {
	return s.Send(&Ack{Block: block})
}

// SendError sends an ERROR to the socket's connected remote and returns
// a *WireError describing it, so callers can both notify the peer and
// propagate the failure in one call.
func SendError(s Socket, code ErrorCode, msg string) error {
	_ = s.Send(&ErrorPacket{Code: code, Msg: msg})
	return wireErrorf(code, "%s", msg)
}

// SendErrorTo sends an ERROR to an explicit address (used by the
// listener before a per-transfer Worker exists).
func SendErrorTo(s Socket, addr net.Addr, code ErrorCode, msg string) error {
	_ = s.SendTo(&ErrorPacket{Code: code, Msg: msg}, addr)
	return wireErrorf(code, "%s", msg)
}

// SendOack sends an option acknowledgement.
func SendOack(s Socket, opts []Option) error {
	return s.Send(&Oack{Options: opts})
}

// Recv reads one packet from the socket's connected remote, sized for
// anything but DATA.
func Recv(s Socket) (Packet, error) {
	buf := make([]byte, MaxRequestSize)
	return s.Recv(buf)
}

// RecvFrom reads one packet from any remote.
func RecvFrom(s Socket) (Packet, net.Addr, error) {
	buf := make([]byte, MaxRequestSize)
	return s.RecvFrom(buf)
}

// RecvWithSize reads one packet sized for a DATA payload up to
// blockSize bytes.
func RecvWithSize(s Socket, blockSize int) (Packet, error) {
	buf := make([]byte, blockSize+4)
	return s.Recv(buf)
}

// RecvFromWithSize is RecvWithSize plus the sender's address.
func RecvFromWithSize(s Socket, blockSize int) (Packet, net.Addr, error) {
	buf := make([]byte, blockSize+4)
	return s.RecvFrom(buf)
}
