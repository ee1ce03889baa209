// Package tftp implements a TFTP (RFC 1350) server and client, including
// the block-size, timeout, transfer-size, and windowsize options of
// RFC 2347/2348/2349/7440 plus a handful of non-standard extensions
// (sub-second timeouts, inter-packet window wait, configurable block
// counter rollover policy, and single-port mode).
//
// This file implements the wire codec.
package tftp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strconv"
	"unicode/utf8"
)

type opcode uint16

const (
	opRRQ   opcode = 1
	opWRQ   opcode = 2
	opDATA  opcode = 3
	opACK   opcode = 4
	opERROR opcode = 5
	opOACK  opcode = 6
)

const (
	// MaxRequestSize bounds RRQ/WRQ/ACK/ERROR/OACK packets on the wire.
	MaxRequestSize = 512

	noMessage = "(no message)"
)

// ErrIllegalOpcode is returned by DecodePacket when the two leading bytes
// do not name one of the six known opcodes.
var ErrIllegalOpcode = errors.New("tftp: illegal opcode")

// ErrMalformed is returned by DecodePacket when a length-tagged field (a
// NUL-terminated string, or a DATA/ACK header) runs off the end of the
// buffer.
var ErrMalformed = errors.New("tftp: malformed packet")

// Packet is the tagged-variant wire packet type. The concrete types are
// *RRQ, *WRQ, *Data, *Ack, *ErrorPacket, and *Oack.
type Packet interface {
	opcode() opcode
	encode(buf *bytes.Buffer)
}

// RRQ is a read request: the client asks to download Filename.
type RRQ struct {
	Filename string
	Mode     string
	Options  []Option
}

// WRQ is a write request: the client asks to upload Filename.
type WRQ struct {
	Filename string
	Mode     string
	Options  []Option
}

// Data carries up to the negotiated block size of file payload. A Data
// packet whose payload is strictly shorter than the block size (including
// empty) signals the last packet of the transfer.
type Data struct {
	Block uint16
	Bytes []byte
}

// Ack cumulatively acknowledges every Data packet up to and including Block.
type Ack struct {
	Block uint16
}

// ErrorPacket terminates a transfer (or refuses a request) with a reason
// code and a human-readable message.
type ErrorPacket struct {
	Code ErrorCode
	Msg  string
}

// Oack lists the subset of requested options the sender accepted, each
// carrying its actually-chosen value.
type Oack struct {
	Options []Option
}

func (*RRQ) opcode() opcode         { return opRRQ }
func (*WRQ) opcode() opcode         { return opWRQ }
func (*Data) opcode() opcode        { return opDATA }
func (*Ack) opcode() opcode         { return opACK }
func (*ErrorPacket) opcode() opcode { return opERROR }
func (*Oack) opcode() opcode        { return opOACK }

func writeOpcode(buf *bytes.Buffer, op opcode) {
	binary.Write(buf, binary.BigEndian, uint16(op))
}

func writeCString(buf *bytes.Buffer, s string) {
	buf.WriteString(s)
	buf.WriteByte(0)
}

func (p *RRQ) encode(buf *bytes.Buffer) { encodeRW(buf, opRRQ, p.Filename, p.Mode, p.Options) }
func (p *WRQ) encode(buf *bytes.Buffer) { encodeRW(buf, opWRQ, p.Filename, p.Mode, p.Options) }

func encodeRW(buf *bytes.Buffer, op opcode, filename, mode string, opts []Option) {
	writeOpcode(buf, op)
	writeCString(buf, filename)
	writeCString(buf, mode)
	encodeOptions(buf, opts)
}

func encodeOptions(buf *bytes.Buffer, opts []Option) {
	for _, o := range opts {
		writeCString(buf, o.Name.String())
		writeCString(buf, strconv.FormatUint(o.Value, 10))
	}
}

func (p *Data) encode(buf *bytes.Buffer) {
	writeOpcode(buf, opDATA)
	binary.Write(buf, binary.BigEndian, p.Block)
	buf.Write(p.Bytes)
}

func (p *Ack) encode(buf *bytes.Buffer) {
	writeOpcode(buf, opACK)
	binary.Write(buf, binary.BigEndian, p.Block)
}

func (p *ErrorPacket) encode(buf *bytes.Buffer) {
	writeOpcode(buf, opERROR)
	binary.Write(buf, binary.BigEndian, uint16(p.Code))
	writeCString(buf, p.Msg)
}

func (p *Oack) encode(buf *bytes.Buffer) {
	writeOpcode(buf, opOACK)
	encodeOptions(buf, p.Options)
}

// Encode serializes p into its wire representation. Encoding a
// well-formed internal packet is total: it never fails.
func Encode(p Packet) []byte {
	buf := bytes.NewBuffer(nil)
	p.encode(buf)
	return buf.Bytes()
}

// DecodePacket parses b into one of the six packet types.
func DecodePacket(b []byte) (Packet, error) {
	if len(b) < 2 {
		return nil, ErrMalformed
	}
	op := opcode(binary.BigEndian.Uint16(b[:2]))
	rest := b[2:]
	switch op {
	case opRRQ, opWRQ:
		filename, mode, opts, err := decodeRW(rest)
		if err != nil {
			return nil, err
		}
		if op == opRRQ {
			return &RRQ{Filename: filename, Mode: mode, Options: opts}, nil
		}
		return &WRQ{Filename: filename, Mode: mode, Options: opts}, nil
	case opDATA:
		if len(rest) < 2 {
			return nil, ErrMalformed
		}
		block := binary.BigEndian.Uint16(rest[:2])
		data := append([]byte(nil), rest[2:]...)
		return &Data{Block: block, Bytes: data}, nil
	case opACK:
		if len(rest) < 2 {
			return nil, ErrMalformed
		}
		return &Ack{Block: binary.BigEndian.Uint16(rest[:2])}, nil
	case opERROR:
		if len(rest) < 2 {
			return nil, ErrMalformed
		}
		code := ErrorCode(binary.BigEndian.Uint16(rest[:2]))
		msg := noMessage
		if s, ok := readCStringLoose(rest[2:]); ok {
			msg = s
		}
		return &ErrorPacket{Code: code, Msg: msg}, nil
	case opOACK:
		opts, err := decodeOptions(rest)
		if err != nil {
			return nil, err
		}
		return &Oack{Options: opts}, nil
	default:
		return nil, ErrIllegalOpcode
	}
}

func decodeRW(b []byte) (filename, mode string, opts []Option, err error) {
	filename, b, ok := readCString(b)
	if !ok {
		return "", "", nil, ErrMalformed
	}
	mode, b, ok = readCString(b)
	if !ok {
		return "", "", nil, ErrMalformed
	}
	opts, err = decodeOptions(b)
	return filename, mode, opts, err
}

func decodeOptions(b []byte) ([]Option, error) {
	var opts []Option
	for len(b) > 0 {
		var name, value string
		var ok bool
		name, b, ok = readCString(b)
		if !ok {
			return nil, ErrMalformed
		}
		value, b, ok = readCString(b)
		if !ok {
			return nil, ErrMalformed
		}
		kind, known := parseOptionKind(name)
		if !known {
			// Unknown option names are silently skipped: they will not
			// appear in the OACK, which is how they are refused.
			continue
		}
		n, perr := strconv.ParseUint(value, 10, 64)
		if perr != nil {
			// A value that fails to parse drops the option, not the packet.
			continue
		}
		opts = append(opts, Option{Name: kind, Value: n})
	}
	return opts, nil
}

// readCString reads a NUL-terminated field and returns the remainder of
// the buffer after the terminator. ok is false if no NUL byte is found.
func readCString(b []byte) (s string, rest []byte, ok bool) {
	i := bytes.IndexByte(b, 0)
	if i < 0 {
		return "", nil, false
	}
	return string(b[:i]), b[i+1:], true
}

// readCStringLoose mirrors readCString but tolerates a missing terminator
// and non-UTF-8 content, used only for the ERROR packet message field
// (a malformed message must not fail decoding of the whole packet).
func readCStringLoose(b []byte) (string, bool) {
	i := bytes.IndexByte(b, 0)
	if i < 0 {
		i = len(b)
	}
	if i == 0 || !utf8.Valid(b[:i]) {
		return "", false
	}
	return string(b[:i]), true
}
