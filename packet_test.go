package tftp

import (
	"bytes"
	"reflect"
	"testing"
)

func roundTrip(t *testing.T, p Packet) Packet {
	t.Helper()
	wire := Encode(p)
	decoded, err := DecodePacket(wire)
	if err != nil {
		t.Fatalf("decode(encode(%#v)) failed: %v", p, err)
	}
	return decoded
}

func TestRoundTripRRQ(t *testing.T) {
	p := &RRQ{
		Filename: "boot.img",
		Mode:     "octet",
		Options:  []Option{{Name: OptBlockSize, Value: 1024}, {Name: OptTransferSize, Value: 0}},
	}
	got := roundTrip(t, p)
	if !reflect.DeepEqual(p, got) {
		t.Errorf("RRQ round trip mismatch: got %#v, want %#v", got, p)
	}
}

func TestRoundTripWRQNoOptions(t *testing.T) {
	p := &WRQ{Filename: "a/b/c.bin", Mode: "octet"}
	got := roundTrip(t, p)
	if !reflect.DeepEqual(p, got) {
		t.Errorf("WRQ round trip mismatch: got %#v, want %#v", got, p)
	}
}

func TestRoundTripData(t *testing.T) {
	p := &Data{Block: 65535, Bytes: []byte("hello world")}
	got := roundTrip(t, p)
	if !reflect.DeepEqual(p, got) {
		t.Errorf("Data round trip mismatch: got %#v, want %#v", got, p)
	}
}

func TestRoundTripDataEmptyPayload(t *testing.T) {
	p := &Data{Block: 3, Bytes: []byte{}}
	got, ok := roundTrip(t, p).(*Data)
	if !ok {
		t.Fatalf("expected *Data, got %T", got)
	}
	if got.Block != 3 || len(got.Bytes) != 0 {
		t.Errorf("empty DATA round trip mismatch: %#v", got)
	}
}

func TestRoundTripAck(t *testing.T) {
	p := &Ack{Block: 0}
	got := roundTrip(t, p)
	if !reflect.DeepEqual(p, got) {
		t.Errorf("Ack round trip mismatch: got %#v, want %#v", got, p)
	}
}

func TestRoundTripError(t *testing.T) {
	p := &ErrorPacket{Code: ErrFileNotFound, Msg: "file not found"}
	got := roundTrip(t, p)
	if !reflect.DeepEqual(p, got) {
		t.Errorf("ErrorPacket round trip mismatch: got %#v, want %#v", got, p)
	}
}

func TestRoundTripOack(t *testing.T) {
	p := &Oack{Options: []Option{{Name: OptWindowSize, Value: 4}, {Name: OptTimeout, Value: 3}}}
	got := roundTrip(t, p)
	if !reflect.DeepEqual(p, got) {
		t.Errorf("Oack round trip mismatch: got %#v, want %#v", got, p)
	}
}

func TestDecodeIllegalOpcode(t *testing.T) {
	_, err := DecodePacket([]byte{0x00, 0x07})
	if err != ErrIllegalOpcode {
		t.Errorf("expected ErrIllegalOpcode, got %v", err)
	}
}

func TestDecodeMalformedShortHeader(t *testing.T) {
	_, err := DecodePacket([]byte{0x00})
	if err != ErrMalformed {
		t.Errorf("expected ErrMalformed, got %v", err)
	}
}

func TestDecodeMalformedMissingNul(t *testing.T) {
	buf := []byte{0x00, 0x01}
	buf = append(buf, "nofilenamenul"...)
	_, err := DecodePacket(buf)
	if err != ErrMalformed {
		t.Errorf("expected ErrMalformed, got %v", err)
	}
}

func TestDecodeErrorMissingMessage(t *testing.T) {
	buf := []byte{0x00, 0x05, 0x00, 0x00}
	p, err := DecodePacket(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ep, ok := p.(*ErrorPacket)
	if !ok {
		t.Fatalf("expected *ErrorPacket, got %T", p)
	}
	if ep.Msg != noMessage {
		t.Errorf("expected default message %q, got %q", noMessage, ep.Msg)
	}
}

func TestDecodeUnknownOptionSkipped(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	writeOpcode(buf, opRRQ)
	writeCString(buf, "f")
	writeCString(buf, "octet")
	writeCString(buf, "unknownopt")
	writeCString(buf, "7")
	writeCString(buf, "blksize")
	writeCString(buf, "1024")

	p, err := DecodePacket(buf.Bytes())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rrq, ok := p.(*RRQ)
	if !ok {
		t.Fatalf("expected *RRQ, got %T", p)
	}
	if len(rrq.Options) != 1 || rrq.Options[0].Name != OptBlockSize {
		t.Errorf("expected unknown option dropped, got %#v", rrq.Options)
	}
}

func TestDecodeBadOptionValueDropsOption(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	writeOpcode(buf, opRRQ)
	writeCString(buf, "f")
	writeCString(buf, "octet")
	writeCString(buf, "blksize")
	writeCString(buf, "not-a-number")

	p, err := DecodePacket(buf.Bytes())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rrq := p.(*RRQ)
	if len(rrq.Options) != 0 {
		t.Errorf("expected unparsable option value to drop the option, got %#v", rrq.Options)
	}
}

func TestCaseInsensitiveOptionNames(t *testing.T) {
	kind, ok := parseOptionKind("BlkSize")
	if !ok || kind != OptBlockSize {
		t.Errorf("expected case-insensitive match for blksize, got %v, %v", kind, ok)
	}
}
