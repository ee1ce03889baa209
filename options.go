// This file implements the option negotiator. It is grounded on
// eahydra-gotftp/src/gotftp/peer.go's
// applyBlockSizeOpt/applyTimeoutOpt/applyTransferSizeOpt/applyOptions
// pipeline, generalized to all six option kinds and to both negotiating
// roles (eahydra-gotftp only ever negotiated server-side).
package tftp

import (
	"strings"
	"time"

	"github.com/golang/glog"
)

// OptionKind is the closed set of option names this implementation
// recognizes, case-insensitive on input and lower-case on output.
type OptionKind int

const (
	OptBlockSize OptionKind = iota
	OptTransferSize
	OptTimeout
	OptTimeoutMS
	OptWindowSize
	OptWindowWait
)

func (k OptionKind) String() string {
	switch k {
	case OptBlockSize:
		return "blksize"
	case OptTransferSize:
		return "tsize"
	case OptTimeout:
		return "timeout"
	case OptTimeoutMS:
		return "timeoutms"
	case OptWindowSize:
		return "windowsize"
	case OptWindowWait:
		return "windowwait"
	default:
		return "unknown"
	}
}

func parseOptionKind(tok string) (OptionKind, bool) {
	switch strings.ToLower(tok) {
	case "blksize":
		return OptBlockSize, true
	case "tsize":
		return OptTransferSize, true
	case "timeout":
		return OptTimeout, true
	case "timeoutms":
		return OptTimeoutMS, true
	case "windowsize":
		return OptWindowSize, true
	case "windowwait":
		return OptWindowWait, true
	default:
		return 0, false
	}
}

// Option is a single name/value pair as it appears on the wire.
type Option struct {
	Name  OptionKind
	Value uint64
}

const (
	DefaultBlockSize  uint16 = 512
	MinBlockSize      uint16 = 1
	MaxBlockSize      uint16 = 65464
	DefaultWindowSize uint16 = 1
	MaxWindowSize     uint16 = 65535
	DefaultTimeout            = 5 * time.Second
	MinTimeoutMillis  uint64 = 1
	MaxTimeoutMillis  uint64 = 255000
)

// RolloverPolicy governs what block number follows 0xFFFF.
type RolloverPolicy int

const (
	// RolloverEnforce0 wraps the counter to 0 after 0xFFFF. Default: it
	// matches the widest deployed base.
	RolloverEnforce0 RolloverPolicy = iota
	// RolloverEnforce1 skips 0 on the first wrap and starts again at 1.
	RolloverEnforce1
	// RolloverNone forbids wraparound: the transfer fails instead.
	RolloverNone
	// RolloverDontCare sends 0 after a wrap, as Enforce0 does, and as a
	// receiver accepts either 0 or 1 after a wrap.
	RolloverDontCare
)

// ParseRolloverPolicy parses the CLI's -R/--rollover token (n|0|1|x).
func ParseRolloverPolicy(s string) (RolloverPolicy, bool) {
	switch s {
	case "0":
		return RolloverEnforce0, true
	case "1":
		return RolloverEnforce1, true
	case "n":
		return RolloverNone, true
	case "x":
		return RolloverDontCare, true
	default:
		return 0, false
	}
}

func (r RolloverPolicy) String() string {
	switch r {
	case RolloverEnforce0:
		return "0"
	case RolloverEnforce1:
		return "1"
	case RolloverNone:
		return "n"
	case RolloverDontCare:
		return "x"
	default:
		return "?"
	}
}

// ProtocolOptions is negotiated and, once an OACK is accepted, symmetric
// between the two peers of a transfer.
type ProtocolOptions struct {
	BlockSize  uint16
	WindowSize uint16
	WindowWait time.Duration
	Timeout    time.Duration
	// TransferSize is filled in by the sender on RRQ (with the true file
	// length) and asserted by the receiver on WRQ. Nil means not
	// negotiated.
	TransferSize *uint64
}

// DefaultProtocolOptions returns the RFC 1350 defaults with no options
// negotiated.
func DefaultProtocolOptions() ProtocolOptions {
	return ProtocolOptions{
		BlockSize:  DefaultBlockSize,
		WindowSize: DefaultWindowSize,
		WindowWait: 0,
		Timeout:    DefaultTimeout,
	}
}

// PrivateOptions are local to one endpoint and never appear on the wire.
type PrivateOptions struct {
	// RepeatCount sends every outbound DATA packet this many times, 1ms
	// apart. ACK, OACK and ERROR packets are sent once.
	RepeatCount uint8
	// CleanOnError removes a partially received file on failure.
	CleanOnError bool
	MaxRetries   int
	Rollover     RolloverPolicy
}

// DefaultPrivateOptions returns the default retry, rollover, and
// error-cleanup behavior.
func DefaultPrivateOptions() PrivateOptions {
	return PrivateOptions{
		RepeatCount:  1,
		CleanOnError: true,
		MaxRetries:   6,
		Rollover:     RolloverEnforce0,
	}
}

// NegotiationResult is the outcome of negotiating a request's option list.
type NegotiationResult struct {
	Options  ProtocolOptions
	Response []Option // the OACK payload; empty means "send no OACK"
}

// Negotiate walks requested left-to-right and produces the server's
// response option list and the resulting ProtocolOptions. fileSize is
// used to fill in tsize on an RRQ; for a WRQ it is ignored (tsize there
// is merely recorded for later assertion against the bytes actually
// received).
func Negotiate(requested []Option, base ProtocolOptions, fileSize int64, isWrite bool) NegotiationResult {
	opts := base
	var resp []Option
	for _, o := range requested {
		switch o.Name {
		case OptBlockSize:
			v := clampBlockSize(o.Value)
			opts.BlockSize = v
			resp = append(resp, Option{Name: OptBlockSize, Value: uint64(v)})

		case OptTimeout:
			secs := clampTimeoutSeconds(o.Value)
			opts.Timeout = time.Duration(secs) * time.Second
			resp = append(resp, Option{Name: OptTimeout, Value: secs})

		case OptTimeoutMS:
			ms := clampTimeoutMillis(o.Value)
			opts.Timeout = time.Duration(ms) * time.Millisecond
			resp = append(resp, Option{Name: OptTimeoutMS, Value: ms})

		case OptWindowSize:
			v := clampWindowSize(o.Value)
			opts.WindowSize = v
			resp = append(resp, Option{Name: OptWindowSize, Value: uint64(v)})

		case OptWindowWait:
			opts.WindowWait = time.Duration(o.Value) * time.Millisecond
			resp = append(resp, Option{Name: OptWindowWait, Value: o.Value})

		case OptTransferSize:
			var v uint64
			if isWrite {
				// Recorded now, asserted against the file actually
				// written once the receiver finishes.
				v = o.Value
			} else {
				// Overwritten with the file's true length.
				v = uint64(fileSize)
			}
			opts.TransferSize = &v
			resp = append(resp, Option{Name: OptTransferSize, Value: v})
		}
	}
	return NegotiationResult{Options: opts, Response: resp}
}

func clampBlockSize(v uint64) uint16 {
	if v == 0 {
		glog.Warningf("blksize=0 out of range, clamping to %d", DefaultBlockSize)
		return DefaultBlockSize
	}
	if v > uint64(MaxBlockSize) {
		glog.Warningf("blksize=%d out of range, clamping to %d", v, MaxBlockSize)
		return MaxBlockSize
	}
	return uint16(v)
}

func clampTimeoutSeconds(v uint64) uint64 {
	if v == 0 {
		glog.Warningf("timeout=0s out of range, clamping to 1s")
		return 1
	}
	if v > 255 {
		glog.Warningf("timeout=%ds out of range, clamping to 255s", v)
		return 255
	}
	return v
}

func clampTimeoutMillis(v uint64) uint64 {
	if v == 0 {
		glog.Warningf("timeoutms=0 out of range, clamping to %d", MinTimeoutMillis)
		return MinTimeoutMillis
	}
	if v > MaxTimeoutMillis {
		glog.Warningf("timeoutms=%d out of range, clamping to %d", v, MaxTimeoutMillis)
		return MaxTimeoutMillis
	}
	return v
}

func clampWindowSize(v uint64) uint16 {
	if v == 0 {
		glog.Warningf("windowsize=0 out of range, clamping to %d", DefaultWindowSize)
		return DefaultWindowSize
	}
	if v > uint64(MaxWindowSize) {
		glog.Warningf("windowsize=%d out of range, clamping to %d", v, MaxWindowSize)
		return MaxWindowSize
	}
	return uint16(v)
}

// Apply folds an accepted OACK into the client's ProtocolOptions. The
// server may downgrade values but never upgrade them beyond what was
// requested; any option requested but absent from the OACK reverts to
// its default, and any option the OACK introduces that was never
// requested is ignored. Applying the same OACK twice is idempotent.
func (requested ProtocolOptions) Apply(oack []Option, requestedKinds map[OptionKind]bool) ProtocolOptions {
	result := DefaultProtocolOptions()
	for _, o := range oack {
		if !requestedKinds[o.Name] {
			continue
		}
		switch o.Name {
		case OptBlockSize:
			result.BlockSize = uint16(o.Value)
		case OptTimeout:
			result.Timeout = time.Duration(o.Value) * time.Second
		case OptTimeoutMS:
			result.Timeout = time.Duration(o.Value) * time.Millisecond
		case OptWindowSize:
			result.WindowSize = uint16(o.Value)
		case OptWindowWait:
			result.WindowWait = time.Duration(o.Value) * time.Millisecond
		case OptTransferSize:
			v := o.Value
			result.TransferSize = &v
		}
	}
	return result
}

// RequestOptions builds the wire option list a client offers on an RRQ or
// WRQ from ProtocolOptions, plus the set of kinds actually offered (for
// later use by Apply). A zero field is treated as "use the RFC default",
// i.e. not offered.
func RequestOptions(opts ProtocolOptions) ([]Option, map[OptionKind]bool) {
	def := DefaultProtocolOptions()
	kinds := make(map[OptionKind]bool)
	var out []Option
	if opts.BlockSize != 0 && opts.BlockSize != def.BlockSize {
		out = append(out, Option{Name: OptBlockSize, Value: uint64(opts.BlockSize)})
		kinds[OptBlockSize] = true
	}
	if opts.WindowSize != 0 && opts.WindowSize != def.WindowSize {
		out = append(out, Option{Name: OptWindowSize, Value: uint64(opts.WindowSize)})
		kinds[OptWindowSize] = true
	}
	if opts.WindowWait != 0 {
		out = append(out, Option{Name: OptWindowWait, Value: uint64(opts.WindowWait / time.Millisecond)})
		kinds[OptWindowWait] = true
	}
	if opts.Timeout != 0 && opts.Timeout != def.Timeout {
		if opts.Timeout%time.Second == 0 {
			out = append(out, Option{Name: OptTimeout, Value: uint64(opts.Timeout / time.Second)})
			kinds[OptTimeout] = true
		} else {
			out = append(out, Option{Name: OptTimeoutMS, Value: uint64(opts.Timeout / time.Millisecond)})
			kinds[OptTimeoutMS] = true
		}
	}
	if opts.TransferSize != nil {
		out = append(out, Option{Name: OptTransferSize, Value: *opts.TransferSize})
		kinds[OptTransferSize] = true
	}
	return out, kinds
}
