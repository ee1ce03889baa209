// This file implements the per-transfer sender and receiver state
// machines, the hardest and largest slice of the core. It generalizes
// eahydra-gotftp/src/gotftp/peer.go's
// handleRRQ/handleWRQ (server side) and client.go's Get/Put (client
// side) — both of which only ever ack one block per round trip — into a
// sliding-window state machine with non-blocking ACK drain, cumulative
// ACKs, retransmission, and 16-bit block counter rollover.
package tftp

import (
	"fmt"
	"time"

	"github.com/golang/glog"
)

// SenderTransfer drives the sender-side transfer state machine to
// completion.
type SenderTransfer struct {
	Socket        Socket
	File          fileReadWriteCloser
	Options       ProtocolOptions
	Private       PrivateOptions
	CheckResponse bool
	// DropBlocks lists DATA block numbers to silently swallow instead of
	// sending, once each, for fault-injection testing. Ported from
	// original_source/src/drop.rs's TX_DROP/drop_check, scoped to this
	// transfer instead of held as process-wide state.
	DropBlocks []uint16

	window       *Window
	blockSeqWin  uint16
	winIdx       int
	more         bool
	retryCount   int
}

// NewSenderTransfer constructs a sender over file, ready to Run.
func NewSenderTransfer(sock Socket, file fileReadWriteCloser, opts ProtocolOptions, priv PrivateOptions, checkResponse bool) *SenderTransfer {
	return &SenderTransfer{
		Socket:        sock,
		File:          file,
		Options:       opts,
		Private:       priv,
		CheckResponse: checkResponse,
		window:        NewWindow(file, opts.BlockSize, opts.WindowSize),
	}
}

// consumeDrop reports whether block appears in *list, removing the first
// matching entry so each configured drop fires exactly once.
func consumeDrop(list *[]uint16, block uint16) bool {
	for i, b := range *list {
		if b == block {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return true
		}
	}
	return false
}

// Run executes the sender state machine until the file has been fully
// acknowledged or a fatal error occurs.
func (t *SenderTransfer) Run() error {
	if err := t.Socket.SetReadTimeout(t.Options.Timeout); err != nil {
		return err
	}

	if t.CheckResponse {
		if err := t.awaitAckZero(); err != nil {
			return err
		}
	}

	more, err := t.window.Fill()
	if err != nil {
		return err
	}
	t.more = more

	for {
		if err := t.transmitWindow(); err != nil {
			return err
		}

		if err := t.Socket.SetNonblocking(true); err != nil {
			return err
		}
		timeoutEnd := time.Now().Add(t.Options.Timeout)

		done, err := t.drainAndSlide(timeoutEnd)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

func (t *SenderTransfer) awaitAckZero() error {
	p, err := Recv(t.Socket)
	if err != nil {
		return err
	}
	ack, ok := p.(*Ack)
	if !ok || ack.Block != 0 {
		return SendError(t.Socket, ErrIllegalOperation, "expected ACK(0) after OACK")
	}
	return nil
}

// transmitWindow sends every not-yet-sent frame of the current window in
// block-number order, applying the rollover policy and the
// (non-standard) inter-packet window_wait sleep.
func (t *SenderTransfer) transmitWindow() error {
	for t.winIdx < t.window.Len() {
		block, err := t.nextBlockNumber()
		if err != nil {
			return err
		}
		frame := t.window.Frame(t.winIdx)
		if consumeDrop(&t.DropBlocks, block) {
			glog.V(2).Infof("dropping DATA block=%d (fault injection)", block)
			t.winIdx++
			if t.winIdx < t.window.Len() && t.Options.WindowWait > 0 {
				time.Sleep(t.Options.WindowWait)
			}
			continue
		}
		for i := uint8(0); i < max8(t.Private.RepeatCount, 1); i++ {
			if err := SendData(t.Socket, block, frame); err != nil {
				return err
			}
			if i+1 < t.Private.RepeatCount {
				time.Sleep(time.Millisecond)
			}
		}
		glog.V(2).Infof("sent DATA block=%d bytes=%d", block, len(frame))
		t.winIdx++
		if t.winIdx < t.window.Len() && t.Options.WindowWait > 0 {
			time.Sleep(t.Options.WindowWait)
		}
	}
	return nil
}

func max8(a, b uint8) uint8 {
	if a > b {
		return a
	}
	return b
}

// nextBlockNumber computes block_seq_win + win_idx + 1, applying the
// rollover policy when the addition wraps past 0xFFFF.
func (t *SenderTransfer) nextBlockNumber() (uint16, error) {
	sum := uint32(t.blockSeqWin) + uint32(t.winIdx) + 1
	if sum <= 0xFFFF {
		return uint16(sum), nil
	}
	wrapped := uint16(sum - 0x10000)
	switch t.Private.Rollover {
	case RolloverNone:
		return 0, SendError(t.Socket, ErrIllegalOperation, "Block counter rollover error")
	case RolloverEnforce1:
		// Skipping 0 shifts every block past the wrap up by one.
		return wrapped + 1, nil
	default: // Enforce0, DontCare
		return wrapped, nil
	}
}

// drainAndSlide reads packets non-blockingly until the socket reports no
// more are pending, then interprets the newest ACK seen. It loops back
// to draining (or retransmits the window on timeout) until the transfer
// completes or fails.
func (t *SenderTransfer) drainAndSlide(timeoutEnd time.Time) (done bool, err error) {
	for {
		newestAck, sawAck, drainErr := t.drainOnce()
		if drainErr != nil {
			return false, drainErr
		}

		if !sawAck {
			if time.Now().Before(timeoutEnd) {
				time.Sleep(time.Millisecond)
				continue
			}
			return t.handleTimeout()
		}

		diff := ackDiff(t.blockSeqWin, newestAck, t.Private.Rollover)

		switch {
		case diff == 0:
			if time.Now().Before(timeoutEnd) {
				time.Sleep(time.Millisecond)
				continue
			}
			return t.handleTimeout()

		case diff > 0 && int(diff) <= int(t.Options.WindowSize):
			t.blockSeqWin = newestAck
			t.window.Remove(int(diff))
			t.retryCount = 0
			if !t.more && t.window.IsEmpty() {
				return true, nil
			}
			if t.more {
				more, ferr := t.window.Fill()
				if ferr != nil {
					return false, ferr
				}
				t.more = more
			}
			t.winIdx = 0
			if err := t.transmitWindow(); err != nil {
				return false, err
			}
			timeoutEnd = time.Now().Add(t.Options.Timeout)
			continue

		default: // diff > window_size: stale/future, ignore
			continue
		}
	}
}

// drainOnce reads every currently-pending packet once (stopping at the
// first WouldBlock/TimedOut) and returns the newest ACK block number
// seen, if any.
func (t *SenderTransfer) drainOnce() (newestAck uint16, sawAck bool, err error) {
	for {
		p, rerr := RecvWithSize(t.Socket, int(t.Options.BlockSize))
		if rerr != nil {
			if IsTimeout(rerr) {
				return newestAck, sawAck, nil
			}
			return 0, false, rerr
		}
		switch pkt := p.(type) {
		case *Ack:
			newestAck = pkt.Block
			sawAck = true
		case *ErrorPacket:
			return 0, false, &WireError{Code: pkt.Code, Msg: pkt.Msg}
		default:
			glog.V(2).Infof("discarding unexpected packet %T during ACK drain", pkt)
		}
	}
}

func (t *SenderTransfer) handleTimeout() (bool, error) {
	t.retryCount++
	if t.retryCount > t.Private.MaxRetries {
		return false, fmt.Errorf("tftp: transfer timed out after %d tries", t.retryCount)
	}
	t.winIdx = 0
	if err := t.transmitWindow(); err != nil {
		return false, err
	}
	return false, nil
}

// ackDiff computes (n - base) mod 2^16, adjusted by one under the
// Enforce1 rollover policy when n has wrapped relative to base.
func ackDiff(base, n uint16, policy RolloverPolicy) int32 {
	diff := int32(uint32(n) - uint32(base))
	if diff < 0 {
		diff += 0x10000
	}
	if policy == RolloverEnforce1 && n < base {
		diff--
	}
	return diff
}

// ReceiverTransfer drives the receiver-side transfer state machine to
// completion.
type ReceiverTransfer struct {
	Socket  Socket
	File    fileReadWriteCloser
	Options ProtocolOptions
	Private PrivateOptions
	// DropBlocks lists ACK block numbers to silently swallow instead of
	// sending, once each, for fault-injection testing. Ported from
	// original_source/src/drop.rs's TX_DROP/drop_check, scoped to this
	// transfer instead of held as process-wide state.
	DropBlocks []uint16

	window      *Window
	blockNumber uint16
	retryCount  int
}

// NewReceiverTransfer constructs a receiver over file, ready to Run.
func NewReceiverTransfer(sock Socket, file fileReadWriteCloser, opts ProtocolOptions, priv PrivateOptions) *ReceiverTransfer {
	return &ReceiverTransfer{
		Socket:  sock,
		File:    file,
		Options: opts,
		Private: priv,
		window:  NewWindow(file, opts.BlockSize, opts.WindowSize),
	}
}

// Run executes the receiver state machine until the final ACK has been
// sent or a fatal error occurs.
func (t *ReceiverTransfer) Run() error {
	return t.run(nil)
}

// RunSeeded is Run, but treats first as the earliest packet of the
// transfer instead of reading it from the socket. Used by the client
// driver on a bare RRQ (no options offered), where DATA(1) has already
// arrived as the server's direct response to the request, before any
// ReceiverTransfer existed to receive it.
func (t *ReceiverTransfer) RunSeeded(first Packet) error {
	return t.run(first)
}

func (t *ReceiverTransfer) run(seed Packet) error {
	if err := t.Socket.SetReadTimeout(t.Options.Timeout); err != nil {
		return err
	}

	haveData := false
	pending := seed
	for {
		var p Packet
		if pending != nil {
			p = pending
			pending = nil
		} else {
			if err := t.Socket.SetNonblocking(haveData); err != nil {
				return err
			}
			recvd, err := RecvWithSize(t.Socket, int(t.Options.BlockSize))
			if err != nil {
				if IsTimeout(err) {
					if !haveData {
						t.retryCount++
						if t.retryCount > t.Private.MaxRetries {
							return fmt.Errorf("tftp: transfer timed out after %d tries", t.retryCount)
						}
						if ackErr := t.sendAck(t.blockNumber); ackErr != nil {
							return ackErr
						}
						continue
					}
					// Idle after at least one DATA this window: fall back
					// to blocking reads.
					haveData = false
					continue
				}
				return err
			}
			p = recvd
		}

		switch pkt := p.(type) {
		case *Data:
			t.retryCount = 0
			last, flushNow, derr := t.acceptData(pkt)
			if derr != nil {
				return derr
			}
			if flushNow {
				if err := t.window.Empty(); err != nil {
					return err
				}
				if err := t.sendAck(t.blockNumber); err != nil {
					return err
				}
				if last {
					return t.finish()
				}
				haveData = false
				continue
			}
			haveData = true

		case *ErrorPacket:
			return &WireError{Code: pkt.Code, Msg: pkt.Msg}

		default:
			glog.V(2).Infof("discarding unexpected packet %T during receive", pkt)
		}
	}
}

// acceptData applies the rollover-aware expected-block check, buffering
// the payload on an in-order DATA. It reports whether the window should
// be flushed now (full, a gap, a duplicate, or the terminal frame) and,
// if so, whether this was the last frame of the transfer.
func (t *ReceiverTransfer) acceptData(pkt *Data) (last, flushNow bool, err error) {
	ok, rerr := t.isExpectedBlock(pkt.Block)
	if rerr != nil {
		return false, false, rerr
	}

	switch {
	case ok:
		t.blockNumber = pkt.Block
		isLast := len(pkt.Bytes) < int(t.Options.BlockSize)
		if addErr := t.window.Add(pkt.Bytes); addErr != nil {
			return false, false, addErr
		}
		if t.window.Len() >= int(t.Options.WindowSize) || isLast {
			return isLast, true, nil
		}
		return false, false, nil

	case pkt.Block == t.blockNumber:
		// Duplicate from a retransmit: re-ACK without adding.
		return false, true, nil

	default:
		// Gap: force the sender to retransmit the whole window.
		return false, true, nil
	}
}

// isExpectedBlock reports whether block is the legal next block number.
// Past a 0xFFFF wrap, DontCare accepts either 0 or 1 (preferring 1, but
// treating 0 as equally valid) rather than pinning a single value the
// way Enforce0/Enforce1 do.
func (t *ReceiverTransfer) isExpectedBlock(block uint16) (bool, error) {
	sum := uint32(t.blockNumber) + 1
	if sum <= 0xFFFF {
		return block == uint16(sum), nil
	}
	switch t.Private.Rollover {
	case RolloverNone:
		return false, SendError(t.Socket, ErrIllegalOperation, "Block counter rollover error")
	case RolloverEnforce1:
		return block == 1, nil
	case RolloverDontCare:
		return block == 0 || block == 1, nil
	default: // Enforce0
		return block == 0, nil
	}
}

// sendAck sends an ACK for block unless it is configured to be dropped
// by fault injection, in which case it is silently swallowed once.
func (t *ReceiverTransfer) sendAck(block uint16) error {
	if consumeDrop(&t.DropBlocks, block) {
		glog.V(2).Infof("dropping ACK block=%d (fault injection)", block)
		return nil
	}
	return SendAck(t.Socket, block)
}

func (t *ReceiverTransfer) finish() error {
	if t.Options.TransferSize != nil {
		if uint64(t.window.FileLen()) != *t.Options.TransferSize {
			return fmt.Errorf("tftp: size mismatch: received %d, expected %d", t.window.FileLen(), *t.Options.TransferSize)
		}
	}
	return nil
}
