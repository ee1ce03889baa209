// This file implements the window buffer. A Window strictly owns the
// file handle for its lifetime;
// it is the sole path by which received data is committed to disk and
// the sole path by which data is read for transmission.
package tftp

import (
	"fmt"
	"io"
)

// fileReadWriteCloser is satisfied by *os.File; a narrow interface keeps
// Window testable without touching the filesystem.
type fileReadWriteCloser interface {
	io.Reader
	io.Writer
	io.Closer
}

// Window buffers up to windowSize chunks of blockSize bytes between the
// file and the socket.
type Window struct {
	file      fileReadWriteCloser
	blockSize int
	capacity  int
	frames    [][]byte
	bytesSeen int64
}

// NewWindow creates a Window over file with the given negotiated block
// size and window size.
func NewWindow(file fileReadWriteCloser, blockSize, windowSize uint16) *Window {
	return &Window{
		file:      file,
		blockSize: int(blockSize),
		capacity:  int(windowSize),
	}
}

// Len reports how many frames are currently buffered.
func (w *Window) Len() int { return len(w.frames) }

// IsEmpty reports whether the window currently holds no frames.
func (w *Window) IsEmpty() bool { return len(w.frames) == 0 }

// Frame returns the i'th buffered frame (0-indexed), used by the sender
// to re-read a frame it has already filled without touching the file
// again.
func (w *Window) Frame(i int) []byte { return w.frames[i] }

// Fill reads from the file until the window is full or the file is
// exhausted. It returns more=true if the window filled completely
// without reaching EOF (there is more data to send in a later window);
// more=false if a short or zero read was pushed as the terminal frame.
func (w *Window) Fill() (more bool, err error) {
	for len(w.frames) < w.capacity {
		buf := make([]byte, w.blockSize)
		n, rerr := io.ReadFull(w.file, buf)
		if rerr != nil && rerr != io.ErrUnexpectedEOF && rerr != io.EOF {
			return false, rerr
		}
		w.frames = append(w.frames, buf[:n])
		if n < w.blockSize {
			return false, nil
		}
	}
	return true, nil
}

// Add appends a received chunk to the window. It is an error to add past
// capacity.
func (w *Window) Add(chunk []byte) error {
	if len(w.frames) >= w.capacity {
		return fmt.Errorf("tftp: window is full (capacity %d)", w.capacity)
	}
	w.frames = append(w.frames, chunk)
	return nil
}

// Empty writes every buffered frame to the file in order, then clears
// the buffer. This is the sole path by which received data is committed
// to disk.
func (w *Window) Empty() error {
	for _, f := range w.frames {
		if _, err := w.file.Write(f); err != nil {
			return err
		}
		w.bytesSeen += int64(len(f))
	}
	w.frames = w.frames[:0]
	return nil
}

// Remove drops the first n frames after a cumulative ACK. Precondition:
// n <= Len().
func (w *Window) Remove(n int) {
	if n > len(w.frames) {
		n = len(w.frames)
	}
	w.frames = append(w.frames[:0], w.frames[n:]...)
}

// FileLen reports the number of bytes Empty has committed to the
// underlying file so far, used to assert a negotiated transfer size.
// Bytes read by Fill are not counted.
func (w *Window) FileLen() int64 { return w.bytesSeen }

// Close releases the underlying file handle. The Window must not be used
// afterward.
func (w *Window) Close() error { return w.file.Close() }
