//go:build !windows

package tftp

import "time"

// timeoutPad is added to a nominal read/write deadline before handing it
// to the OS. On POSIX platforms SO_RCVTIMEO/SO_SNDTIMEO fire close enough
// to the requested duration that no padding is needed.
func timeoutPad() time.Duration { return 0 }
