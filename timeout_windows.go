//go:build windows

package tftp

import "time"

// timeoutPad is added to a nominal read/write deadline before handing it
// to the OS. Windows' SO_RCVTIMEO implementation can fire up to ~15ms
// before the requested deadline elapses; padding here keeps a configured
// sub-second timeout from firing early and burning a retry for no reason.
func timeoutPad() time.Duration { return 15 * time.Millisecond }
