// This file replaces eahydra-gotftp's hand-rolled log.go (a log.New
// wrapper plus a settable LogHandler func) with a thin shim over glog,
// whose verbosity levels map directly onto the CLI's -q/--quiet and
// -v/--verbose flags.
package tftp

import (
	"flag"
	"strconv"

	"github.com/golang/glog"
)

// ConfigureLogging wires quiet/verbose CLI flags onto glog's own flag
// set. quiet raises glog's stderr threshold above Warning; verbose sets
// glog's V() level. Call once, early in main.
func ConfigureLogging(quiet bool, verbose int) {
	flag.Set("logtostderr", "true")
	if quiet {
		flag.Set("stderrthreshold", "ERROR")
	}
	if verbose > 0 {
		flag.Set("v", strconv.Itoa(verbose))
	}
}

// Infof logs at the default informational level.
func Infof(format string, args ...interface{}) { glog.Infof(format, args...) }

// Warningf logs a recoverable anomaly such as a clamped option or a
// discarded out-of-sequence packet.
func Warningf(format string, args ...interface{}) { glog.Warningf(format, args...) }

// Errorf logs a failure that terminates one transfer but not the
// listener.
func Errorf(format string, args ...interface{}) { glog.Errorf(format, args...) }
