// Command tftpd is the server daemon. It replaces
// eahydra-gotftp/cmd/server/server.go's hand-rolled FileHandler and
// stdlib flag.StringVar plumbing with a full server CLI surface parsed
// with pflag for GNU-style short+long flags.
package main

import (
	"fmt"
	"net"
	"os"

	"github.com/spf13/pflag"

	"github.com/go-tftpd/tftpd"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "tftpd:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := tftp.DefaultServerConfig()

	var (
		ipAddress        string
		port             uint16
		directory        string
		receiveDirectory string
		sendDirectory    string
		singlePort       bool
		readOnly         bool
		overwrite        bool
		blockSize        uint16
		windowSize       uint16
		windowWait       float64
		timeout          float64
		maxRetries       int
		rollover         string
		duplicatePackets uint8
		keepOnError      bool
		quiet            bool
		verbose          int
	)

	flags := pflag.NewFlagSet("tftpd", pflag.ContinueOnError)
	flags.StringVarP(&ipAddress, "ip-address", "i", "127.0.0.1", "local IP address to bind")
	flags.Uint16VarP(&port, "port", "p", 69, "local port to bind")
	flags.StringVarP(&directory, "directory", "d", "", "default served directory (default: current directory)")
	flags.StringVar(&receiveDirectory, "receive-directory", "", "directory to receive WRQ uploads into (default: directory)")
	flags.StringVar(&sendDirectory, "send-directory", "", "directory to serve RRQ downloads from (default: directory)")
	flags.BoolVarP(&singlePort, "single-port", "s", false, "share one UDP port across every transfer")
	flags.BoolVarP(&readOnly, "read-only", "r", false, "refuse all write requests")
	flags.BoolVar(&overwrite, "overwrite", false, "allow WRQ to overwrite an existing file")
	flags.Uint16VarP(&blockSize, "blocksize", "b", tftp.DefaultBlockSize, "default negotiated block size")
	flags.Uint16VarP(&windowSize, "windowsize", "w", tftp.DefaultWindowSize, "default negotiated window size")
	flags.Float64VarP(&windowWait, "windowwait", "W", 0, "seconds to sleep between packets within a window")
	flags.Float64VarP(&timeout, "timeout", "t", tftp.DefaultTimeout.Seconds(), "seconds before a retransmission")
	flags.IntVarP(&maxRetries, "maxretries", "m", 6, "max retries before a transfer fails")
	flags.StringVarP(&rollover, "rollover", "R", "0", "block counter rollover policy: 0, 1, n, x")
	flags.Uint8Var(&duplicatePackets, "duplicate-packets", 0, "send every outbound DATA packet this many extra times")
	flags.BoolVar(&keepOnError, "keep-on-error", false, "keep partially received files after an error")
	flags.BoolVarP(&quiet, "quiet", "q", false, "suppress informational logging")
	flags.CountVarP(&verbose, "verbose", "v", "raise logging verbosity (repeatable)")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}

	ip := net.ParseIP(ipAddress)
	if ip == nil {
		return fmt.Errorf("invalid ip address: %s", ipAddress)
	}
	rolloverPolicy, ok := tftp.ParseRolloverPolicy(rollover)
	if !ok {
		return fmt.Errorf("invalid rollover policy: %s (use n, 0, 1, x)", rollover)
	}
	if duplicatePackets == 255 {
		return fmt.Errorf("duplicate packets must be less than 255")
	}

	cfg.IPAddress = ip
	cfg.Port = port
	cfg.Directory = directory
	cfg.ReceiveDirectory = receiveDirectory
	cfg.SendDirectory = sendDirectory
	cfg.SinglePort = singlePort
	cfg.ReadOnly = readOnly
	cfg.Overwrite = overwrite
	cfg.Options.BlockSize = blockSize
	cfg.Options.WindowSize = windowSize
	cfg.Options.WindowWait = tftp.SecondsToDuration(windowWait)
	cfg.Options.Timeout = tftp.SecondsToDuration(timeout)
	cfg.Private.MaxRetries = maxRetries
	cfg.Private.Rollover = rolloverPolicy
	cfg.Private.RepeatCount = duplicatePackets + 1
	cfg.Private.CleanOnError = !keepOnError
	cfg.Normalize()

	tftp.ConfigureLogging(quiet, verbose)

	listener, err := tftp.NewListener(cfg)
	if err != nil {
		return err
	}
	defer listener.Close()

	tftp.Infof("tftpd listening on %s", cfg.Addr())
	return listener.Run()
}
