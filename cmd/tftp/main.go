// Command tftp is the client driver. It replaces
// eahydra-gotftp/cmd/client/client.go's stdlib flag.StringVar plumbing
// with a full client CLI surface parsed with pflag.
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
		fmt.Fprintln(os.Stderr, "tftp:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := tftp.DefaultClientConfig()

	var (
		ipAddress   string
		port        uint16
		upload      string
		download    string
		remoteName  string
		blockSize   uint16
		windowSize  uint16
		windowWait  float64
		timeout     float64
		timeoutReq  float64
		maxRetries  int
		rollover    string
		quiet       bool
		verbose     int
	)

	flags := pflag.NewFlagSet("tftp", pflag.ContinueOnError)
	flags.StringVarP(&ipAddress, "ip-address", "i", "127.0.0.1", "remote server IP address")
	flags.Uint16VarP(&port, "port", "p", 69, "remote server port")
	flags.StringVarP(&upload, "upload", "u", "", "local file to upload (WRQ)")
	flags.StringVarP(&download, "download", "d", "", "remote file to download (RRQ)")
	flags.StringVar(&remoteName, "remote-name", "", "upload: remote-side filename (default: local basename); download: local filename (default: the remote name)")
	flags.Uint16VarP(&blockSize, "blocksize", "b", tftp.DefaultBlockSize, "requested block size")
	flags.Uint16VarP(&windowSize, "windowsize", "w", tftp.DefaultWindowSize, "requested window size")
	flags.Float64VarP(&windowWait, "windowwait", "W", 0, "seconds to sleep between packets within a window")
	flags.Float64VarP(&timeout, "timeout", "t", tftp.DefaultTimeout.Seconds(), "seconds before a retransmission")
	flags.Float64VarP(&timeoutReq, "timeout-req", "T", 0, "seconds to wait for the server's initial reply")
	flags.IntVarP(&maxRetries, "maxretries", "m", 6, "max retries before a transfer fails")
	flags.StringVarP(&rollover, "rollover", "R", "0", "block counter rollover policy: 0, 1, n, x")
	flags.BoolVarP(&quiet, "quiet", "q", false, "suppress informational logging")
	flags.CountVarP(&verbose, "verbose", "v", "raise logging verbosity (repeatable)")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}

	if (upload == "") == (download == "") {
		return fmt.Errorf("exactly one of -u/--upload or -d/--download is required")
	}
	ip := net.ParseIP(ipAddress)
	if ip == nil {
		return fmt.Errorf("invalid ip address: %s", ipAddress)
	}
	rolloverPolicy, ok := tftp.ParseRolloverPolicy(rollover)
	if !ok {
		return fmt.Errorf("invalid rollover policy: %s (use n, 0, 1, x)", rollover)
	}

	cfg.RemoteIPAddress = ip
	cfg.RemotePort = port
	cfg.Options.BlockSize = blockSize
	cfg.Options.WindowSize = windowSize
	cfg.Options.WindowWait = tftp.SecondsToDuration(windowWait)
	cfg.Options.Timeout = tftp.SecondsToDuration(timeout)
	cfg.RequestTimeout = tftp.SecondsToDuration(timeoutReq)
	cfg.Private.MaxRetries = maxRetries
	cfg.Private.Rollover = rolloverPolicy

	tftp.ConfigureLogging(quiet, verbose)

	client := tftp.NewClient(cfg)
	if upload != "" {
		return client.Upload(upload, remoteName)
	}
	localName := remoteName
	if localName == "" {
		localName = download
	}
	return client.Download(download, localName)
}
