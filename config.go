// This file mirrors original_source/src/config.rs's split between a
// server-side Config and a client-side ClientConfig, adapted to hold
// parsed, validated values rather than to parse os.Args itself — that
// job belongs to cmd/tftpd and cmd/tftp, which build these structs from
// pflag.FlagSet.
package tftp

import (
	"fmt"
	"net"
	"time"
)

// SecondsToDuration converts a CLI-supplied fractional-seconds value
// (the -t/--timeout, -W/--windowwait, -T/--timeout-req flags all take
// seconds as a float) into a time.Duration.
func SecondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

// ServerConfig holds everything a Listener needs to bind and serve.
type ServerConfig struct {
	IPAddress net.IP
	Port      uint16
	// Directory is the default root; ReceiveDirectory and SendDirectory
	// fall back to it when empty.
	Directory        string
	ReceiveDirectory string
	SendDirectory    string
	SinglePort       bool
	ReadOnly         bool
	Overwrite        bool

	Options ProtocolOptions
	Private PrivateOptions
}

// DefaultServerConfig matches original_source/src/config.rs's Default
// impl: loopback, port 69, RFC-default protocol and private options.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		IPAddress: net.ParseIP("127.0.0.1"),
		Port:      69,
		Options:   DefaultProtocolOptions(),
		Private:   DefaultPrivateOptions(),
	}
}

// Normalize fills ReceiveDirectory/SendDirectory from Directory when
// left empty, exactly as Config::new does after parsing in the Rust
// original.
func (c *ServerConfig) Normalize() {
	if c.Directory == "" {
		c.Directory = "."
	}
	if c.ReceiveDirectory == "" {
		c.ReceiveDirectory = c.Directory
	}
	if c.SendDirectory == "" {
		c.SendDirectory = c.Directory
	}
}

// Addr renders the bind address for net.ListenPacket.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.IPAddress.String(), c.Port)
}

// ClientConfig holds everything a Client driver needs to issue a single
// upload or download.
type ClientConfig struct {
	RemoteIPAddress net.IP
	RemotePort      uint16
	// Upload is the local file to send on a WRQ; Download is the
	// remote filename to request on a RRQ. Upload, Download and
	// RemoteFilename are not read by Client: Client.Upload and
	// Client.Download take the file names as arguments.
	Upload, Download string
	RemoteFilename   string

	Options ProtocolOptions
	Private PrivateOptions
	// RequestTimeout bounds how long the client waits for the initial
	// OACK/ACK/ERROR reply to its RRQ/WRQ, independent of the
	// per-packet Options.Timeout used once the transfer is underway.
	RequestTimeout time.Duration
}

// DefaultClientConfig matches the server's RFC defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		RemoteIPAddress: net.ParseIP("127.0.0.1"),
		RemotePort:      69,
		Options:         DefaultProtocolOptions(),
		Private:         DefaultPrivateOptions(),
	}
}

// Addr renders the remote address for net.Dial/net.ResolveUDPAddr.
func (c ClientConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.RemoteIPAddress.String(), c.RemotePort)
}
