// This file replaces eahydra-gotftp's client.go (a single-block Get/Put
// pair hand-coding its own opcode switch) with a Client driver: issue
// RRQ or WRQ, await OACK/ACK/ERROR, then run a transfer on its own
// dedicated socket.
package tftp

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"
)

// Client issues a single upload or download per call, each over its own
// ephemeral UDP socket.
type Client struct {
	Config ClientConfig
}

// NewClient builds a Client from cfg.
func NewClient(cfg ClientConfig) *Client {
	return &Client{Config: cfg}
}

func (c *Client) dial() (*UDPSocket, error) {
	remote, err := net.ResolveUDPAddr("udp", c.Config.Addr())
	if err != nil {
		return nil, err
	}
	return DialUDPSocket(nil, remote)
}

// requestTimeout is how long the client waits for the server's initial
// OACK/ACK/ERROR reply, falling back to the per-packet timeout when no
// distinct request timeout was configured.
func (c *Client) requestTimeout() time.Duration {
	if c.Config.RequestTimeout > 0 {
		return c.Config.RequestTimeout
	}
	return c.Config.Options.Timeout
}

// Download issues a RRQ for remoteName and writes the result to
// localPath, overwriting it.
func (c *Client) Download(remoteName, localPath string) error {
	sock, err := c.dial()
	if err != nil {
		return err
	}
	defer sock.Close()

	reqOpts, kinds := RequestOptions(c.Config.Options)
	if err := sock.SetReadTimeout(c.requestTimeout()); err != nil {
		return err
	}
	if err := sock.Send(&RRQ{Filename: remoteName, Mode: "octet", Options: reqOpts}); err != nil {
		return err
	}

	resp, err := Recv(sock)
	if err != nil {
		return err
	}

	file, err := os.Create(localPath)
	if err != nil {
		return err
	}

	switch p := resp.(type) {
	case *Oack:
		applied := c.Config.Options.Apply(p.Options, kinds)
		if err := SendAck(sock, 0); err != nil {
			file.Close()
			return err
		}
		recv := NewReceiverTransfer(sock, file, applied, c.Config.Private)
		err = recv.Run()
	case *Data:
		// Bare RRQ: the server skipped OACK and started DATA(1) directly.
		recv := NewReceiverTransfer(sock, file, c.Config.Options, c.Config.Private)
		err = recv.RunSeeded(p)
	case *ErrorPacket:
		err = &WireError{Code: p.Code, Msg: p.Msg}
	default:
		err = fmt.Errorf("tftp: unexpected %T in response to RRQ", p)
	}

	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil && c.Config.Private.CleanOnError {
		os.Remove(localPath)
	}
	return err
}

// Upload issues a WRQ and sends localPath's contents to the server,
// under remoteName (or localPath's basename if remoteName is empty).
func (c *Client) Upload(localPath, remoteName string) error {
	if remoteName == "" {
		remoteName = filepath.Base(localPath)
	}

	file, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	sock, err := c.dial()
	if err != nil {
		return err
	}
	defer sock.Close()

	opts := c.Config.Options
	if c.Config.Options.TransferSize != nil {
		size := uint64(info.Size())
		opts.TransferSize = &size
	}
	reqOpts, kinds := RequestOptions(opts)

	if err := sock.SetReadTimeout(c.requestTimeout()); err != nil {
		return err
	}
	if err := sock.Send(&WRQ{Filename: remoteName, Mode: "octet", Options: reqOpts}); err != nil {
		return err
	}

	resp, err := Recv(sock)
	if err != nil {
		return err
	}

	var applied ProtocolOptions
	switch p := resp.(type) {
	case *Oack:
		applied = c.Config.Options.Apply(p.Options, kinds)
	case *Ack:
		if p.Block != 0 {
			return fmt.Errorf("tftp: expected ACK(0), got ACK(%d)", p.Block)
		}
		applied = DefaultProtocolOptions()
	case *ErrorPacket:
		return &WireError{Code: p.Code, Msg: p.Msg}
	default:
		return fmt.Errorf("tftp: unexpected %T in response to WRQ", p)
	}

	sender := NewSenderTransfer(sock, file, applied, c.Config.Private, false)
	return sender.Run()
}
