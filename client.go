package tftp

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
)

// DefaultPort is the well-known TFTP service port (RFC 1350 §4).
const DefaultPort = 69

// Client is a TFTP client bound to one remote host. A Client has no
// persistent connection: each Put/Get opens its own ephemeral UDP socket,
// exactly as RFC 1350's per-transfer TID model requires.
type Client struct {
	host string
	cfg  *config
}

// NewClient builds a Client targeting host, which may be "host" or
// "host:port"; the default port applies when none is given.
func NewClient(host string, opts ...ClientOption) *Client {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return &Client{host: host, cfg: cfg}
}

// Put uploads local to remote on the server, in the given mode.
func (c *Client) Put(ctx context.Context, local, remote string, mode Mode) (Status, error) {
	f, err := os.Open(local)
	if err != nil {
		return Status{}, fmt.Errorf("tftp: open %s: %w", local, err)
	}

	peer, conn, err := c.dial(ctx)
	if err != nil {
		f.Close()
		return Status{}, err
	}

	s := newSession(KindUpload, remote, local, "", f, mode, peer, conn, c.cfg)
	return runUpload(ctx, s)
}

// Get downloads remote from the server to local, in the given mode. MAIL
// mode is rejected: the source accepts it on uploads only (SPEC_FULL.md §11
// note 3).
func (c *Client) Get(ctx context.Context, remote, local string, mode Mode) (Status, error) {
	if mode == ModeMail {
		return Status{}, ErrInvalidMode
	}

	tmp, f, err := openTemp(local)
	if err != nil {
		return Status{}, fmt.Errorf("tftp: create temp for %s: %w", local, err)
	}

	peer, conn, err := c.dial(ctx)
	if err != nil {
		f.Close()
		os.Remove(tmp)
		return Status{}, err
	}

	s := newSession(KindDownload, remote, local, tmp, f, mode, peer, conn, c.cfg)
	return runDownload(ctx, s)
}

// dial resolves the client's host and opens the ephemeral per-transfer
// socket used for exactly one request/reply exchange plus its data phase.
func (c *Client) dial(ctx context.Context) (*net.UDPAddr, *net.UDPConn, error) {
	peer, err := resolve(ctx, c.cfg.resolver, c.host, DefaultPort)
	if err != nil {
		return nil, nil, err
	}
	local := &net.UDPAddr{IP: net.IPv4zero}
	if peer.IP.To4() == nil {
		local = &net.UDPAddr{IP: net.IPv6unspecified}
	}
	conn, err := net.ListenUDP("udp", local)
	if err != nil {
		return nil, nil, fmt.Errorf("tftp: listen: %w", err)
	}
	return peer, conn, nil
}

// openTemp creates the download's temp file in the system temp directory.
func openTemp(local string) (string, *os.File, error) {
	f, err := os.CreateTemp("", filepath.Base(local)+".tftp-*")
	if err != nil {
		return "", nil, err
	}
	return f.Name(), f, nil
}
