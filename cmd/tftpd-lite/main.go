// Command tftpd-lite is a minimal single-socket TFTP server for exercising
// this module's client against a separate peer process by hand; the
// package's own tests run an in-process test server instead.
// It is not a production server: no option negotiation, no access control
// beyond a root directory jail.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/kcexn/tftp"
)

var (
	flgBind string
	flgRoot string
)

func init() {
	flag.StringVar(&flgBind, "bind", ":69", "address to listen on")
	flag.StringVar(&flgRoot, "root", ".", "directory served to clients")
}

func main() {
	flag.Parse()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	addr, err := net.ResolveUDPAddr("udp", flgBind)
	if err != nil {
		logger.Error("resolve bind address", "error", err)
		os.Exit(1)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		logger.Error("listen", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	// Wrapping the listening socket with the ipv4/ipv6 control-message
	// layer lets a multiplexed listener recover the destination address a
	// request arrived on; this server only logs it, a real server would use
	// it to pick the reply's source address on a multi-homed host.
	var p4 *ipv4.PacketConn
	var p6 *ipv6.PacketConn
	if addr.IP.To4() != nil || addr.IP == nil {
		p4 = ipv4.NewPacketConn(conn)
		p4.SetControlMessage(ipv4.FlagDst|ipv4.FlagInterface, true)
	} else {
		p6 = ipv6.NewPacketConn(conn)
		p6.SetControlMessage(ipv6.FlagDst|ipv6.FlagInterface, true)
	}

	srv := &server{root: flgRoot, log: logger, p4: p4, p6: p6}
	logger.Info("tftpd-lite listening", "addr", flgBind, "root", flgRoot)
	if err := srv.serve(conn); err != nil {
		logger.Error("serve", "error", err)
		os.Exit(1)
	}
}

type server struct {
	root string
	log  *slog.Logger
	p4   *ipv4.PacketConn
	p6   *ipv6.PacketConn
}

func (s *server) serve(conn *net.UDPConn) error {
	buf := make([]byte, tftp.MaxDatagramSize+1)
	for {
		n, dst, addr, err := s.readFrom(buf)
		if err != nil {
			return err
		}
		pkt, err := tftp.ParsePacket(buf[:n], n == len(buf))
		if err != nil {
			continue
		}
		switch p := pkt.(type) {
		case *tftp.RQ:
			if dst != nil {
				s.log.Debug("request arrived on", "dst", dst, "from", addr, "filename", p.Filename)
			}
			go s.handleRQ(p, addr)
		default:
			// Anything else arriving on the listening socket is not a new
			// request; it belongs to an in-progress transfer's own socket.
		}
	}
}

// readFrom reads one datagram, reporting the local destination address the
// control-message layer recovered when available (a multi-homed host may
// otherwise not know which of its addresses the request targeted).
func (s *server) readFrom(buf []byte) (n int, dst net.IP, addr *net.UDPAddr, err error) {
	switch {
	case s.p4 != nil:
		var cm *ipv4.ControlMessage
		var src net.Addr
		n, cm, src, err = s.p4.ReadFrom(buf)
		if cm != nil {
			dst = cm.Dst
		}
		if src != nil {
			addr = src.(*net.UDPAddr)
		}
	case s.p6 != nil:
		var cm *ipv6.ControlMessage
		var src net.Addr
		n, cm, src, err = s.p6.ReadFrom(buf)
		if cm != nil {
			dst = cm.Dst
		}
		if src != nil {
			addr = src.(*net.UDPAddr)
		}
	}
	return n, dst, addr, err
}

func (s *server) handleRQ(req *tftp.RQ, client *net.UDPAddr) {
	path, err := s.resolvePath(req.Filename)
	if err != nil {
		s.log.Warn("rejecting path", "filename", req.Filename, "error", err)
		return
	}

	lc, err := net.ListenUDP("udp", localAddrFor(client))
	if err != nil {
		s.log.Error("open transfer socket", "error", err)
		return
	}
	defer lc.Close()

	switch req.Opcode() {
	case tftp.OpRRQ:
		s.serveRead(lc, client, path, req.Mode)
	case tftp.OpWRQ:
		s.serveWrite(lc, client, path, req.Mode)
	}
}

func localAddrFor(peer *net.UDPAddr) *net.UDPAddr {
	if peer.IP.To4() != nil {
		return &net.UDPAddr{IP: net.IPv4zero}
	}
	return &net.UDPAddr{IP: net.IPv6unspecified}
}

func (s *server) resolvePath(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", fmt.Errorf("path escapes root: %q", name)
	}
	return filepath.Join(s.root, filepath.Clean("/"+name)), nil
}

func (s *server) serveRead(conn *net.UDPConn, client *net.UDPAddr, path string, mode tftp.Mode) {
	f, err := os.Open(path)
	if err != nil {
		sendError(conn, client, tftp.ErrCodeFileNotFound, "File not found.")
		return
	}
	defer f.Close()

	var block uint16
	buf := make([]byte, tftp.BlockSize)
	ack := make([]byte, tftp.MaxDatagramSize+1)
	for {
		n, rerr := io.ReadFull(f, buf)
		if rerr != nil && rerr != io.ErrUnexpectedEOF && rerr != io.EOF {
			sendError(conn, client, tftp.ErrCodeNotDefined, rerr.Error())
			return
		}
		block++
		data := &tftp.DataPacket{Block: block, Payload: append([]byte(nil), buf[:n]...)}
		if _, err := conn.WriteToUDP(data.Pack(), client); err != nil {
			return
		}
		an, _, err := conn.ReadFromUDP(ack)
		if err != nil {
			return
		}
		p, err := tftp.ParsePacket(ack[:an], false)
		if err != nil {
			continue
		}
		if a, ok := p.(*tftp.AckPacket); !ok || a.Block != block {
			return
		}
		if n < tftp.BlockSize {
			return
		}
	}
}

func (s *server) serveWrite(conn *net.UDPConn, client *net.UDPAddr, path string, mode tftp.Mode) {
	f, err := os.Create(path)
	if err != nil {
		sendError(conn, client, tftp.ErrCodeAccessViolation, "Access violation.")
		return
	}
	defer f.Close()

	ackPkt := &tftp.AckPacket{Block: 0}
	if _, err := conn.WriteToUDP(ackPkt.Pack(), client); err != nil {
		return
	}

	var expected uint16 = 1
	buf := make([]byte, tftp.MaxDatagramSize+1)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		p, err := tftp.ParsePacket(buf[:n], n == len(buf))
		if err != nil {
			continue
		}
		d, ok := p.(*tftp.DataPacket)
		if !ok || d.Block != expected {
			continue
		}
		if _, err := f.Write(d.Payload); err != nil {
			sendError(conn, client, tftp.ErrCodeDiskFull, "Disk full.")
			return
		}
		ack := &tftp.AckPacket{Block: d.Block}
		if _, err := conn.WriteToUDP(ack.Pack(), client); err != nil {
			return
		}
		if len(d.Payload) < tftp.BlockSize {
			return
		}
		expected++
	}
}

func sendError(conn *net.UDPConn, client *net.UDPAddr, code uint16, msg string) {
	e := &tftp.ErrorPacket{Code: code, Message: msg}
	conn.WriteToUDP(e.Pack(), client)
}
