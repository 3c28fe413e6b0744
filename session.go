package tftp

import (
	"bufio"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"
)

// TransferKind distinguishes an upload (WRQ) from a download (RRQ).
type TransferKind int

const (
	KindUpload TransferKind = iota
	KindDownload
)

func (k TransferKind) String() string {
	if k == KindUpload {
		return "upload"
	}
	return "download"
}

// TransferStats summarizes one completed transfer, delivered once to an
// optional StatsRecorder at finalize (spec §6 "StatsRecorder").
type TransferStats struct {
	Kind        TransferKind
	Target      string
	BytesMoved  int64
	Packets     int
	Retransmits int
	FinalRTT    time.Duration
	Status      Status
}

// StatsRecorder observes a transfer's outcome. It is an observability seam,
// not a metrics backend in its own right.
type StatsRecorder func(TransferStats)

// session is the live state of one in-flight transfer (spec §3). It is
// created by Client.Put/Client.Get, mutated only by the goroutine running
// runUpload/runDownload, and destroyed exactly once when finalize runs.
type session struct {
	kind TransferKind

	target string // remote file name as sent on the wire
	tmp    string // download only: temp file path, "" once committed
	local  string // caller-facing local path
	file   *os.File

	bufReader *bufio.Reader // upload: wraps file
	bufWriter *bufio.Writer // download: wraps file

	mode Mode

	opcode   Opcode
	blockNum uint16

	peerAddr *net.UDPAddr
	tidFixed bool

	buffer []byte // last packed outbound datagram, held for retransmission

	timer   *time.Timer
	retries int

	rtt     *rttEstimator
	rtxMult int

	encoder netASCIIEncoder
	decoder netASCIIDecoder
	// encodeOverflow carries NETASCII-encoded bytes produced past the
	// current block's 512-byte limit forward into the next block.
	encodeOverflow []byte

	eofSent bool // upload: the last DATA sent was short; awaiting the final ACK
	eofSeen bool // download: the last DATA received was short

	conn *net.UDPConn

	cfg *config
	log *slog.Logger

	bytesMoved int
	packets    int

	retransmits int // every resend over the whole transfer; retries resets on progress

	finalizeOnce sync.Once
	result       Status
	resultErr    error
}

func newSession(kind TransferKind, target, local, tmp string, f *os.File, mode Mode, peer *net.UDPAddr, conn *net.UDPConn, cfg *config) *session {
	rtxMult := cfg.uploadRtxMult
	if kind == KindDownload {
		rtxMult = cfg.downloadRtxMult
	}
	s := &session{
		kind:     kind,
		target:   target,
		local:    local,
		tmp:      tmp,
		file:     f,
		mode:     mode,
		peerAddr: peer,
		conn:     conn,
		cfg:      cfg,
		rtxMult:  rtxMult,
		rtt:      newRTTEstimator(cfg.timeoutMin, cfg.timeoutMax),
		log:      cfg.logger,
	}
	if f != nil {
		if kind == KindUpload {
			s.bufReader = bufio.NewReaderSize(f, 4096)
		} else {
			s.bufWriter = bufio.NewWriterSize(f, 4096)
		}
	}
	return s
}

// finalize is the single terminal transition (spec §4.5.4): it cancels the
// timer, closes the socket and file handle, removes the temp file unless
// commitDownload already renamed it into place, and delivers the result
// exactly once. Safe to call more than
// once, from more than one goroutine path (a handler, a recovered panic, or
// a timer fire that raced a cancellation).
func (s *session) finalize(status Status, err error) (Status, error) {
	s.finalizeOnce.Do(func() {
		s.stopTimer()
		if s.conn != nil {
			s.conn.Close()
		}
		if s.kind == KindDownload && s.bufWriter != nil {
			s.bufWriter.Flush()
		}
		if s.file != nil {
			s.file.Close()
			s.file = nil
		}
		if s.kind == KindDownload && s.tmp != "" {
			os.Remove(s.tmp)
		}

		s.result, s.resultErr = status, err

		switch {
		case err != nil:
			s.log.Error("transfer failed", "target", s.target, "kind", s.kind, "error", err)
		case !status.Success():
			s.log.Warn("transfer terminated", "target", s.target, "kind", s.kind, "status", status.String())
		default:
			s.log.Debug("transfer complete", "target", s.target, "kind", s.kind,
				"bytes", s.bytesMoved, "packets", s.packets, "rtt", s.rtt.avg)
		}

		if s.cfg.stats != nil {
			s.cfg.stats(TransferStats{
				Kind:        s.kind,
				Target:      s.target,
				BytesMoved:  int64(s.bytesMoved),
				Packets:     s.packets,
				Retransmits: s.retransmits,
				FinalRTT:    s.rtt.avg,
				Status:      status,
			})
		}
	})
	return s.result, s.resultErr
}

// commitDownload flushes and closes the temp file and atomically renames it
// onto the caller-facing local path (spec §4.5.3 step 4). On success it
// clears s.tmp so finalize does not then delete the renamed file.
func (s *session) commitDownload() error {
	if s.bufWriter != nil {
		if err := s.bufWriter.Flush(); err != nil {
			return err
		}
	}
	if s.file != nil {
		err := s.file.Close()
		s.file = nil
		if err != nil {
			return err
		}
	}
	if err := os.Rename(s.tmp, s.local); err != nil {
		return err
	}
	s.tmp = ""
	return nil
}

// armTimer cancels any previously armed timer and arms a fresh one at
// mult * avgRTT (spec invariant: at most one retransmission timer per
// session is armed at a time).
func (s *session) armTimer() {
	s.stopTimer()
	s.timer = time.NewTimer(s.rtt.timeout(s.rtxMult))
}

func (s *session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// send packs p, remembers it for retransmission, and writes it to the
// current peer address.
func (s *session) send(p Packet) error {
	s.buffer = p.Pack()
	_, err := s.conn.WriteToUDP(s.buffer, s.peerAddr)
	s.rtt.sent(time.Now())
	s.packets++
	s.log.Debug("sent packet", "target", s.target, "opcode", p.Opcode(), "to", s.peerAddr)
	return err
}

// resend retransmits the last packed datagram verbatim.
func (s *session) resend() error {
	_, err := s.conn.WriteToUDP(s.buffer, s.peerAddr)
	s.rtt.sent(time.Now())
	s.packets++
	s.retransmits++
	s.log.Warn("retransmitting", "target", s.target, "to", s.peerAddr, "retry", s.retries)
	return err
}

// sendRaw writes data to an arbitrary address without touching the
// session's retransmission state, used for the ERROR(5) reply to a
// spoofed or stale sender (spec §4.5.2/.3 step 2).
func (s *session) sendRaw(addr *net.UDPAddr, data []byte) {
	s.conn.WriteToUDP(data, addr)
}

// acceptFrom implements TID rebinding and enforcement, shared by upload and
// download: the first reply fixes the peer's TID; any later packet from a
// different (address, port) gets an active ERROR(5) reply and is otherwise
// ignored, per RFC 1350 §4 (spec §11 open question 1).
func (s *session) acceptFrom(addr *net.UDPAddr) bool {
	if !s.tidFixed {
		s.peerAddr = addr
		s.tidFixed = true
		s.log.Debug("rebound TID to first reply", "target", s.target, "peer", addr)
		return true
	}
	if addrEqual(s.peerAddr, addr) {
		return true
	}
	s.log.Warn("rejecting packet from unexpected TID", "target", s.target, "from", addr, "expected", s.peerAddr)
	errPkt := &ErrorPacket{Code: ErrCodeUnknownTID, Message: "Unknown TID."}
	s.sendRaw(addr, errPkt.Pack())
	return false
}

func addrEqual(a, b *net.UDPAddr) bool {
	return a.IP.Equal(b.IP) && a.Port == b.Port
}

// classifyPanic maps a recovered panic to the OutOfMemory/StateNotRecoverable
// split in spec §4.5.4/§9.
func classifyPanic(r any) error {
	if err, ok := r.(error); ok {
		if isOutOfMemory(err) {
			return ErrOutOfMemory
		}
		return ErrStateNotRecoverable
	}
	return ErrStateNotRecoverable
}

func isOutOfMemory(err error) bool {
	return err == ErrOutOfMemory
}
