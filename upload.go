package tftp

import (
	"context"
	"fmt"
	"io"
	"time"
)

// runUpload drives a WRQ transfer to completion (spec §4.5.2): send WRQ,
// wait for ACK(0) from the (as yet unknown) TID, then send DATA blocks in
// lock-step with their ACKs until a short block signals EOF.
//
// s.blockNum doubles as "last DATA block sent" and "ACK block currently
// awaited": the two are numerically identical from WRQ (both start at 0)
// through to completion, so there is no separate "expected" variable to
// keep in sync.
func runUpload(ctx context.Context, s *session) (status Status, err error) {
	defer func() {
		if r := recover(); r != nil {
			status, err = s.finalize(Status{}, classifyPanic(r))
		}
	}()

	reader := startReader(s.conn)

	req := NewWRQ(s.target, s.mode)
	if err := s.send(req); err != nil {
		return s.finalize(Status{}, fmt.Errorf("tftp: send WRQ: %w", err))
	}
	s.armTimer()

	for {
		select {
		case <-ctx.Done():
			return s.finalize(Status{0, "Cancelled"}, nil)

		case <-s.timer.C:
			if s.retries >= s.cfg.maxRetries {
				return s.finalize(Status{0, "Timed out"}, nil)
			}
			s.retries++
			if err := s.resend(); err != nil {
				return s.finalize(Status{}, fmt.Errorf("tftp: resend: %w", err))
			}
			s.armTimer()

		case in := <-reader:
			if in.err != nil {
				return s.finalize(Status{}, fmt.Errorf("tftp: socket read: %w", in.err))
			}
			if !s.acceptFrom(in.addr) {
				continue
			}
			pkt, perr := ParsePacket(in.data, in.truncated)
			if perr != nil {
				return s.finalize(Status{4, "Invalid server response."}, nil)
			}
			s.log.Debug("received packet", "target", s.target, "opcode", pkt.Opcode(), "from", in.addr)

			switch p := pkt.(type) {
			case *ErrorPacket:
				return s.finalize(Status{p.Code, p.Message}, nil)

			case *AckPacket:
				if p.Block != s.blockNum {
					continue // stale or out-of-order ACK: ignore, timer will drive a retry
				}
				s.rtt.observe(time.Now())
				if s.eofSent {
					return s.finalize(Status{}, nil)
				}
				s.retries = 0
				payload, rerr := s.nextUploadBlock()
				if rerr != nil && rerr != io.EOF {
					return s.finalize(Status{}, fmt.Errorf("tftp: read %s: %w", s.local, rerr))
				}
				s.blockNum++
				if len(payload) < BlockSize {
					s.eofSent = true
				}
				if err := s.send(&DataPacket{Block: s.blockNum, Payload: payload}); err != nil {
					return s.finalize(Status{}, fmt.Errorf("tftp: send DATA: %w", err))
				}
				s.bytesMoved += len(payload)
				s.armTimer()

			default:
				continue
			}
		}
	}
}

// nextUploadBlock reads and, for NETASCII mode, translates the next block
// worth of file content. Encoded output can run ahead of the 512-byte block
// boundary (one raw CR becomes two bytes); any excess is held in
// s.encodeOverflow for the following call.
func (s *session) nextUploadBlock() ([]byte, error) {
	if s.mode == ModeOctet {
		buf := make([]byte, BlockSize)
		n, err := io.ReadFull(s.bufReader, buf)
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			return nil, err
		}
		return buf[:n], nil
	}

	out := s.encodeOverflow
	s.encodeOverflow = nil
	var raw [1]byte
	var readErr error
	for len(out) < BlockSize {
		n, err := s.bufReader.Read(raw[:])
		if n > 0 {
			out = s.encoder.encode(out, raw[:n])
		}
		if err != nil {
			if err == io.EOF {
				out = s.encoder.flush(out)
			}
			readErr = err
			break
		}
	}
	if len(out) > BlockSize {
		s.encodeOverflow = append([]byte(nil), out[BlockSize:]...)
		out = out[:BlockSize]
	}
	if readErr != nil && readErr != io.EOF {
		return nil, readErr
	}
	return out, nil
}
