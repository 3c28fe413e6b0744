package tftp

import (
	"context"
	"fmt"
	"time"
)

// runDownload drives an RRQ transfer to completion (spec §4.5.3): send RRQ,
// then ACK each DATA block as it arrives in order until a short block
// signals EOF, at which point the temp file is committed to its final path.
func runDownload(ctx context.Context, s *session) (status Status, err error) {
	defer func() {
		if r := recover(); r != nil {
			status, err = s.finalize(Status{}, classifyPanic(r))
		}
	}()

	reader := startReader(s.conn)

	req := NewRRQ(s.target, s.mode)
	if err := s.send(req); err != nil {
		return s.finalize(Status{}, fmt.Errorf("tftp: send RRQ: %w", err))
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

			case *DataPacket:
				next := s.blockNum + 1
				switch p.Block {
				case next:
					s.rtt.observe(time.Now())
					if werr := s.writeDownloadBlock(p.Payload); werr != nil {
						return s.finalize(Status{}, fmt.Errorf("tftp: write %s: %w", s.local, werr))
					}
					s.blockNum = p.Block
					s.bytesMoved += len(p.Payload)
					s.retries = 0
					if len(p.Payload) < BlockSize {
						s.eofSeen = true
					}
					if err := s.send(&AckPacket{Block: s.blockNum}); err != nil {
						return s.finalize(Status{}, fmt.Errorf("tftp: send ACK: %w", err))
					}
					if s.eofSeen {
						if cerr := s.commitDownload(); cerr != nil {
							return s.finalize(Status{}, fmt.Errorf("tftp: commit %s: %w", s.local, cerr))
						}
						return s.finalize(Status{}, nil)
					}
					s.armTimer()

				case s.blockNum:
					// Duplicate of the last block: our ACK was lost. Re-ACK
					// without writing the payload again.
					if err := s.send(&AckPacket{Block: s.blockNum}); err != nil {
						return s.finalize(Status{}, fmt.Errorf("tftp: send ACK: %w", err))
					}
					s.armTimer()

				default:
					// Neither the next block nor a duplicate: ignore entirely,
					// do not even ACK (spec §4.5.3 edge case).
					continue
				}

			default:
				continue
			}
		}
	}
}

// writeDownloadBlock writes one block's payload to the temp file, decoding
// NETASCII line endings when the transfer is not in octet mode.
func (s *session) writeDownloadBlock(payload []byte) error {
	if s.mode == ModeOctet {
		_, err := s.bufWriter.Write(payload)
		return err
	}
	var out []byte
	out = s.decoder.decode(out, payload)
	if len(payload) < BlockSize {
		out = s.decoder.flush(out)
	}
	_, err := s.bufWriter.Write(out)
	return err
}
