package tftp

import (
	"bytes"
	"testing"
)

func TestRequestPackUnpack(t *testing.T) {
	for _, filename := range []string{"a.txt", "test-filename/with-subdir"} {
		for _, mode := range []Mode{ModeOctet, ModeNetASCII, ModeMail} {
			for _, op := range []Opcode{OpRRQ, OpWRQ} {
				var p *RQ
				if op == OpRRQ {
					p = NewRRQ(filename, mode)
				} else {
					p = NewWRQ(filename, mode)
				}
				decoded, err := ParsePacket(p.Pack(), false)
				if err != nil {
					t.Fatalf("parse %s: %v", op, err)
				}
				got, ok := decoded.(*RQ)
				if !ok {
					t.Fatalf("decoded type = %T, want *RQ", decoded)
				}
				if got.Filename != filename || got.Mode != mode || got.op != op {
					t.Errorf("round trip mismatch: got %+v, want filename=%s mode=%s op=%s", got, filename, mode, op)
				}
			}
		}
	}
}

func TestRequestModeCaseInsensitive(t *testing.T) {
	p := NewRRQ("f", ModeOctet)
	raw := p.Pack()
	raw = append(raw[:len(raw)-len("octet\x00")], []byte("OCTET\x00")...)
	decoded, err := ParsePacket(raw, false)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if decoded.(*RQ).Mode != ModeOctet {
		t.Errorf("mode should be case-insensitive on receive")
	}
}

func TestDataPackUnpack(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAA}, 88)
	p := &DataPacket{Block: 7, Payload: payload}
	decoded, err := ParsePacket(p.Pack(), false)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got := decoded.(*DataPacket)
	if got.Block != 7 || !bytes.Equal(got.Payload, payload) {
		t.Errorf("round trip mismatch: got %+v", got)
	}
}

func TestDataZeroLength(t *testing.T) {
	p := &DataPacket{Block: 2, Payload: nil}
	decoded, err := ParsePacket(p.Pack(), false)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got := decoded.(*DataPacket)
	if got.Block != 2 || len(got.Payload) != 0 {
		t.Errorf("round trip mismatch: got %+v", got)
	}
}

func TestAckPackUnpack(t *testing.T) {
	p := &AckPacket{Block: 65535}
	decoded, err := ParsePacket(p.Pack(), false)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if decoded.(*AckPacket).Block != 65535 {
		t.Errorf("round trip mismatch: got %+v", decoded)
	}
}

func TestErrorPackUnpack(t *testing.T) {
	p := &ErrorPacket{Code: ErrCodeFileNotFound, Message: "File not found."}
	decoded, err := ParsePacket(p.Pack(), false)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got := decoded.(*ErrorPacket)
	if got.Code != ErrCodeFileNotFound || got.Message != "File not found." {
		t.Errorf("round trip mismatch: got %+v", got)
	}
}

func TestParsePacketRejectsShort(t *testing.T) {
	for _, data := range [][]byte{
		{},
		{0x00},
		{0x00, 0x04}, // ACK with no block number
	} {
		if _, err := ParsePacket(data, false); err == nil {
			t.Errorf("expected error parsing %x", data)
		}
	}
}

func TestParsePacketRejectsUnknownOpcode(t *testing.T) {
	if _, err := ParsePacket([]byte{0x00, 0x09, 0x00, 0x00}, false); err == nil {
		t.Error("expected error for unknown opcode")
	} else if _, ok := err.(*IllegalOperationError); !ok {
		t.Errorf("error type = %T, want *IllegalOperationError", err)
	}
}

func TestParsePacketRejectsTruncated(t *testing.T) {
	p := &DataPacket{Block: 1, Payload: bytes.Repeat([]byte{1}, BlockSize)}
	if _, err := ParsePacket(p.Pack(), true); err == nil {
		t.Error("expected error for truncated datagram")
	}
}

func TestRequestRejectsUnterminatedStrings(t *testing.T) {
	raw := []byte{0x00, 0x01, 'a', 'b', 'c'} // no null terminators at all
	if _, err := ParsePacket(raw, false); err == nil {
		t.Error("expected error for missing null terminators")
	}
}

func TestRequestRejectsUnknownMode(t *testing.T) {
	raw := append([]byte{0x00, 0x01}, "f.txt\x00bogus\x00"...)
	if _, err := ParsePacket(raw, false); err == nil {
		t.Error("expected error for unknown mode string")
	}
}
