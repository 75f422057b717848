package protocol

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"hash/crc32"
	"io"
)

// Frame is the on-wire envelope: a message type tag, a gob-encoded payload,
// and a CRC32 checksum over that payload, mirroring the checksum discipline
// internal/wal applies to durable records. The 4-byte length-prefix-then-body
// shape follows the same convention the original daemon's IndexerJob uses
// to hand a serialized payload to its helper process over a pipe.
type Frame struct {
	Type     MessageType
	Payload  []byte
	Checksum uint32
}

func init() {
	gob.Register(ClientMessage{})
	gob.Register(ClientConnectedMessage{})
	gob.Register(JobAnnouncementMessage{})
	gob.Register(ProxyJobAnnouncementMessage{})
	gob.Register(JobRequestMessage{})
	gob.Register(JobResponseMessage{})
	gob.Register(IndexerMessage{})
	gob.Register(VisitFileMessage{})
	gob.Register(VisitFileResponseMessage{})
	gob.Register(ExitMessage{})
}

// Encode gob-encodes msg into a Frame of the given type, computing its
// checksum.
func Encode(t MessageType, msg any) (Frame, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(msg); err != nil {
		return Frame{}, fmt.Errorf("protocol: encode %d: %w", t, err)
	}
	payload := buf.Bytes()
	return Frame{
		Type:     t,
		Payload:  payload,
		Checksum: crc32.ChecksumIEEE(payload),
	}, nil
}

// Decode gob-decodes a Frame's payload into out, after verifying its
// checksum.
func Decode(f Frame, out any) error {
	if crc32.ChecksumIEEE(f.Payload) != f.Checksum {
		return ErrChecksumMismatch
	}
	return gob.NewDecoder(bytes.NewReader(f.Payload)).Decode(out)
}

// WriteFrame writes a length-prefixed Frame to w: a 4-byte big-endian total
// length, a 1-byte message type, a 4-byte checksum, then the payload.
func WriteFrame(w io.Writer, f Frame) error {
	header := make([]byte, 9)
	header[0] = byte(f.Type)
	binary.BigEndian.PutUint32(header[1:5], f.Checksum)
	binary.BigEndian.PutUint32(header[5:9], uint32(len(f.Payload)))

	lenPrefix := make([]byte, 4)
	binary.BigEndian.PutUint32(lenPrefix, uint32(len(header)+len(f.Payload)))

	if _, err := w.Write(lenPrefix); err != nil {
		return fmt.Errorf("protocol: write length prefix: %w", err)
	}
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("protocol: write header: %w", err)
	}
	if len(f.Payload) > 0 {
		if _, err := w.Write(f.Payload); err != nil {
			return fmt.Errorf("protocol: write payload: %w", err)
		}
	}
	return nil
}

// MaxFrameSize bounds a single frame to guard against a corrupt or hostile
// length prefix causing an unbounded allocation.
const MaxFrameSize = 64 << 20

// ReadFrame reads one length-prefixed Frame from r.
func ReadFrame(r io.Reader) (Frame, error) {
	lenPrefix := make([]byte, 4)
	if _, err := io.ReadFull(r, lenPrefix); err != nil {
		return Frame{}, err
	}
	total := binary.BigEndian.Uint32(lenPrefix)
	if total < 9 || total > MaxFrameSize {
		return Frame{}, fmt.Errorf("protocol: invalid frame length %d: %w", total, ErrCorruptFrame)
	}

	body := make([]byte, total)
	if _, err := io.ReadFull(r, body); err != nil {
		return Frame{}, fmt.Errorf("protocol: read frame body: %w", err)
	}

	f := Frame{
		Type:     MessageType(body[0]),
		Checksum: binary.BigEndian.Uint32(body[1:5]),
	}
	payloadLen := binary.BigEndian.Uint32(body[5:9])
	if int(9+payloadLen) != len(body) {
		return Frame{}, ErrCorruptFrame
	}
	f.Payload = body[9:]
	return f, nil
}
