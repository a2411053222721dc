// Package protocol defines control message framing and the voice datagram format.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	pb "github.com/NicolasHaas/roomspeak/pkg/protocol/pb"
)

const (
	// VoiceHeaderSize is the byte size of a client → server voice header.
	// [voiceToken(8) | seqNum(4)] = 12 bytes
	VoiceHeaderSize = 12

	// RelayHeaderSize is the byte size of a server → client voice header.
	// [sessionID(4) | seqNum(4)] = 8 bytes
	RelayHeaderSize = 8

	// MaxVoicePayload is the largest audio payload the relay forwards.
	// Sized for one 1024-sample frame of 16-bit stereo PCM.
	MaxVoicePayload = 4096

	// MaxControlMessage is the maximum control message size (64KB).
	MaxControlMessage = 65536
)

// ErrFrameTooLarge is returned when a control frame exceeds MaxControlMessage.
var ErrFrameTooLarge = errors.New("protocol: message too large")

// VoicePacket is a voice datagram sent by a client to the relay.
type VoicePacket struct {
	Token   uint64 // 8 bytes: voice token issued in login_success
	SeqNum  uint32 // 4 bytes: sender sequence number
	Payload []byte // opaque audio frame
}

// Marshal serializes the entire voice packet to bytes.
func (p *VoicePacket) Marshal() []byte {
	buf := make([]byte, VoiceHeaderSize+len(p.Payload))
	binary.BigEndian.PutUint64(buf[0:8], p.Token)
	binary.BigEndian.PutUint32(buf[8:12], p.SeqNum)
	copy(buf[VoiceHeaderSize:], p.Payload)
	return buf
}

// ParseVoiceHeader reads the header fields of a client voice datagram without copying.
func ParseVoiceHeader(data []byte) (token uint64, seqNum uint32, err error) {
	if len(data) < VoiceHeaderSize {
		return 0, 0, errors.New("protocol: packet too short")
	}
	return binary.BigEndian.Uint64(data[0:8]), binary.BigEndian.Uint32(data[8:12]), nil
}

// UnmarshalVoicePacket parses a voice packet from raw bytes.
func UnmarshalVoicePacket(data []byte) (*VoicePacket, error) {
	token, seq, err := ParseVoiceHeader(data)
	if err != nil {
		return nil, err
	}
	pkt := &VoicePacket{
		Token:   token,
		SeqNum:  seq,
		Payload: make([]byte, len(data)-VoiceHeaderSize),
	}
	copy(pkt.Payload, data[VoiceHeaderSize:])
	return pkt, nil
}

// RelayPacket is a voice datagram forwarded by the relay to room-mates.
type RelayPacket struct {
	SessionID uint32 // 4 bytes: speaking session
	SeqNum    uint32 // 4 bytes: sender sequence number, passed through
	Payload   []byte // opaque audio frame, passed through verbatim
}

// AppendRelayPacket appends the relay encoding of a frame to dst.
func AppendRelayPacket(dst []byte, sessionID, seqNum uint32, payload []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, sessionID)
	dst = binary.BigEndian.AppendUint32(dst, seqNum)
	return append(dst, payload...)
}

// UnmarshalRelayPacket parses a relayed voice datagram.
func UnmarshalRelayPacket(data []byte) (*RelayPacket, error) {
	if len(data) < RelayHeaderSize {
		return nil, errors.New("protocol: relay packet too short")
	}
	pkt := &RelayPacket{
		SessionID: binary.BigEndian.Uint32(data[0:4]),
		SeqNum:    binary.BigEndian.Uint32(data[4:8]),
		Payload:   make([]byte, len(data)-RelayHeaderSize),
	}
	copy(pkt.Payload, data[RelayHeaderSize:])
	return pkt, nil
}

// WriteFrame writes a length-prefixed payload in a single Write call.
// Format: [4-byte big-endian length][payload]
func WriteFrame(w io.Writer, data []byte) error {
	if len(data) > MaxControlMessage {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(data))
	}
	buf := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(buf, uint32(len(data))) //nolint:gosec // length already bounds-checked above
	copy(buf[4:], data)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("protocol: write frame: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed payload.
func ReadFrame(r io.Reader) ([]byte, error) {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return nil, fmt.Errorf("protocol: read length: %w", err)
	}
	length := binary.BigEndian.Uint32(lenBuf)
	if length > MaxControlMessage {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("protocol: read payload: %w", err)
	}
	return data, nil
}

// WriteControlMessage marshals msg and writes it as one frame.
func WriteControlMessage(w io.Writer, msg pb.Message) error {
	data, err := pb.Marshal(msg)
	if err != nil {
		return fmt.Errorf("protocol: marshal: %w", err)
	}
	return WriteFrame(w, data)
}

// ReadEvent reads one frame and decodes it as a server event.
func ReadEvent(r io.Reader) (pb.Event, error) {
	data, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}
	evt, err := pb.DecodeEvent(data)
	if err != nil {
		return nil, fmt.Errorf("protocol: unmarshal: %w", err)
	}
	return evt, nil
}
