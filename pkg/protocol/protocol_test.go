package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"

	pb "github.com/NicolasHaas/roomspeak/pkg/protocol/pb"
)

func TestVoicePacketRoundTrip(t *testing.T) {
	in := &VoicePacket{Token: 0x0102030405060708, SeqNum: 42, Payload: []byte{0xde, 0xad, 0xbe, 0xef}}
	data := in.Marshal()
	if len(data) != VoiceHeaderSize+4 {
		t.Fatalf("len = %d", len(data))
	}

	out, err := UnmarshalVoicePacket(data)
	if err != nil {
		t.Fatalf("UnmarshalVoicePacket: %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("voice packet mismatch (-want +got):\n%s", diff)
	}

	if _, err := UnmarshalVoicePacket(data[:VoiceHeaderSize-1]); err == nil {
		t.Errorf("short packet: expected error")
	}
}

func TestRelayPacketRoundTrip(t *testing.T) {
	data := AppendRelayPacket(nil, 99, 7, []byte("pcm"))
	got, err := UnmarshalRelayPacket(data)
	if err != nil {
		t.Fatalf("UnmarshalRelayPacket: %v", err)
	}
	want := &RelayPacket{SessionID: 99, SeqNum: 7, Payload: []byte("pcm")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("relay packet mismatch (-want +got):\n%s", diff)
	}
}

func TestControlMessageFraming(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteControlMessage(&buf, &pb.UserJoined{Username: "alice", Timestamp: "t"}); err != nil {
		t.Fatalf("WriteControlMessage: %v", err)
	}
	if err := WriteControlMessage(&buf, &pb.Error{Message: "nope", Code: "banned"}); err != nil {
		t.Fatalf("WriteControlMessage: %v", err)
	}

	first, err := ReadEvent(&buf)
	if err != nil {
		t.Fatalf("ReadEvent: %v", err)
	}
	if diff := cmp.Diff(pb.Event(&pb.UserJoined{Username: "alice", Timestamp: "t"}), first); diff != "" {
		t.Errorf("first frame mismatch (-want +got):\n%s", diff)
	}
	second, err := ReadEvent(&buf)
	if err != nil {
		t.Fatalf("ReadEvent: %v", err)
	}
	if e, ok := second.(*pb.Error); !ok || e.Code != "banned" {
		t.Errorf("second frame = %#v", second)
	}

	if _, err := ReadEvent(&buf); !errors.Is(err, io.EOF) {
		t.Errorf("drained reader: err = %v, want EOF", err)
	}
}

func TestReadFrameRejectsOversized(t *testing.T) {
	hdr := make([]byte, 4)
	binary.BigEndian.PutUint32(hdr, MaxControlMessage+1)
	if _, err := ReadFrame(bytes.NewReader(hdr)); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("ReadFrame err = %v, want ErrFrameTooLarge", err)
	}
	if err := WriteFrame(io.Discard, make([]byte, MaxControlMessage+1)); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("WriteFrame err = %v, want ErrFrameTooLarge", err)
	}
}

func TestReadFrameTruncated(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, []byte(`{"type":"ping"}`)); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	truncated := buf.Bytes()[:buf.Len()-3]
	if _, err := ReadFrame(bytes.NewReader(truncated)); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("ReadFrame err = %v, want ErrUnexpectedEOF", err)
	}
}
