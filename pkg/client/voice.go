package client

import (
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/NicolasHaas/roomspeak/pkg/crypto"
	"github.com/NicolasHaas/roomspeak/pkg/protocol"
)

// VoiceClient manages the UDP voice connection. Outgoing frames carry the
// voice token from login; incoming frames name the speaking session.
type VoiceClient struct {
	conn   *net.UDPConn
	token  uint64
	seqNum uint32
	mu     sync.Mutex

	// Incoming relayed packets are sent here
	IncomingPackets chan *protocol.RelayPacket

	done chan struct{}
}

// NewVoiceClient creates a UDP voice client for the session identified by
// voiceToken, the hex token carried in login_success.
func NewVoiceClient(serverAddr, voiceToken string) (*VoiceClient, error) {
	token, err := crypto.ParseVoiceToken(voiceToken)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}

	addr, err := net.ResolveUDPAddr("udp", serverAddr)
	if err != nil {
		return nil, fmt.Errorf("client: resolve voice addr: %w", err)
	}

	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("client: dial voice: %w", err)
	}

	// Increase buffer sizes
	_ = conn.SetReadBuffer(512 * 1024)
	_ = conn.SetWriteBuffer(512 * 1024)

	return &VoiceClient{
		conn:            conn,
		token:           token,
		IncomingPackets: make(chan *protocol.RelayPacket, 100),
		done:            make(chan struct{}),
	}, nil
}

// SendVoice sends one opaque audio frame with the next sequence number.
// An empty frame only refreshes the server's record of this endpoint.
func (v *VoiceClient) SendVoice(frame []byte) error {
	if len(frame) > protocol.MaxVoicePayload {
		return fmt.Errorf("client: voice frame of %d bytes exceeds %d", len(frame), protocol.MaxVoicePayload)
	}

	v.mu.Lock()
	v.seqNum++
	seqNum := v.seqNum
	v.mu.Unlock()

	pkt := &protocol.VoicePacket{
		Token:   v.token,
		SeqNum:  seqNum,
		Payload: frame,
	}
	_, err := v.conn.Write(pkt.Marshal())
	return err
}

// StartReceiving starts listening for relayed voice packets.
func (v *VoiceClient) StartReceiving() {
	go func() {
		defer close(v.done)
		buf := make([]byte, protocol.RelayHeaderSize+protocol.MaxVoicePayload)

		for {
			n, err := v.conn.Read(buf)
			if err != nil {
				if !isClosedErr(err) {
					slog.Debug("voice read error", "err", err)
				}
				return
			}

			pkt, err := protocol.UnmarshalRelayPacket(buf[:n])
			if err != nil {
				continue
			}

			select {
			case v.IncomingPackets <- pkt:
			default:
				// Drop packet if channel is full (back-pressure)
			}
		}
	}()
}

// Done returns a channel that's closed when the receive loop stops.
func (v *VoiceClient) Done() <-chan struct{} {
	return v.done
}

// Close closes the voice connection.
func (v *VoiceClient) Close() error {
	return v.conn.Close()
}
