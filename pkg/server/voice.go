package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/NicolasHaas/roomspeak/pkg/protocol"
)

// VoiceRelay forwards voice datagrams between members of the same room.
// It is a selective forwarder: payloads are never decoded or mixed, and
// delivery is best effort with no retries or acknowledgements.
//
// A datagram is attributed to a session by the voice token issued at login.
// Its source address is recorded in the endpoint table, which is where
// relayed audio for that session is then sent.
type VoiceRelay struct {
	conn      *net.UDPConn
	sessions  *SessionManager
	rooms     *RoomRegistry
	endpoints *EndpointTable
	metrics   *Metrics
	out       []byte // reused relay packet buffer, owned by the read loop
}

// NewVoiceRelay creates a relay serving conn.
func NewVoiceRelay(conn *net.UDPConn, sessions *SessionManager, rooms *RoomRegistry, endpoints *EndpointTable, metrics *Metrics) *VoiceRelay {
	return &VoiceRelay{
		conn:      conn,
		sessions:  sessions,
		rooms:     rooms,
		endpoints: endpoints,
		metrics:   metrics,
		out:       make([]byte, 0, protocol.RelayHeaderSize+protocol.MaxVoicePayload),
	}
}

// StartVoice starts the UDP voice relay.
func (s *Server) StartVoice() error {
	addr, err := net.ResolveUDPAddr("udp", s.cfg.VoiceAddr)
	if err != nil {
		return fmt.Errorf("server: resolve voice addr: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("server: listen voice: %w", err)
	}
	s.voiceConn = conn

	// Increase UDP buffer size for better performance
	if err := conn.SetReadBuffer(1024 * 1024); err != nil {
		slog.Warn("failed to set UDP read buffer", "err", err)
	}
	if err := conn.SetWriteBuffer(1024 * 1024); err != nil {
		slog.Warn("failed to set UDP write buffer", "err", err)
	}

	slog.Info("voice relay listening", "addr", conn.LocalAddr().String())

	relay := NewVoiceRelay(conn, s.sessions, s.rooms, s.endpoints, s.metrics)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		relay.Serve(s.ctx)
	}()

	s.endpoints.StartSweeper(s.ctx, func(removed int) {
		s.metrics.VoiceEndpointsSwept.Add(int64(removed))
		slog.Debug("expired voice endpoints", "count", removed)
	})
	return nil
}

// Serve reads datagrams until ctx is cancelled or the socket is closed.
func (v *VoiceRelay) Serve(ctx context.Context) {
	// One extra byte detects oversized payloads.
	buf := make([]byte, protocol.VoiceHeaderSize+protocol.MaxVoicePayload+1)

	for {
		n, remoteAddr, err := v.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Error("voice read error", "err", err)
			continue
		}
		v.relay(buf[:n], remoteAddr)
	}
}

// relay handles one datagram.
func (v *VoiceRelay) relay(data []byte, from *net.UDPAddr) {
	token, seq, err := protocol.ParseVoiceHeader(data)
	if err != nil || len(data)-protocol.VoiceHeaderSize > protocol.MaxVoicePayload {
		v.metrics.VoicePacketsDropped.Add(1)
		return // too short or too long, discard
	}

	v.metrics.VoicePacketsIn.Add(1)
	v.metrics.VoiceBytesIn.Add(int64(len(data)))

	sender, ok := v.sessions.GetByVoiceToken(token)
	if !ok || sender.Banned {
		v.metrics.VoicePacketsDropped.Add(1)
		return // unknown token, discard
	}

	if v.endpoints.Touch(sender.ID, from) {
		slog.Debug("voice endpoint bound", "user", sender.Username, "addr", from.String())
	}

	room, ok := v.rooms.Get(sender.Room)
	if !ok {
		v.metrics.VoicePacketsDropped.Add(1)
		return
	}

	payload := data[protocol.VoiceHeaderSize:]
	v.out = protocol.AppendRelayPacket(v.out[:0], sender.ID, seq, payload)

	for _, name := range room.Members() {
		if name == sender.Username {
			continue // don't echo back to sender
		}
		member, ok := v.sessions.Get(name)
		if !ok {
			continue
		}
		addr, ok := v.endpoints.Lookup(member.ID)
		if !ok {
			continue // member has not sent voice yet, or went silent
		}
		if _, err := v.conn.WriteToUDP(v.out, addr); err != nil {
			slog.Debug("voice forward error", "target", name, "err", err)
			continue
		}
		v.metrics.VoicePacketsOut.Add(1)
		v.metrics.VoiceBytesOut.Add(int64(len(v.out)))
	}
}
