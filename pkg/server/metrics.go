package server

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"
)

// Metrics tracks server runtime statistics.
// All counters use atomic operations for lock-free concurrent access.
type Metrics struct {
	startTime time.Time

	// Connection counters
	TotalConnections  atomic.Int64 // lifetime control connections accepted (TCP + WebSocket)
	ActiveConnections atomic.Int64 // current open control connections
	FailedAuths       atomic.Int64 // failed login attempts
	SuccessfulAuths   atomic.Int64 // successful logins
	Registrations     atomic.Int64 // accounts created
	TotalDisconnects  atomic.Int64 // total client disconnects (clean + unclean)
	MalformedMessages atomic.Int64 // undecodable control payloads
	SlowConsumers     atomic.Int64 // connections dropped for a full outbound queue

	// Voice counters
	VoicePacketsIn      atomic.Int64 // total UDP voice packets received
	VoicePacketsOut     atomic.Int64 // total UDP voice packets forwarded
	VoicePacketsDropped atomic.Int64 // dropped packets (short, unknown token, no room)
	VoiceBytesIn        atomic.Int64 // total voice bytes received
	VoiceBytesOut       atomic.Int64 // total voice bytes forwarded
	VoiceEndpointsSwept atomic.Int64 // endpoint entries expired by the sweeper

	// Chat counters
	ChatMessagesSent atomic.Int64 // total chat messages relayed
	ChatRejected     atomic.Int64 // chat refused (muted, rate limited, invalid)

	// Room counters
	RoomsCreated atomic.Int64 // rooms created during this run
	RoomJoins    atomic.Int64 // successful join_room requests

	// Admin counters
	MuteCount  atomic.Int64 // users muted
	KickCount  atomic.Int64 // users kicked
	BanCount   atomic.Int64 // users banned
	UnbanCount atomic.Int64 // users unbanned
}

// NewMetrics creates a new Metrics instance with the start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
	}
}

// MetricsSnapshot is a point-in-time view of all metrics as a serializable struct.
type MetricsSnapshot struct {
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptime_seconds"`

	ActiveConnections int64 `json:"active_connections"`
	TotalConnections  int64 `json:"total_connections"`
	SuccessfulAuths   int64 `json:"successful_auths"`
	FailedAuths       int64 `json:"failed_auths"`
	Registrations     int64 `json:"registrations"`
	TotalDisconnects  int64 `json:"total_disconnects"`
	MalformedMessages int64 `json:"malformed_messages"`
	SlowConsumers     int64 `json:"slow_consumers"`

	VoicePacketsIn      int64 `json:"voice_packets_in"`
	VoicePacketsOut     int64 `json:"voice_packets_out"`
	VoicePacketsDropped int64 `json:"voice_packets_dropped"`
	VoiceBytesIn        int64 `json:"voice_bytes_in"`
	VoiceBytesOut       int64 `json:"voice_bytes_out"`
	VoiceEndpointsSwept int64 `json:"voice_endpoints_swept"`

	ChatMessagesSent int64 `json:"chat_messages_sent"`
	ChatRejected     int64 `json:"chat_rejected"`

	RoomsCreated int64 `json:"rooms_created"`
	RoomJoins    int64 `json:"room_joins"`

	MuteCount  int64 `json:"mute_count"`
	KickCount  int64 `json:"kick_count"`
	BanCount   int64 `json:"ban_count"`
	UnbanCount int64 `json:"unban_count"`
}

// Snapshot returns a read-consistent snapshot of all metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	uptime := time.Since(m.startTime)
	return MetricsSnapshot{
		Uptime:              uptime.Truncate(time.Second).String(),
		UptimeSeconds:       int64(uptime.Seconds()),
		ActiveConnections:   m.ActiveConnections.Load(),
		TotalConnections:    m.TotalConnections.Load(),
		SuccessfulAuths:     m.SuccessfulAuths.Load(),
		FailedAuths:         m.FailedAuths.Load(),
		Registrations:       m.Registrations.Load(),
		TotalDisconnects:    m.TotalDisconnects.Load(),
		MalformedMessages:   m.MalformedMessages.Load(),
		SlowConsumers:       m.SlowConsumers.Load(),
		VoicePacketsIn:      m.VoicePacketsIn.Load(),
		VoicePacketsOut:     m.VoicePacketsOut.Load(),
		VoicePacketsDropped: m.VoicePacketsDropped.Load(),
		VoiceBytesIn:        m.VoiceBytesIn.Load(),
		VoiceBytesOut:       m.VoiceBytesOut.Load(),
		VoiceEndpointsSwept: m.VoiceEndpointsSwept.Load(),
		ChatMessagesSent:    m.ChatMessagesSent.Load(),
		ChatRejected:        m.ChatRejected.Load(),
		RoomsCreated:        m.RoomsCreated.Load(),
		RoomJoins:           m.RoomJoins.Load(),
		MuteCount:           m.MuteCount.Load(),
		KickCount:           m.KickCount.Load(),
		BanCount:            m.BanCount.Load(),
		UnbanCount:          m.UnbanCount.Load(),
	}
}

// JSON returns the metrics snapshot as a JSON string.
func (m *Metrics) JSON() string {
	data, err := json.MarshalIndent(m.Snapshot(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// LogSummary writes a periodic metrics summary to the logger.
func (m *Metrics) LogSummary() {
	s := m.Snapshot()
	slog.Info("metrics",
		"uptime", s.Uptime,
		"connections", s.ActiveConnections,
		"total_connections", s.TotalConnections,
		"voice_pkts_in", s.VoicePacketsIn,
		"voice_pkts_out", s.VoicePacketsOut,
		"voice_pkts_dropped", s.VoicePacketsDropped,
		"chat_msgs", s.ChatMessagesSent,
	)
}

// StartPeriodicLog starts a goroutine that logs metrics every interval.
// It stops when the done channel is closed.
func (m *Metrics) StartPeriodicLog(interval time.Duration, done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m.LogSummary()
			}
		}
	}()
}
