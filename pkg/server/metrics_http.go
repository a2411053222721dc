package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/NicolasHaas/roomspeak/pkg/version"
)

// StartMetricsHTTP starts a lightweight HTTP server that exposes /metrics
// in Prometheus text exposition format. It runs in the background and
// shuts down when the server context is cancelled.
//
// Bind address is :12347 by default, configurable via Config.MetricsAddr.
func (s *Server) StartMetricsHTTP() {
	addr := s.cfg.MetricsAddr
	if addr == "" {
		return // metrics endpoint disabled
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.metricsMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("metrics HTTP listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics HTTP error", "err", err)
		}
	}()

	go func() {
		<-s.ctx.Done()
		_ = srv.Close()
	}()
}

func (s *Server) metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/metrics.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(s.metrics.JSON()))
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

// handleMetrics writes all metrics in Prometheus text exposition format.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	m := s.metrics
	uptime := time.Since(m.startTime).Seconds()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	// Helper for gauge/counter lines.
	// Write errors to http.ResponseWriter are non-actionable; suppress errcheck.
	write := func(name, help, mtype string, value int64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %d\n", name, value)
	}
	writeFloat := func(name, help, mtype string, value float64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %f\n", name, value)
	}

	writeFloat("roomspeak_uptime_seconds", "Server uptime in seconds.", "gauge", uptime)

	_, _ = fmt.Fprintf(w, "# HELP roomspeak_build_info Build version.\n# TYPE roomspeak_build_info gauge\n")
	_, _ = fmt.Fprintf(w, "roomspeak_build_info{version=%q} 1\n", version.String())

	write("roomspeak_connections_active", "Current open control connections.", "gauge",
		m.ActiveConnections.Load())
	write("roomspeak_connections_total", "Lifetime control connections accepted.", "counter",
		m.TotalConnections.Load())
	write("roomspeak_disconnects_total", "Total client disconnects.", "counter",
		m.TotalDisconnects.Load())
	write("roomspeak_sessions_active", "Authenticated sessions.", "gauge",
		int64(s.sessions.Count()))
	write("roomspeak_rooms", "Rooms that currently exist.", "gauge",
		int64(len(s.rooms.Names())))

	write("roomspeak_auth_success_total", "Successful logins.", "counter",
		m.SuccessfulAuths.Load())
	write("roomspeak_auth_failed_total", "Failed logins.", "counter",
		m.FailedAuths.Load())
	write("roomspeak_registrations_total", "Accounts registered.", "counter",
		m.Registrations.Load())
	write("roomspeak_malformed_messages_total", "Undecodable control messages.", "counter",
		m.MalformedMessages.Load())
	write("roomspeak_slow_consumers_total", "Connections dropped for a full outbound queue.", "counter",
		m.SlowConsumers.Load())

	write("roomspeak_voice_packets_in_total", "Total UDP voice packets received.", "counter",
		m.VoicePacketsIn.Load())
	write("roomspeak_voice_packets_out_total", "Total UDP voice packets forwarded.", "counter",
		m.VoicePacketsOut.Load())
	write("roomspeak_voice_packets_dropped_total", "Dropped voice packets.", "counter",
		m.VoicePacketsDropped.Load())
	write("roomspeak_voice_bytes_in_total", "Total voice bytes received.", "counter",
		m.VoiceBytesIn.Load())
	write("roomspeak_voice_bytes_out_total", "Total voice bytes forwarded.", "counter",
		m.VoiceBytesOut.Load())
	write("roomspeak_voice_endpoints", "Correlated voice endpoints.", "gauge",
		int64(s.endpoints.Len()))
	write("roomspeak_voice_endpoints_expired_total", "Voice endpoints expired after inactivity.", "counter",
		m.VoiceEndpointsSwept.Load())

	write("roomspeak_chat_messages_total", "Total chat messages relayed.", "counter",
		m.ChatMessagesSent.Load())
	write("roomspeak_chat_rejected_total", "Chat messages refused.", "counter",
		m.ChatRejected.Load())

	write("roomspeak_rooms_created_total", "Rooms created.", "counter",
		m.RoomsCreated.Load())
	write("roomspeak_room_joins_total", "Room changes.", "counter",
		m.RoomJoins.Load())

	write("roomspeak_mutes_total", "Users muted.", "counter",
		m.MuteCount.Load())
	write("roomspeak_kicks_total", "Users kicked.", "counter",
		m.KickCount.Load())
	write("roomspeak_bans_total", "Users banned.", "counter",
		m.BanCount.Load())
	write("roomspeak_unbans_total", "Users unbanned.", "counter",
		m.UnbanCount.Load())
}
