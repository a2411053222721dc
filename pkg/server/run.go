package server

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// Start brings up every listener and background task without blocking.
// On failure anything already started is shut down again.
func (s *Server) Start() error {
	if s.store == nil {
		return fmt.Errorf("server: missing store dependency")
	}

	// Load rooms from YAML config if provided
	if s.cfg.RoomsFile != "" {
		if err := LoadRoomsFromYAML(s.cfg.RoomsFile, s.rooms); err != nil {
			slog.Error("failed to load rooms config", "err", err)
		}
	}

	starters := []func() error{
		s.StartControl,
		s.StartVoice,
		s.StartWebSocket,
	}
	for _, start := range starters {
		if err := start(); err != nil {
			s.Shutdown()
			return err
		}
	}

	// Start Prometheus metrics HTTP endpoint
	s.StartMetricsHTTP()

	// Start periodic metrics logging
	s.metrics.StartPeriodicLog(s.cfg.MetricsInterval, s.ctx.Done())
	return nil
}

// Run starts the server and blocks until a shutdown signal arrives.
func (s *Server) Run() error {
	if s.store != nil {
		defer func() { _ = s.store.Close() }()
	}
	if err := s.Start(); err != nil {
		return err
	}

	slog.Info("RoomSpeak server running",
		"control", s.cfg.ControlAddr,
		"voice", s.cfg.VoiceAddr,
		"websocket", s.cfg.WebSocketAddr,
		"default_room", s.rooms.DefaultRoom(),
	)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	select {
	case <-sigCh:
	case <-s.ctx.Done():
	}

	slog.Info("shutting down...")
	s.Shutdown()
	return nil
}

// Shutdown gracefully stops the server: listeners close, every live
// connection is closed (running its normal cleanup) and background tasks stop.
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.cancel()
		if s.controlLn != nil {
			_ = s.controlLn.Close()
		}
		if s.voiceConn != nil {
			_ = s.voiceConn.Close()
		}
		s.sessions.closeAll()
		s.wg.Wait()
	})
}
