package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/NicolasHaas/roomspeak/pkg/logging"
	"github.com/NicolasHaas/roomspeak/pkg/server"
	"github.com/NicolasHaas/roomspeak/pkg/store"
	"github.com/NicolasHaas/roomspeak/pkg/version"
)

func main() {
	cfg := server.DefaultConfig()
	logOpts := logging.Options{Level: "info", Format: "text"}
	// Environment overrides defaults; flags override both.
	if err := server.LoadEnv(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "invalid environment: %v\n", err)
		os.Exit(1)
	}
	if err := logging.LoadEnv(&logOpts); err != nil {
		fmt.Fprintf(os.Stderr, "invalid environment: %v\n", err)
		os.Exit(1)
	}

	flag.StringVar(&cfg.ControlAddr, "control", cfg.ControlAddr, "TCP control plane bind address")
	flag.StringVar(&cfg.VoiceAddr, "voice", cfg.VoiceAddr, "UDP voice plane bind address")
	flag.StringVar(&cfg.WebSocketAddr, "ws", cfg.WebSocketAddr, "WebSocket gateway bind address (empty to disable)")
	flag.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "HTTP bind address for Prometheus /metrics (empty to disable)")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database file path")
	flag.BoolVar(&cfg.TLS, "tls", cfg.TLS, "Serve the control plane over TLS")
	flag.StringVar(&cfg.CertFile, "cert", cfg.CertFile, "TLS certificate file (auto-generated if empty)")
	flag.StringVar(&cfg.KeyFile, "key", cfg.KeyFile, "TLS private key file (auto-generated if empty)")
	flag.StringVar(&cfg.DataDir, "data", cfg.DataDir, "Data directory for generated files")
	flag.StringVar(&cfg.RoomsFile, "rooms-file", cfg.RoomsFile, "YAML file defining rooms to create on startup")
	flag.StringVar(&cfg.DefaultRoom, "default-room", cfg.DefaultRoom, "Room every session enters at login")
	flag.IntVar(&cfg.MaxRooms, "max-rooms", cfg.MaxRooms, "Maximum number of rooms, default room included")
	flag.DurationVar(&cfg.VoiceEndpointTTL, "voice-ttl", cfg.VoiceEndpointTTL, "Forget voice endpoints after this much silence")
	flag.IntVar(&cfg.ChatRate, "chat-rate", cfg.ChatRate, "Chat messages allowed per -chat-interval")
	flag.DurationVar(&cfg.ChatInterval, "chat-interval", cfg.ChatInterval, "Chat rate limit window")
	flag.BoolVar(&cfg.ExportUsers, "export-users", false, "Export all users as YAML and exit")
	flag.BoolVar(&cfg.ExportRooms, "export-rooms", false, "Export the configured rooms as YAML and exit")

	admins := flag.String("admins", strings.Join(cfg.AdminUsers, ","), "Comma-separated usernames registered as admins")
	origins := flag.String("ws-origins", strings.Join(cfg.WSOrigins, ","), "Comma-separated allowed WebSocket origins (* for any)")
	flag.StringVar(&logOpts.Level, "log-level", logOpts.Level, "Log level: "+logging.LevelNames())
	flag.StringVar(&logOpts.Format, "log-format", logOpts.Format, "Log format: text or json")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("roomspeak-server", version.Full())
		return
	}

	cfg.AdminUsers = splitList(*admins)
	cfg.WSOrigins = splitList(*origins)

	// Configure structured logging. Exports keep stdout clean for YAML.
	logOpts.Output = os.Stdout
	if cfg.ExportUsers || cfg.ExportRooms {
		logOpts.Output = os.Stderr
	}
	if err := logging.Setup(logOpts); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}

	// Handle export commands (run and exit)
	if cfg.ExportUsers || cfg.ExportRooms {
		if err := export(cfg); err != nil {
			slog.Error("export", "err", err)
			os.Exit(1)
		}
		return
	}

	st, err := store.New(cfg.DBPath)
	if err != nil {
		slog.Error("open database", "err", err)
		os.Exit(1)
	}

	slog.Info("starting RoomSpeak server", "version", version.String())
	srv := server.New(cfg, server.Dependencies{Store: st})
	if err := srv.Run(); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}

func export(cfg server.Config) error {
	if cfg.ExportUsers {
		st, err := store.New(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer st.Close()

		data, err := server.ExportUsersYAML(st)
		if err != nil {
			return fmt.Errorf("export users: %w", err)
		}
		fmt.Print(string(data))
	}
	if cfg.ExportRooms {
		rooms := server.NewRoomRegistry(cfg.DefaultRoom)
		rooms.SetLimit(cfg.MaxRooms)
		if cfg.RoomsFile != "" {
			if err := server.LoadRoomsFromYAML(cfg.RoomsFile, rooms); err != nil {
				return err
			}
		}
		data, err := server.ExportRoomsYAML(rooms)
		if err != nil {
			return fmt.Errorf("export rooms: %w", err)
		}
		fmt.Print(string(data))
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
