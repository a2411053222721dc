// Package server implements the RoomSpeak chat and voice relay server:
// account directory, rooms, the per-connection control state machine and
// the UDP voice forwarder.
package server

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/NicolasHaas/roomspeak/pkg/store"
)

// Dependencies holds external dependencies for the server.
// Server assumes ownership of Store and will Close() it when Run returns.
type Dependencies struct {
	Store store.DataStore
}

// loadOrGenerateTLS loads TLS cert/key from disk or generates a self-signed pair.
func loadOrGenerateTLS(cfg Config) (tls.Certificate, error) {
	certPath := cfg.CertFile
	keyPath := cfg.KeyFile

	if certPath == "" {
		certPath = filepath.Join(cfg.DataDir, "server.crt")
	}
	if keyPath == "" {
		keyPath = filepath.Join(cfg.DataDir, "server.key")
	}

	// Try loading existing cert
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err == nil {
		slog.Info("loaded TLS certificate", "cert", certPath)
		return cert, nil
	}

	// Generate self-signed certificate
	slog.Info("generating self-signed TLS certificate")
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("generate key: %w", err)
	}

	serialNumber, _ := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject:      pkix.Name{Organization: []string{"RoomSpeak Server"}},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("::1")},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("create cert: %w", err)
	}

	// Write cert
	certOut, err := os.Create(certPath) //nolint:gosec // path from server config
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("write cert: %w", err)
	}
	if err := pem.Encode(certOut, &pem.Block{Type: "CERTIFICATE", Bytes: certDER}); err != nil {
		_ = certOut.Close()
		return tls.Certificate{}, fmt.Errorf("encode cert: %w", err)
	}
	if err := certOut.Close(); err != nil {
		return tls.Certificate{}, fmt.Errorf("close cert file: %w", err)
	}

	// Write key
	privBytes, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("marshal key: %w", err)
	}
	keyOut, err := os.OpenFile(keyPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600) //nolint:gosec // path from server config
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("write key: %w", err)
	}
	if err := pem.Encode(keyOut, &pem.Block{Type: "EC PRIVATE KEY", Bytes: privBytes}); err != nil {
		_ = keyOut.Close()
		return tls.Certificate{}, fmt.Errorf("encode key: %w", err)
	}
	if err := keyOut.Close(); err != nil {
		return tls.Certificate{}, fmt.Errorf("close key file: %w", err)
	}

	slog.Info("TLS certificate generated", "cert", certPath, "key", keyPath)

	return tls.LoadX509KeyPair(certPath, keyPath)
}

// Server is the main RoomSpeak server.
type Server struct {
	cfg       Config
	store     store.DataStore
	dir       *UserDirectory
	sessions  *SessionManager
	rooms     *RoomRegistry
	endpoints *EndpointTable
	metrics   *Metrics
	hub       *ChatHub

	controlLn net.Listener
	voiceConn *net.UDPConn
	wsAddr    net.Addr

	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	shutdownOnce sync.Once
}

// New creates a new Server instance. Zero-valued tunables in cfg fall back
// to DefaultConfig.
func New(cfg Config, deps Dependencies) *Server {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		cfg:       cfg,
		store:     deps.Store,
		sessions:  NewSessionManager(),
		rooms:     NewRoomRegistry(cfg.DefaultRoom),
		endpoints: NewEndpointTable(cfg.VoiceEndpointTTL),
		metrics:   NewMetrics(),
		ctx:       ctx,
		cancel:    cancel,
	}
	s.rooms.SetLimit(cfg.MaxRooms)
	if deps.Store != nil {
		s.dir = NewUserDirectory(deps.Store, cfg.AdminUsers)
	}
	s.hub = newChatHub(cfg, s.dir, s.rooms, s.sessions, s.endpoints, s.metrics)
	return s
}

// StartControl starts the control listener, plain TCP or TLS.
func (s *Server) StartControl() error {
	var (
		ln  net.Listener
		err error
	)
	if s.cfg.TLS {
		cert, tlsErr := loadOrGenerateTLS(s.cfg)
		if tlsErr != nil {
			return fmt.Errorf("server: tls: %w", tlsErr)
		}
		tlsCfg := &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS13,
		}
		ln, err = tls.Listen("tcp", s.cfg.ControlAddr, tlsCfg)
	} else {
		ln, err = net.Listen("tcp", s.cfg.ControlAddr)
	}
	if err != nil {
		return fmt.Errorf("server: listen control: %w", err)
	}
	s.controlLn = ln

	slog.Info("control plane listening", "addr", ln.Addr().String(), "tls", s.cfg.TLS)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				slog.Error("accept error", "err", err)
				continue
			}
			go s.hub.Serve(s.ctx, newFrameConn(conn))
		}
	}()
	return nil
}

// Rooms returns the room registry.
func (s *Server) Rooms() *RoomRegistry {
	return s.rooms
}

// Sessions returns the session manager.
func (s *Server) Sessions() *SessionManager {
	return s.sessions
}

// Directory returns the user directory.
func (s *Server) Directory() *UserDirectory {
	return s.dir
}

// Metrics returns the server metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// ControlAddr returns the bound control address, or nil before Start.
func (s *Server) ControlAddr() net.Addr {
	if s.controlLn == nil {
		return nil
	}
	return s.controlLn.Addr()
}

// VoiceAddr returns the bound voice address, or nil before Start.
func (s *Server) VoiceAddr() net.Addr {
	if s.voiceConn == nil {
		return nil
	}
	return s.voiceConn.LocalAddr()
}

// WebSocketAddr returns the bound WebSocket gateway address, or nil if disabled.
func (s *Server) WebSocketAddr() net.Addr {
	return s.wsAddr
}
