package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RJ/bevygap-spaceships/internal/config"
	"github.com/RJ/bevygap-spaceships/internal/protocol"
	"github.com/RJ/bevygap-spaceships/internal/replay"
	"github.com/RJ/bevygap-spaceships/internal/server"
)

func main() {
	log.SetPrefix("[server] ")
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := run(cfg); err != nil {
		log.Fatalf("Simulation stopped: %v", err)
	}
}

func run(cfg *config.Config) error {
	var err error

	var db *server.DB
	if cfg.DBPath != "" {
		db, err = server.OpenDB(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		log.Printf("Session history in %s", cfg.DBPath)
	}
	analytics := server.NewAnalytics(db)

	var rec *replay.Writer
	if cfg.ReplayDir != "" {
		rec, err = replay.Create(cfg.ReplayDir, cfg.ProtocolID, time.Now())
		if err != nil {
			return fmt.Errorf("replay: %w", err)
		}
		log.Printf("Recording replay %s to %s", rec.ID(), rec.Dir())
	}

	game, err := server.NewGame(server.GameOptions{
		Metadata:  server.NewMetadata(cfg.Location, cfg.FQDN),
		DB:        db,
		Analytics: analytics,
		Replay:    rec,
	})
	if err != nil {
		return fmt.Errorf("game: %w", err)
	}
	log.Printf("Instance %s, protocol %d", game.InstanceID(), cfg.ProtocolID)

	opts := server.Options{
		PrivateKey: cfg.PrivateKey,
		ProtocolID: cfg.ProtocolID,
		PublicURL:  cfg.PublicURL,
	}
	srv := &http.Server{Addr: cfg.ListenAddr()}
	if cfg.TLSEnabled() {
		cert, err := tls.LoadX509KeyPair(cfg.TLSCertPath, cfg.TLSKeyPath)
		if err != nil {
			return fmt.Errorf("tls: %w", err)
		}
		opts.CertDigest = protocol.CertificateDigest(cert.Certificate[0])
		srv.TLSConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
		log.Printf("Certificate digest %s", opts.CertDigest)
	}
	srv.Handler = server.SetupRoutes(server.NewHub(), game, db, opts)

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gameErr := make(chan error, 1)
	go func() { gameErr <- game.Run(ctx) }()

	go func() {
		log.Printf("Server starting on %s", srv.Addr)
		var err error
		if srv.TLSConfig != nil {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("ListenAndServe: %v", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Println("Shutting down...")
		err = <-gameErr
	case err = <-gameErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	analytics.Stop()
	log.Printf("Hits written %d, dropped %d", analytics.Written(), analytics.Dropped())
	if rec != nil {
		if cerr := rec.Close(); cerr != nil {
			log.Printf("replay close: %v", cerr)
		}
	}
	return err
}
