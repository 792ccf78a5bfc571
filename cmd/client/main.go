package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RJ/bevygap-spaceships/internal/client"
	"github.com/RJ/bevygap-spaceships/internal/config"
)

func main() {
	log.SetPrefix("[client] ")
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ccfg := client.ConfigFrom(cfg, time.Now())
	if ccfg.MatchmakerURL != "" {
		log.Printf("Client %d using matchmaker %s", ccfg.ClientID, ccfg.MatchmakerURL)
	} else {
		log.Printf("Client %d connecting to %s", ccfg.ClientID, ccfg.ServerAddr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.New(ccfg, client.NewScriptedPilot())
	if err := c.Run(ctx); err != nil {
		log.Fatalf("%s: %v", c.Status().State, err)
	}
	st := c.Status()
	log.Printf("Disconnected at tick %d: %d snapshots, %d rollbacks, %d resyncs",
		st.Tick, st.Telemetry.Snapshots, st.Telemetry.Rollbacks, st.Telemetry.Resyncs)
}
