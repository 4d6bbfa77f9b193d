package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/park285/netchess/internal/peer"
	"github.com/park285/netchess/internal/probe"
	"github.com/park285/netchess/pkg/protocol"
)

func main() {
	url := flag.String("url", os.Getenv("NETCHESS_SERVER_URL"), "relay websocket url")
	watch := flag.Duration("watch", 0, "also join the lobby and print traffic for this long")
	flag.Parse()
	if *url == "" {
		*url = "ws://localhost:8080/ws"
	}

	client := probe.NewClient(*url, probe.WithTimeout(5*time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	h, err := client.Health(ctx)
	if err != nil {
		log.Fatalf("/healthz error: %v", err)
	}
	log.Printf("/healthz ok: status=%s sessions=%d", h.Status, h.Sessions)

	if players, err := client.Players(ctx); err != nil {
		log.Printf("/api/players error: %v", err)
	} else {
		log.Printf("/api/players: %d in lobby", len(players))
		for _, p := range players {
			fmt.Printf("  %s  %s\n", p.ID, p.Name)
		}
	}
	if saves, err := client.Saves(ctx); err != nil {
		log.Printf("/api/saves error: %v", err)
	} else {
		log.Printf("/api/saves: %d saved games", len(saves))
		for _, s := range saves {
			fmt.Printf("  %-24s %s vs %s  plies=%d %s\n", s.Name, s.White, s.Black, s.Plies, s.Result)
		}
	}

	if *watch <= 0 {
		return
	}
	conn := peer.Dial(*url)
	conn.OnStateChange(func(s peer.State) { log.Printf("WS state: %s", s) })
	conn.OnMessage(func(env protocol.Envelope) {
		fmt.Printf("WS %s %s\n", env.Type, string(env.Payload))
	})
	cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ccancel()
	if err := conn.Connect(cctx); err != nil {
		log.Fatalf("WS connect error: %v", err)
	}
	_ = conn.SendTyped(cctx, protocol.TypeLobbyAnnounce, protocol.LobbyAnnounce{Name: "probe"})

	t := time.NewTimer(*watch)
	select {
	case <-t.C:
	case <-conn.Done():
	}
	_ = conn.Close(context.Background())
}
