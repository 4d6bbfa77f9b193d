package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	appcfg "github.com/park285/netchess/internal/config"
	"github.com/park285/netchess/internal/msgcat"
	"github.com/park285/netchess/internal/obslog"
	"github.com/park285/netchess/internal/opponent"
	"github.com/park285/netchess/internal/peer"
)

func main() {
	cfg, err := appcfg.LoadClient()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	name := flag.String("name", cfg.PlayerName, "display name")
	url := flag.String("url", cfg.ServerURL, "relay websocket url")
	auto := flag.Bool("auto", false, "let the computer play your moves")
	flag.Parse()

	// 터미널을 가리지 않도록 로그는 파일로만
	lo := obslog.OptionsFromEnv(filepath.Join("logs", "netchess-client.log"))
	lo.Console = false
	lg, logCloser, err := obslog.New(lo, nil)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer logCloser.Close()

	msgs, err := msgcat.New(cfg.MessageDir)
	if err != nil {
		log.Fatalf("message catalog error: %v", err)
	}

	in := bufio.NewScanner(os.Stdin)
	if strings.TrimSpace(*name) == "" {
		fmt.Print("name: ")
		if !in.Scan() {
			return
		}
		*name = strings.TrimSpace(in.Text())
	}

	var engine opponent.Engine = opponent.NewGreedy(0)
	if cfg.StockfishPath != "" {
		ectx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		uci, err := opponent.StartUCI(ectx, cfg.StockfishPath, opponent.UCIOptions{SkillLevel: 5}, lg)
		cancel()
		if err != nil {
			lg.Warn("engine_start_failed", zap.String("path", cfg.StockfishPath), zap.Error(err))
		} else {
			engine = uci
		}
	}
	defer engine.Close()

	conn := peer.Dial(*url, peer.WithLogger(lg))
	client := peer.NewClient(conn, *name, peer.WithClientLogger(lg), peer.WithMovePendingTimeout(cfg.PendingTimeout))
	client.Attach(conn)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	con := &console{client: client, msgs: msgs, engine: engine, log: lg, out: os.Stdout, auto: *auto}
	client.OnEvent(func(ev peer.Event) { con.onEvent(ctx, ev) })
	conn.OnStateChange(func(s peer.State) { lg.Info("peer_state", zap.String("state", s.String())) })

	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = conn.Connect(cctx)
	cancel()
	if err != nil {
		log.Fatalf("connect %s: %v", *url, err)
	}
	defer func() { _ = conn.Close(context.Background()) }()

	if err := client.Announce(ctx, *name); err != nil {
		log.Fatalf("announce: %v", err)
	}
	fmt.Printf("connected to %s as %s. Type 'help'.\n", *url, *name)

	lines := make(chan string)
	go func() {
		defer close(lines)
		for in.Scan() {
			lines <- in.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.Done():
			fmt.Println("connection closed")
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			cmd, ok := parseCommand(line)
			if !ok {
				continue
			}
			if !con.run(ctx, cmd) {
				_ = client.Leave(context.Background())
				return
			}
		}
	}
}
