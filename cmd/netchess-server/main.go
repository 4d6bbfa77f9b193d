package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/park285/netchess/internal/archive"
	appcfg "github.com/park285/netchess/internal/config"
	"github.com/park285/netchess/internal/msgcat"
	"github.com/park285/netchess/internal/obslog"
	"github.com/park285/netchess/internal/relay"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logCloser, err := obslog.InitFromEnv(filepath.Join("logs", "netchess.log"))
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer logCloser.Close()
	lg := obslog.L()
	defer func() { _ = lg.Sync() }()

	msgs, err := msgcat.New(cfg.MessageDir)
	if err != nil {
		lg.Fatal("msgcat_init_failed", zap.Error(err))
	}

	opts := relay.Options{
		Logger:       lg,
		Catalog:      msgs,
		WriteTimeout: cfg.WriteTimeout,
		ReadLimit:    cfg.ReadLimit,

		OriginPatterns: cfg.OriginPatterns,
		AllowAnyOrigin: cfg.AllowAnyOrigin,
	}
	if cfg.AllowAnyOrigin {
		lg.Warn("relay_origin_check_disabled")
	}

	// 저장소: Redis가 없으면 메모리
	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		store, err := archive.NewRedisStoreFromURL(ctx, cfg.RedisURL, cfg.SaveTTL)
		cancel()
		if err != nil {
			lg.Fatal("redis_init_failed", zap.Error(err))
		}
		defer store.Close()
		opts.Saves = store
	} else {
		lg.Warn("redis_not_configured", zap.String("fallback", "memory"))
		opts.Saves = archive.NewMemoryStore()
	}

	if cfg.DatabaseURL != "" {
		repo, err := archive.NewResultRepository(cfg.DatabaseURL)
		if err != nil {
			lg.Fatal("db_init_failed", zap.Error(err))
		}
		defer repo.Close()
		opts.Results = repo
	}

	srv := relay.NewServer(opts)
	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(cfg.WSPath),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		lg.Info("relay_listen", zap.String("addr", cfg.ListenAddr), zap.String("ws_path", cfg.WSPath))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("relay_listen_failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		lg.Warn("relay_shutdown", zap.Error(err))
	}
	srv.Wait()
	lg.Info("relay_stopped")
}
