package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"sqlcopilot/internal/agent"
	"sqlcopilot/internal/api"
	"sqlcopilot/internal/config"
	"sqlcopilot/internal/ledger"
	"sqlcopilot/internal/policy"
	"sqlcopilot/internal/remote"
	"sqlcopilot/internal/rpc/codec"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file, using process environment")
	}
	cfg := config.Load()
	codec.Register()

	store, err := ledger.Open(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("open ledger: %v", err)
	}
	defer store.Close()
	if err := store.Init(context.Background()); err != nil {
		log.Fatalf("init ledger: %v", err)
	}
	log.Printf("ledger ready at %s", cfg.SQLitePath)

	client := remote.New(cfg.AgentAddr)
	defer client.Close()

	mgr := agent.NewManager(client, agent.NewHub(), store, cfg.CommandTimeout)
	pol := policy.New(cfg.AllowedTargets, cfg.MaxMessageLen)

	server := api.New(cfg.HTTPAddr, cfg.AuthToken, mgr, pol, store, api.Options{
		WSWriteTimeout: cfg.WSWriteTimeout,
		SnapshotBuffer: cfg.SnapshotBuffer,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	stop()
	log.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := mgr.Shutdown(shutdownCtx); err != nil {
		log.Printf("manager shutdown: %v", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	log.Printf("stopped")
}
