package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"rememberme/api/internal/app"
	"rememberme/api/internal/config"
	"rememberme/api/internal/keys"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("invalid configuration", "err", err)
	}
	app.SetLogLevel(cfg.LogLevel)
	ctx := context.Background()

	store, err := app.OpenStore(ctx, cfg, true)
	if err != nil {
		log.Fatal("document store connection failed", "err", err)
	}
	defer store.Close()

	oracle, closeOracle, err := app.OpenOracle(ctx, cfg)
	if err != nil {
		log.Fatal("kms setup failed", "err", err)
	}
	defer closeOracle()

	identity, closeIdentity, err := app.OpenIdentity(ctx, cfg)
	if err != nil {
		log.Fatal("identity provider setup failed", "err", err)
	}
	defer closeIdentity()

	images, err := app.OpenImages(ctx, cfg)
	if err != nil {
		log.Fatal("image storage setup failed", "err", err)
	}
	if images == nil {
		log.Info("profile images are disabled")
	}

	service := app.New(store, keys.NewProvisioner(oracle), identity, images)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("rounds API listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", "err", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "err", err)
	}
}
