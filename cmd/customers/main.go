package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/danukusuma/go-saga-orders/internal/config"
	"github.com/danukusuma/go-saga-orders/internal/customers"
	"github.com/danukusuma/go-saga-orders/internal/httpx"
	"github.com/danukusuma/go-saga-orders/internal/logx"
	"github.com/danukusuma/go-saga-orders/internal/postgres"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logx.New(cfg.ServiceName)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer db.Close()

	router := httpx.NewRouter()
	router.Group(func(r chi.Router) {
		r.Use(httpx.BearerAuth(cfg.APIToken))
		ch := &httpx.CustomersHandler{Repo: &customers.Repo{DB: db}, Log: log}
		ch.Register(r)
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = srv.Shutdown(shutdownCtx)
}
