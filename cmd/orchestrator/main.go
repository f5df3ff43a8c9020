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
	"github.com/danukusuma/go-saga-orders/internal/httpx"
	"github.com/danukusuma/go-saga-orders/internal/logx"
	"github.com/danukusuma/go-saga-orders/internal/saga"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logx.New(cfg.ServiceName)

	orch := saga.NewOrchestrator(
		saga.NewCustomerClient(cfg.CustomersAPIURL, cfg.APIToken, cfg.RemoteTimeout),
		saga.NewOrderClient(cfg.OrdersAPIURL, cfg.APIToken, cfg.RemoteTimeout),
		log,
	)

	router := httpx.NewRouter()
	router.Group(func(r chi.Router) {
		r.Use(httpx.BearerAuth(cfg.APIToken))
		sh := &httpx.SagaHandler{Orchestrator: orch, Log: log}
		sh.Register(r)
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
