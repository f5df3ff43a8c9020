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
	kafkax "github.com/danukusuma/go-saga-orders/internal/kafka"
	"github.com/danukusuma/go-saga-orders/internal/logx"
	"github.com/danukusuma/go-saga-orders/internal/orders"
	"github.com/danukusuma/go-saga-orders/internal/postgres"
	"github.com/danukusuma/go-saga-orders/internal/redisx"
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

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderLifecycle, 1024, log)
	prod.Start(ctx)

	svc := orders.NewService(orders.NewPostgresStore(db), prod, cfg.ServiceName)

	router := httpx.NewRouter()
	router.Group(func(r chi.Router) {
		r.Use(httpx.BearerAuth(cfg.APIToken))
		oh := &httpx.OrdersHandler{Service: svc, Redis: rdb, Log: log}
		oh.Register(r)
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

	prod.Close()
	prod.WaitClosed()
}
