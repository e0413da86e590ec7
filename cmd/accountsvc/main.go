package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/openbank/backend/internal/config"
	"github.com/openbank/backend/internal/database"
	"github.com/openbank/backend/internal/events"
	"github.com/openbank/backend/internal/iban"
	"github.com/openbank/backend/internal/services"
)

// The account service is the saga coordination core: it consumes the two
// command topics, mutates the balance ledger and emits the outcome and
// balance_changed events. Its only HTTP surface is a health endpoint.
func main() {
	cfg := config.Load("account")

	db := database.MustConnect(cfg.Database, database.AccountSchema)
	defer db.Close()

	rdb := database.InitRedis(cfg.Redis)
	defer rdb.Close()

	bus := events.NewBus(rdb, cfg.Redis.StreamPrefix)
	codec := iban.New(cfg.Bank.Region, cfg.Bank.Product, cfg.Bank.CashSentinel)
	coordinator := services.NewCoordinator(
		codec,
		services.NewLedgerService(db, cfg.Bank.CreditLimit),
		services.NewSagaStore(db),
		services.NewAccountService(db),
		bus,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumer := consumerName()
	errCh := make(chan error, 4)

	go func() {
		errCh <- bus.Run(ctx)
	}()
	go func() {
		errCh <- bus.Consume(ctx, events.TopicConfirmAccountCreation, cfg.Bank.Group, consumer,
			func(ctx context.Context, values map[string]interface{}) error {
				cmd, err := events.DecodeConfirmAccountCreation(values)
				if err != nil {
					return err
				}
				return coordinator.HandleAccountCreation(ctx, cmd)
			})
	}()
	go func() {
		errCh <- bus.Consume(ctx, events.TopicConfirmMoneyTransfer, cfg.Bank.Group, consumer,
			func(ctx context.Context, values map[string]interface{}) error {
				cmd, err := events.DecodeConfirmMoneyTransfer(values)
				if err != nil {
					return err
				}
				return coordinator.HandleTransfer(ctx, cmd)
			})
	}()

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: r}
	go func() {
		log.Printf("[MAIN] Account service listening on %s", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.Printf("[MAIN] Shutting down on %v", sig)
	case err := <-errCh:
		// Decode failures and exhausted store retries land here; per the
		// error policy they kill the process rather than skip messages.
		log.Fatalf("Fatal worker error: %v", err)
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)
}

func consumerName() string {
	host, err := os.Hostname()
	if err != nil {
		return "account-1"
	}
	return host
}
