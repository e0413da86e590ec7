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
	"github.com/go-chi/cors"

	"github.com/openbank/backend/internal/config"
	"github.com/openbank/backend/internal/database"
	"github.com/openbank/backend/internal/events"
	"github.com/openbank/backend/internal/handlers"
	mW "github.com/openbank/backend/internal/middleware"
	"github.com/openbank/backend/internal/services"
)

// The transaction service is the HTTP front door: it authenticates users,
// turns API calls into saga commands on the bus, and folds the account
// service's result events back into the users and transactions tables.
func main() {
	cfg := config.Load("transaction")

	db := database.MustConnect(cfg.Database, database.TransactionSchema)
	defer db.Close()

	rdb := database.InitRedis(cfg.Redis)
	defer rdb.Close()

	bus := events.NewBus(rdb, cfg.Redis.StreamPrefix)
	authService := services.NewAuthService(db, bus)
	historyService := services.NewHistoryService(db)
	transferHandler := handlers.NewTransferHandler(authService, historyService, bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumer := consumerName()
	errCh := make(chan error, 8)
	consume := func(topic string, h events.Handler) {
		go func() {
			errCh <- bus.Consume(ctx, topic, cfg.Bank.Group, consumer, h)
		}()
	}

	go func() {
		errCh <- bus.Run(ctx)
	}()

	consume(events.TopicAccountCreationConfirmed, func(ctx context.Context, values map[string]interface{}) error {
		ev, err := events.DecodeAccountCreationConfirmed(values)
		if err != nil {
			return err
		}
		if err := authService.SetAccountDetails(ctx, ev.ID, ev.AccountNo, ev.Token, ev.AccountType); err != nil {
			return err
		}
		log.Printf("[WORKER] Account %s opened for user %s", ev.AccountNo, ev.ID)
		return nil
	})
	consume(events.TopicAccountCreationFailed, func(ctx context.Context, values map[string]interface{}) error {
		ev, err := events.DecodeAccountCreationFailed(values)
		if err != nil {
			return err
		}
		// Login republishes the command on the next session, so a failed
		// creation needs no state change here.
		log.Printf("[WORKER] Account creation %s failed: %s", ev.ID, ev.Reason)
		return nil
	})
	consume(events.TopicMoneyTransferConfirmed, func(ctx context.Context, values map[string]interface{}) error {
		ev, err := events.DecodeMoneyTransferConfirmed(values)
		if err != nil {
			return err
		}
		log.Printf("[WORKER] Transfer %s confirmed", ev.ID)
		return nil
	})
	consume(events.TopicMoneyTransferFailed, func(ctx context.Context, values map[string]interface{}) error {
		ev, err := events.DecodeMoneyTransferFailed(values)
		if err != nil {
			return err
		}
		log.Printf("[WORKER] Transfer %s failed: %s", ev.ID, ev.Reason)
		return nil
	})
	consume(events.TopicBalanceChanged, func(ctx context.Context, values map[string]interface{}) error {
		ev, err := events.DecodeBalanceChanged(values)
		if err != nil {
			return err
		}
		entry, err := historyService.RecordBalanceChange(ctx, ev)
		if err != nil {
			return err
		}
		log.Printf("[WORKER] Recorded %s of %d on %s", entry.Direction, ev.ChangedBy, ev.AccountNo)
		return nil
	})

	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", authService.Register)
		r.Post("/auth/login", authService.Login)

		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)
			r.Post("/transfers", transferHandler.SubmitTransfer)
			r.Get("/transactions", transferHandler.ListTransactions)
		})
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		log.Printf("[MAIN] Transaction service listening on %s", cfg.HTTP.Addr)
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
		return "transaction-1"
	}
	return host
}
