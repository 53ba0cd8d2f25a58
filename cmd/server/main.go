package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agromart/internal/config"
	"agromart/internal/db"
	"agromart/internal/handlers"
	"agromart/internal/logging"
	"agromart/internal/services"
	"agromart/internal/store"
)

func main() {
	log := logging.New("server")
	cfg := config.Load()
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}
	defer database.Close()

	users := store.NewUserStore(database)
	entries := store.NewLedgerStore(database)
	listings := store.NewListingStore(database)
	negotiations := store.NewNegotiationStore(database)
	buyerNegs := store.NewBuyerNegotiationStore(database)
	inventories := store.NewInventoryStore(database)
	purchases := store.NewPurchaseStore(database)
	window := store.NewWindowStore(database)
	settings := store.NewSettingsStore(database)
	actions := store.NewAdminActionStore(database)
	txRunner := db.NewTxRunner(database)

	ledger := services.NewLedger(entries)
	wallet := services.NewWalletService(txRunner, ledger, entries, users)
	exposure := services.NewExposureService(database, entries, listings, inventories, users, cfg.DefaultSpendCapMinor)
	trades := services.NewTradeService(txRunner, users, listings, negotiations, inventories, ledger, exposure, cfg.DeliverySLA, cfg.BlockSizeKilos)
	offers := services.NewNegotiationService(txRunner, users, listings, negotiations, buyerNegs, inventories)
	purchasing := services.NewPurchaseService(txRunner, users, window, inventories, buyerNegs, purchases, ledger, settings, cfg.PickupSLA)
	admin := services.NewAdminService(txRunner, users, listings, ledger, entries, negotiations, buyerNegs, inventories, purchases, window, settings, actions, cfg.BlockSizeKilos, cfg.DefaultSpendCapMinor, logging.New("admin"))

	handler := handlers.New(database, txRunner, cfg, users, listings, inventories, negotiations, buyerNegs, window, settings, actions, ledger, wallet, exposure, trades, offers, purchasing, admin)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("marketplace API listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("shutdown error")
	}
}
