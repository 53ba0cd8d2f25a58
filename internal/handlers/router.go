package handlers

import (
	"net/http"
	"time"

	"agromart/internal/config"
	"agromart/internal/db"
	"agromart/internal/metrics"
	"agromart/internal/middleware"
	"agromart/internal/models"
	"agromart/internal/store"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Handler struct {
	q            store.Getter
	txRunner     db.TxRunner
	cfg          config.Config
	users        UserStore
	listings     ListingStore
	inventories  InventoryReader
	negotiations NegotiationReader
	buyerNegs    BuyerNegotiationReader
	window       WindowStore
	settings     SettingsReader
	actions      ActionStore
	ledger       LedgerAppender
	wallet       WalletService
	exposure     ExposureService
	trades       TradeService
	offers       NegotiationService
	purchases    PurchaseService
	admin        AdminService
}

func New(q store.Getter, txRunner db.TxRunner, cfg config.Config, users UserStore, listings ListingStore, inventories InventoryReader, negotiations NegotiationReader, buyerNegs BuyerNegotiationReader, window WindowStore, settings SettingsReader, actions ActionStore, ledger LedgerAppender, wallet WalletService, exposure ExposureService, trades TradeService, offers NegotiationService, purchases PurchaseService, admin AdminService) *Handler {
	return &Handler{
		q:            q,
		txRunner:     txRunner,
		cfg:          cfg,
		users:        users,
		listings:     listings,
		inventories:  inventories,
		negotiations: negotiations,
		buyerNegs:    buyerNegs,
		window:       window,
		settings:     settings,
		actions:      actions,
		ledger:       ledger,
		wallet:       wallet,
		exposure:     exposure,
		trades:       trades,
		offers:       offers,
		purchases:    purchases,
		admin:        admin,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.Logger)
	router.Use(observe)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{h.cfg.AllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	authed := middleware.Auth(h.cfg.JWTSecret)

	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.With(authed).Get("/me", h.Me)
	})

	router.Route("/listings", func(r chi.Router) {
		r.Use(authed)
		r.Get("/", h.ListListings)
		r.Post("/", h.CreateListing)
		r.Get("/{id}", h.GetListing)
		r.Get("/{id}/units", h.ListListingUnits)
	})

	router.With(authed).Post("/units/{id}/lock", h.LockUnit)
	router.With(authed).Get("/exposure", h.GetExposure)

	router.Route("/negotiations", func(r chi.Router) {
		r.Use(authed)
		r.Get("/", h.ListNegotiations)
		r.Post("/", h.OpenUnitOffer)
		r.Post("/{id}/accept", h.unitOfferAction("accept"))
		r.Post("/{id}/reject", h.unitOfferAction("reject"))
		r.Post("/{id}/counter", h.unitOfferAction("counter"))
		r.Post("/{id}/cancel", h.unitOfferAction("cancel"))
	})

	router.Route("/buyer-negotiations", func(r chi.Router) {
		r.Use(authed)
		r.Get("/", h.ListBuyerNegotiations)
		r.Post("/", h.OpenBlockOffer)
		r.Post("/{id}/accept", h.blockOfferAction("accept"))
		r.Post("/{id}/reject", h.blockOfferAction("reject"))
		r.Post("/{id}/counter", h.blockOfferAction("counter"))
		r.Post("/{id}/cancel", h.blockOfferAction("cancel"))
	})

	router.Route("/inventories", func(r chi.Router) {
		r.Use(authed)
		r.Get("/", h.ListInventories)
		r.Post("/blocks", h.BuildBlock)
		r.Get("/{id}", h.GetInventory)
	})

	router.Route("/purchases", func(r chi.Router) {
		r.Use(authed)
		r.Get("/", h.ListPurchases)
		r.Post("/", h.Purchase)
		r.Get("/window", h.WindowStatus)
	})

	router.Route("/wallet", func(r chi.Router) {
		r.Use(authed)
		r.Post("/deposit", h.Deposit)
		r.Post("/withdraw", h.WithdrawProfit)
		r.Get("/balances", h.Balances)
		r.Get("/entries", h.ListEntries)
		r.Get("/verify", h.VerifyLedger)
	})

	router.Route("/admin", func(r chi.Router) {
		r.Use(authed)
		r.Use(middleware.RequireRole(h.users, models.RoleAdmin))
		r.Post("/units/{id}/verify-delivery", h.VerifyDelivery)
		r.Post("/units/{id}/reverse", h.ReverseDeliveryFailure)
		r.Post("/window/open", h.OpenWindow)
		r.Post("/window/close", h.CloseWindow)
		r.Get("/window/history", h.WindowHistory)
		r.Get("/settings", h.ListSettings)
		r.Put("/settings/{key}", h.UpdateSetting)
		r.Post("/traders/{id}/cap", h.SetTraderCap)
		r.Get("/red-flags", h.RedFlags)
		r.Post("/inventories/batch", h.BatchCreateInventories)
		r.Post("/reset", h.ResetAllTransactions)
		r.Get("/audit", h.ListAdminActions)
		r.Get("/reconcile/{userID}", h.Reconcile)
	})

	router.Get("/metrics", metrics.Handler().ServeHTTP)
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return router
}

// observe records request duration against the matched chi route pattern.
func observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = "unmatched"
		}
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
	})
}
