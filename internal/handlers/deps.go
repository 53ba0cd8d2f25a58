package handlers

import (
	"context"
	"time"

	"agromart/internal/models"
	"agromart/internal/services"
	"agromart/internal/store"
)

type UserStore interface {
	Create(ctx context.Context, tx store.Execer, user models.User) error
	GetByID(ctx context.Context, userID string) (models.User, error)
	GetByEmail(ctx context.Context, email string) (models.User, error)
	GetRole(ctx context.Context, userID string) (string, error)
	CountAdmins(ctx context.Context, q store.Getter) (int, error)
}

type ListingStore interface {
	CreateListing(ctx context.Context, tx store.Execer, listing models.Listing) error
	CreateUnit(ctx context.Context, tx store.Execer, unit models.ListingUnit) error
	GetListing(ctx context.Context, listingID string) (models.Listing, error)
	ListListings(ctx context.Context) ([]models.Listing, error)
	ListUnits(ctx context.Context, listingID string) ([]models.ListingUnit, error)
	GetUnit(ctx context.Context, unitID string) (models.ListingUnit, error)
}

type InventoryReader interface {
	Get(ctx context.Context, inventoryID string) (models.TraderInventory, error)
	ListByTrader(ctx context.Context, traderID string) ([]models.TraderInventory, error)
	ListInStorage(ctx context.Context) ([]models.TraderInventory, error)
}

type NegotiationReader interface {
	ListForUser(ctx context.Context, userID string) ([]models.Negotiation, error)
}

type BuyerNegotiationReader interface {
	ListForUser(ctx context.Context, userID string) ([]models.BuyerNegotiation, error)
}

type WindowStore interface {
	IsOpen(ctx context.Context, tx store.Getter) (bool, error)
	History(ctx context.Context, limit int) ([]models.PurchaseWindowEvent, error)
}

type SettingsReader interface {
	Get(ctx context.Context, key string) (string, error)
	List(ctx context.Context) (map[string]string, error)
}

type ActionStore interface {
	List(ctx context.Context, limit, offset int) ([]models.AdminAction, error)
}

// LedgerAppender seeds opening deposits during registration, inside the same
// transaction that creates the user.
type LedgerAppender interface {
	Append(ctx context.Context, tx store.Tx, userID, entryType string, amount int64, utidValue, metadata string) (store.LedgerEntryInput, error)
}

type WalletService interface {
	Deposit(ctx context.Context, userID string, amountMinor int64) (store.LedgerEntryInput, error)
	WithdrawProfit(ctx context.Context, traderID string, amountMinor int64) (store.LedgerEntryInput, error)
	Balances(ctx context.Context, userID string) (services.Balances, error)
	Entries(ctx context.Context, userID string, limit, offset int) ([]models.WalletLedgerEntry, error)
	VerifyReplay(ctx context.Context, userID string) ([]services.ReplayMismatch, error)
}

type ExposureService interface {
	Compute(ctx context.Context, traderID string) (services.Exposure, error)
}

type TradeService interface {
	LockUnit(ctx context.Context, traderID, unitID string) (services.LockResult, error)
	BuildBlock(ctx context.Context, traderID string, unitIDs []string) (models.TraderInventory, error)
}

type NegotiationService interface {
	OpenUnitOffer(ctx context.Context, traderID, unitID string, offerPrice int64, expiresAt *time.Time) (models.Negotiation, error)
	ActOnUnitOffer(ctx context.Context, callerID, negotiationID, action string, counterPrice int64) (models.Negotiation, error)
	OpenBlockOffer(ctx context.Context, buyerID, inventoryID string, offerPrice int64, expiresAt *time.Time) (models.BuyerNegotiation, error)
	ActOnBlockOffer(ctx context.Context, callerID, negotiationID, action string, counterPrice int64) (models.BuyerNegotiation, error)
}

type PurchaseService interface {
	Purchase(ctx context.Context, buyerID, inventoryID string) (models.BuyerPurchase, error)
	ListForBuyer(ctx context.Context, buyerID string) ([]models.BuyerPurchase, error)
}

type AdminService interface {
	VerifyDelivery(ctx context.Context, adminID, unitID, outcome, reason string) error
	ReverseDeliveryFailure(ctx context.Context, adminID, unitID, reason string) error
	OpenWindow(ctx context.Context, adminID, reason string) error
	CloseWindow(ctx context.Context, adminID, reason string) error
	UpdateSetting(ctx context.Context, adminID, key, value, reason string) error
	SetTraderCap(ctx context.Context, adminID, traderID string, capMinor *int64, reason string) error
	ScanRedFlags(ctx context.Context, now time.Time) (services.RedFlags, error)
	ResetAllTransactions(ctx context.Context, adminID, reason string) (services.ResetSummary, error)
	BatchCreateInventories(ctx context.Context, adminID string, lockUTIDs []string, reason string) (services.BatchInventorySummary, error)
}
