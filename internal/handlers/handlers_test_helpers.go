package handlers

import (
	"context"
	"time"

	"agromart/internal/config"
	"agromart/internal/models"
	"agromart/internal/services"
	"agromart/internal/store"

	"github.com/jmoiron/sqlx"
)

type fakeTxRunner struct {
	withTxFn func(ctx context.Context, fn func(*sqlx.Tx) error) error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.withTxFn != nil {
		return f.withTxFn(ctx, fn)
	}
	return fn(nil)
}

type stubGetter struct {
	getFn func(ctx context.Context, dest any, query string, args ...any) error
}

func (s stubGetter) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	if s.getFn == nil {
		return nil
	}
	return s.getFn(ctx, dest, query, args...)
}

type stubUserStore struct {
	createFn      func(ctx context.Context, tx store.Execer, user models.User) error
	getByIDFn     func(ctx context.Context, userID string) (models.User, error)
	getByEmailFn  func(ctx context.Context, email string) (models.User, error)
	getRoleFn     func(ctx context.Context, userID string) (string, error)
	countAdminsFn func(ctx context.Context, q store.Getter) (int, error)
}

func (s stubUserStore) Create(ctx context.Context, tx store.Execer, user models.User) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, user)
}

func (s stubUserStore) GetByID(ctx context.Context, userID string) (models.User, error) {
	if s.getByIDFn == nil {
		return models.User{}, nil
	}
	return s.getByIDFn(ctx, userID)
}

func (s stubUserStore) GetByEmail(ctx context.Context, email string) (models.User, error) {
	if s.getByEmailFn == nil {
		return models.User{}, nil
	}
	return s.getByEmailFn(ctx, email)
}

func (s stubUserStore) GetRole(ctx context.Context, userID string) (string, error) {
	if s.getRoleFn == nil {
		return "", nil
	}
	return s.getRoleFn(ctx, userID)
}

func (s stubUserStore) CountAdmins(ctx context.Context, q store.Getter) (int, error) {
	if s.countAdminsFn == nil {
		return 1, nil
	}
	return s.countAdminsFn(ctx, q)
}

type stubListingStore struct {
	createListingFn func(ctx context.Context, tx store.Execer, listing models.Listing) error
	createUnitFn    func(ctx context.Context, tx store.Execer, unit models.ListingUnit) error
	getListingFn    func(ctx context.Context, listingID string) (models.Listing, error)
	listListingsFn  func(ctx context.Context) ([]models.Listing, error)
	listUnitsFn     func(ctx context.Context, listingID string) ([]models.ListingUnit, error)
	getUnitFn       func(ctx context.Context, unitID string) (models.ListingUnit, error)
}

func (s stubListingStore) CreateListing(ctx context.Context, tx store.Execer, listing models.Listing) error {
	if s.createListingFn == nil {
		return nil
	}
	return s.createListingFn(ctx, tx, listing)
}

func (s stubListingStore) CreateUnit(ctx context.Context, tx store.Execer, unit models.ListingUnit) error {
	if s.createUnitFn == nil {
		return nil
	}
	return s.createUnitFn(ctx, tx, unit)
}

func (s stubListingStore) GetListing(ctx context.Context, listingID string) (models.Listing, error) {
	if s.getListingFn == nil {
		return models.Listing{}, nil
	}
	return s.getListingFn(ctx, listingID)
}

func (s stubListingStore) ListListings(ctx context.Context) ([]models.Listing, error) {
	if s.listListingsFn == nil {
		return nil, nil
	}
	return s.listListingsFn(ctx)
}

func (s stubListingStore) ListUnits(ctx context.Context, listingID string) ([]models.ListingUnit, error) {
	if s.listUnitsFn == nil {
		return nil, nil
	}
	return s.listUnitsFn(ctx, listingID)
}

func (s stubListingStore) GetUnit(ctx context.Context, unitID string) (models.ListingUnit, error) {
	if s.getUnitFn == nil {
		return models.ListingUnit{}, nil
	}
	return s.getUnitFn(ctx, unitID)
}

type stubInventoryReader struct {
	getFn           func(ctx context.Context, inventoryID string) (models.TraderInventory, error)
	listByTraderFn  func(ctx context.Context, traderID string) ([]models.TraderInventory, error)
	listInStorageFn func(ctx context.Context) ([]models.TraderInventory, error)
}

func (s stubInventoryReader) Get(ctx context.Context, inventoryID string) (models.TraderInventory, error) {
	if s.getFn == nil {
		return models.TraderInventory{}, nil
	}
	return s.getFn(ctx, inventoryID)
}

func (s stubInventoryReader) ListByTrader(ctx context.Context, traderID string) ([]models.TraderInventory, error) {
	if s.listByTraderFn == nil {
		return nil, nil
	}
	return s.listByTraderFn(ctx, traderID)
}

func (s stubInventoryReader) ListInStorage(ctx context.Context) ([]models.TraderInventory, error) {
	if s.listInStorageFn == nil {
		return nil, nil
	}
	return s.listInStorageFn(ctx)
}

type stubNegotiationReader struct {
	listFn func(ctx context.Context, userID string) ([]models.Negotiation, error)
}

func (s stubNegotiationReader) ListForUser(ctx context.Context, userID string) ([]models.Negotiation, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, userID)
}

type stubBuyerNegotiationReader struct {
	listFn func(ctx context.Context, userID string) ([]models.BuyerNegotiation, error)
}

func (s stubBuyerNegotiationReader) ListForUser(ctx context.Context, userID string) ([]models.BuyerNegotiation, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, userID)
}

type stubWindowStore struct {
	isOpenFn  func(ctx context.Context, tx store.Getter) (bool, error)
	historyFn func(ctx context.Context, limit int) ([]models.PurchaseWindowEvent, error)
}

func (s stubWindowStore) IsOpen(ctx context.Context, tx store.Getter) (bool, error) {
	if s.isOpenFn == nil {
		return false, nil
	}
	return s.isOpenFn(ctx, tx)
}

func (s stubWindowStore) History(ctx context.Context, limit int) ([]models.PurchaseWindowEvent, error) {
	if s.historyFn == nil {
		return nil, nil
	}
	return s.historyFn(ctx, limit)
}

type stubSettingsReader struct {
	getFn  func(ctx context.Context, key string) (string, error)
	listFn func(ctx context.Context) (map[string]string, error)
}

func (s stubSettingsReader) Get(ctx context.Context, key string) (string, error) {
	if s.getFn == nil {
		return "0.5", nil
	}
	return s.getFn(ctx, key)
}

func (s stubSettingsReader) List(ctx context.Context) (map[string]string, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx)
}

type stubActionStore struct {
	listFn func(ctx context.Context, limit, offset int) ([]models.AdminAction, error)
}

func (s stubActionStore) List(ctx context.Context, limit, offset int) ([]models.AdminAction, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, limit, offset)
}

type stubLedgerAppender struct {
	appendFn func(ctx context.Context, tx store.Tx, userID, entryType string, amount int64, utidValue, metadata string) (store.LedgerEntryInput, error)
}

func (s stubLedgerAppender) Append(ctx context.Context, tx store.Tx, userID, entryType string, amount int64, utidValue, metadata string) (store.LedgerEntryInput, error) {
	if s.appendFn == nil {
		return store.LedgerEntryInput{}, nil
	}
	return s.appendFn(ctx, tx, userID, entryType, amount, utidValue, metadata)
}

type stubWalletService struct {
	depositFn  func(ctx context.Context, userID string, amountMinor int64) (store.LedgerEntryInput, error)
	withdrawFn func(ctx context.Context, traderID string, amountMinor int64) (store.LedgerEntryInput, error)
	balancesFn func(ctx context.Context, userID string) (services.Balances, error)
	entriesFn  func(ctx context.Context, userID string, limit, offset int) ([]models.WalletLedgerEntry, error)
	verifyFn   func(ctx context.Context, userID string) ([]services.ReplayMismatch, error)
}

func (s stubWalletService) Deposit(ctx context.Context, userID string, amountMinor int64) (store.LedgerEntryInput, error) {
	if s.depositFn == nil {
		return store.LedgerEntryInput{}, nil
	}
	return s.depositFn(ctx, userID, amountMinor)
}

func (s stubWalletService) WithdrawProfit(ctx context.Context, traderID string, amountMinor int64) (store.LedgerEntryInput, error) {
	if s.withdrawFn == nil {
		return store.LedgerEntryInput{}, nil
	}
	return s.withdrawFn(ctx, traderID, amountMinor)
}

func (s stubWalletService) Balances(ctx context.Context, userID string) (services.Balances, error) {
	if s.balancesFn == nil {
		return services.Balances{}, nil
	}
	return s.balancesFn(ctx, userID)
}

func (s stubWalletService) Entries(ctx context.Context, userID string, limit, offset int) ([]models.WalletLedgerEntry, error) {
	if s.entriesFn == nil {
		return nil, nil
	}
	return s.entriesFn(ctx, userID, limit, offset)
}

func (s stubWalletService) VerifyReplay(ctx context.Context, userID string) ([]services.ReplayMismatch, error) {
	if s.verifyFn == nil {
		return nil, nil
	}
	return s.verifyFn(ctx, userID)
}

type stubExposureService struct {
	computeFn func(ctx context.Context, traderID string) (services.Exposure, error)
}

func (s stubExposureService) Compute(ctx context.Context, traderID string) (services.Exposure, error) {
	if s.computeFn == nil {
		return services.Exposure{}, nil
	}
	return s.computeFn(ctx, traderID)
}

type stubTradeService struct {
	lockFn  func(ctx context.Context, traderID, unitID string) (services.LockResult, error)
	blockFn func(ctx context.Context, traderID string, unitIDs []string) (models.TraderInventory, error)
}

func (s stubTradeService) LockUnit(ctx context.Context, traderID, unitID string) (services.LockResult, error) {
	if s.lockFn == nil {
		return services.LockResult{}, nil
	}
	return s.lockFn(ctx, traderID, unitID)
}

func (s stubTradeService) BuildBlock(ctx context.Context, traderID string, unitIDs []string) (models.TraderInventory, error) {
	if s.blockFn == nil {
		return models.TraderInventory{}, nil
	}
	return s.blockFn(ctx, traderID, unitIDs)
}

type stubNegotiationService struct {
	openUnitFn  func(ctx context.Context, traderID, unitID string, offerPrice int64, expiresAt *time.Time) (models.Negotiation, error)
	actUnitFn   func(ctx context.Context, callerID, negotiationID, action string, counterPrice int64) (models.Negotiation, error)
	openBlockFn func(ctx context.Context, buyerID, inventoryID string, offerPrice int64, expiresAt *time.Time) (models.BuyerNegotiation, error)
	actBlockFn  func(ctx context.Context, callerID, negotiationID, action string, counterPrice int64) (models.BuyerNegotiation, error)
}

func (s stubNegotiationService) OpenUnitOffer(ctx context.Context, traderID, unitID string, offerPrice int64, expiresAt *time.Time) (models.Negotiation, error) {
	if s.openUnitFn == nil {
		return models.Negotiation{}, nil
	}
	return s.openUnitFn(ctx, traderID, unitID, offerPrice, expiresAt)
}

func (s stubNegotiationService) ActOnUnitOffer(ctx context.Context, callerID, negotiationID, action string, counterPrice int64) (models.Negotiation, error) {
	if s.actUnitFn == nil {
		return models.Negotiation{}, nil
	}
	return s.actUnitFn(ctx, callerID, negotiationID, action, counterPrice)
}

func (s stubNegotiationService) OpenBlockOffer(ctx context.Context, buyerID, inventoryID string, offerPrice int64, expiresAt *time.Time) (models.BuyerNegotiation, error) {
	if s.openBlockFn == nil {
		return models.BuyerNegotiation{}, nil
	}
	return s.openBlockFn(ctx, buyerID, inventoryID, offerPrice, expiresAt)
}

func (s stubNegotiationService) ActOnBlockOffer(ctx context.Context, callerID, negotiationID, action string, counterPrice int64) (models.BuyerNegotiation, error) {
	if s.actBlockFn == nil {
		return models.BuyerNegotiation{}, nil
	}
	return s.actBlockFn(ctx, callerID, negotiationID, action, counterPrice)
}

type stubPurchaseService struct {
	purchaseFn func(ctx context.Context, buyerID, inventoryID string) (models.BuyerPurchase, error)
	listFn     func(ctx context.Context, buyerID string) ([]models.BuyerPurchase, error)
}

func (s stubPurchaseService) Purchase(ctx context.Context, buyerID, inventoryID string) (models.BuyerPurchase, error) {
	if s.purchaseFn == nil {
		return models.BuyerPurchase{}, nil
	}
	return s.purchaseFn(ctx, buyerID, inventoryID)
}

func (s stubPurchaseService) ListForBuyer(ctx context.Context, buyerID string) ([]models.BuyerPurchase, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, buyerID)
}

type stubAdminService struct {
	verifyDeliveryFn func(ctx context.Context, adminID, unitID, outcome, reason string) error
	reverseFn        func(ctx context.Context, adminID, unitID, reason string) error
	openWindowFn     func(ctx context.Context, adminID, reason string) error
	closeWindowFn    func(ctx context.Context, adminID, reason string) error
	updateSettingFn  func(ctx context.Context, adminID, key, value, reason string) error
	setCapFn         func(ctx context.Context, adminID, traderID string, capMinor *int64, reason string) error
	redFlagsFn       func(ctx context.Context, now time.Time) (services.RedFlags, error)
	resetFn          func(ctx context.Context, adminID, reason string) (services.ResetSummary, error)
	batchFn          func(ctx context.Context, adminID string, lockUTIDs []string, reason string) (services.BatchInventorySummary, error)
}

func (s stubAdminService) VerifyDelivery(ctx context.Context, adminID, unitID, outcome, reason string) error {
	if s.verifyDeliveryFn == nil {
		return nil
	}
	return s.verifyDeliveryFn(ctx, adminID, unitID, outcome, reason)
}

func (s stubAdminService) ReverseDeliveryFailure(ctx context.Context, adminID, unitID, reason string) error {
	if s.reverseFn == nil {
		return nil
	}
	return s.reverseFn(ctx, adminID, unitID, reason)
}

func (s stubAdminService) OpenWindow(ctx context.Context, adminID, reason string) error {
	if s.openWindowFn == nil {
		return nil
	}
	return s.openWindowFn(ctx, adminID, reason)
}

func (s stubAdminService) CloseWindow(ctx context.Context, adminID, reason string) error {
	if s.closeWindowFn == nil {
		return nil
	}
	return s.closeWindowFn(ctx, adminID, reason)
}

func (s stubAdminService) UpdateSetting(ctx context.Context, adminID, key, value, reason string) error {
	if s.updateSettingFn == nil {
		return nil
	}
	return s.updateSettingFn(ctx, adminID, key, value, reason)
}

func (s stubAdminService) SetTraderCap(ctx context.Context, adminID, traderID string, capMinor *int64, reason string) error {
	if s.setCapFn == nil {
		return nil
	}
	return s.setCapFn(ctx, adminID, traderID, capMinor, reason)
}

func (s stubAdminService) ScanRedFlags(ctx context.Context, now time.Time) (services.RedFlags, error) {
	if s.redFlagsFn == nil {
		return services.RedFlags{}, nil
	}
	return s.redFlagsFn(ctx, now)
}

func (s stubAdminService) ResetAllTransactions(ctx context.Context, adminID, reason string) (services.ResetSummary, error) {
	if s.resetFn == nil {
		return services.ResetSummary{}, nil
	}
	return s.resetFn(ctx, adminID, reason)
}

func (s stubAdminService) BatchCreateInventories(ctx context.Context, adminID string, lockUTIDs []string, reason string) (services.BatchInventorySummary, error) {
	if s.batchFn == nil {
		return services.BatchInventorySummary{}, nil
	}
	return s.batchFn(ctx, adminID, lockUTIDs, reason)
}

type handlerStubs struct {
	q            stubGetter
	txRunner     fakeTxRunner
	users        stubUserStore
	listings     stubListingStore
	inventories  stubInventoryReader
	negotiations stubNegotiationReader
	buyerNegs    stubBuyerNegotiationReader
	window       stubWindowStore
	settings     stubSettingsReader
	actions      stubActionStore
	ledger       stubLedgerAppender
	wallet       stubWalletService
	exposure     stubExposureService
	trades       stubTradeService
	offers       stubNegotiationService
	purchases    stubPurchaseService
	admin        stubAdminService
}

func newTestHandler(stubs handlerStubs) *Handler {
	cfg := config.Config{
		AppEnv:               "test",
		Port:                 "0",
		JWTSecret:            "secret",
		TokenTTL:             time.Minute,
		AllowedOrigins:       "*",
		DefaultSpendCapMinor: 100_000_000,
		UnitSizeKilos:        10,
		BlockSizeKilos:       100,
		DeliverySLA:          6 * time.Hour,
		PickupSLA:            48 * time.Hour,
	}
	return New(stubs.q, stubs.txRunner, cfg, stubs.users, stubs.listings, stubs.inventories,
		stubs.negotiations, stubs.buyerNegs, stubs.window, stubs.settings, stubs.actions,
		stubs.ledger, stubs.wallet, stubs.exposure, stubs.trades, stubs.offers,
		stubs.purchases, stubs.admin)
}

func int64Ptr(value int64) *int64 {
	return &value
}
