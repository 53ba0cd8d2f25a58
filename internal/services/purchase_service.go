package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"agromart/internal/db"
	"agromart/internal/metrics"
	"agromart/internal/models"
	"agromart/internal/storagefee"
	"agromart/internal/store"
	"agromart/internal/utid"
)

type WindowReader interface {
	IsOpen(ctx context.Context, tx store.Getter) (bool, error)
}

type PurchaseInventoryStore interface {
	GetForUpdate(ctx context.Context, tx store.Getter, inventoryID string) (models.TraderInventory, error)
	SetStatus(ctx context.Context, tx store.Execer, inventoryID, status string) error
}

type AcceptedBlockOfferReader interface {
	GetAcceptedForInventory(ctx context.Context, tx store.Getter, inventoryID, buyerID string) (models.BuyerNegotiation, error)
}

type PurchaseRecordStore interface {
	Create(ctx context.Context, tx store.Execer, p models.BuyerPurchase) error
	ListByBuyer(ctx context.Context, buyerID string) ([]models.BuyerPurchase, error)
}

// SettingsReader reads the admin tunables at calculation time.
type SettingsReader interface {
	Get(ctx context.Context, key string) (string, error)
}

// PurchaseService executes buyer purchases during an open window. The buyer's
// capital is debited in the same transaction that marks the inventory sold;
// nothing is credited to the trader until pickup, which is an external
// fulfillment event outside this core.
type PurchaseService struct {
	txRunner    db.TxRunner
	roles       RoleReader
	window      WindowReader
	inventories PurchaseInventoryStore
	offers      AcceptedBlockOfferReader
	purchases   PurchaseRecordStore
	ledger      *Ledger
	settings    SettingsReader
	pickupSLA   time.Duration
}

func NewPurchaseService(txRunner db.TxRunner, roles RoleReader, window WindowReader, inventories PurchaseInventoryStore, offers AcceptedBlockOfferReader, purchases PurchaseRecordStore, ledger *Ledger, settings SettingsReader, pickupSLA time.Duration) *PurchaseService {
	return &PurchaseService{
		txRunner:    txRunner,
		roles:       roles,
		window:      window,
		inventories: inventories,
		offers:      offers,
		purchases:   purchases,
		ledger:      ledger,
		settings:    settings,
		pickupSLA:   pickupSLA,
	}
}

// Purchase buys an in-storage block. Price is the accepted negotiated price
// when one exists, else the block's acquisition value; the buyer service fee
// percentage is read from settings at purchase time. Kilos are the effective
// kilos after storage decay as of this instant.
func (s *PurchaseService) Purchase(ctx context.Context, buyerID, inventoryID string) (models.BuyerPurchase, error) {
	if err := requireRole(ctx, s.roles, buyerID, models.RoleBuyer); err != nil {
		return models.BuyerPurchase{}, err
	}
	feePercent, err := s.settingDecimal(ctx, models.SettingBuyerServiceFee)
	if err != nil {
		return models.BuyerPurchase{}, err
	}
	decayRate, err := s.settingDecimal(ctx, models.SettingStorageFeeRate)
	if err != nil {
		return models.BuyerPurchase{}, err
	}
	var purchase models.BuyerPurchase
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		open, err := s.window.IsOpen(ctx, tx)
		if err != nil {
			return err
		}
		if !open {
			return StateConflictError{Entity: "purchase window", ID: "current", State: "closed", Want: "open"}
		}
		inv, err := s.inventories.GetForUpdate(ctx, tx, inventoryID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return NotFoundError{Entity: "inventory", ID: inventoryID}
			}
			return err
		}
		if inv.Status != models.InventoryInStorage {
			return StateConflictError{Entity: "inventory", ID: inventoryID, State: inv.Status, Want: models.InventoryInStorage}
		}
		price := inv.Value
		offer, err := s.offers.GetAcceptedForInventory(ctx, tx, inventoryID, buyerID)
		switch {
		case err == nil:
			price = offer.CurrentPrice
		case errors.Is(err, sql.ErrNoRows):
			// no negotiated price; the block sells at acquisition value
		default:
			return err
		}
		fee := decimal.NewFromInt(price).Mul(feePercent).Div(decimal.NewFromInt(100)).RoundBank(0).IntPart()
		total := price + fee
		balance, err := s.ledger.entries.LatestBalanceForUpdate(ctx, tx, buyerID, capitalTypes)
		if err != nil {
			return err
		}
		if balance < total {
			return StateConflictError{Entity: "buyer wallet", ID: buyerID, State: "insufficient capital", Want: "balance >= price + fee"}
		}
		now := time.Now().UTC()
		purchaseUTID := utid.New(utid.ActorBuyer)
		metadata := metadataJSON(map[string]string{"inventory_id": inventoryID, "purchase": "escrow"})
		if _, err := s.ledger.Append(ctx, tx, buyerID, models.EntryCapitalLock, total, purchaseUTID, metadata); err != nil {
			return err
		}
		purchase = models.BuyerPurchase{
			ID:             uuid.NewString(),
			BuyerID:        buyerID,
			InventoryID:    inventoryID,
			UTID:           purchaseUTID,
			Kilos:          storagefee.EffectiveKilos(inv.TotalKilos, decayRate, inv.StorageStartTime, now),
			Price:          price,
			ServiceFee:     fee,
			PurchasedAt:    now,
			PickupDeadline: now.Add(s.pickupSLA),
			Status:         models.PurchasePendingPickup,
		}
		if err := s.purchases.Create(ctx, tx, purchase); err != nil {
			return err
		}
		return s.inventories.SetStatus(ctx, tx, inventoryID, models.InventorySold)
	})
	if err != nil {
		return models.BuyerPurchase{}, err
	}
	metrics.PurchasesTotal.Inc()
	return purchase, nil
}

func (s *PurchaseService) ListForBuyer(ctx context.Context, buyerID string) ([]models.BuyerPurchase, error) {
	return s.purchases.ListByBuyer(ctx, buyerID)
}

func (s *PurchaseService) settingDecimal(ctx context.Context, key string) (decimal.Decimal, error) {
	raw, err := s.settings.Get(ctx, key)
	if err != nil {
		return decimal.Zero, err
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, ValidationError{Field: key, Detail: "stored value is not numeric"}
	}
	return value, nil
}
