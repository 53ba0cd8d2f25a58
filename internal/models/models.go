package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Roles. A user holds exactly one, assigned at signup and never changed.
const (
	RoleFarmer = "farmer"
	RoleTrader = "trader"
	RoleBuyer  = "buyer"
	RoleAdmin  = "admin"
)

// Wallet ledger entry types. Deposits and unlocks credit the capital ledger,
// locks debit it; profit credits and withdrawals move the separate profit
// ledger multiplexed into the same append-only log.
const (
	EntryCapitalDeposit   = "capital_deposit"
	EntryCapitalLock      = "capital_lock"
	EntryCapitalUnlock    = "capital_unlock"
	EntryProfitCredit     = "profit_credit"
	EntryProfitWithdrawal = "profit_withdrawal"
)

// Listing unit lifecycle.
const (
	UnitAvailable = "available"
	UnitLocked    = "locked"
	UnitDelivered = "delivered"
	UnitCancelled = "cancelled"
)

// Delivery outcome on a locked unit.
const (
	DeliveryPending   = "pending"
	DeliveryDelivered = "delivered"
	DeliveryLate      = "late"
	DeliveryCancelled = "cancelled"
)

// Listing status, derived from the aggregate state of its units.
const (
	ListingActive          = "active"
	ListingPartiallyLocked = "partially_locked"
	ListingFullyLocked     = "fully_locked"
)

// Negotiation states. countered flips the offer back to the other party;
// expiry is evaluated lazily against ExpiresAt on touch.
const (
	NegotiationPending   = "pending"
	NegotiationAccepted  = "accepted"
	NegotiationRejected  = "rejected"
	NegotiationCountered = "countered"
	NegotiationExpired   = "expired"
	NegotiationCancelled = "cancelled"
)

// Trader inventory status.
const (
	InventoryInStorage = "in_storage"
	InventorySold      = "sold"
	InventoryExpired   = "expired"
)

// Buyer purchase status.
const (
	PurchasePendingPickup = "pending_pickup"
	PurchasePickedUp      = "picked_up"
	PurchaseExpired       = "expired"
)

type User struct {
	ID           string    `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         string    `db:"role" json:"role"`
	Alias        string    `db:"alias" json:"alias"`
	SpendCap     *int64    `db:"spend_cap_minor" json:"spend_cap_minor,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

type WalletLedgerEntry struct {
	ID           string    `db:"id" json:"id"`
	Seq          int64     `db:"seq" json:"seq"`
	UserID       string    `db:"user_id" json:"user_id"`
	UTID         string    `db:"utid" json:"utid"`
	EntryType    string    `db:"entry_type" json:"entry_type"`
	Amount       int64     `db:"amount_minor" json:"amount_minor"`
	BalanceAfter int64     `db:"balance_after_minor" json:"balance_after_minor"`
	Metadata     string    `db:"metadata" json:"metadata"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

type Listing struct {
	ID           string          `db:"id" json:"id"`
	FarmerID     string          `db:"farmer_id" json:"farmer_id"`
	UTID         string          `db:"utid" json:"utid"`
	ProduceType  string          `db:"produce_type" json:"produce_type"`
	TotalKilos   decimal.Decimal `db:"total_kilos" json:"total_kilos"`
	PricePerKilo int64           `db:"price_per_kilo_minor" json:"price_per_kilo_minor"`
	UnitSize     decimal.Decimal `db:"unit_size_kilos" json:"unit_size_kilos"`
	TotalUnits   int             `db:"total_units" json:"total_units"`
	Status       string          `db:"status" json:"status"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

type ListingUnit struct {
	ID                  string     `db:"id" json:"id"`
	ListingID           string     `db:"listing_id" json:"listing_id"`
	UnitIndex           int        `db:"unit_index" json:"unit_index"`
	Status              string     `db:"status" json:"status"`
	LockedBy            *string    `db:"locked_by" json:"locked_by,omitempty"`
	LockedAt            *time.Time `db:"locked_at" json:"locked_at,omitempty"`
	LockUTID            *string    `db:"lock_utid" json:"lock_utid,omitempty"`
	LockedPrice         *int64     `db:"locked_price_minor" json:"locked_price_minor,omitempty"`
	DeliveryDeadline    *time.Time `db:"delivery_deadline" json:"delivery_deadline,omitempty"`
	DeliveryStatus      string     `db:"delivery_status" json:"delivery_status"`
	ActiveNegotiationID *string    `db:"active_negotiation_id" json:"active_negotiation_id,omitempty"`
	InventoryID         *string    `db:"inventory_id" json:"inventory_id,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
}

// Negotiation is the farmer<->trader price-discovery machine, one per listing
// unit. Awaiting names the party whose move it is; only that party may
// accept, reject, or counter.
type Negotiation struct {
	ID           string     `db:"id" json:"id"`
	UnitID       string     `db:"listing_unit_id" json:"listing_unit_id"`
	FarmerID     string     `db:"farmer_id" json:"farmer_id"`
	TraderID     string     `db:"trader_id" json:"trader_id"`
	Status       string     `db:"status" json:"status"`
	OriginPrice  int64      `db:"origin_price_minor" json:"origin_price_minor"`
	CounterPrice *int64     `db:"counter_price_minor" json:"counter_price_minor,omitempty"`
	CurrentPrice int64      `db:"current_price_minor" json:"current_price_minor"`
	Awaiting     string     `db:"awaiting" json:"awaiting"`
	ExpiresAt    *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	UTID         string     `db:"utid" json:"utid"`
	AcceptedUTID *string    `db:"accepted_utid" json:"accepted_utid,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// BuyerNegotiation is the trader<->buyer machine, one per inventory block.
type BuyerNegotiation struct {
	ID           string     `db:"id" json:"id"`
	InventoryID  string     `db:"inventory_id" json:"inventory_id"`
	TraderID     string     `db:"trader_id" json:"trader_id"`
	BuyerID      string     `db:"buyer_id" json:"buyer_id"`
	Status       string     `db:"status" json:"status"`
	OriginPrice  int64      `db:"origin_price_minor" json:"origin_price_minor"`
	CounterPrice *int64     `db:"counter_price_minor" json:"counter_price_minor,omitempty"`
	CurrentPrice int64      `db:"current_price_minor" json:"current_price_minor"`
	Awaiting     string     `db:"awaiting" json:"awaiting"`
	ExpiresAt    *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	UTID         string     `db:"utid" json:"utid"`
	AcceptedUTID *string    `db:"accepted_utid" json:"accepted_utid,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// TraderInventory aggregates delivered units into a block held in storage.
// Kilo decay is a function of (now - StorageStartTime), never a stored
// counter.
type TraderInventory struct {
	ID               string          `db:"id" json:"id"`
	TraderID         string          `db:"trader_id" json:"trader_id"`
	UTID             string          `db:"utid" json:"utid"`
	TotalKilos       decimal.Decimal `db:"total_kilos" json:"total_kilos"`
	BlockSize        decimal.Decimal `db:"block_size_kilos" json:"block_size_kilos"`
	Value            int64           `db:"value_minor" json:"value_minor"`
	Status           string          `db:"status" json:"status"`
	StorageStartTime time.Time       `db:"storage_start_time" json:"storage_start_time"`
	IsBlock          bool            `db:"is_block" json:"is_block"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
}

type BuyerPurchase struct {
	ID             string          `db:"id" json:"id"`
	BuyerID        string          `db:"buyer_id" json:"buyer_id"`
	InventoryID    string          `db:"inventory_id" json:"inventory_id"`
	UTID           string          `db:"utid" json:"utid"`
	Kilos          decimal.Decimal `db:"kilos" json:"kilos"`
	Price          int64           `db:"price_minor" json:"price_minor"`
	ServiceFee     int64           `db:"service_fee_minor" json:"service_fee_minor"`
	PurchasedAt    time.Time       `db:"purchased_at" json:"purchased_at"`
	PickupDeadline time.Time       `db:"pickup_deadline" json:"pickup_deadline"`
	Status         string          `db:"status" json:"status"`
}

// PurchaseWindowEvent is one row of the append-only window toggle history.
// The most recent row is authoritative.
type PurchaseWindowEvent struct {
	ID        string    `db:"id" json:"id"`
	Seq       int64     `db:"seq" json:"seq"`
	IsOpen    bool      `db:"is_open" json:"is_open"`
	ActorID   string    `db:"actor_id" json:"actor_id"`
	UTID      string    `db:"utid" json:"utid"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type AdminAction struct {
	ID         string    `db:"id" json:"id"`
	AdminID    string    `db:"admin_id" json:"admin_id"`
	ActionType string    `db:"action_type" json:"action_type"`
	UTID       string    `db:"utid" json:"utid"`
	Reason     string    `db:"reason" json:"reason"`
	TargetUTID string    `db:"target_utid" json:"target_utid"`
	Metadata   string    `db:"metadata" json:"metadata"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// System setting keys read at calculation time.
const (
	SettingStorageFeeRate  = "storage_fee_rate_kg_per_day"
	SettingBuyerServiceFee = "buyer_service_fee_percent"
)
