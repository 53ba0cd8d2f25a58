package services

import (
	"context"

	"agromart/internal/store"
)

// Exposure is a trader's total capital at risk, recomputed from source
// records on every call. Nothing here is cached or stored.
type Exposure struct {
	LockedCapitalMinor     int64 `json:"locked_capital_minor"`
	LockedOrdersValueMinor int64 `json:"locked_orders_value_minor"`
	InventoryValueMinor    int64 `json:"inventory_value_minor"`
	TotalExposureMinor     int64 `json:"total_exposure_minor"`
	SpendCapMinor          int64 `json:"spend_cap_minor"`
	RemainingCapacityMinor int64 `json:"remaining_capacity_minor"`
	CanSpend               bool  `json:"can_spend"`
}

type LockedCapitalSummer interface {
	SumLockedCapital(ctx context.Context, q store.Getter, userID string) (int64, error)
}

type LockedOrderSummer interface {
	SumLockedOrderValue(ctx context.Context, q store.Getter, traderID string) (int64, error)
}

type InventoryValueSummer interface {
	SumUnsoldValue(ctx context.Context, q store.Getter, traderID string) (int64, error)
}

type SpendCapReader interface {
	GetSpendCap(ctx context.Context, q store.Getter, userID string) (*int64, error)
}

// ExposureService aggregates a trader's locked capital, locked-order value,
// and unsold inventory value against the spend cap. Read-only; when invoked
// with the pool it runs under snapshot isolation and never blocks writers,
// and the lock transaction invokes it with its own tx for a fresh serialized
// read.
type ExposureService struct {
	q           store.Getter
	entries     LockedCapitalSummer
	units       LockedOrderSummer
	inventories InventoryValueSummer
	caps        SpendCapReader
	defaultCap  int64
}

func NewExposureService(q store.Getter, entries LockedCapitalSummer, units LockedOrderSummer, inventories InventoryValueSummer, caps SpendCapReader, defaultCapMinor int64) *ExposureService {
	return &ExposureService{
		q:           q,
		entries:     entries,
		units:       units,
		inventories: inventories,
		caps:        caps,
		defaultCap:  defaultCapMinor,
	}
}

func (s *ExposureService) Compute(ctx context.Context, traderID string) (Exposure, error) {
	return s.ComputeIn(ctx, s.q, traderID)
}

// ComputeIn computes exposure through the given query handle. totalExposure
// is the exact sum of its three components.
func (s *ExposureService) ComputeIn(ctx context.Context, q store.Getter, traderID string) (Exposure, error) {
	lockedCapital, err := s.entries.SumLockedCapital(ctx, q, traderID)
	if err != nil {
		return Exposure{}, err
	}
	lockedOrders, err := s.units.SumLockedOrderValue(ctx, q, traderID)
	if err != nil {
		return Exposure{}, err
	}
	inventoryValue, err := s.inventories.SumUnsoldValue(ctx, q, traderID)
	if err != nil {
		return Exposure{}, err
	}
	spendCap := s.defaultCap
	if override, err := s.caps.GetSpendCap(ctx, q, traderID); err != nil {
		return Exposure{}, err
	} else if override != nil {
		spendCap = *override
	}
	total := lockedCapital + lockedOrders + inventoryValue
	remaining := spendCap - total
	if remaining < 0 {
		remaining = 0
	}
	return Exposure{
		LockedCapitalMinor:     lockedCapital,
		LockedOrdersValueMinor: lockedOrders,
		InventoryValueMinor:    inventoryValue,
		TotalExposureMinor:     total,
		SpendCapMinor:          spendCap,
		RemainingCapacityMinor: remaining,
		CanSpend:               total < spendCap,
	}, nil
}
