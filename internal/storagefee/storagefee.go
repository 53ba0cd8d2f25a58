// Package storagefee computes time-based kilo decay on stored inventory.
// Decay is a pure function of (now - storageStartTime) and is recomputed on
// every read that needs it; nothing here is ever written back, which keeps
// the figures replay-safe and idempotent at any given instant.
package storagefee

import (
	"time"

	"github.com/shopspring/decimal"
)

var blockKilos = decimal.NewFromInt(100)

// DefaultRatePerDay is the fallback decay rate: 0.5 kg/day per 100kg block.
var DefaultRatePerDay = decimal.RequireFromString("0.5")

// DaysInStorage returns whole elapsed days, floored. Negative elapsed time
// (clock skew, inventory created "in the future") counts as zero.
func DaysInStorage(storageStart, now time.Time) int64 {
	elapsed := now.Sub(storageStart)
	if elapsed < 0 {
		return 0
	}
	return int64(elapsed / (24 * time.Hour))
}

// KilosLost returns blocks x ratePerDay x daysInStorage, where blocks is
// totalKilos / 100. Exact decimal arithmetic: 100kg at 0.5/day for 4 days is
// 2.0, not 1.9999....
func KilosLost(totalKilos, ratePerDay decimal.Decimal, storageStart, now time.Time) decimal.Decimal {
	days := DaysInStorage(storageStart, now)
	if days == 0 {
		return decimal.Zero
	}
	blocks := totalKilos.Div(blockKilos)
	return blocks.Mul(ratePerDay).Mul(decimal.NewFromInt(days))
}

// EffectiveKilos is what remains after decay, floored at zero.
func EffectiveKilos(totalKilos, ratePerDay decimal.Decimal, storageStart, now time.Time) decimal.Decimal {
	remaining := totalKilos.Sub(KilosLost(totalKilos, ratePerDay, storageStart, now))
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// HighLoss reports whether an inventory's decay crosses the admin red-flag
// thresholds: lost/total >= minLossPercent (as a percentage) or lost >=
// minLossKilos.
func HighLoss(kilosLost, totalKilos, minLossPercent, minLossKilos decimal.Decimal) bool {
	if totalKilos.IsZero() {
		return false
	}
	pct := kilosLost.Div(totalKilos).Mul(decimal.NewFromInt(100))
	return pct.GreaterThanOrEqual(minLossPercent) || kilosLost.GreaterThanOrEqual(minLossKilos)
}
