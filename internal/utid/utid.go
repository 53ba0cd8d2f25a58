// Package utid generates unique transaction identifiers. Every state change
// in the marketplace is stamped with one, and the same UTID ties together the
// ledger entry, the unit/inventory mutation, and any admin action it belongs
// to, so an audit can reconstruct a transaction from any of its records.
package utid

import (
	"strings"

	"github.com/google/uuid"
)

// Actor categories. The prefix encodes who initiated the transaction.
const (
	ActorFarmer = "FRM"
	ActorTrader = "TRD"
	ActorBuyer  = "BYR"
	ActorAdmin  = "ADM"
	ActorSystem = "SYS"
)

// New returns a fresh UTID prefixed by the initiating actor category.
// Unknown actors fall back to the system prefix rather than failing: an
// unattributed transaction id is still better than no id.
func New(actor string) string {
	switch actor {
	case ActorFarmer, ActorTrader, ActorBuyer, ActorAdmin, ActorSystem:
	default:
		actor = ActorSystem
	}
	return actor + "-" + uuid.NewString()
}

// RolePrefix maps a user role to its actor category.
func RolePrefix(role string) string {
	switch role {
	case "farmer":
		return ActorFarmer
	case "trader":
		return ActorTrader
	case "buyer":
		return ActorBuyer
	case "admin":
		return ActorAdmin
	default:
		return ActorSystem
	}
}

// ForRole maps a user role to its actor category and returns a UTID for it.
func ForRole(role string) string {
	return New(RolePrefix(role))
}

// Actor extracts the actor category from a UTID, or ActorSystem if the
// token is malformed.
func Actor(id string) string {
	prefix, _, found := strings.Cut(id, "-")
	if !found {
		return ActorSystem
	}
	switch prefix {
	case ActorFarmer, ActorTrader, ActorBuyer, ActorAdmin, ActorSystem:
		return prefix
	}
	return ActorSystem
}
