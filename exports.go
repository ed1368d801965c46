package tierledger

import "github.com/xraph/tierledger/types"

// Re-export common types for convenience so users don't have to import types package.

// Amount is re-exported from types package.
type Amount = types.Amount

// AccountID is re-exported from types package.
type AccountID = types.AccountID

// Entity is re-exported from types package.
type Entity = types.Entity

// Re-export Amount constructors
var (
	NewAmount   = types.NewAmount
	ZeroAmount  = types.ZeroAmount
	ParseAmount = types.ParseAmount
	Sum         = types.Sum
)
