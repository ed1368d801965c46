// Package memory provides an in-process deposit token and a fixed-rate
// funding adapter. It is used by tests and by the standalone binary's
// development mode.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/xraph/tierledger/funding"
	"github.com/xraph/tierledger/types"
)

// Compile-time interface check.
var _ funding.Token = (*Token)(nil)

type allowanceKey struct {
	owner, spender types.AccountID
}

// Token is a simulated fungible token.
type Token struct {
	mu         sync.RWMutex
	balances   map[types.AccountID]types.Amount
	allowances map[allowanceKey]types.Amount
}

// NewToken returns an empty token.
func NewToken() *Token {
	return &Token{
		balances:   make(map[types.AccountID]types.Amount),
		allowances: make(map[allowanceKey]types.Amount),
	}
}

// Mint credits amount to account.
func (t *Token) Mint(account types.AccountID, amount types.Amount) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balances[account] = t.balances[account].Add(amount)
}

// Approve sets the amount spender may pull from owner.
func (t *Token) Approve(owner, spender types.AccountID, amount types.Amount) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.allowances[allowanceKey{owner, spender}] = amount
}

func (t *Token) BalanceOf(_ context.Context, account types.AccountID) (types.Amount, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.balances[account], nil
}

func (t *Token) Allowance(_ context.Context, owner, spender types.AccountID) (types.Amount, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.allowances[allowanceKey{owner, spender}], nil
}

func (t *Token) Transfer(_ context.Context, from, to types.AccountID, amount types.Amount) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.move(from, to, amount)
}

func (t *Token) TransferFrom(_ context.Context, spender, owner, to types.AccountID, amount types.Amount) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := allowanceKey{owner, spender}
	remaining, ok := t.allowances[key].CheckedSub(amount)
	if !ok {
		return fmt.Errorf("%s may not pull %s from %s: %w", spender, amount, owner, funding.ErrInsufficientAllowance)
	}
	if err := t.move(owner, to, amount); err != nil {
		return err
	}
	t.allowances[key] = remaining
	return nil
}

func (t *Token) move(from, to types.AccountID, amount types.Amount) error {
	next, ok := t.balances[from].CheckedSub(amount)
	if !ok {
		return fmt.Errorf("%s holds %s, needs %s: %w", from, t.balances[from], amount, funding.ErrInsufficientBalance)
	}
	t.balances[from] = next
	t.balances[to] = t.balances[to].Add(amount)
	return nil
}

// Supply returns the sum of all balances.
func (t *Token) Supply() types.Amount {
	t.mu.RLock()
	defer t.mu.RUnlock()
	total := types.ZeroAmount()
	for _, b := range t.balances {
		total = total.Add(b)
	}
	return total
}

// Holders returns every account with a non-zero balance, sorted.
func (t *Token) Holders() []types.AccountID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]types.AccountID, 0, len(t.balances))
	for a, b := range t.balances {
		if b.IsPositive() {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
