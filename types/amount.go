// Package types provides common types used across tierledger.
package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is a non-negative quantity of the deposit token in its smallest unit.
// All arithmetic is integer-only and every division truncates toward zero.
//
// The zero value is 0. Amount values are immutable: every operation returns
// a new Amount and never mutates its operands.
type Amount struct {
	v *big.Int
}

var (
	bigZero    = new(big.Int)
	maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
)

// NewAmount creates an Amount from a uint64.
func NewAmount(n uint64) Amount { return Amount{v: new(big.Int).SetUint64(n)} }

// ZeroAmount returns the zero Amount.
func ZeroAmount() Amount { return Amount{} }

// AmountFromBig creates an Amount from a big.Int. Negative values are rejected.
func AmountFromBig(b *big.Int) (Amount, error) {
	if b == nil {
		return Amount{}, nil
	}
	if b.Sign() < 0 {
		return Amount{}, fmt.Errorf("amount: negative value %s", b)
	}
	return Amount{v: new(big.Int).Set(b)}, nil
}

// ParseAmount parses a base-10 integer string.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, fmt.Errorf("amount: parse %q: empty string", s)
	}
	b, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Amount{}, fmt.Errorf("amount: parse %q: not a base-10 integer", s)
	}
	return AmountFromBig(b)
}

// MustParseAmount is like ParseAmount but panics on error. Use for constants.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) raw() *big.Int {
	if a.v == nil {
		return bigZero
	}
	return a.v
}

// BigInt returns a copy of the underlying integer.
func (a Amount) BigInt() *big.Int { return new(big.Int).Set(a.raw()) }

// Arithmetic operations

// Add returns a + b.
func (a Amount) Add(b Amount) Amount {
	return Amount{v: new(big.Int).Add(a.raw(), b.raw())}
}

// Sub returns a - b. Panics if b > a; use SubClamp or CheckedSub when the
// result may be negative.
func (a Amount) Sub(b Amount) Amount {
	r, ok := a.CheckedSub(b)
	if !ok {
		panic(fmt.Sprintf("amount: negative result %s - %s", a, b))
	}
	return r
}

// CheckedSub returns a - b and false if the result would be negative.
func (a Amount) CheckedSub(b Amount) (Amount, bool) {
	if a.raw().Cmp(b.raw()) < 0 {
		return Amount{}, false
	}
	return Amount{v: new(big.Int).Sub(a.raw(), b.raw())}, true
}

// SubClamp returns max(a - b, 0).
func (a Amount) SubClamp(b Amount) Amount {
	r, _ := a.CheckedSub(b)
	return r
}

// Mul returns a * b.
func (a Amount) Mul(b Amount) Amount {
	return Amount{v: new(big.Int).Mul(a.raw(), b.raw())}
}

// MulUint64 returns a * n.
func (a Amount) MulUint64(n uint64) Amount {
	return Amount{v: new(big.Int).Mul(a.raw(), new(big.Int).SetUint64(n))}
}

// DivUint64 returns a / n truncated toward zero. Panics if n is zero.
func (a Amount) DivUint64(n uint64) Amount {
	if n == 0 {
		panic("amount: division by zero")
	}
	return Amount{v: new(big.Int).Quo(a.raw(), new(big.Int).SetUint64(n))}
}

// MulDiv returns a * mul / div truncated toward zero, computed without
// intermediate overflow. Panics if div is zero.
func (a Amount) MulDiv(mul Amount, div Amount) Amount {
	if div.IsZero() {
		panic("amount: division by zero")
	}
	p := new(big.Int).Mul(a.raw(), mul.raw())
	return Amount{v: p.Quo(p, div.raw())}
}

// Comparison methods

// Cmp compares a and b and returns -1, 0 or +1.
func (a Amount) Cmp(b Amount) int { return a.raw().Cmp(b.raw()) }

// IsZero returns true if the amount is zero.
func (a Amount) IsZero() bool { return a.raw().Sign() == 0 }

// IsPositive returns true if the amount is greater than zero.
func (a Amount) IsPositive() bool { return a.raw().Sign() > 0 }

// Equal returns true if both amounts are equal.
func (a Amount) Equal(b Amount) bool { return a.Cmp(b) == 0 }

// LessThan returns true if a < b.
func (a Amount) LessThan(b Amount) bool { return a.Cmp(b) < 0 }

// GreaterThan returns true if a > b.
func (a Amount) GreaterThan(b Amount) bool { return a.Cmp(b) > 0 }

// Min returns the smaller of a and b.
func (a Amount) Min(b Amount) Amount {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func (a Amount) Max(b Amount) Amount {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

// FitsUint128 reports whether the amount can be stored as an unsigned 128-bit value.
func (a Amount) FitsUint128() bool { return a.raw().Cmp(maxUint128) <= 0 }

// Uint64 returns the amount as a uint64 and false if it does not fit.
func (a Amount) Uint64() (uint64, bool) {
	if !a.raw().IsUint64() {
		return 0, false
	}
	return a.raw().Uint64(), true
}

// Formatting methods

// String returns the base-10 representation in base units.
func (a Amount) String() string { return a.raw().String() }

// Display renders the amount in whole tokens given the token's decimals.
// For decimals=18, 1500000000000000000 renders as "1.5".
func (a Amount) Display(decimals int32) string {
	return decimal.NewFromBigInt(a.raw(), -decimals).String()
}

// MarshalJSON encodes the amount as a decimal string so no precision is lost
// in JSON number handling.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts a decimal string or a JSON integer.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*a = Amount{}
		return nil
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Value implements driver.Valuer. Amounts are persisted as decimal strings.
func (a Amount) Value() (driver.Value, error) {
	return a.String(), nil
}

// Scan implements sql.Scanner.
func (a *Amount) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = Amount{}
		return nil
	case string:
		return a.UnmarshalJSON([]byte(v))
	case []byte:
		return a.UnmarshalJSON(v)
	case int64:
		if v < 0 {
			return fmt.Errorf("amount: cannot scan negative value %d", v)
		}
		*a = NewAmount(uint64(v))
		return nil
	default:
		return fmt.Errorf("amount: cannot scan %T into Amount", src)
	}
}

// Sum returns the sum of the given amounts.
func Sum(values ...Amount) Amount {
	total := Amount{}
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
