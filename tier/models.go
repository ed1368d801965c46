package tier

import (
	"errors"

	"github.com/xraph/tierledger/types"
)

// ID is the operator-chosen tier key.
type ID uint16

// Tier is a purchasable subscription class.
type Tier struct {
	types.Entity
	ID                ID           `json:"id"`
	Name              string       `json:"name,omitempty"`
	DurationSeconds   uint64       `json:"duration_seconds"`
	ReferencePrice    types.Amount `json:"reference_price"`
	AnnualRatePercent uint16       `json:"annual_rate_percent"`
	ParamA            uint64       `json:"param_a"`
	ParamB            uint64       `json:"param_b"`
}

var (
	errZeroDuration = errors.New("duration must be positive")
	errPriceRange   = errors.New("reference price exceeds 128 bits")
)

// Validate checks the fields a tier must carry before it is stored.
func (t *Tier) Validate() error {
	if t.DurationSeconds == 0 {
		return errZeroDuration
	}
	if !t.ReferencePrice.FitsUint128() {
		return errPriceRange
	}
	return nil
}
