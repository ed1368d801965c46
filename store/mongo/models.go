package mongo

import (
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/tierledger/accrual"
	"github.com/xraph/tierledger/distribution"
	"github.com/xraph/tierledger/id"
	"github.com/xraph/tierledger/subscription"
	"github.com/xraph/tierledger/tier"
	"github.com/xraph/tierledger/types"
)

// singletonKey is the _id of single-document collections.
const singletonKey = "singleton"

// ==================== Tier models ====================

type tierModel struct {
	grove.BaseModel `grove:"table:ledger_tiers"`

	ID                int64     `grove:"id,pk"               bson:"_id"`
	Name              string    `grove:"name"                bson:"name"`
	DurationSeconds   int64     `grove:"duration_seconds"    bson:"duration_seconds"`
	ReferencePrice    string    `grove:"reference_price"     bson:"reference_price"`
	AnnualRatePercent int32     `grove:"annual_rate_percent" bson:"annual_rate_percent"`
	ParamA            int64     `grove:"param_a"             bson:"param_a"`
	ParamB            int64     `grove:"param_b"             bson:"param_b"`
	CreatedAt         time.Time `grove:"created_at"          bson:"created_at"`
	UpdatedAt         time.Time `grove:"updated_at"          bson:"updated_at"`
}

//nolint:gosec // uint64 fields round-trip through int64 bit patterns
func toTierModel(t *tier.Tier) *tierModel {
	return &tierModel{
		ID:                int64(t.ID),
		Name:              t.Name,
		DurationSeconds:   int64(t.DurationSeconds),
		ReferencePrice:    t.ReferencePrice.String(),
		AnnualRatePercent: int32(t.AnnualRatePercent),
		ParamA:            int64(t.ParamA),
		ParamB:            int64(t.ParamB),
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
	}
}

//nolint:gosec // uint64 fields round-trip through int64 bit patterns
func fromTierModel(m *tierModel) (*tier.Tier, error) {
	price, err := types.ParseAmount(m.ReferencePrice)
	if err != nil {
		return nil, fmt.Errorf("tierledger/mongo: tier %d reference price: %w", m.ID, err)
	}
	return &tier.Tier{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:                tier.ID(m.ID),
		Name:              m.Name,
		DurationSeconds:   uint64(m.DurationSeconds),
		ReferencePrice:    price,
		AnnualRatePercent: uint16(m.AnnualRatePercent),
		ParamA:            uint64(m.ParamA),
		ParamB:            uint64(m.ParamB),
	}, nil
}

// ==================== Subscription models ====================

type subscriptionModel struct {
	grove.BaseModel `grove:"table:ledger_subscriptions"`

	Account               string     `grove:"account,pk"              bson:"_id"`
	ID                    string     `grove:"id"                      bson:"subscription_id"`
	TierID                int64      `grove:"tier_id"                 bson:"tier_id"`
	DepositedAmount       string     `grove:"deposited_amount"        bson:"deposited_amount"`
	LockedRatePercent     int32      `grove:"locked_rate_percent"     bson:"locked_rate_percent"`
	LockedDurationSeconds int64      `grove:"locked_duration_seconds" bson:"locked_duration_seconds"`
	StartedAt             time.Time  `grove:"started_at"              bson:"started_at"`
	EndedAt               *time.Time `grove:"ended_at"                bson:"ended_at,omitempty"`
	Active                bool       `grove:"active"                  bson:"active"`
	CreatedAt             time.Time  `grove:"created_at"              bson:"created_at"`
	UpdatedAt             time.Time  `grove:"updated_at"              bson:"updated_at"`
}

//nolint:gosec // uint64 fields round-trip through int64 bit patterns
func toSubscriptionModel(s *subscription.Subscription) *subscriptionModel {
	return &subscriptionModel{
		Account:               string(s.Account),
		ID:                    s.ID.String(),
		TierID:                int64(s.TierID),
		DepositedAmount:       s.DepositedAmount.String(),
		LockedRatePercent:     int32(s.LockedRatePercent),
		LockedDurationSeconds: int64(s.LockedDurationSeconds),
		StartedAt:             s.StartedAt,
		EndedAt:               s.EndedAt,
		Active:                s.Active,
		CreatedAt:             s.CreatedAt,
		UpdatedAt:             s.UpdatedAt,
	}
}

//nolint:gosec // uint64 fields round-trip through int64 bit patterns
func fromSubscriptionModel(m *subscriptionModel) (*subscription.Subscription, error) {
	subID, err := id.ParseSubscriptionID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("tierledger/mongo: subscription %s: %w", m.Account, err)
	}
	deposit, err := types.ParseAmount(m.DepositedAmount)
	if err != nil {
		return nil, fmt.Errorf("tierledger/mongo: subscription %s deposit: %w", m.Account, err)
	}
	return &subscription.Subscription{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:                    subID,
		Account:               types.AccountID(m.Account),
		TierID:                tier.ID(m.TierID),
		DepositedAmount:       deposit,
		LockedRatePercent:     uint16(m.LockedRatePercent),
		LockedDurationSeconds: uint64(m.LockedDurationSeconds),
		StartedAt:             m.StartedAt,
		EndedAt:               m.EndedAt,
		Active:                m.Active,
	}, nil
}

// ==================== Accrual models ====================

type accrualStateModel struct {
	grove.BaseModel `grove:"table:ledger_accrual_state"`

	ID                   string    `grove:"id,pk"                  bson:"_id"`
	TotalWeightedDeposit string    `grove:"total_weighted_deposit" bson:"total_weighted_deposit"`
	LastSettlement       time.Time `grove:"last_settlement"        bson:"last_settlement"`
	AccruedUndistributed string    `grove:"accrued_undistributed"  bson:"accrued_undistributed"`
	ActiveSubscriptions  int64     `grove:"active_subscriptions"   bson:"active_subscriptions"`
	TotalDeposited       string    `grove:"total_deposited"        bson:"total_deposited"`
	TotalDistributed     string    `grove:"total_distributed"      bson:"total_distributed"`
	UpdatedAt            time.Time `grove:"updated_at"             bson:"updated_at"`
}

func toAccrualStateModel(s *accrual.State) *accrualStateModel {
	return &accrualStateModel{
		ID:                   singletonKey,
		TotalWeightedDeposit: s.TotalWeightedDeposit.String(),
		LastSettlement:       s.LastSettlement,
		AccruedUndistributed: s.AccruedUndistributed.String(),
		ActiveSubscriptions:  int64(s.ActiveSubscriptions), //nolint:gosec // subscription counts fit int64
		TotalDeposited:       s.TotalDeposited.String(),
		TotalDistributed:     s.TotalDistributed.String(),
		UpdatedAt:            s.UpdatedAt,
	}
}

func fromAccrualStateModel(m *accrualStateModel) (*accrual.State, error) {
	st := &accrual.State{
		LastSettlement:      m.LastSettlement,
		ActiveSubscriptions: uint64(m.ActiveSubscriptions), //nolint:gosec // written from uint64
		UpdatedAt:           m.UpdatedAt,
	}
	for _, f := range []struct {
		dst *types.Amount
		src string
	}{
		{&st.TotalWeightedDeposit, m.TotalWeightedDeposit},
		{&st.AccruedUndistributed, m.AccruedUndistributed},
		{&st.TotalDeposited, m.TotalDeposited},
		{&st.TotalDistributed, m.TotalDistributed},
	} {
		v, err := types.ParseAmount(f.src)
		if err != nil {
			return nil, fmt.Errorf("tierledger/mongo: accrual state: %w", err)
		}
		*f.dst = v
	}
	return st, nil
}

// ==================== Distribution models ====================

type distributionConfigModel struct {
	grove.BaseModel `grove:"table:ledger_distribution_config"`

	ID               string    `grove:"id,pk"             bson:"_id"`
	Recipient        string    `grove:"recipient"         bson:"recipient"`
	SharePercent     int32     `grove:"share_percent"     bson:"share_percent"`
	IntervalSeconds  int64     `grove:"interval_seconds"  bson:"interval_seconds"`
	LastDistribution time.Time `grove:"last_distribution" bson:"last_distribution"`
	Paused           bool      `grove:"paused"            bson:"paused"`
	UpdatedAt        time.Time `grove:"updated_at"        bson:"updated_at"`
}

func toDistributionConfigModel(c *distribution.Config) *distributionConfigModel {
	return &distributionConfigModel{
		ID:               singletonKey,
		Recipient:        string(c.Recipient),
		SharePercent:     int32(c.SharePercent),
		IntervalSeconds:  int64(c.Interval / time.Second),
		LastDistribution: c.LastDistribution,
		Paused:           c.Paused,
		UpdatedAt:        c.UpdatedAt,
	}
}

func fromDistributionConfigModel(m *distributionConfigModel) *distribution.Config {
	return &distribution.Config{
		Recipient:        types.AccountID(m.Recipient),
		SharePercent:     uint16(m.SharePercent), //nolint:gosec // written from uint16
		Interval:         time.Duration(m.IntervalSeconds) * time.Second,
		LastDistribution: m.LastDistribution,
		Paused:           m.Paused,
		UpdatedAt:        m.UpdatedAt,
	}
}

type payoutModel struct {
	grove.BaseModel `grove:"table:ledger_payouts"`

	ID            string    `grove:"id,pk"          bson:"_id"`
	Amount        string    `grove:"amount"         bson:"amount"`
	Recipient     string    `grove:"recipient"      bson:"recipient"`
	ToRecipient   string    `grove:"to_recipient"   bson:"to_recipient"`
	Sink          string    `grove:"sink"           bson:"sink"`
	ToSink        string    `grove:"to_sink"        bson:"to_sink"`
	DistributedAt time.Time `grove:"distributed_at" bson:"distributed_at"`
}

func toPayoutModel(p *distribution.Payout) *payoutModel {
	return &payoutModel{
		ID:            p.ID.String(),
		Amount:        p.Amount.String(),
		Recipient:     string(p.Recipient),
		ToRecipient:   p.ToRecipient.String(),
		Sink:          string(p.Sink),
		ToSink:        p.ToSink.String(),
		DistributedAt: p.DistributedAt,
	}
}

func fromPayoutModel(m *payoutModel) (*distribution.Payout, error) {
	payoutID, err := id.ParsePayoutID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("tierledger/mongo: payout: %w", err)
	}
	p := &distribution.Payout{
		ID:            payoutID,
		Recipient:     types.AccountID(m.Recipient),
		Sink:          types.AccountID(m.Sink),
		DistributedAt: m.DistributedAt,
	}
	for _, f := range []struct {
		dst *types.Amount
		src string
	}{
		{&p.Amount, m.Amount},
		{&p.ToRecipient, m.ToRecipient},
		{&p.ToSink, m.ToSink},
	} {
		v, err := types.ParseAmount(f.src)
		if err != nil {
			return nil, fmt.Errorf("tierledger/mongo: payout %s: %w", m.ID, err)
		}
		*f.dst = v
	}
	return p, nil
}
