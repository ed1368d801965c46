package postgres

import (
	"strconv"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/tierledger/accrual"
	"github.com/xraph/tierledger/distribution"
	"github.com/xraph/tierledger/id"
	"github.com/xraph/tierledger/subscription"
	"github.com/xraph/tierledger/tier"
	"github.com/xraph/tierledger/types"
)

// singletonKey is the primary key of single-row tables.
const singletonKey = 1

// ==================== Tier models ====================

type tierModel struct {
	grove.BaseModel `grove:"table:ledger_tiers"`

	ID                int64     `grove:"id,pk"`
	Name              string    `grove:"name"`
	DurationSeconds   int64     `grove:"duration_seconds"`
	ReferencePrice    string    `grove:"reference_price"`
	AnnualRatePercent int       `grove:"annual_rate_percent"`
	ParamA            string    `grove:"param_a"`
	ParamB            string    `grove:"param_b"`
	CreatedAt         time.Time `grove:"created_at"`
	UpdatedAt         time.Time `grove:"updated_at"`
}

func toTierModel(t *tier.Tier) *tierModel {
	return &tierModel{
		ID:                int64(t.ID),
		Name:              t.Name,
		DurationSeconds:   int64(t.DurationSeconds), //nolint:gosec // durations are far below 2^63 seconds
		ReferencePrice:    t.ReferencePrice.String(),
		AnnualRatePercent: int(t.AnnualRatePercent),
		ParamA:            strconv.FormatUint(t.ParamA, 10),
		ParamB:            strconv.FormatUint(t.ParamB, 10),
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
	}
}

func fromTierModel(m *tierModel) (*tier.Tier, error) {
	price, err := types.ParseAmount(m.ReferencePrice)
	if err != nil {
		return nil, err
	}
	paramA, err := parseUint(m.ParamA)
	if err != nil {
		return nil, err
	}
	paramB, err := parseUint(m.ParamB)
	if err != nil {
		return nil, err
	}
	return &tier.Tier{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:                tier.ID(m.ID), //nolint:gosec // column holds uint16 values
		Name:              m.Name,
		DurationSeconds:   uint64(m.DurationSeconds), //nolint:gosec // written from uint64
		ReferencePrice:    price,
		AnnualRatePercent: uint16(m.AnnualRatePercent), //nolint:gosec // column holds uint16 values
		ParamA:            paramA,
		ParamB:            paramB,
	}, nil
}

// ==================== Subscription models ====================

type subscriptionModel struct {
	grove.BaseModel `grove:"table:ledger_subscriptions"`

	Account               string     `grove:"account,pk"`
	ID                    string     `grove:"id"`
	TierID                int64      `grove:"tier_id"`
	DepositedAmount       string     `grove:"deposited_amount"`
	LockedRatePercent     int        `grove:"locked_rate_percent"`
	LockedDurationSeconds int64      `grove:"locked_duration_seconds"`
	StartedAt             time.Time  `grove:"started_at"`
	EndedAt               *time.Time `grove:"ended_at"`
	Active                bool       `grove:"active"`
	CreatedAt             time.Time  `grove:"created_at"`
	UpdatedAt             time.Time  `grove:"updated_at"`
}

func toSubscriptionModel(s *subscription.Subscription) *subscriptionModel {
	return &subscriptionModel{
		Account:               string(s.Account),
		ID:                    s.ID.String(),
		TierID:                int64(s.TierID),
		DepositedAmount:       s.DepositedAmount.String(),
		LockedRatePercent:     int(s.LockedRatePercent),
		LockedDurationSeconds: int64(s.LockedDurationSeconds), //nolint:gosec // durations are far below 2^63 seconds
		StartedAt:             s.StartedAt,
		EndedAt:               s.EndedAt,
		Active:                s.Active,
		CreatedAt:             s.CreatedAt,
		UpdatedAt:             s.UpdatedAt,
	}
}

func fromSubscriptionModel(m *subscriptionModel) (*subscription.Subscription, error) {
	subID, err := id.ParseSubscriptionID(m.ID)
	if err != nil {
		return nil, err
	}
	deposit, err := types.ParseAmount(m.DepositedAmount)
	if err != nil {
		return nil, err
	}
	return &subscription.Subscription{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:                    subID,
		Account:               types.AccountID(m.Account),
		TierID:                tier.ID(m.TierID), //nolint:gosec // column holds uint16 values
		DepositedAmount:       deposit,
		LockedRatePercent:     uint16(m.LockedRatePercent),     //nolint:gosec // column holds uint16 values
		LockedDurationSeconds: uint64(m.LockedDurationSeconds), //nolint:gosec // written from uint64
		StartedAt:             m.StartedAt,
		EndedAt:               m.EndedAt,
		Active:                m.Active,
	}, nil
}

// ==================== Accrual models ====================

type accrualStateModel struct {
	grove.BaseModel `grove:"table:ledger_accrual_state"`

	ID                   int        `grove:"id,pk"`
	TotalWeightedDeposit string     `grove:"total_weighted_deposit"`
	LastSettlement       *time.Time `grove:"last_settlement"`
	AccruedUndistributed string     `grove:"accrued_undistributed"`
	ActiveSubscriptions  int64      `grove:"active_subscriptions"`
	TotalDeposited       string     `grove:"total_deposited"`
	TotalDistributed     string     `grove:"total_distributed"`
	UpdatedAt            time.Time  `grove:"updated_at"`
}

func toAccrualStateModel(s *accrual.State) *accrualStateModel {
	return &accrualStateModel{
		ID:                   singletonKey,
		TotalWeightedDeposit: s.TotalWeightedDeposit.String(),
		LastSettlement:       optionalTime(s.LastSettlement),
		AccruedUndistributed: s.AccruedUndistributed.String(),
		ActiveSubscriptions:  int64(s.ActiveSubscriptions), //nolint:gosec // subscription counts fit int64
		TotalDeposited:       s.TotalDeposited.String(),
		TotalDistributed:     s.TotalDistributed.String(),
		UpdatedAt:            s.UpdatedAt,
	}
}

func fromAccrualStateModel(m *accrualStateModel) (*accrual.State, error) {
	var (
		st  accrual.State
		err error
	)
	if st.TotalWeightedDeposit, err = types.ParseAmount(m.TotalWeightedDeposit); err != nil {
		return nil, err
	}
	if st.AccruedUndistributed, err = types.ParseAmount(m.AccruedUndistributed); err != nil {
		return nil, err
	}
	if st.TotalDeposited, err = types.ParseAmount(m.TotalDeposited); err != nil {
		return nil, err
	}
	if st.TotalDistributed, err = types.ParseAmount(m.TotalDistributed); err != nil {
		return nil, err
	}
	if m.LastSettlement != nil {
		st.LastSettlement = *m.LastSettlement
	}
	st.ActiveSubscriptions = uint64(m.ActiveSubscriptions) //nolint:gosec // written from uint64
	st.UpdatedAt = m.UpdatedAt
	return &st, nil
}

// ==================== Distribution models ====================

type distributionConfigModel struct {
	grove.BaseModel `grove:"table:ledger_distribution_config"`

	ID               int        `grove:"id,pk"`
	Recipient        string     `grove:"recipient"`
	SharePercent     int        `grove:"share_percent"`
	IntervalSeconds  int64      `grove:"interval_seconds"`
	LastDistribution *time.Time `grove:"last_distribution"`
	Paused           bool       `grove:"paused"`
	UpdatedAt        time.Time  `grove:"updated_at"`
}

func toDistributionConfigModel(c *distribution.Config) *distributionConfigModel {
	return &distributionConfigModel{
		ID:               singletonKey,
		Recipient:        string(c.Recipient),
		SharePercent:     int(c.SharePercent),
		IntervalSeconds:  int64(c.Interval / time.Second),
		LastDistribution: optionalTime(c.LastDistribution),
		Paused:           c.Paused,
		UpdatedAt:        c.UpdatedAt,
	}
}

func fromDistributionConfigModel(m *distributionConfigModel) *distribution.Config {
	c := &distribution.Config{
		Recipient:    types.AccountID(m.Recipient),
		SharePercent: uint16(m.SharePercent), //nolint:gosec // column holds uint16 values
		Interval:     time.Duration(m.IntervalSeconds) * time.Second,
		Paused:       m.Paused,
		UpdatedAt:    m.UpdatedAt,
	}
	if m.LastDistribution != nil {
		c.LastDistribution = *m.LastDistribution
	}
	return c
}

type payoutModel struct {
	grove.BaseModel `grove:"table:ledger_payouts"`

	ID            string    `grove:"id,pk"`
	Amount        string    `grove:"amount"`
	Recipient     string    `grove:"recipient"`
	ToRecipient   string    `grove:"to_recipient"`
	Sink          string    `grove:"sink"`
	ToSink        string    `grove:"to_sink"`
	DistributedAt time.Time `grove:"distributed_at"`
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
		return nil, err
	}
	p := &distribution.Payout{
		ID:            payoutID,
		Recipient:     types.AccountID(m.Recipient),
		Sink:          types.AccountID(m.Sink),
		DistributedAt: m.DistributedAt,
	}
	if p.Amount, err = types.ParseAmount(m.Amount); err != nil {
		return nil, err
	}
	if p.ToRecipient, err = types.ParseAmount(m.ToRecipient); err != nil {
		return nil, err
	}
	if p.ToSink, err = types.ParseAmount(m.ToSink); err != nil {
		return nil, err
	}
	return p, nil
}

// ==================== Helpers ====================

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func parseUint(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 10, 64)
}
