package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the tierledger store.
var Migrations = migrate.NewGroup("tierledger")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_ledger_tiers",
			Version: "20250101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS ledger_tiers (
    id                  INT PRIMARY KEY,
    name                TEXT NOT NULL DEFAULT '',
    duration_seconds    BIGINT NOT NULL,
    reference_price     NUMERIC(39, 0) NOT NULL DEFAULT 0,
    annual_rate_percent INT NOT NULL DEFAULT 0,
    param_a             NUMERIC(20, 0) NOT NULL DEFAULT 0,
    param_b             NUMERIC(20, 0) NOT NULL DEFAULT 0,
    created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS ledger_tiers`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_ledger_subscriptions",
			Version: "20250101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS ledger_subscriptions (
    account                 TEXT PRIMARY KEY,
    id                      TEXT NOT NULL,
    tier_id                 INT NOT NULL,
    deposited_amount        NUMERIC(39, 0) NOT NULL DEFAULT 0,
    locked_rate_percent     INT NOT NULL DEFAULT 0,
    locked_duration_seconds BIGINT NOT NULL DEFAULT 0,
    started_at              TIMESTAMPTZ NOT NULL,
    ended_at                TIMESTAMPTZ,
    active                  BOOLEAN NOT NULL DEFAULT TRUE,
    created_at              TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at              TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_ledger_subs_id ON ledger_subscriptions (id);
CREATE INDEX IF NOT EXISTS idx_ledger_subs_active ON ledger_subscriptions (active);
CREATE INDEX IF NOT EXISTS idx_ledger_subs_tier ON ledger_subscriptions (tier_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS ledger_subscriptions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_ledger_accrual_state",
			Version: "20250101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS ledger_accrual_state (
    id                     SMALLINT PRIMARY KEY CHECK (id = 1),
    total_weighted_deposit NUMERIC(78, 0) NOT NULL DEFAULT 0,
    last_settlement        TIMESTAMPTZ,
    accrued_undistributed  NUMERIC(39, 0) NOT NULL DEFAULT 0,
    active_subscriptions   BIGINT NOT NULL DEFAULT 0,
    total_deposited        NUMERIC(39, 0) NOT NULL DEFAULT 0,
    total_distributed      NUMERIC(78, 0) NOT NULL DEFAULT 0,
    updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS ledger_accrual_state`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_ledger_distribution_config",
			Version: "20250101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS ledger_distribution_config (
    id                SMALLINT PRIMARY KEY CHECK (id = 1),
    recipient         TEXT NOT NULL DEFAULT '',
    share_percent     INT NOT NULL DEFAULT 0 CHECK (share_percent BETWEEN 0 AND 100),
    interval_seconds  BIGINT NOT NULL DEFAULT 0,
    last_distribution TIMESTAMPTZ,
    paused            BOOLEAN NOT NULL DEFAULT FALSE,
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS ledger_distribution_config`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_ledger_payouts",
			Version: "20250101000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS ledger_payouts (
    id             TEXT PRIMARY KEY,
    amount         NUMERIC(39, 0) NOT NULL,
    recipient      TEXT NOT NULL DEFAULT '',
    to_recipient   NUMERIC(39, 0) NOT NULL DEFAULT 0,
    sink           TEXT NOT NULL DEFAULT '',
    to_sink        NUMERIC(39, 0) NOT NULL DEFAULT 0,
    distributed_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ledger_payouts_at ON ledger_payouts (distributed_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS ledger_payouts`)
				return err
			},
		},
	)
}
