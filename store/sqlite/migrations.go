package sqlite

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
    id                  INTEGER PRIMARY KEY,
    name                TEXT NOT NULL DEFAULT '',
    duration_seconds    INTEGER NOT NULL,
    reference_price     TEXT NOT NULL DEFAULT '0',
    annual_rate_percent INTEGER NOT NULL DEFAULT 0,
    param_a             TEXT NOT NULL DEFAULT '0',
    param_b             TEXT NOT NULL DEFAULT '0',
    created_at          TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at          TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
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
    tier_id                 INTEGER NOT NULL,
    deposited_amount        TEXT NOT NULL DEFAULT '0',
    locked_rate_percent     INTEGER NOT NULL DEFAULT 0,
    locked_duration_seconds INTEGER NOT NULL DEFAULT 0,
    started_at              TIMESTAMP NOT NULL,
    ended_at                TIMESTAMP,
    active                  INTEGER NOT NULL DEFAULT 1,
    created_at              TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at              TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
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
    id                     INTEGER PRIMARY KEY CHECK (id = 1),
    total_weighted_deposit TEXT NOT NULL DEFAULT '0',
    last_settlement        TIMESTAMP,
    accrued_undistributed  TEXT NOT NULL DEFAULT '0',
    active_subscriptions   INTEGER NOT NULL DEFAULT 0,
    total_deposited        TEXT NOT NULL DEFAULT '0',
    total_distributed      TEXT NOT NULL DEFAULT '0',
    updated_at             TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
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
    id                INTEGER PRIMARY KEY CHECK (id = 1),
    recipient         TEXT NOT NULL DEFAULT '',
    share_percent     INTEGER NOT NULL DEFAULT 0 CHECK (share_percent BETWEEN 0 AND 100),
    interval_seconds  INTEGER NOT NULL DEFAULT 0,
    last_distribution TIMESTAMP,
    paused            INTEGER NOT NULL DEFAULT 0,
    updated_at        TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
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
    amount         TEXT NOT NULL,
    recipient      TEXT NOT NULL DEFAULT '',
    to_recipient   TEXT NOT NULL DEFAULT '0',
    sink           TEXT NOT NULL DEFAULT '',
    to_sink        TEXT NOT NULL DEFAULT '0',
    distributed_at TIMESTAMP NOT NULL
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
