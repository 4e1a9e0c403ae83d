package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the thermal store (SQLite).
var Migrations = migrate.NewGroup("thermal")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_thermal_identities",
			Version: "20240601000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS thermal_identities (
    account     TEXT PRIMARY KEY,
    phone_hash  TEXT NOT NULL,
    verified    INTEGER NOT NULL DEFAULT 0,
    created_at  TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS thermal_phone_index (
    hash     TEXT PRIMARY KEY,
    account  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_thermal_phone_index_account ON thermal_phone_index (account);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TABLE IF EXISTS thermal_phone_index;
DROP TABLE IF EXISTS thermal_identities;
`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_thermal_tokens",
			Version: "20240601000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS thermal_operators (
    account     TEXT PRIMARY KEY,
    created_at  TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS thermal_balances (
    account     TEXT PRIMARY KEY,
    amount      INTEGER NOT NULL DEFAULT 0 CHECK (amount >= 0),
    updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS thermal_meta (
    id          INTEGER PRIMARY KEY,
    owner       TEXT NOT NULL DEFAULT '',
    supply      INTEGER NOT NULL DEFAULT 0,
    seq         INTEGER NOT NULL DEFAULT 0,
    event_seq   INTEGER NOT NULL DEFAULT 0,
    updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
);

INSERT OR IGNORE INTO thermal_meta (id) VALUES (1);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TABLE IF EXISTS thermal_meta;
DROP TABLE IF EXISTS thermal_balances;
DROP TABLE IF EXISTS thermal_operators;
`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_thermal_records",
			Version: "20240601000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS thermal_records (
    kind        TEXT NOT NULL,
    id          TEXT NOT NULL,
    position    INTEGER NOT NULL DEFAULT 0,
    status      TEXT NOT NULL DEFAULT '',
    payload     TEXT NOT NULL DEFAULT '{}',
    created_at  TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at  TEXT NOT NULL DEFAULT (datetime('now')),
    PRIMARY KEY (kind, id)
);

CREATE INDEX IF NOT EXISTS idx_thermal_records_status ON thermal_records (kind, status);
CREATE INDEX IF NOT EXISTS idx_thermal_records_position ON thermal_records (kind, position);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS thermal_records`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_thermal_journal",
			Version: "20240601000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS thermal_journal (
    seq           INTEGER PRIMARY KEY,
    payload       BLOB NOT NULL,
    committed_at  TEXT NOT NULL DEFAULT (datetime('now'))
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS thermal_journal`)
				return err
			},
		},
	)
}
