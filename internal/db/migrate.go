package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

type migration struct {
	version int
	name    string
	sql     string
}

var migrations = []migration{
	{version: 1, name: "players and menu", sql: `
		CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			subject TEXT NOT NULL UNIQUE,
			username TEXT NOT NULL,
			password_hash TEXT NOT NULL DEFAULT '',
			balance NUMERIC(12,2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
			is_admin BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS users_username_lower_idx ON users (lower(username));

		CREATE TABLE IF NOT EXISTS menu_items (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			purchase_price NUMERIC(10,2) NOT NULL CHECK (purchase_price > 0),
			selling_price NUMERIC(10,2) NOT NULL CHECK (selling_price > 0),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS menu_items_name_lower_idx ON menu_items (lower(name));

		CREATE TABLE IF NOT EXISTS inventory (
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			menu_item_id BIGINT NOT NULL REFERENCES menu_items(id),
			quantity BIGINT NOT NULL DEFAULT 0 CHECK (quantity >= 0),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (user_id, menu_item_id)
		);`},
	{version: 2, name: "orders", sql: `
		CREATE TABLE IF NOT EXISTS orders (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'completed', 'cancelled')),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS orders_user_status_idx ON orders (user_id, status, id DESC);

		CREATE TABLE IF NOT EXISTS order_items (
			id BIGSERIAL PRIMARY KEY,
			order_id BIGINT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
			position INT NOT NULL,
			menu_item_id BIGINT NOT NULL REFERENCES menu_items(id),
			quantity BIGINT NOT NULL CHECK (quantity > 0),
			UNIQUE (order_id, position)
		);`},
	{version: 3, name: "action log and progress", sql: `
		CREATE TABLE IF NOT EXISTS gamelog (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			action_type TEXT NOT NULL,
			message TEXT NOT NULL,
			amount NUMERIC(12,2),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS gamelog_user_time_idx ON gamelog (user_id, id DESC);

		CREATE TABLE IF NOT EXISTS player_progress (
			user_id BIGINT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			total_money_earned NUMERIC(14,2) NOT NULL DEFAULT 0,
			total_money_spent NUMERIC(14,2) NOT NULL DEFAULT 0,
			total_orders BIGINT NOT NULL DEFAULT 0,
			current_level INT NOT NULL DEFAULT 1 CHECK (current_level BETWEEN 1 AND 5),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`},
	{version: 4, name: "idempotency keys", sql: `
		CREATE TABLE IF NOT EXISTS idempotency_keys (
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			key TEXT NOT NULL,
			action TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (user_id, key)
		);`},
}

// OpenSQL opens a database/sql handle on the lib/pq driver. It is only used
// for schema migrations; request traffic goes through the pgx pool.
func OpenSQL(databaseURL string) (*sql.DB, error) {
	sqlDB, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(2)
	return sqlDB, nil
}

// Migrate applies every migration not yet recorded in schema_migrations, each
// in its own transaction.
func Migrate(ctx context.Context, sqlDB *sql.DB) (int, error) {
	if _, err := sqlDB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		return 0, fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := 0
	for _, m := range migrations {
		var done bool
		if err := sqlDB.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, m.version).Scan(&done); err != nil {
			return applied, fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if done {
			continue
		}
		if err := applyMigration(ctx, sqlDB, m); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}

func applyMigration(ctx context.Context, sqlDB *sql.DB, m migration) error {
	tx, err := sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.version, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.sql); err != nil {
		return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.version); err != nil {
		return fmt.Errorf("record migration %d: %w", m.version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", m.version, err)
	}
	return nil
}
