// Package testutil provides an in-memory SQLite schema mirroring the
// PostgreSQL migrations for package tests.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

var schema = []string{
	`CREATE TABLE subscription_plans (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		price_usd NUMERIC(20,8) NOT NULL,
		max_strategies INTEGER NOT NULL,
		max_exchanges INTEGER NOT NULL,
		features JSON NOT NULL DEFAULT '[]',
		is_active BOOLEAN NOT NULL DEFAULT 1,
		sort_order INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE referral_codes (
		id BIGINT PRIMARY KEY,
		code TEXT NOT NULL,
		user_id TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		uses_count INTEGER NOT NULL DEFAULT 0 CHECK (uses_count >= 0),
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_referral_codes_code ON referral_codes (code)`,
	`CREATE UNIQUE INDEX ux_referral_codes_active_owner ON referral_codes (user_id) WHERE is_active`,
	`CREATE TABLE user_referrals (
		id BIGINT PRIMARY KEY,
		referrer_id TEXT NOT NULL,
		referred_id TEXT NOT NULL,
		level INTEGER NOT NULL CHECK (level BETWEEN 1 AND 10),
		commission_rate NUMERIC(8,6) NOT NULL,
		total_commission NUMERIC(20,8) NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		CHECK (referrer_id <> referred_id)
	)`,
	`CREATE UNIQUE INDEX ux_user_referrals_referred_level ON user_referrals (referred_id, level)`,
	`CREATE UNIQUE INDEX ux_user_referrals_pair ON user_referrals (referrer_id, referred_id)`,
	`CREATE TABLE commission_transactions (
		id BIGINT PRIMARY KEY,
		user_id TEXT NOT NULL,
		referral_id BIGINT NOT NULL REFERENCES user_referrals (id),
		source_user_id TEXT NOT NULL,
		source_ref TEXT,
		level INTEGER NOT NULL,
		amount NUMERIC(20,8) NOT NULL,
		currency TEXT NOT NULL DEFAULT 'USD',
		transaction_type TEXT NOT NULL,
		payment_status TEXT NOT NULL DEFAULT 'pending',
		created_at DATETIME NOT NULL,
		paid_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_commission_transactions_source_edge ON commission_transactions (source_ref, referral_id)`,
	`CREATE TABLE user_subscriptions (
		id BIGINT PRIMARY KEY,
		user_id TEXT NOT NULL,
		plan_id TEXT NOT NULL,
		status TEXT NOT NULL,
		payment_method TEXT NOT NULL,
		crypto_transaction_id TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		activated_at DATETIME,
		cancelled_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_user_subscriptions_payment ON user_subscriptions (crypto_transaction_id)`,
	`CREATE TABLE payment_webhook_events (
		id BIGINT PRIMARY KEY,
		provider TEXT NOT NULL,
		payment_id TEXT NOT NULL,
		payment_status TEXT NOT NULL,
		payload JSON NOT NULL DEFAULT '{}',
		outcome TEXT,
		received_at DATETIME NOT NULL,
		processed_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_payment_webhook_events_delivery ON payment_webhook_events (provider, payment_id, payment_status)`,
	`CREATE TABLE ledger_accounts (
		id BIGINT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE ledger_entries (
		id BIGINT PRIMARY KEY,
		source_type TEXT NOT NULL,
		source_id BIGINT NOT NULL,
		currency TEXT NOT NULL,
		occurred_at DATETIME NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_ledger_entries_source ON ledger_entries (source_type, source_id)`,
	`CREATE TABLE ledger_entry_lines (
		id BIGINT PRIMARY KEY,
		ledger_entry_id BIGINT NOT NULL,
		account_id BIGINT NOT NULL,
		direction TEXT NOT NULL,
		amount NUMERIC(20,8) NOT NULL,
		created_at DATETIME NOT NULL
	)`,
}

var seed = []string{
	`INSERT INTO subscription_plans (id, name, price_usd, max_strategies, max_exchanges, features, sort_order) VALUES
		('basic', 'Basic', 25, 1, 1, '["1 Active Strategy", "Email Support"]', 1),
		('pro', 'Pro', 50, 3, 2, '["3 Active Strategies", "Priority Support"]', 2),
		('elite', 'Elite', 100, 999, 999, '["Unlimited Strategies", "API Access"]', 3)`,
	`INSERT INTO ledger_accounts (id, code, name) VALUES
		(1, 'commission_expense', 'Referral commission expense'),
		(2, 'commission_payable', 'Referral commissions payable'),
		(3, 'cash', 'Cash')`,
}

// OpenDB returns an isolated in-memory database with the full schema and
// reference data loaded.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), dbSeq.Add(1))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v\n%s", err, stmt)
		}
	}
	for _, stmt := range seed {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("seed reference data: %v", err)
		}
	}
	return conn
}

// NewNode returns a snowflake node for tests.
func NewNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(10)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}

// Count returns the row count of table, optionally filtered.
func Count(t *testing.T, db *gorm.DB, table string, where string, args ...any) int64 {
	t.Helper()
	query := "SELECT COUNT(*) FROM " + table
	if where != "" {
		query += " WHERE " + where
	}
	var count int64
	if err := db.Raw(query, args...).Scan(&count).Error; err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return count
}
