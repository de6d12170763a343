// Package dbtest opens in-memory SQLite databases carrying the billing schema
// for repository and service tests.
package dbtest

import (
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var schema = []string{
	`CREATE TABLE tenants (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'TRIAL',
		trial_ends_at DATETIME,
		is_founding_member BOOLEAN NOT NULL DEFAULT 0,
		stripe_customer_id TEXT UNIQUE,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE users (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
		email TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'MEMBER',
		status TEXT NOT NULL DEFAULT 'ACTIVE',
		external_auth_id TEXT UNIQUE,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE promo_codes (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		discount_percent NUMERIC NOT NULL,
		max_uses INTEGER,
		used_count INTEGER NOT NULL DEFAULT 0,
		duration_months_monthly INTEGER NOT NULL DEFAULT 1,
		duration_months_yearly INTEGER NOT NULL DEFAULT 12,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		expires_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE subscriptions (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL UNIQUE REFERENCES tenants(id) ON DELETE CASCADE,
		stripe_subscription_id TEXT NOT NULL UNIQUE,
		stripe_price_id TEXT NOT NULL,
		stripe_item_id TEXT,
		status TEXT NOT NULL DEFAULT 'active',
		billing_interval TEXT NOT NULL DEFAULT 'monthly',
		current_period_start DATETIME,
		current_period_end DATETIME,
		cancel_at_period_end BOOLEAN NOT NULL DEFAULT 0,
		canceled_at DATETIME,
		is_founder BOOLEAN NOT NULL DEFAULT 0,
		founder_expires_at DATETIME,
		promo_code_id TEXT,
		promo_months_remaining INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE subscription_payments (
		id TEXT PRIMARY KEY,
		subscription_id TEXT NOT NULL REFERENCES subscriptions(id) ON DELETE CASCADE,
		stripe_invoice_id TEXT NOT NULL UNIQUE,
		amount_cents INTEGER NOT NULL DEFAULT 0,
		currency TEXT NOT NULL DEFAULT 'brl',
		status TEXT NOT NULL,
		paid_at DATETIME,
		failure_reason TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE founder_slots (
		id INTEGER PRIMARY KEY,
		used_count INTEGER NOT NULL DEFAULT 0,
		max_slots INTEGER NOT NULL,
		updated_at DATETIME
	)`,
	`INSERT INTO founder_slots (id, used_count, max_slots) VALUES (1, 0, 15)`,
	`CREATE TABLE webhook_logs (
		id TEXT PRIMARY KEY,
		provider TEXT NOT NULL,
		event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'received',
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		payload BLOB,
		processed_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME,
		UNIQUE (provider, event_id)
	)`,
}

// Open returns a fresh in-memory database private to the calling test.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", name)
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Discard,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return conn
}
