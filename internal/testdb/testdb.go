// Package testdb opens in-memory SQLite databases carrying the learning
// billing schema for repository and service tests.
package testdb

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/learnbill-backend/pkg/db/models"
)

// schema mirrors pkg/migrate/migrations using SQLite types.
var schema = []string{
	`CREATE TABLE agencies (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		organization_type TEXT NOT NULL,
		feature_flags TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE learning_services (
		id TEXT PRIMARY KEY,
		agency_id TEXT NOT NULL,
		name TEXT NOT NULL,
		service_code TEXT,
		price_amount NUMERIC NOT NULL DEFAULT 0,
		currency TEXT NOT NULL DEFAULT 'usd',
		duration_minutes INTEGER NOT NULL DEFAULT 60,
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE learning_token_accounts (
		agency_id TEXT NOT NULL,
		client_id TEXT NOT NULL,
		created_at DATETIME,
		PRIMARY KEY (agency_id, client_id)
	)`,
	`CREATE TABLE learning_token_ledger (
		id TEXT PRIMARY KEY,
		agency_id TEXT NOT NULL,
		client_id TEXT NOT NULL,
		token_type TEXT NOT NULL,
		direction TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity >= 0),
		reason_code TEXT NOT NULL,
		subscription_id TEXT,
		session_id TEXT,
		actor_user_id TEXT,
		effective_at DATETIME NOT NULL,
		expires_at DATETIME,
		metadata TEXT,
		created_at DATETIME
	)`,
	`CREATE UNIQUE INDEX learning_token_ledger_session_debit_key
		ON learning_token_ledger (agency_id, client_id, session_id, token_type)
		WHERE direction = 'DEBIT' AND session_id IS NOT NULL`,
	`CREATE TABLE billing_policy_profiles (
		id TEXT PRIMARY KEY,
		agency_id TEXT NOT NULL,
		name TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE billing_policy_rules (
		id TEXT PRIMARY KEY,
		profile_id TEXT NOT NULL,
		service_code TEXT NOT NULL,
		credential_tier TEXT NOT NULL DEFAULT '',
		min_minutes INTEGER,
		max_minutes INTEGER,
		unit_minutes INTEGER NOT NULL,
		unit_calc_mode TEXT NOT NULL DEFAULT 'FLOOR',
		created_at DATETIME,
		UNIQUE (profile_id, service_code, credential_tier)
	)`,
	`CREATE TABLE billing_policy_daily_caps (
		id TEXT PRIMARY KEY,
		profile_id TEXT NOT NULL,
		service_code TEXT NOT NULL,
		credential_tier TEXT NOT NULL DEFAULT '',
		max_units_per_day INTEGER NOT NULL,
		created_at DATETIME,
		UNIQUE (profile_id, service_code, credential_tier)
	)`,
	`CREATE TABLE learning_program_sessions (
		id TEXT PRIMARY KEY,
		agency_id TEXT NOT NULL,
		organization_id TEXT,
		office_event_id TEXT UNIQUE,
		client_id TEXT NOT NULL,
		guardian_user_id TEXT,
		assigned_provider_id TEXT,
		learning_service_id TEXT,
		service_code TEXT,
		credential_tier TEXT NOT NULL DEFAULT '',
		payment_mode TEXT NOT NULL,
		status TEXT NOT NULL,
		scheduled_start_at TEXT NOT NULL,
		scheduled_end_at TEXT NOT NULL,
		source_timezone TEXT NOT NULL,
		start_at_utc DATETIME NOT NULL,
		end_at_utc DATETIME NOT NULL,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE learning_session_charges (
		id TEXT PRIMARY KEY,
		agency_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		client_id TEXT NOT NULL,
		amount_cents INTEGER NOT NULL,
		tax_cents INTEGER NOT NULL DEFAULT 0,
		discount_cents INTEGER NOT NULL DEFAULT 0,
		total_cents INTEGER NOT NULL CHECK (total_cents >= 0),
		currency TEXT NOT NULL,
		charge_status TEXT NOT NULL,
		charge_type TEXT NOT NULL,
		payment_mode TEXT NOT NULL,
		idempotency_key TEXT NOT NULL UNIQUE,
		billing_policy_profile_id TEXT,
		billing_policy_rule_id TEXT,
		service_code TEXT,
		units INTEGER,
		service_date DATE,
		metadata TEXT,
		captured_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE learning_payment_methods (
		id TEXT PRIMARY KEY,
		agency_id TEXT NOT NULL,
		client_id TEXT NOT NULL,
		type TEXT NOT NULL,
		token_ref TEXT NOT NULL UNIQUE,
		card_brand TEXT,
		card_last4 TEXT,
		card_exp_month INTEGER,
		card_exp_year INTEGER,
		is_default BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX learning_payment_methods_default_key
		ON learning_payment_methods (agency_id, client_id) WHERE is_default`,
	`CREATE TABLE learning_payments (
		id TEXT PRIMARY KEY,
		agency_id TEXT NOT NULL,
		charge_id TEXT NOT NULL UNIQUE,
		payment_method_id TEXT,
		amount_cents INTEGER NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		intent_ref TEXT NOT NULL,
		captured_at DATETIME,
		created_at DATETIME
	)`,
	`CREATE TABLE learning_subscription_plans (
		id TEXT PRIMARY KEY,
		agency_id TEXT NOT NULL,
		name TEXT NOT NULL,
		included_individual_tokens INTEGER NOT NULL DEFAULT 0,
		included_group_tokens INTEGER NOT NULL DEFAULT 0,
		period_days INTEGER NOT NULL DEFAULT 30,
		price_cents INTEGER NOT NULL DEFAULT 0,
		currency TEXT NOT NULL DEFAULT 'usd',
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE learning_subscriptions (
		id TEXT PRIMARY KEY,
		agency_id TEXT NOT NULL,
		plan_id TEXT NOT NULL,
		client_id TEXT NOT NULL,
		guardian_user_id TEXT,
		status TEXT NOT NULL,
		current_period_start DATETIME NOT NULL,
		current_period_end DATETIME NOT NULL,
		auto_renew BOOLEAN NOT NULL DEFAULT 1,
		cancelled_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE learning_subscription_renewal_locks (
		id TEXT PRIMARY KEY,
		subscription_id TEXT NOT NULL,
		period_end_at DATETIME NOT NULL,
		lock_key TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL,
		runner_id TEXT NOT NULL,
		result TEXT,
		last_error TEXT,
		created_at DATETIME,
		finished_at DATETIME
	)`,
	`CREATE TABLE learning_sync_jobs (
		id TEXT PRIMARY KEY,
		agency_id TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		operation TEXT NOT NULL,
		idempotency_key TEXT NOT NULL UNIQUE,
		run_after DATETIME NOT NULL,
		payload TEXT NOT NULL,
		status TEXT NOT NULL,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE learning_sync_events (
		id TEXT PRIMARY KEY,
		job_id TEXT NOT NULL,
		status TEXT NOT NULL,
		request TEXT,
		response TEXT,
		error TEXT,
		created_at DATETIME
	)`,
}

// New returns a fresh, isolated database with every table created.
func New(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", name, uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	// a single connection keeps the shared-cache database alive and serializes writers
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v\n%s", err, stmt)
		}
	}
	return conn
}

// SeedAgency inserts an agency. learning controls both the organization type
// and the learning_billing flag.
func SeedAgency(t *testing.T, db *gorm.DB, learning bool) models.Agency {
	t.Helper()
	agency := models.Agency{
		ID:               uuid.New(),
		Name:             "Sunrise Learning",
		OrganizationType: "clinical",
		FeatureFlags:     []byte(`[]`),
	}
	if learning {
		agency.OrganizationType = "learning"
		agency.FeatureFlags = []byte(`["learning_billing"]`)
	}
	if err := db.Create(&agency).Error; err != nil {
		t.Fatalf("seed agency: %v", err)
	}
	return agency
}

// SeedService inserts an active learning service priced at price dollars.
func SeedService(t *testing.T, db *gorm.DB, agencyID uuid.UUID, serviceCode, price string) models.LearningService {
	t.Helper()
	svc := models.LearningService{
		ID:              uuid.New(),
		AgencyID:        agencyID,
		Name:            "Reading tutoring",
		PriceAmount:     decimal.RequireFromString(price),
		Currency:        "usd",
		DurationMinutes: 60,
		Active:          true,
	}
	if serviceCode != "" {
		svc.ServiceCode = &serviceCode
	}
	if err := db.Create(&svc).Error; err != nil {
		t.Fatalf("seed service: %v", err)
	}
	return svc
}
