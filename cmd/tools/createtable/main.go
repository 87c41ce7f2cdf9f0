package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func main() {
	_ = godotenv.Load()

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatal("DB_DSN environment variable is required")
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("Failed to get DB: %v", err)
	}

	if _, err := sqlDB.Exec(ddl); err != nil {
		log.Fatalf("Failed to create tables: %v", err)
	}

	log.Println("✓ payment and payout tables created successfully")
}

const ddl = `
	CREATE TABLE IF NOT EXISTS payments (
	  id CHAR(36) NOT NULL,
	  user_id CHAR(36) NOT NULL,
	  event_id CHAR(36) NOT NULL,
	  stripe_payment_intent_id VARCHAR(128) NOT NULL,
	  stripe_charge_id VARCHAR(128) NULL,
	  organizer_stripe_account_id VARCHAR(128) NULL,
	  subtotal BIGINT NOT NULL,
	  platform_fee BIGINT NOT NULL,
	  processing_fee BIGINT NOT NULL,
	  total_amount BIGINT NOT NULL,
	  organizer_amount BIGINT NOT NULL,
	  status VARCHAR(32) NOT NULL DEFAULT 'pending',
	  failure_reason VARCHAR(255) NULL,
	  metadata JSON NOT NULL,
	  created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  updated_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3) ON UPDATE CURRENT_TIMESTAMP(3),
	  PRIMARY KEY (id),
	  UNIQUE KEY ux_payments_intent (stripe_payment_intent_id),
	  KEY ix_payments_user_id (user_id),
	  KEY ix_payments_event_id (event_id),
	  KEY ix_payments_charge (stripe_charge_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

	CREATE TABLE IF NOT EXISTS tickets (
	  id CHAR(36) NOT NULL,
	  ticket_code VARCHAR(32) NOT NULL,
	  payment_id CHAR(36) NOT NULL,
	  user_id CHAR(36) NOT NULL,
	  event_id CHAR(36) NOT NULL,
	  first_name VARCHAR(100) NOT NULL,
	  last_name VARCHAR(100) NOT NULL,
	  email VARCHAR(255) NOT NULL,
	  phone VARCHAR(32) NULL,
	  unit_price BIGINT NOT NULL,
	  total_price BIGINT NOT NULL,
	  platform_fee BIGINT NOT NULL,
	  processing_fee BIGINT NOT NULL,
	  status VARCHAR(32) NOT NULL DEFAULT 'confirmed',
	  purchased_at DATETIME(3) NOT NULL,
	  used_at DATETIME(3) NULL,
	  created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  updated_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3) ON UPDATE CURRENT_TIMESTAMP(3),
	  PRIMARY KEY (id),
	  UNIQUE KEY ux_tickets_code (ticket_code),
	  KEY ix_tickets_payment_id (payment_id),
	  KEY ix_tickets_user_id (user_id),
	  KEY ix_tickets_event_id (event_id),
	  CONSTRAINT fk_tickets_payment FOREIGN KEY (payment_id) REFERENCES payments(id) ON DELETE RESTRICT
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

	CREATE TABLE IF NOT EXISTS payouts (
	  id CHAR(36) NOT NULL,
	  user_id CHAR(36) NOT NULL,
	  payment_id CHAR(36) NOT NULL,
	  event_id CHAR(36) NOT NULL,
	  amount BIGINT NOT NULL,
	  currency CHAR(3) NOT NULL DEFAULT 'usd',
	  status VARCHAR(32) NOT NULL DEFAULT 'pending',
	  method VARCHAR(32) NOT NULL DEFAULT 'manual',
	  stripe_account_id VARCHAR(128) NULL,
	  stripe_transfer_id VARCHAR(128) NULL,
	  scheduled_for DATETIME(3) NOT NULL,
	  processed_at DATETIME(3) NULL,
	  failure_reason VARCHAR(255) NULL,
	  created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  updated_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3) ON UPDATE CURRENT_TIMESTAMP(3),
	  PRIMARY KEY (id),
	  UNIQUE KEY ux_payouts_payment (payment_id),
	  KEY ix_payouts_user_id (user_id),
	  KEY ix_payouts_event_id (event_id),
	  KEY ix_payouts_status (status),
	  KEY ix_payouts_scheduled_for (scheduled_for),
	  CONSTRAINT fk_payouts_payment FOREIGN KEY (payment_id) REFERENCES payments(id) ON DELETE RESTRICT
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

	CREATE TABLE IF NOT EXISTS connect_accounts (
	  id CHAR(36) NOT NULL,
	  user_id CHAR(36) NOT NULL,
	  stripe_account_id VARCHAR(64) NOT NULL,
	  onboarding_complete TINYINT(1) NOT NULL DEFAULT 0,
	  charges_enabled TINYINT(1) NOT NULL DEFAULT 0,
	  payouts_enabled TINYINT(1) NOT NULL DEFAULT 0,
	  business_name VARCHAR(255) NULL,
	  business_type VARCHAR(32) NULL,
	  created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  updated_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3) ON UPDATE CURRENT_TIMESTAMP(3),
	  PRIMARY KEY (id),
	  UNIQUE KEY ux_connect_user (user_id),
	  UNIQUE KEY ux_connect_account (stripe_account_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

	CREATE TABLE IF NOT EXISTS provider_events (
	  id CHAR(36) NOT NULL,
	  provider VARCHAR(32) NOT NULL,
	  event_id VARCHAR(128) NOT NULL,
	  type VARCHAR(64) NOT NULL,
	  attempts INT NOT NULL DEFAULT 0,
	  last_error VARCHAR(255) NULL,
	  received_at DATETIME(3) NOT NULL,
	  processed_at DATETIME(3) NULL,
	  PRIMARY KEY (id),
	  UNIQUE KEY ux_provider_event (provider, event_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

	CREATE TABLE IF NOT EXISTS audit_logs (
	  id CHAR(36) NOT NULL,
	  actor_user_id CHAR(36) NOT NULL,
	  action VARCHAR(64) NOT NULL,
	  target_type VARCHAR(32) NOT NULL,
	  target_id CHAR(36) NOT NULL,
	  note VARCHAR(255) NULL,
	  created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  PRIMARY KEY (id),
	  KEY ix_audit_logs_actor (actor_user_id),
	  KEY ix_audit_logs_target (target_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

	CREATE TABLE IF NOT EXISTS sessions (
	  id CHAR(36) NOT NULL,
	  user_id CHAR(36) NOT NULL,
	  token_hash BINARY(32) NOT NULL,
	  expires_at DATETIME(3) NOT NULL,
	  created_at DATETIME(3) NOT NULL,
	  updated_at DATETIME(3) NOT NULL,
	  last_seen_at DATETIME(3) NOT NULL,
	  PRIMARY KEY (id),
	  UNIQUE KEY ux_sessions_token_hash (token_hash),
	  KEY ix_sessions_user_id (user_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
	`
