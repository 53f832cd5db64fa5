package repository

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupTestDB はテスト用のインメモリSQLiteデータベースを作成する。
// （MySQL用DDLのENUMはSQLiteではTEXTとして扱う）
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	sql := `
		PRAGMA foreign_keys = ON;

		CREATE TABLE domains (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			selector TEXT NOT NULL,
			public_key TEXT NOT NULL,
			encrypted_private_key TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			is_verified BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE api_keys (
			id TEXT PRIMARY KEY,
			domain_id TEXT NOT NULL REFERENCES domains(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			key_hash TEXT NOT NULL,
			key_prefix TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			expires_at DATETIME,
			last_used_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX idx_api_keys_prefix ON api_keys(key_prefix);

		CREATE TABLE send_attempts (
			id TEXT PRIMARY KEY,
			domain_id TEXT NOT NULL REFERENCES domains(id) ON DELETE CASCADE,
			sender TEXT NOT NULL,
			recipients TEXT NOT NULL,
			subject TEXT NOT NULL,
			html_body TEXT,
			text_body TEXT,
			reply_to TEXT,
			status TEXT NOT NULL,
			retry_count INTEGER NOT NULL DEFAULT 0,
			next_retry_at DATETIME,
			last_error TEXT,
			message_id TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX idx_attempts_due ON send_attempts(status, next_retry_at);
	`

	if err := db.Exec(sql).Error; err != nil {
		t.Fatalf("failed to create tables: %v", err)
	}

	return db
}

// insertDomain はテスト用ドメインを直接挿入する。
func insertDomain(t *testing.T, db *gorm.DB, id, name string, active bool) {
	t.Helper()
	err := db.Exec(`INSERT INTO domains (id, name, selector, public_key, encrypted_private_key, is_active)
		VALUES (?, ?, 'sel1', 'pub', 'enc', ?)`, id, name, active).Error
	if err != nil {
		t.Fatalf("failed to insert test domain: %v", err)
	}
}
