// Package repotest opens throwaway sqlite databases carrying the production schema.
package repotest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var seq atomic.Int64

// schema mirrors migrations/000001_create_schema.up.sql in sqlite dialect.
var schema = []string{
	`CREATE TABLE users (
		id TEXT PRIMARY KEY,
		facebook_id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		email TEXT,
		access_token TEXT NOT NULL,
		profile_picture TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE pages (
		id TEXT PRIMARY KEY,
		page_id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		access_token TEXT NOT NULL,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		system_prompt TEXT,
		context TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE conversations (
		id TEXT PRIMARY KEY,
		sender_id TEXT NOT NULL,
		sender_name TEXT NOT NULL DEFAULT 'Unknown User',
		page_id TEXT NOT NULL REFERENCES pages(id) ON DELETE CASCADE,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (sender_id, page_id)
	)`,
	`CREATE TABLE messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
		content TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE INDEX idx_messages_conversation_created ON messages (conversation_id, created_at)`,
}

// NewDB returns an in-memory database with foreign keys enforced. It is closed
// when the test finishes.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_foreign_keys=1", name, seq.Add(1))

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return db
}
