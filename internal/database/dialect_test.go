package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUpsertMySQL(t *testing.T) {
	got := MySQL.Upsert("sync_state", []string{"user_id"}, []string{"user_id", "is_syncing"}, []string{"is_syncing"})
	assert.Equal(t,
		"INSERT INTO sync_state (user_id, is_syncing) VALUES (?, ?) ON DUPLICATE KEY UPDATE is_syncing = VALUES(is_syncing)",
		got)
}

func TestUpsertSQLite(t *testing.T) {
	got := SQLite.Upsert("sync_state", []string{"user_id"}, []string{"user_id", "is_syncing"}, []string{"is_syncing"})
	assert.Equal(t,
		"INSERT INTO sync_state (user_id, is_syncing) VALUES (?, ?) ON CONFLICT(user_id) DO UPDATE SET is_syncing = excluded.is_syncing",
		got)
}

func TestUpsertWithoutUpdates(t *testing.T) {
	assert.Equal(t,
		"INSERT INTO t (id) VALUES (?) ON CONFLICT(id) DO NOTHING",
		SQLite.Upsert("t", []string{"id"}, []string{"id"}, nil))
	assert.Equal(t,
		"INSERT INTO t (id) VALUES (?) ON DUPLICATE KEY UPDATE id = id",
		MySQL.Upsert("t", []string{"id"}, []string{"id"}, nil))
}
