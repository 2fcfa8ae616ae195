package database

import (
	"database/sql"
	"fmt"
	"time"
)

// KVStore is the persistent key/value substrate for cache entries and saved lists
type KVStore struct {
	db *DB
}

// NewKVStore creates a new key/value repository
func NewKVStore(db *DB) *KVStore {
	return &KVStore{db: db}
}

// Get returns the stored value and whether the key exists
func (r *KVStore) Get(key string) (string, bool, error) {
	var value string
	err := r.db.QueryRow(`SELECT value FROM kv_store WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return value, true, nil
}

// Set inserts or overwrites a key
func (r *KVStore) Set(key, value string) error {
	_, err := r.db.Exec(`
		INSERT INTO kv_store (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

// Delete removes a key, missing keys are not an error
func (r *KVStore) Delete(key string) error {
	if _, err := r.db.Exec(`DELETE FROM kv_store WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// DeleteByPrefix removes every key starting with prefix and returns how many were removed
func (r *KVStore) DeleteByPrefix(prefix string) (int, error) {
	res, err := r.db.Exec(`DELETE FROM kv_store WHERE instr(key, ?) = 1`, prefix)
	if err != nil {
		return 0, fmt.Errorf("failed to delete keys with prefix %q: %w", prefix, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted keys: %w", err)
	}
	return int(n), nil
}

// List returns the entries whose key starts with prefix, ordered by key
func (r *KVStore) List(prefix string) ([]Entry, error) {
	rows, err := r.db.Query(`
		SELECT key, value, updated_at
		FROM kv_store
		WHERE instr(key, ?) = 1
		ORDER BY key
	`, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys with prefix %q: %w", prefix, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var updatedAt int64
		if err := rows.Scan(&entry.Key, &entry.Value, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan kv row: %w", err)
		}
		entry.UpdatedAt = time.Unix(updatedAt, 0)
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating kv rows: %w", err)
	}

	return entries, nil
}

// Count returns the number of stored keys
func (r *KVStore) Count() (int, error) {
	var count int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM kv_store`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count keys: %w", err)
	}
	return count, nil
}
