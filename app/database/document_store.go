package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// DocumentStore keeps per-account documents as one row per top level field,
// so a merge write only touches the fields it names.
type DocumentStore struct {
	db *DB
}

// NewDocumentStore creates a new account document repository
func NewDocumentStore(db *DB) *DocumentStore {
	return &DocumentStore{db: db}
}

// ReadDocument returns every field of the user's document; an unknown user yields an empty document
func (r *DocumentStore) ReadDocument(ctx context.Context, userID string) (map[string]json.RawMessage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT field, value
		FROM account_documents
		WHERE user_id = ?
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read document for %s: %w", userID, err)
	}
	defer rows.Close()

	doc := make(map[string]json.RawMessage)
	for rows.Next() {
		var field, value string
		if err := rows.Scan(&field, &value); err != nil {
			return nil, fmt.Errorf("failed to scan document field: %w", err)
		}
		doc[field] = json.RawMessage(value)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating document fields: %w", err)
	}

	return doc, nil
}

// MergeDocument upserts the given fields and leaves the others untouched
func (r *DocumentStore) MergeDocument(ctx context.Context, userID string, fields map[string]json.RawMessage) error {
	if userID == "" {
		return fmt.Errorf("user id is required")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for field, value := range fields {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO account_documents (user_id, field, value, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (user_id, field) DO UPDATE SET
				value = excluded.value,
				updated_at = excluded.updated_at
		`, userID, field, string(value), now)
		if err != nil {
			return fmt.Errorf("failed to merge field %s for %s: %w", field, userID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit document merge: %w", err)
	}

	return nil
}
