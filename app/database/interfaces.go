package database

import (
	"context"
	"encoding/json"
)

type KVRepository interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
	DeleteByPrefix(prefix string) (int, error)
	List(prefix string) ([]Entry, error)
	Count() (int, error)
}

// DocumentRepository stores one document per account, read whole and written field by field.
type DocumentRepository interface {
	ReadDocument(ctx context.Context, userID string) (map[string]json.RawMessage, error)
	MergeDocument(ctx context.Context, userID string, fields map[string]json.RawMessage) error
}

var (
	_ KVRepository       = (*KVStore)(nil)
	_ DocumentRepository = (*DocumentStore)(nil)
)
