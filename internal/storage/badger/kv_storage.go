package badger

import (
	"context"
	"fmt"

	"github.com/timshannon/badgerhold/v4"

	"github.com/wofare/edgarwatch/internal/common"
)

// systemKV is one system-level key-value record.
type systemKV struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// kvStorage persists system key-value state (schema markers, cursors).
type kvStorage struct {
	store  *Store
	logger *common.Logger
}

// NewKVStorage creates a KVStore backed by BadgerHold.
func NewKVStorage(store *Store, logger *common.Logger) *kvStorage {
	return &kvStorage{store: store, logger: logger}
}

func (s *kvStorage) Get(_ context.Context, key string) (string, error) {
	var kv systemKV
	if err := s.store.db.Get("kv:"+key, &kv); err != nil {
		if err == badgerhold.ErrNotFound {
			return "", nil
		}
		return "", fmt.Errorf("failed to get kv %s: %w", key, err)
	}
	return kv.Value, nil
}

func (s *kvStorage) Set(_ context.Context, key, value string) error {
	if err := s.store.db.Upsert("kv:"+key, &systemKV{Key: key, Value: value}); err != nil {
		return fmt.Errorf("failed to set kv %s: %w", key, err)
	}
	return nil
}

func (s *kvStorage) Delete(_ context.Context, key string) error {
	err := s.store.db.Delete("kv:"+key, systemKV{})
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete kv %s: %w", key, err)
	}
	return nil
}
