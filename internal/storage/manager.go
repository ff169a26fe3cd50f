// Package storage wires the durable store backends behind the
// interfaces.StorageManager contract.
package storage

import (
	"fmt"
	"path/filepath"

	"github.com/wofare/edgarwatch/internal/common"
	"github.com/wofare/edgarwatch/internal/interfaces"
	"github.com/wofare/edgarwatch/internal/storage/badger"
)

// Manager implements interfaces.StorageManager over a single embedded
// BadgerHold store.
type Manager struct {
	store  *badger.Store
	logger *common.Logger

	companies  interfaces.CompanyStore
	filings    interfaces.FilingStore
	jobs       interfaces.JobQueueStore
	watchlists interfaces.WatchlistStore
	alertRules interfaces.AlertRuleStore
	outbox     interfaces.OutboxStore
	kv         interfaces.KVStore
}

// NewManager opens the embedded store under the configured data path and
// constructs all stores.
func NewManager(logger *common.Logger, config *common.Config) (*Manager, error) {
	path := filepath.Join(config.Storage.Path, "store")
	store, err := badger.NewStore(logger, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return newManagerWithStore(store, logger), nil
}

// NewManagerAt opens the embedded store at an explicit path (tests).
func NewManagerAt(logger *common.Logger, path string) (*Manager, error) {
	store, err := badger.NewStore(logger, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return newManagerWithStore(store, logger), nil
}

func newManagerWithStore(store *badger.Store, logger *common.Logger) *Manager {
	return &Manager{
		store:      store,
		logger:     logger,
		companies:  badger.NewCompanyStorage(store, logger),
		filings:    badger.NewFilingStorage(store, logger),
		jobs:       badger.NewJobQueueStorage(store, logger),
		watchlists: badger.NewWatchlistStorage(store, logger),
		alertRules: badger.NewAlertRuleStorage(store, logger),
		outbox:     badger.NewOutboxStorage(store, logger),
		kv:         badger.NewKVStorage(store, logger),
	}
}

func (m *Manager) CompanyStore() interfaces.CompanyStore     { return m.companies }
func (m *Manager) FilingStore() interfaces.FilingStore       { return m.filings }
func (m *Manager) JobQueueStore() interfaces.JobQueueStore   { return m.jobs }
func (m *Manager) WatchlistStore() interfaces.WatchlistStore { return m.watchlists }
func (m *Manager) AlertRuleStore() interfaces.AlertRuleStore { return m.alertRules }
func (m *Manager) OutboxStore() interfaces.OutboxStore       { return m.outbox }
func (m *Manager) KVStore() interfaces.KVStore               { return m.kv }

// Close closes the underlying store.
func (m *Manager) Close() error {
	if m.store != nil {
		return m.store.Close()
	}
	return nil
}

// Ensure Manager implements StorageManager
var _ interfaces.StorageManager = (*Manager)(nil)
