// Package memory provides an in-memory storage backend. It backs tests
// and the "memory" storage configuration for local development; data
// does not survive a restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/bobmcallan/tradescope/internal/interfaces"
	"github.com/bobmcallan/tradescope/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = fmt.Errorf("record not found")

// Manager implements interfaces.StorageManager over process memory.
type Manager struct {
	trades     *TradeStore
	excursions *ExcursionStore
}

// NewManager creates an empty in-memory storage manager.
func NewManager() *Manager {
	return &Manager{
		trades:     NewTradeStore(),
		excursions: NewExcursionStore(),
	}
}

func (m *Manager) TradeStore() interfaces.TradeStore         { return m.trades }
func (m *Manager) ExcursionStore() interfaces.ExcursionStore { return m.excursions }
func (m *Manager) Close() error                              { return nil }

// TradeStore is an in-memory implementation of interfaces.TradeStore.
type TradeStore struct {
	mu   sync.RWMutex
	data map[string]*models.Trade // keyed by trade ID
}

// NewTradeStore creates a new in-memory trade store.
func NewTradeStore() *TradeStore {
	return &TradeStore{data: make(map[string]*models.Trade)}
}

// SaveTrade upserts a trade by its stable ID.
func (s *TradeStore) SaveTrade(_ context.Context, trade *models.Trade) error {
	if trade == nil || trade.ID == "" {
		return fmt.Errorf("trade requires an ID")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *trade
	s.data[trade.ID] = &cp
	return nil
}

// GetTrades returns trades for an underlying ("" = all) sorted by
// timestamp then ID so replays are deterministic.
func (s *TradeStore) GetTrades(_ context.Context, underlying string) ([]*models.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Trade
	for _, t := range s.data {
		if underlying != "" && t.Underlying != underlying {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// ListUnderlyings returns the distinct underlyings with trade history.
func (s *TradeStore) ListUnderlyings(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, t := range s.data {
		seen[t.Underlying] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for u := range seen {
		out = append(out, u)
	}
	sort.Strings(out)
	return out, nil
}

// ExcursionStore is an in-memory implementation of
// interfaces.ExcursionStore.
type ExcursionStore struct {
	mu   sync.RWMutex
	data map[string]*models.MFEMAERecord // keyed by trade ID
}

// NewExcursionStore creates a new in-memory excursion store.
func NewExcursionStore() *ExcursionStore {
	return &ExcursionStore{data: make(map[string]*models.MFEMAERecord)}
}

// Upsert overwrites the record for its trade ID in place.
func (s *ExcursionStore) Upsert(_ context.Context, record *models.MFEMAERecord) error {
	if record == nil || record.TradeID == "" {
		return fmt.Errorf("excursion record requires a trade ID")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *record
	s.data[record.TradeID] = &cp
	return nil
}

// Get retrieves the record for a trade ID, or ErrNotFound.
func (s *ExcursionStore) Get(_ context.Context, tradeID string) (*models.MFEMAERecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.data[tradeID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// List returns records for an underlying ("" = all) ordered by entry
// date ascending.
func (s *ExcursionStore) List(_ context.Context, underlying string) ([]*models.MFEMAERecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.MFEMAERecord
	for _, r := range s.data {
		if underlying != "" && r.Underlying != underlying {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntryDate.Equal(out[j].EntryDate) {
			return out[i].TradeID < out[j].TradeID
		}
		return out[i].EntryDate.Before(out[j].EntryDate)
	})
	return out, nil
}

// Compile-time interface checks
var (
	_ interfaces.StorageManager = (*Manager)(nil)
	_ interfaces.TradeStore     = (*TradeStore)(nil)
	_ interfaces.ExcursionStore = (*ExcursionStore)(nil)
)
