package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/stockleague/league-engine/internal/ledger"
	"github.com/stockleague/league-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu       sync.RWMutex
	accounts []*model.Account          // creation order
	byID     map[string]*model.Account
	trades   map[string][]model.Trade // accountID → ordered history
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]*model.Account),
		trades: make(map[string][]model.Trade),
	}
}

func (s *MemoryStore) CreateAccount(_ context.Context, acct *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.accounts {
		if existing.Name == acct.Name {
			return fmt.Errorf("%w: account name %q", ErrAlreadyExists, acct.Name)
		}
	}

	// Store a copy to avoid external mutation.
	cp := *acct
	s.accounts = append(s.accounts, &cp)
	s.byID[cp.ID] = &cp
	return nil
}

func (s *MemoryStore) GetAccount(_ context.Context, id string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: account %s", ErrNotFound, id)
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) GetAccountByName(_ context.Context, name string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.accounts {
		if a.Name == name {
			cp := *a
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: account named %q", ErrNotFound, name)
}

func (s *MemoryStore) ListAccounts(_ context.Context) ([]model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, *a)
	}
	return out, nil
}

func (s *MemoryStore) UpdateScore(_ context.Context, accountID string, score decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[accountID]
	if !ok {
		return fmt.Errorf("%w: account %s", ErrNotFound, accountID)
	}
	a.Score = score
	return nil
}

func (s *MemoryStore) GetTradesByAccount(_ context.Context, accountID string) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.trades[accountID]
	out := make([]model.Trade, len(history))
	copy(out, history)
	return out, nil
}

// ApplyTrade appends the trade, patches lot matching fields, and sets cash
// under a single lock, so readers see all of it or none of it.
func (s *MemoryStore) ApplyTrade(_ context.Context, accountID string, res ledger.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[accountID]
	if !ok {
		return fmt.Errorf("%w: account %s", ErrNotFound, accountID)
	}

	// Resolve every lot first so a bad update mutates nothing.
	history := s.trades[accountID]
	indices := make([]int, len(res.LotUpdates))
	for j, upd := range res.LotUpdates {
		idx := -1
		for i := range history {
			if history[i].ID == upd.TradeID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("%w: lot %s", ErrNotFound, upd.TradeID)
		}
		indices[j] = idx
	}

	for j, upd := range res.LotUpdates {
		i := indices[j]
		history[i].RemainingShares = upd.RemainingShares
		if upd.ClosedAt != nil {
			history[i].ClosedAt = upd.ClosedAt
		}
	}

	s.trades[accountID] = append(history, res.Trade)
	a.Cash = res.NewCash
	return nil
}
