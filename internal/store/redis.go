package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/stockleague/league-engine/internal/ledger"
	"github.com/stockleague/league-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateAccount(ctx context.Context, a *model.Account) error {
	if err := s.primary.CreateAccount(ctx, a); err != nil {
		return err
	}
	s.cacheAccount(ctx, a)
	return nil
}

func (s *CachedStore) UpdateScore(ctx context.Context, accountID string, score decimal.Decimal) error {
	if err := s.primary.UpdateScore(ctx, accountID, score); err != nil {
		return err
	}
	// Invalidate; next read re-populates.
	s.rdb.Del(ctx, accountKey(accountID))
	return nil
}

func (s *CachedStore) ApplyTrade(ctx context.Context, accountID string, res ledger.Result) error {
	if err := s.primary.ApplyTrade(ctx, accountID, res); err != nil {
		return err
	}
	s.rdb.Del(ctx, accountKey(accountID), tradesKey(accountID))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	data, err := s.rdb.Get(ctx, accountKey(id)).Bytes()
	if err == nil {
		var a model.Account
		if json.Unmarshal(data, &a) == nil {
			return &a, nil
		}
	}

	a, err := s.primary.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheAccount(ctx, a)
	return a, nil
}

func (s *CachedStore) GetAccountByName(ctx context.Context, name string) (*model.Account, error) {
	// Try cache via name→ID mapping.
	id, err := s.rdb.Get(ctx, nameKey(name)).Result()
	if err == nil {
		return s.GetAccount(ctx, id)
	}

	a, err := s.primary.GetAccountByName(ctx, name)
	if err != nil {
		return nil, err
	}

	s.cacheAccount(ctx, a)
	s.rdb.Set(ctx, nameKey(name), a.ID, s.ttl)
	return a, nil
}

func (s *CachedStore) GetTradesByAccount(ctx context.Context, accountID string) ([]model.Trade, error) {
	data, err := s.rdb.Get(ctx, tradesKey(accountID)).Bytes()
	if err == nil {
		var trades []model.Trade
		if json.Unmarshal(data, &trades) == nil {
			return trades, nil
		}
	}

	trades, err := s.primary.GetTradesByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(trades); err == nil {
		s.rdb.Set(ctx, tradesKey(accountID), data, s.ttl)
	}
	return trades, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	return s.primary.ListAccounts(ctx)
}

// --- Cache helpers ---

func (s *CachedStore) cacheAccount(ctx context.Context, a *model.Account) {
	if data, err := json.Marshal(a); err == nil {
		s.rdb.Set(ctx, accountKey(a.ID), data, s.ttl)
	}
}

func accountKey(id string) string { return fmt.Sprintf("account:%s", id) }
func nameKey(name string) string  { return fmt.Sprintf("account_name:%s", name) }
func tradesKey(id string) string  { return fmt.Sprintf("trades:%s", id) }
