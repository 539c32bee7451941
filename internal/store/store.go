// Package store defines the persistence interface for the league engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/stockleague/league-engine/internal/ledger"
	"github.com/stockleague/league-engine/internal/model"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the persistence interface. The trade history is append-only:
// ApplyTrade is the only write path for trades and must persist the new
// trade, the lot updates, and the new cash balance as one atomic unit — a
// reader never observes the history updated but cash stale, or vice versa.
type Store interface {
	// --- Accounts ---

	// CreateAccount persists a new account. ErrAlreadyExists when the
	// display name is taken.
	CreateAccount(ctx context.Context, acct *model.Account) error

	// GetAccount retrieves an account by ID. ErrNotFound when absent.
	GetAccount(ctx context.Context, id string) (*model.Account, error)

	// GetAccountByName retrieves an account by display name.
	GetAccountByName(ctx context.Context, name string) (*model.Account, error)

	// ListAccounts returns all accounts in creation order.
	ListAccounts(ctx context.Context) ([]model.Account, error)

	// UpdateScore stores the cached composite score for display. The score
	// is never authoritative; it is recomputed from the history on demand.
	UpdateScore(ctx context.Context, accountID string, score decimal.Decimal) error

	// --- Trade ledger ---

	// GetTradesByAccount returns the ordered trade history.
	GetTradesByAccount(ctx context.Context, accountID string) ([]model.Trade, error)

	// ApplyTrade atomically appends the result's trade, applies its lot
	// updates to earlier BUY rows, and sets the new cash balance.
	ApplyTrade(ctx context.Context, accountID string, res ledger.Result) error
}
