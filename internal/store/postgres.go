package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/stockleague/league-engine/internal/ledger"
	"github.com/stockleague/league-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreateAccount(ctx context.Context, a *model.Account) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (id, name, cash, score, created_at)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5)`,
		a.ID, a.Name, a.Cash.String(), a.Score.String(), a.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
		return fmt.Errorf("%w: account name %q", ErrAlreadyExists, a.Name)
	}
	return err
}

const accountColumns = `id, name, cash::TEXT, score::TEXT, created_at`

func scanAccount(row pgx.Row) (*model.Account, error) {
	var a model.Account
	var cash, score string
	if err := row.Scan(&a.ID, &a.Name, &cash, &score, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Cash, _ = decimal.NewFromString(cash)
	a.Score, _ = decimal.NewFromString(score)
	return &a, nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	a, err := scanAccount(s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: account %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", id, err)
	}
	return a, nil
}

func (s *PostgresStore) GetAccountByName(ctx context.Context, name string) (*model.Account, error) {
	a, err := scanAccount(s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE name = $1`, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: account named %q", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("get account by name %q: %w", name, err)
	}
	return a, nil
}

func (s *PostgresStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+accountColumns+` FROM accounts ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

func (s *PostgresStore) UpdateScore(ctx context.Context, accountID string, score decimal.Decimal) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE accounts SET score = $2::NUMERIC WHERE id = $1`,
		accountID, score.String(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: account %s", ErrNotFound, accountID)
	}
	return nil
}

const tradeColumns = `id, account_id, symbol, side, shares, price::TEXT,
	beta::TEXT, executed_at, remaining_shares::TEXT, closed_at,
	initial_score::TEXT, score_adjustment::TEXT`

// seq keeps insertion order authoritative even when timestamps collide
// within a day; FIFO matching depends on it.
func (s *PostgresStore) GetTradesByAccount(ctx context.Context, accountID string) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeColumns+`
		 FROM trades WHERE account_id = $1 ORDER BY seq`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []model.Trade
	for rows.Next() {
		var t model.Trade
		var side string
		var price, remaining, initial, adjustment string
		var beta *string
		var closedAt *time.Time

		if err := rows.Scan(&t.ID, &t.AccountID, &t.Symbol, &side, &t.Shares,
			&price, &beta, &t.ExecutedAt, &remaining, &closedAt,
			&initial, &adjustment); err != nil {
			return nil, err
		}

		t.Side = model.Side(side)
		t.Price, _ = decimal.NewFromString(price)
		t.RemainingShares, _ = decimal.NewFromString(remaining)
		t.InitialScore, _ = decimal.NewFromString(initial)
		t.ScoreAdjustment, _ = decimal.NewFromString(adjustment)
		t.ClosedAt = closedAt
		if beta != nil {
			if b, err := decimal.NewFromString(*beta); err == nil {
				t.Beta = decimal.NullDecimal{Decimal: b, Valid: true}
			}
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// ApplyTrade runs the append, the lot updates, and the cash write in one
// transaction.
func (s *PostgresStore) ApplyTrade(ctx context.Context, accountID string, res ledger.Result) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, upd := range res.LotUpdates {
		tag, err := tx.Exec(ctx,
			`UPDATE trades SET remaining_shares = $2::NUMERIC, closed_at = COALESCE($3, closed_at)
			 WHERE id = $1`,
			upd.TradeID, upd.RemainingShares.String(), upd.ClosedAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: lot %s", ErrNotFound, upd.TradeID)
		}
	}

	t := res.Trade
	var beta *string
	if t.Beta.Valid {
		v := t.Beta.Decimal.String()
		beta = &v
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO trades (id, account_id, symbol, side, shares, price, beta,
		                     executed_at, remaining_shares, closed_at,
		                     initial_score, score_adjustment)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8,
		         $9::NUMERIC, $10, $11::NUMERIC, $12::NUMERIC)`,
		t.ID, t.AccountID, t.Symbol, string(t.Side), t.Shares, t.Price.String(), beta,
		t.ExecutedAt, t.RemainingShares.String(), t.ClosedAt,
		t.InitialScore.String(), t.ScoreAdjustment.String(),
	)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx,
		`UPDATE accounts SET cash = $2::NUMERIC WHERE id = $1`,
		accountID, res.NewCash.String(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: account %s", ErrNotFound, accountID)
	}

	return tx.Commit(ctx)
}
