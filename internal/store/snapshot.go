package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockleague/league-engine/internal/model"
)

// ErrCorruptSnapshot marks a persisted record that could not be decoded
// cleanly. The decoder still returns a usable record — missing fields
// default, bad timestamps degrade to unknown — so a corrupt store never
// takes the engine down; callers log the warning and continue.
var ErrCorruptSnapshot = errors.New("store: corrupt account snapshot")

// Snapshot is the externally persisted form of one account: identity, cash,
// and the ordered trade sequence. The encoding owner is an external
// collaborator; this codec only promises lossless round-trips of its own
// output and tolerance of everyone else's.
type Snapshot struct {
	Account model.Account `json:"account"`
	Trades  []model.Trade `json:"trades"`
}

// EncodeSnapshot serializes an account record. Instants use RFC 3339 with
// nanoseconds (the default time.Time JSON form), decimals as strings.
func EncodeSnapshot(snap Snapshot) ([]byte, error) {
	return json.Marshal(snap)
}

// Wire shapes with everything optional, so partially-shaped records load.
type snapshotWire struct {
	Account *accountWire `json:"account"`
	Trades  []tradeWire  `json:"trades"`
}

type accountWire struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Cash      *decimal.Decimal `json:"cash"`
	Score     *decimal.Decimal `json:"score"`
	CreatedAt string           `json:"created_at"`
}

type tradeWire struct {
	ID              string              `json:"id"`
	AccountID       string              `json:"account_id"`
	Symbol          string              `json:"symbol"`
	Side            string              `json:"side"`
	Shares          int64               `json:"shares"`
	Price           *decimal.Decimal    `json:"price"`
	Beta            decimal.NullDecimal `json:"beta"`
	ExecutedAt      string              `json:"executed_at"`
	RemainingShares *decimal.Decimal    `json:"remaining_shares"`
	ClosedAt        *string             `json:"closed_at"`
	InitialScore    *decimal.Decimal    `json:"initial_score"`
	ScoreAdjustment *decimal.Decimal    `json:"score_adjustment"`
}

func parseInstant(s string, problems *[]string, field string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		*problems = append(*problems, fmt.Sprintf("%s: unparsable instant %q", field, s))
		return time.Time{} // degrade to unknown
	}
	return t
}

func orZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

// DecodeSnapshot deserializes a persisted account record, recovering from
// corruption instead of failing: unreadable JSON yields an empty record
// with the given initial cash, missing cash defaults to initial cash,
// missing trades default to an empty history, and unparsable timestamps
// degrade to the zero instant. The returned error, when non-nil, wraps
// ErrCorruptSnapshot and describes what was recovered; the record is
// usable either way.
func DecodeSnapshot(data []byte, initialCash decimal.Decimal) (Snapshot, error) {
	fallback := Snapshot{
		Account: model.Account{Cash: initialCash},
		Trades:  []model.Trade{},
	}

	var wire snapshotWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return fallback, fmt.Errorf("%w: %v (falling back to default record)", ErrCorruptSnapshot, err)
	}

	var problems []string
	snap := fallback

	if wire.Account != nil {
		snap.Account.ID = wire.Account.ID
		snap.Account.Name = wire.Account.Name
		if wire.Account.Cash != nil {
			snap.Account.Cash = *wire.Account.Cash
		} else {
			problems = append(problems, "account.cash missing, defaulting to initial cash")
		}
		snap.Account.Score = orZero(wire.Account.Score)
		snap.Account.CreatedAt = parseInstant(wire.Account.CreatedAt, &problems, "account.created_at")
	} else {
		problems = append(problems, "account record missing, defaulting")
	}

	for i, tw := range wire.Trades {
		side, err := model.ParseSide(tw.Side)
		if err != nil {
			problems = append(problems, fmt.Sprintf("trades[%d]: %v, dropped", i, err))
			continue
		}
		t := model.Trade{
			ID:              tw.ID,
			AccountID:       tw.AccountID,
			Symbol:          tw.Symbol,
			Side:            side,
			Shares:          tw.Shares,
			Price:           orZero(tw.Price),
			Beta:            tw.Beta,
			ExecutedAt:      parseInstant(tw.ExecutedAt, &problems, fmt.Sprintf("trades[%d].executed_at", i)),
			RemainingShares: orZero(tw.RemainingShares),
			InitialScore:    orZero(tw.InitialScore),
			ScoreAdjustment: orZero(tw.ScoreAdjustment),
		}
		if tw.ClosedAt != nil {
			closed := parseInstant(*tw.ClosedAt, &problems, fmt.Sprintf("trades[%d].closed_at", i))
			t.ClosedAt = &closed
		}
		snap.Trades = append(snap.Trades, t)
	}

	if len(problems) > 0 {
		return snap, fmt.Errorf("%w: %s", ErrCorruptSnapshot, strings.Join(problems, "; "))
	}
	return snap, nil
}

// RestoreSnapshot seeds the in-memory store from a decoded record.
func (s *MemoryStore) RestoreSnapshot(snap Snapshot) error {
	if snap.Account.ID == "" {
		return fmt.Errorf("store: snapshot has no account id")
	}
	if err := s.CreateAccount(context.Background(), &snap.Account); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	history := make([]model.Trade, len(snap.Trades))
	copy(history, snap.Trades)
	s.trades[snap.Account.ID] = history
	return nil
}
