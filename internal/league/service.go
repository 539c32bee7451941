// Package league provides the HTTP handlers and business logic for joining
// the league, executing simulated trades, and querying portfolios, scores,
// and standings.
//
// All monetary values use shopspring/decimal — never float64 for money.
package league

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockleague/league-engine/internal/daytrade"
	"github.com/stockleague/league-engine/internal/leaderboard"
	"github.com/stockleague/league-engine/internal/ledger"
	"github.com/stockleague/league-engine/internal/metrics"
	"github.com/stockleague/league-engine/internal/model"
	"github.com/stockleague/league-engine/internal/oracle"
	"github.com/stockleague/league-engine/internal/position"
	"github.com/stockleague/league-engine/internal/scoring"
	"github.com/stockleague/league-engine/internal/store"
)

// Service handles league operations. Trade submission, valuation, and score
// recomputation for one account run as a single unit of work under that
// account's lock; different accounts proceed concurrently.
type Service struct {
	store       store.Store
	prices      oracle.PriceOracle
	policy      scoring.Policy
	initialCash decimal.Decimal
	benchmark   string // index symbol for the market-relative signal

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex

	wsHub *WSHub // optional, for real-time broadcasts
	now   func() time.Time
}

// NewService creates a new league service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, prices oracle.PriceOracle, policy scoring.Policy, initialCash decimal.Decimal, benchmark string, hub *WSHub) *Service {
	return &Service{
		store:       st,
		prices:      prices,
		policy:      policy,
		initialCash: initialCash,
		benchmark:   benchmark,
		locks:       make(map[string]*sync.Mutex),
		wsHub:       hub,
		now:         time.Now,
	}
}

// accountLock returns the exclusive lock for one account, creating it on
// first use. Locks are never removed; the league roster is small.
func (s *Service) accountLock(accountID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	mu, ok := s.locks[accountID]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[accountID] = mu
	}
	return mu
}

// --- Request/Response types ---

// CreateAccountRequest is the JSON body for POST /accounts.
type CreateAccountRequest struct {
	Name string `json:"name"`
}

// TradeRequest is the JSON body for POST /trade. The execution price comes
// from the live feed at submission time; the caller only picks the order.
type TradeRequest struct {
	AccountID string `json:"account_id"`
	Symbol    string `json:"symbol"`
	Side      string `json:"side"` // "BUY" or "SELL"
	Shares    int64  `json:"shares"`
}

// TradeResponse is the JSON body returned from POST /trade.
type TradeResponse struct {
	TradeID   string               `json:"trade_id"`
	AccountID string               `json:"account_id"`
	Symbol    string               `json:"symbol"`
	Side      model.Side           `json:"side"`
	Shares    int64                `json:"shares"`
	FillPrice decimal.Decimal      `json:"fill_price"`
	Cash      decimal.Decimal      `json:"cash"`
	Score     model.ScoreBreakdown `json:"score"`
}

// AccountResponse combines identity with the portfolio view.
type AccountResponse struct {
	Account   model.Account   `json:"account"`
	Portfolio model.Portfolio `json:"portfolio"`
}

// --- HTTP Handlers ---

// CreateAccount handles POST /api/v1/accounts — joining the league.
func (s *Service) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		writeError(w, "name is required", http.StatusBadRequest)
		return
	}

	acct := &model.Account{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Cash:      s.initialCash,
		CreatedAt: s.now().UTC(),
	}

	if err := s.store.CreateAccount(r.Context(), acct); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			writeError(w, "account name already taken", http.StatusConflict)
			return
		}
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	metrics.Accounts.Inc()
	slog.Info("account joined league", "id", acct.ID, "name", acct.Name, "cash", acct.Cash.String())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(acct)
}

// GetAccount handles GET /api/v1/accounts/{accountID} — identity plus the
// marked-to-market portfolio.
func (s *Service) GetAccount(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	ctx := r.Context()

	acct, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		writeError(w, "account not found", http.StatusNotFound)
		return
	}
	trades, err := s.store.GetTradesByAccount(ctx, accountID)
	if err != nil {
		writeError(w, "failed to load trades", http.StatusInternalServerError)
		return
	}

	resp := AccountResponse{
		Account:   *acct,
		Portfolio: position.Valuation(ctx, *acct, trades, s.prices),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// ExecuteTrade handles POST /api/v1/trade.
// Prices the order from the oracle, runs it through the ledger, recomputes
// the score, and broadcasts — all under the account's exclusive lock.
func (s *Service) ExecuteTrade(w http.ResponseWriter, r *http.Request) {
	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// --- Input validation ---
	if req.AccountID == "" {
		writeError(w, "account_id is required", http.StatusBadRequest)
		return
	}
	side, err := model.ParseSide(req.Side)
	if err != nil {
		writeError(w, "side must be BUY or SELL", http.StatusBadRequest)
		return
	}
	if err := model.ValidateSymbol(req.Symbol); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Shares <= 0 {
		writeError(w, "shares must be positive", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	// Serialize per account: no two operations interleave on one history.
	mu := s.accountLock(req.AccountID)
	mu.Lock()
	defer mu.Unlock()

	acct, err := s.store.GetAccount(ctx, req.AccountID)
	if err != nil {
		writeError(w, "account not found", http.StatusNotFound)
		return
	}
	trades, err := s.store.GetTradesByAccount(ctx, req.AccountID)
	if err != nil {
		writeError(w, "failed to load trades", http.StatusInternalServerError)
		return
	}

	// Price is required for execution, so an exhausted oracle rejects the
	// order (recoverable, nothing mutated).
	quote, err := s.prices.Lookup(ctx, req.Symbol)
	if err != nil {
		metrics.OracleLookups.WithLabelValues("error").Inc()
		metrics.TradeRejections.WithLabelValues("price_unavailable").Inc()
		writeError(w, "price unavailable for "+req.Symbol, http.StatusBadGateway)
		return
	}
	metrics.OracleLookups.WithLabelValues("ok").Inc()

	var res ledger.Result
	switch side {
	case model.SideBuy:
		res, err = ledger.ExecuteBuy(*acct, req.Symbol, req.Shares, quote.Price, quote.Beta, s.policy, s.now())
	case model.SideSell:
		res, err = ledger.ExecuteSell(*acct, trades, req.Symbol, req.Shares, quote.Price, s.now())
	}
	if err != nil {
		var insufficientShares *ledger.InsufficientSharesError
		switch {
		case errors.Is(err, ledger.ErrInsufficientFunds):
			metrics.TradeRejections.WithLabelValues("insufficient_funds").Inc()
			writeError(w, err.Error(), http.StatusConflict)
		case errors.As(err, &insufficientShares):
			metrics.TradeRejections.WithLabelValues("insufficient_shares").Inc()
			writeError(w, err.Error(), http.StatusConflict)
		default:
			writeError(w, err.Error(), http.StatusBadRequest)
		}
		return
	}

	if err := s.store.ApplyTrade(ctx, req.AccountID, res); err != nil {
		writeError(w, "failed to record trade", http.StatusInternalServerError)
		return
	}
	metrics.TradesTotal.WithLabelValues(string(side)).Inc()

	// Recompute the score from the updated history, still under the lock.
	acct.Cash = res.NewCash
	updated, err := s.store.GetTradesByAccount(ctx, req.AccountID)
	if err != nil {
		writeError(w, "failed to reload trades", http.StatusInternalServerError)
		return
	}
	breakdown := s.computeScore(ctx, updated)
	if err := s.store.UpdateScore(ctx, req.AccountID, breakdown.Total); err != nil {
		slog.Warn("score cache update failed", "account", req.AccountID, "err", err)
	}

	slog.Info("trade executed",
		"trade_id", res.Trade.ID,
		"account", req.AccountID,
		"symbol", req.Symbol,
		"side", side,
		"shares", req.Shares,
		"fill_price", quote.Price.String(),
		"cash", res.NewCash.String(),
		"score", breakdown.Total.String(),
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:      "trade_executed",
			AccountID: req.AccountID,
			Name:      acct.Name,
			Symbol:    req.Symbol,
			Side:      string(side),
			Shares:    req.Shares,
			Price:     quote.Price.String(),
			Cash:      res.NewCash.String(),
			Score:     breakdown.Total.String(),
		})
	}

	resp := TradeResponse{
		TradeID:   res.Trade.ID,
		AccountID: req.AccountID,
		Symbol:    req.Symbol,
		Side:      side,
		Shares:    req.Shares,
		FillPrice: quote.Price,
		Cash:      res.NewCash,
		Score:     breakdown,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// ListTrades handles GET /api/v1/accounts/{accountID}/trades
// Returns the ordered history, optionally filtered by ?symbol=.
func (s *Service) ListTrades(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	if _, err := s.store.GetAccount(r.Context(), accountID); err != nil {
		writeError(w, "account not found", http.StatusNotFound)
		return
	}
	trades, err := s.store.GetTradesByAccount(r.Context(), accountID)
	if err != nil {
		writeError(w, "failed to load trades", http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}

	if symbol := r.URL.Query().Get("symbol"); symbol != "" {
		filtered := []model.Trade{}
		for _, t := range trades {
			if t.Symbol == symbol {
				filtered = append(filtered, t)
			}
		}
		trades = filtered
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(trades)
}

// GetScore handles GET /api/v1/accounts/{accountID}/score
// Returns the composite score with its per-signal breakdown.
func (s *Service) GetScore(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	ctx := r.Context()

	if _, err := s.store.GetAccount(ctx, accountID); err != nil {
		writeError(w, "account not found", http.StatusNotFound)
		return
	}
	trades, err := s.store.GetTradesByAccount(ctx, accountID)
	if err != nil {
		writeError(w, "failed to load trades", http.StatusInternalServerError)
		return
	}

	breakdown := s.computeScore(ctx, trades)
	if err := s.store.UpdateScore(ctx, accountID, breakdown.Total); err != nil {
		slog.Warn("score cache update failed", "account", accountID, "err", err)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(breakdown)
}

// GetDayTrades handles GET /api/v1/accounts/{accountID}/daytrades
// Returns same-day round trips grouped by (date, symbol) — the disclosure
// behind the day-trading penalty.
func (s *Service) GetDayTrades(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	if _, err := s.store.GetAccount(r.Context(), accountID); err != nil {
		writeError(w, "account not found", http.StatusNotFound)
		return
	}
	trades, err := s.store.GetTradesByAccount(r.Context(), accountID)
	if err != nil {
		writeError(w, "failed to load trades", http.StatusInternalServerError)
		return
	}

	groups := daytrade.GroupMatches(daytrade.Detect(trades))
	if groups == nil {
		groups = []daytrade.Group{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(groups)
}

// GetLeaderboard handles GET /api/v1/leaderboard
// Ranks every account by freshly computed score; ties keep creation order.
func (s *Service) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		writeError(w, "failed to list accounts", http.StatusInternalServerError)
		return
	}

	entries := make([]model.LeaderboardEntry, 0, len(accounts))
	for _, acct := range accounts {
		trades, err := s.store.GetTradesByAccount(ctx, acct.ID)
		if err != nil {
			writeError(w, "failed to load trades", http.StatusInternalServerError)
			return
		}
		breakdown := s.computeScore(ctx, trades)
		portfolio := position.Valuation(ctx, acct, trades, s.prices)

		entries = append(entries, model.LeaderboardEntry{
			AccountID:  acct.ID,
			Name:       acct.Name,
			Score:      breakdown.Total,
			TotalValue: portfolio.TotalValue,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(leaderboard.Rank(entries))
}

// computeScore assembles scoring inputs (best-effort prices, benchmark
// change) and runs the pure scoring function. Oracle failures degrade the
// affected signals to zero; they never fail the request.
func (s *Service) computeScore(ctx context.Context, trades []model.Trade) model.ScoreBreakdown {
	prices := position.CurrentPrices(ctx, trades, s.prices)

	var benchmark decimal.NullDecimal
	if s.benchmark != "" {
		if q, err := s.prices.Lookup(ctx, s.benchmark); err == nil {
			benchmark = q.DailyChange()
		}
	}

	metrics.ScoreComputations.Inc()
	return s.policy.Compute(scoring.Inputs{
		Trades:          trades,
		Prices:          prices,
		BenchmarkChange: benchmark,
		Now:             s.now(),
	})
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
