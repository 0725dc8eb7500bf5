// Package store is the persistence layer: a GORM repository over
// PostgreSQL (a thin struct wrapping *gorm.DB, one method per access
// pattern) covering accounts, positions, orders, trades, the trade
// register, and sessions, plus an in-memory twin for tests.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/paperbot/engine/internal/model"
)

// ErrNotFound is returned when a lookup by id/name finds nothing.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence contract AccountingEngine, StrategyHarness, and
// the Orchestrator depend on. Every mutating method on AccountStore is
// expected to run inside a transaction (see WithTx) so the multi-row
// updates on the close path stay atomic.
type Store interface {
	Accounts() AccountStore
	Positions() PositionStore
	Orders() OrderStore
	Trades() TradeStore
	Register() RegisterStore
	Sessions() SessionStore

	// WithTx runs fn inside a single DB transaction with read-committed
	// isolation and row-level locking available to callers via
	// AccountStore.LockForUpdate.
	WithTx(ctx context.Context, fn func(tx Store) error) error
}

type AccountStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Account, error)
	GetByName(ctx context.Context, name string) (*model.Account, error)
	// LockForUpdate fetches the account row with SELECT ... FOR UPDATE so
	// concurrent closes cannot produce a lost update.
	LockForUpdate(ctx context.Context, id uuid.UUID) (*model.Account, error)
	Create(ctx context.Context, a *model.Account) error
	Update(ctx context.Context, a *model.Account) error
}

type PositionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Position, error)
	// OpenBySymbol finds the (at most one, unless hedging) open position for
	// (accountID, symbol, strategy).
	OpenBySymbol(ctx context.Context, accountID uuid.UUID, symbol, strategy string) (*model.Position, error)
	ListOpen(ctx context.Context, accountID uuid.UUID) ([]model.Position, error)
	Create(ctx context.Context, p *model.Position) error
	Update(ctx context.Context, p *model.Position) error
}

type OrderStore interface {
	Create(ctx context.Context, o *model.Order) error
	Update(ctx context.Context, o *model.Order) error
	ListPending(ctx context.Context, accountID uuid.UUID) ([]model.Order, error)
}

type TradeStore interface {
	Create(ctx context.Context, t *model.Trade) error
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]model.Trade, error)
}

type RegisterStore interface {
	Create(ctx context.Context, r *model.TradeRegister) error
	Update(ctx context.Context, r *model.TradeRegister) error
	// OpenFor returns the at-most-one open register row for
	// (accountID, symbol), the pairing key to its position.
	OpenFor(ctx context.Context, accountID uuid.UUID, symbol string) (*model.TradeRegister, error)
	ListOpen(ctx context.Context, accountID uuid.UUID) ([]model.TradeRegister, error)
	ListBySession(ctx context.Context, sessionID string) ([]model.TradeRegister, error)
}

type SessionStore interface {
	Create(ctx context.Context, s *model.TradingSession) error
	Update(ctx context.Context, s *model.TradingSession) error
	GetActive(ctx context.Context, accountID uuid.UUID) (*model.TradingSession, error)
	GetByID(ctx context.Context, id string) (*model.TradingSession, error)
}
