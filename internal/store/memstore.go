package store

import (
	"context"
	"maps"
	"sync"

	"github.com/google/uuid"

	"github.com/paperbot/engine/internal/model"
)

// Mem is an in-process Store used by the accounting/orchestrator test
// suites in place of a live Postgres instance. WithTx serializes callers on
// a single mutex standing in for the account row lock and rolls back every
// write of a failed callback; reads made outside WithTx take no lock.
type Mem struct {
	mu sync.Mutex

	accounts  map[uuid.UUID]*model.Account
	names     map[string]uuid.UUID
	positions map[uuid.UUID]*model.Position
	orders    map[uuid.UUID]*model.Order
	trades    map[uuid.UUID]*model.Trade
	register  map[uuid.UUID]*model.TradeRegister
	sessions  map[string]*model.TradingSession
}

func NewMem() *Mem {
	return &Mem{
		accounts:  make(map[uuid.UUID]*model.Account),
		names:     make(map[string]uuid.UUID),
		positions: make(map[uuid.UUID]*model.Position),
		orders:    make(map[uuid.UUID]*model.Order),
		trades:    make(map[uuid.UUID]*model.Trade),
		register:  make(map[uuid.UUID]*model.TradeRegister),
		sessions:  make(map[string]*model.TradingSession),
	}
}

func (m *Mem) Accounts() AccountStore   { return &memAccounts{m} }
func (m *Mem) Positions() PositionStore { return &memPositions{m} }
func (m *Mem) Orders() OrderStore       { return &memOrders{m} }
func (m *Mem) Trades() TradeStore       { return &memTrades{m} }
func (m *Mem) Register() RegisterStore  { return &memRegister{m} }
func (m *Mem) Sessions() SessionStore   { return &memSessions{m} }

// WithTx takes the single process-wide lock for the duration of fn, keeping
// one writer to the Account row at a time. The maps are snapshotted first so
// an error return restores them, as a database rollback would; stored rows
// are always replaced, never mutated in place, so shallow copies suffice.
func (m *Mem) WithTx(_ context.Context, fn func(tx Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	accounts, names, positions := maps.Clone(m.accounts), maps.Clone(m.names), maps.Clone(m.positions)
	orders, trades := maps.Clone(m.orders), maps.Clone(m.trades)
	register, sessions := maps.Clone(m.register), maps.Clone(m.sessions)
	if err := fn(m); err != nil {
		m.accounts, m.names, m.positions = accounts, names, positions
		m.orders, m.trades = orders, trades
		m.register, m.sessions = register, sessions
		return err
	}
	return nil
}

type memAccounts struct{ m *Mem }

func (a *memAccounts) GetByID(_ context.Context, id uuid.UUID) (*model.Account, error) {
	acc, ok := a.m.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *acc
	return &cp, nil
}

func (a *memAccounts) GetByName(ctx context.Context, name string) (*model.Account, error) {
	id, ok := a.m.names[name]
	if !ok {
		return nil, ErrNotFound
	}
	return a.GetByID(ctx, id)
}

func (a *memAccounts) LockForUpdate(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	return a.GetByID(ctx, id)
}

func (a *memAccounts) Create(_ context.Context, acc *model.Account) error {
	if acc.ID == uuid.Nil {
		acc.ID = uuid.New()
	}
	cp := *acc
	a.m.accounts[acc.ID] = &cp
	a.m.names[acc.Name] = acc.ID
	return nil
}

func (a *memAccounts) Update(_ context.Context, acc *model.Account) error {
	if _, ok := a.m.accounts[acc.ID]; !ok {
		return ErrNotFound
	}
	cp := *acc
	a.m.accounts[acc.ID] = &cp
	return nil
}

type memPositions struct{ m *Mem }

func (p *memPositions) GetByID(_ context.Context, id uuid.UUID) (*model.Position, error) {
	pos, ok := p.m.positions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *pos
	return &cp, nil
}

func (p *memPositions) OpenBySymbol(_ context.Context, accountID uuid.UUID, symbol, strategy string) (*model.Position, error) {
	for _, pos := range p.m.positions {
		if pos.AccountID == accountID && pos.Symbol == symbol && pos.Status == model.PositionOpen {
			if strategy != "" && pos.Strategy != strategy {
				continue
			}
			cp := *pos
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (p *memPositions) ListOpen(_ context.Context, accountID uuid.UUID) ([]model.Position, error) {
	var out []model.Position
	for _, pos := range p.m.positions {
		if pos.AccountID == accountID && pos.Status == model.PositionOpen {
			out = append(out, *pos)
		}
	}
	sortPositionsByOpenedAt(out)
	return out, nil
}

func (p *memPositions) Create(_ context.Context, pos *model.Position) error {
	if pos.ID == uuid.Nil {
		pos.ID = uuid.New()
	}
	cp := *pos
	p.m.positions[pos.ID] = &cp
	return nil
}

func (p *memPositions) Update(_ context.Context, pos *model.Position) error {
	if _, ok := p.m.positions[pos.ID]; !ok {
		return ErrNotFound
	}
	cp := *pos
	p.m.positions[pos.ID] = &cp
	return nil
}

type memOrders struct{ m *Mem }

func (o *memOrders) Create(_ context.Context, ord *model.Order) error {
	if ord.ID == uuid.Nil {
		ord.ID = uuid.New()
	}
	cp := *ord
	o.m.orders[ord.ID] = &cp
	return nil
}

func (o *memOrders) Update(_ context.Context, ord *model.Order) error {
	if _, ok := o.m.orders[ord.ID]; !ok {
		return ErrNotFound
	}
	cp := *ord
	o.m.orders[ord.ID] = &cp
	return nil
}

func (o *memOrders) ListPending(_ context.Context, accountID uuid.UUID) ([]model.Order, error) {
	var out []model.Order
	for _, ord := range o.m.orders {
		if ord.AccountID == accountID && ord.Status == model.OrderPending {
			out = append(out, *ord)
		}
	}
	return out, nil
}

type memTrades struct{ m *Mem }

func (t *memTrades) Create(_ context.Context, tr *model.Trade) error {
	if tr.ID == uuid.Nil {
		tr.ID = uuid.New()
	}
	cp := *tr
	t.m.trades[tr.ID] = &cp
	return nil
}

func (t *memTrades) ListByAccount(_ context.Context, accountID uuid.UUID, limit, offset int) ([]model.Trade, error) {
	var out []model.Trade
	for _, tr := range t.m.trades {
		if tr.AccountID == accountID {
			out = append(out, *tr)
		}
	}
	sortTradesByExitTimeDesc(out)
	if offset > 0 && offset < len(out) {
		out = out[offset:]
	} else if offset >= len(out) {
		out = nil
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memRegister struct{ m *Mem }

func (r *memRegister) Create(_ context.Context, reg *model.TradeRegister) error {
	if reg.ID == uuid.Nil {
		reg.ID = uuid.New()
	}
	cp := *reg
	r.m.register[reg.ID] = &cp
	return nil
}

func (r *memRegister) Update(_ context.Context, reg *model.TradeRegister) error {
	if _, ok := r.m.register[reg.ID]; !ok {
		return ErrNotFound
	}
	cp := *reg
	r.m.register[reg.ID] = &cp
	return nil
}

func (r *memRegister) OpenFor(_ context.Context, accountID uuid.UUID, symbol string) (*model.TradeRegister, error) {
	for _, reg := range r.m.register {
		if reg.AccountID == accountID && reg.Symbol == symbol && reg.IsOpen() {
			cp := *reg
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memRegister) ListOpen(_ context.Context, accountID uuid.UUID) ([]model.TradeRegister, error) {
	var out []model.TradeRegister
	for _, reg := range r.m.register {
		if reg.AccountID == accountID && reg.IsOpen() {
			out = append(out, *reg)
		}
	}
	return out, nil
}

func (r *memRegister) ListBySession(_ context.Context, sessionID string) ([]model.TradeRegister, error) {
	var out []model.TradeRegister
	for _, reg := range r.m.register {
		if reg.SessionID == sessionID {
			out = append(out, *reg)
		}
	}
	return out, nil
}

type memSessions struct{ m *Mem }

func (s *memSessions) Create(_ context.Context, sess *model.TradingSession) error {
	cp := *sess
	s.m.sessions[sess.SessionID] = &cp
	return nil
}

func (s *memSessions) Update(_ context.Context, sess *model.TradingSession) error {
	if _, ok := s.m.sessions[sess.SessionID]; !ok {
		return ErrNotFound
	}
	cp := *sess
	s.m.sessions[sess.SessionID] = &cp
	return nil
}

func (s *memSessions) GetActive(_ context.Context, accountID uuid.UUID) (*model.TradingSession, error) {
	for _, sess := range s.m.sessions {
		if sess.AccountID == accountID && sess.Active() {
			cp := *sess
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memSessions) GetByID(_ context.Context, id string) (*model.TradingSession, error) {
	sess, ok := s.m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

var _ Store = (*Mem)(nil)
