package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/paperbot/engine/internal/model"
)

// GormStore is the production Store, a thin wrapper over *gorm.DB.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// AutoMigrate creates/updates the engine's tables. Full schema
// provisioning belongs to dedicated migration tooling; this is the minimal
// dev/test convenience.
func (s *GormStore) AutoMigrate() error {
	return s.db.AutoMigrate(
		&model.Account{},
		&model.Position{},
		&model.Order{},
		&model.Trade{},
		&model.TradeRegister{},
		&model.TradingSession{},
	)
}

func (s *GormStore) Accounts() AccountStore   { return &gormAccounts{db: s.db} }
func (s *GormStore) Positions() PositionStore { return &gormPositions{db: s.db} }
func (s *GormStore) Orders() OrderStore       { return &gormOrders{db: s.db} }
func (s *GormStore) Trades() TradeStore       { return &gormTrades{db: s.db} }
func (s *GormStore) Register() RegisterStore  { return &gormRegister{db: s.db} }
func (s *GormStore) Sessions() SessionStore   { return &gormSessions{db: s.db} }

// WithTx opens a read-committed transaction and hands the caller a Store
// bound to it. Locking discipline
// (account row -> position -> trade -> counters -> register -> commit) is
// enforced by call order in internal/accounting, not here.
func (s *GormStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewGormStore(tx))
	}, txOptions())
}

type gormAccounts struct{ db *gorm.DB }

func (r *gormAccounts) GetByID(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	var a model.Account
	if err := r.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &a, nil
}

func (r *gormAccounts) GetByName(ctx context.Context, name string) (*model.Account, error) {
	var a model.Account
	if err := r.db.WithContext(ctx).First(&a, "name = ?", name).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &a, nil
}

// LockForUpdate issues SELECT ... FOR UPDATE on the account row,
// preventing two concurrent closes from producing a lost balance update.
func (r *gormAccounts) LockForUpdate(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	var a model.Account
	err := r.db.WithContext(ctx).Clauses(lockingClause()).First(&a, "id = ?", id).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &a, nil
}

func (r *gormAccounts) Create(ctx context.Context, a *model.Account) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *gormAccounts) Update(ctx context.Context, a *model.Account) error {
	return r.db.WithContext(ctx).Save(a).Error
}

type gormPositions struct{ db *gorm.DB }

func (r *gormPositions) GetByID(ctx context.Context, id uuid.UUID) (*model.Position, error) {
	var p model.Position
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &p, nil
}

func (r *gormPositions) OpenBySymbol(ctx context.Context, accountID uuid.UUID, symbol, strategy string) (*model.Position, error) {
	var p model.Position
	q := r.db.WithContext(ctx).Where("account_id = ? AND symbol = ? AND status = ?", accountID, symbol, model.PositionOpen)
	if strategy != "" {
		q = q.Where("strategy = ?", strategy)
	}
	if err := q.First(&p).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &p, nil
}

func (r *gormPositions) ListOpen(ctx context.Context, accountID uuid.UUID) ([]model.Position, error) {
	var ps []model.Position
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND status = ?", accountID, model.PositionOpen).
		Order("opened_at ASC").
		Find(&ps).Error
	return ps, err
}

func (r *gormPositions) Create(ctx context.Context, p *model.Position) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *gormPositions) Update(ctx context.Context, p *model.Position) error {
	return r.db.WithContext(ctx).Save(p).Error
}

type gormOrders struct{ db *gorm.DB }

func (r *gormOrders) Create(ctx context.Context, o *model.Order) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(o).Error
}

func (r *gormOrders) Update(ctx context.Context, o *model.Order) error {
	return r.db.WithContext(ctx).Save(o).Error
}

func (r *gormOrders) ListPending(ctx context.Context, accountID uuid.UUID) ([]model.Order, error) {
	var os []model.Order
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND status = ?", accountID, model.OrderPending).
		Find(&os).Error
	return os, err
}

type gormTrades struct{ db *gorm.DB }

func (r *gormTrades) Create(ctx context.Context, t *model.Trade) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *gormTrades) ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]model.Trade, error) {
	var ts []model.Trade
	q := r.db.WithContext(ctx).Where("account_id = ?", accountID).Order("exit_time DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	err := q.Find(&ts).Error
	return ts, err
}

type gormRegister struct{ db *gorm.DB }

func (r *gormRegister) Create(ctx context.Context, reg *model.TradeRegister) error {
	if reg.ID == uuid.Nil {
		reg.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(reg).Error
}

func (r *gormRegister) Update(ctx context.Context, reg *model.TradeRegister) error {
	return r.db.WithContext(ctx).Save(reg).Error
}

// OpenFor looks up by the pairing key: (account, symbol) with
// exit_timestamp IS NULL. At most one such row may exist at a time.
func (r *gormRegister) OpenFor(ctx context.Context, accountID uuid.UUID, symbol string) (*model.TradeRegister, error) {
	var reg model.TradeRegister
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND symbol = ? AND exit_timestamp IS NULL", accountID, symbol).
		Order("entry_timestamp DESC").
		First(&reg).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &reg, nil
}

func (r *gormRegister) ListOpen(ctx context.Context, accountID uuid.UUID) ([]model.TradeRegister, error) {
	var regs []model.TradeRegister
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND exit_timestamp IS NULL", accountID).
		Order("entry_timestamp ASC").
		Find(&regs).Error
	return regs, err
}

func (r *gormRegister) ListBySession(ctx context.Context, sessionID string) ([]model.TradeRegister, error) {
	var regs []model.TradeRegister
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("entry_timestamp ASC").
		Find(&regs).Error
	return regs, err
}

type gormSessions struct{ db *gorm.DB }

func (r *gormSessions) Create(ctx context.Context, s *model.TradingSession) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *gormSessions) Update(ctx context.Context, s *model.TradingSession) error {
	return r.db.WithContext(ctx).Save(s).Error
}

func (r *gormSessions) GetActive(ctx context.Context, accountID uuid.UUID) (*model.TradingSession, error) {
	var s model.TradingSession
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND ended_at IS NULL", accountID).
		Order("started_at DESC").
		First(&s).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &s, nil
}

func (r *gormSessions) GetByID(ctx context.Context, id string) (*model.TradingSession, error) {
	var s model.TradingSession
	if err := r.db.WithContext(ctx).First(&s, "session_id = ?", id).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &s, nil
}

func wrapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
