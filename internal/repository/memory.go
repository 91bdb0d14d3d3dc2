package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"voltfarm/internal/domain"
	"voltfarm/internal/lock"
	"voltfarm/internal/service"
)

// In-memory stores for tests and DEV_MODE without a database. They return
// copies so callers never share state with the store.

type MemoryMiners struct {
	mu          sync.RWMutex
	rows        map[int64]*domain.MiningState
	locks       *lock.Keyed
	withdrawals *MemoryWithdrawals
}

// NewMemoryMiners returns an empty store. Withdrawals staged through an
// update go to withdrawals; nil rejects them.
func NewMemoryMiners(withdrawals *MemoryWithdrawals) *MemoryMiners {
	return &MemoryMiners{
		rows:        make(map[int64]*domain.MiningState),
		locks:       lock.NewKeyed(),
		withdrawals: withdrawals,
	}
}

func (m *MemoryMiners) Get(_ context.Context, userID int64) (*domain.MiningState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.rows[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return st.Clone(), nil
}

func (m *MemoryMiners) Update(ctx context.Context, userID int64, now time.Time, fn service.UpdateFunc) (*domain.MiningState, bool, error) {
	unlock := m.locks.Lock(userID)

	st, created, tx, err := m.update(ctx, userID, now, fn)
	unlock()
	if err != nil {
		return nil, false, err
	}

	// credits to other users run only after userID's lock is released
	for _, inc := range tx.increments {
		if _, err := m.Increment(ctx, inc.userID, inc.delta); err != nil {
			return nil, false, err
		}
	}
	return st, created, nil
}

func (m *MemoryMiners) update(ctx context.Context, userID int64, now time.Time, fn service.UpdateFunc) (*domain.MiningState, bool, *memoryTx, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, nil, err
	}

	m.mu.RLock()
	cur, ok := m.rows[userID]
	m.mu.RUnlock()

	var st *domain.MiningState
	if ok {
		st = cur.Clone()
	} else {
		st = domain.NewMiningState(userID, now)
	}

	tx := &memoryTx{m: m, self: userID}
	if err := fn(st, !ok, tx); err != nil {
		return nil, false, nil, err
	}
	if err := tx.commitWithdrawals(ctx); err != nil {
		return nil, false, nil, err
	}
	st.UpdatedAt = now

	m.mu.Lock()
	m.rows[userID] = st.Clone()
	m.mu.Unlock()
	return st, !ok, tx, nil
}

var errNoWithdrawals = errors.New("memory miners: no withdrawal store linked")

type resolveOp struct {
	id     int64
	status domain.WithdrawalStatus
	note   string
	at     time.Time
}

type incrementOp struct {
	userID int64
	delta  domain.Delta
}

// memoryTx records writes and applies them only after fn succeeds.
type memoryTx struct {
	m          *MemoryMiners
	self       int64
	creates    []*domain.Withdrawal
	resolves   []resolveOp
	increments []incrementOp
}

func (t *memoryTx) CreateWithdrawal(w *domain.Withdrawal) error {
	if t.m.withdrawals == nil {
		return errNoWithdrawals
	}
	t.creates = append(t.creates, w)
	return nil
}

func (t *memoryTx) ResolveWithdrawal(id int64, status domain.WithdrawalStatus, note string, at time.Time) (bool, error) {
	if t.m.withdrawals == nil {
		return false, errNoWithdrawals
	}
	w, err := t.m.withdrawals.Get(context.Background(), id)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && w.Status != domain.WithdrawalStatusPending) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	t.resolves = append(t.resolves, resolveOp{id: id, status: status, note: note, at: at})
	return true, nil
}

func (t *memoryTx) Increment(userID int64, d domain.Delta) error {
	if userID == t.self {
		return errors.New("memory miners: increment of the locked user")
	}
	t.m.mu.RLock()
	_, ok := t.m.rows[userID]
	t.m.mu.RUnlock()
	if !ok {
		return domain.ErrNotFound
	}
	t.increments = append(t.increments, incrementOp{userID: userID, delta: d})
	return nil
}

// commitWithdrawals applies resolves before creates; a resolve lost to a
// concurrent one aborts the whole update.
func (t *memoryTx) commitWithdrawals(ctx context.Context) error {
	for _, r := range t.resolves {
		ok, err := t.m.withdrawals.SetStatus(ctx, r.id, r.status, r.note, r.at)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrWithdrawalProcessed
		}
	}
	for _, w := range t.creates {
		if err := t.m.withdrawals.Create(ctx, w); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryMiners) Increment(_ context.Context, userID int64, d domain.Delta) (*domain.MiningState, error) {
	unlock := m.locks.Lock(userID)
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.rows[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	st.ApplyDelta(d)
	st.UpdatedAt = time.Now().UTC()
	return st.Clone(), nil
}

func (m *MemoryMiners) Top(_ context.Context, limit int) ([]*domain.MiningState, error) {
	m.mu.RLock()
	res := make([]*domain.MiningState, 0, len(m.rows))
	for _, st := range m.rows {
		res = append(res, st.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(res, func(i, j int) bool {
		if res[i].Balance != res[j].Balance {
			return res[i].Balance > res[j].Balance
		}
		return res[i].UserID < res[j].UserID
	})
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (m *MemoryMiners) Count(context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.rows)), nil
}

type MemoryTasks struct {
	mu   sync.RWMutex
	rows map[string]domain.Task
}

func NewMemoryTasks(seed ...domain.Task) *MemoryTasks {
	m := &MemoryTasks{rows: make(map[string]domain.Task)}
	for _, t := range seed {
		m.rows[t.ID] = t
	}
	return m
}

func (m *MemoryTasks) List(_ context.Context, activeOnly bool) ([]*domain.Task, error) {
	m.mu.RLock()
	res := make([]*domain.Task, 0, len(m.rows))
	for _, t := range m.rows {
		if activeOnly && !t.Active {
			continue
		}
		res = append(res, &t)
	}
	m.mu.RUnlock()

	sort.Slice(res, func(i, j int) bool {
		if res[i].SortOrder != res[j].SortOrder {
			return res[i].SortOrder < res[j].SortOrder
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}

func (m *MemoryTasks) Get(_ context.Context, id string) (*domain.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &t, nil
}

func (m *MemoryTasks) Create(_ context.Context, t *domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	m.rows[t.ID] = *t
	return nil
}

func (m *MemoryTasks) Update(_ context.Context, t *domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[t.ID]; !ok {
		return domain.ErrNotFound
	}
	m.rows[t.ID] = *t
	return nil
}

func (m *MemoryTasks) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

type MemoryInvoices struct {
	mu   sync.Mutex
	rows map[string]domain.Invoice
}

func NewMemoryInvoices() *MemoryInvoices {
	return &MemoryInvoices{rows: make(map[string]domain.Invoice)}
}

func (m *MemoryInvoices) Create(_ context.Context, inv *domain.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[inv.ID] = *inv
	return nil
}

func (m *MemoryInvoices) Get(_ context.Context, id string) (*domain.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &inv, nil
}

func (m *MemoryInvoices) MarkPaid(_ context.Context, id, paymentID string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.rows[id]
	if !ok || inv.Status == domain.InvoiceStatusPaid {
		return false, nil
	}
	inv.Status = domain.InvoiceStatusPaid
	inv.PaymentID = paymentID
	inv.PaidAt = &at
	m.rows[id] = inv
	return true, nil
}

func (m *MemoryInvoices) ExpireBefore(_ context.Context, t time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, inv := range m.rows {
		if inv.Status == domain.InvoiceStatusPending && inv.CreatedAt.Before(t) {
			inv.Status = domain.InvoiceStatusExpired
			m.rows[id] = inv
			n++
		}
	}
	return n, nil
}

type MemoryWithdrawals struct {
	mu     sync.Mutex
	nextID int64
	rows   []domain.Withdrawal
}

func NewMemoryWithdrawals() *MemoryWithdrawals {
	return &MemoryWithdrawals{}
}

func (m *MemoryWithdrawals) Create(_ context.Context, w *domain.Withdrawal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	w.ID = m.nextID
	m.rows = append(m.rows, *w)
	return nil
}

func (m *MemoryWithdrawals) Get(_ context.Context, id int64) (*domain.Withdrawal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.rows {
		if w.ID == id {
			return &w, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MemoryWithdrawals) ListByUser(_ context.Context, userID int64, limit int) ([]*domain.Withdrawal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []*domain.Withdrawal
	for i := len(m.rows) - 1; i >= 0 && (limit <= 0 || len(res) < limit); i-- {
		if w := m.rows[i]; w.UserID == userID {
			res = append(res, &w)
		}
	}
	return res, nil
}

func (m *MemoryWithdrawals) ListPending(_ context.Context, limit int) ([]*domain.Withdrawal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []*domain.Withdrawal
	for _, w := range m.rows {
		if limit > 0 && len(res) >= limit {
			break
		}
		if w.Status == domain.WithdrawalStatusPending {
			res = append(res, &w)
		}
	}
	return res, nil
}

func (m *MemoryWithdrawals) CountPending(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, w := range m.rows {
		if w.Status == domain.WithdrawalStatusPending {
			n++
		}
	}
	return n, nil
}

func (m *MemoryWithdrawals) SetStatus(_ context.Context, id int64, status domain.WithdrawalStatus, note string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		w := &m.rows[i]
		if w.ID != id {
			continue
		}
		if w.Status != domain.WithdrawalStatusPending {
			return false, nil
		}
		w.Status = status
		w.Note = note
		w.ProcessedAt = &at
		return true, nil
	}
	return false, nil
}

type MemoryTransactions struct {
	mu     sync.Mutex
	nextID int64
	rows   []domain.Transaction
}

func NewMemoryTransactions() *MemoryTransactions {
	return &MemoryTransactions{}
}

func (m *MemoryTransactions) Create(_ context.Context, tx *domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	tx.ID = m.nextID
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	m.rows = append(m.rows, *tx)
	return nil
}

func (m *MemoryTransactions) GetByUserID(_ context.Context, userID int64, limit int) ([]*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []*domain.Transaction
	for i := len(m.rows) - 1; i >= 0 && (limit <= 0 || len(res) < limit); i-- {
		if tx := m.rows[i]; tx.UserID == userID {
			res = append(res, &tx)
		}
	}
	return res, nil
}

var (
	_ service.StateStore       = (*MemoryMiners)(nil)
	_ service.TaskStore        = (*MemoryTasks)(nil)
	_ service.InvoiceStore     = (*MemoryInvoices)(nil)
	_ service.WithdrawalStore  = (*MemoryWithdrawals)(nil)
	_ service.TransactionStore = (*MemoryTransactions)(nil)

	_ service.StateStore       = (*MinerRepository)(nil)
	_ service.TaskStore        = (*TaskRepository)(nil)
	_ service.InvoiceStore     = (*InvoiceRepository)(nil)
	_ service.WithdrawalStore  = (*WithdrawalRepository)(nil)
	_ service.TransactionStore = (*TransactionRepository)(nil)
)
