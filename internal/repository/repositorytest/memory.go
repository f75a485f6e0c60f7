// Package repositorytest provides in-memory repositories and a snapshotting
// unit of work for tests.
package repositorytest

import (
	"context"
	"sort"
	"sync"
	"time"

	"sale-service/internal/domain/idempotency"
	"sale-service/internal/domain/outbox"
	"sale-service/internal/domain/sale"
	"sale-service/internal/repository"
	sale_errors "sale-service/pkg/errors"

	"github.com/google/uuid"
)

// Fault names accepted by Store.Fail.
const (
	FailBegin           = "begin"
	FailCommit          = "commit"
	FailSaleCreate      = "sale.create"
	FailSaleGet         = "sale.get"
	FailSaleUpdate      = "sale.update"
	FailSaleDelete      = "sale.delete"
	FailOutboxAdd       = "outbox.add"
	FailOutboxPending   = "outbox.pending"
	FailOutboxMarkSent  = "outbox.mark_sent"
	FailOutboxIncrement = "outbox.increment"
	FailLedgerHas       = "ledger.has"
	FailLedgerMark      = "ledger.mark"
)

type Store struct {
	mu     sync.Mutex
	sales  map[uuid.UUID]sale.Sale
	outbox []outbox.Message
	ledger map[string]idempotency.Record
	faults map[string]error

	Commits   int
	Rollbacks int
}

func NewStore() *Store {
	return &Store{
		sales:  make(map[uuid.UUID]sale.Sale),
		ledger: make(map[string]idempotency.Record),
		faults: make(map[string]error),
	}
}

// Fail makes the named operation return err until cleared with a nil err.
func (s *Store) Fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

func (s *Store) fault(op string) error {
	return s.faults[op]
}

// PutSale stores a copy of v as is, including soft-deleted rows.
func (s *Store) PutSale(v sale.Sale) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sales[v.ID] = cloneSale(v)
}

// Sale returns the raw row, including soft-deleted ones.
func (s *Store) Sale(id uuid.UUID) (sale.Sale, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.sales[id]
	return cloneSale(v), ok
}

func (s *Store) SaleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sales)
}

func (s *Store) OutboxMessages() []outbox.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]outbox.Message, len(s.outbox))
	copy(out, s.outbox)
	return out
}

func (s *Store) LedgerIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.ledger))
	for id := range s.ledger {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type snapshot struct {
	sales  map[uuid.UUID]sale.Sale
	outbox []outbox.Message
	ledger map[string]idempotency.Record
}

func (s *Store) snapshot() *snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := &snapshot{
		sales:  make(map[uuid.UUID]sale.Sale, len(s.sales)),
		outbox: make([]outbox.Message, len(s.outbox)),
		ledger: make(map[string]idempotency.Record, len(s.ledger)),
	}
	for k, v := range s.sales {
		snap.sales[k] = cloneSale(v)
	}
	copy(snap.outbox, s.outbox)
	for k, v := range s.ledger {
		snap.ledger[k] = v
	}
	return snap
}

func (s *Store) restore(snap *snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sales = snap.sales
	s.outbox = snap.outbox
	s.ledger = snap.ledger
}

func cloneSale(v sale.Sale) sale.Sale {
	if v.RejectionReason != nil {
		r := *v.RejectionReason
		v.RejectionReason = &r
	}
	if v.UpdatedAt != nil {
		t := *v.UpdatedAt
		v.UpdatedAt = &t
	}
	if v.CreatedBy != nil {
		c := *v.CreatedBy
		v.CreatedBy = &c
	}
	if v.UpdatedBy != nil {
		u := *v.UpdatedBy
		v.UpdatedBy = &u
	}
	return v
}

// UnitOfWork snapshots the store on Begin and restores it on Rollback.
type UnitOfWork struct {
	store *Store
	snap  *snapshot
}

func (s *Store) NewUnitOfWork() repository.UnitOfWork {
	return &UnitOfWork{store: s}
}

// Factory returns a factory producing units of work over s.
func (s *Store) Factory() repository.UnitOfWorkFactory {
	return repository.UnitOfWorkFactoryFunc(s.NewUnitOfWork)
}

func (u *UnitOfWork) Begin(context.Context) error {
	if u.snap != nil {
		return sale_errors.ErrTxActive
	}
	u.store.mu.Lock()
	err := u.store.fault(FailBegin)
	u.store.mu.Unlock()
	if err != nil {
		return err
	}
	u.snap = u.store.snapshot()
	return nil
}

func (u *UnitOfWork) Commit(context.Context) error {
	if u.snap == nil {
		return sale_errors.ErrNoTx
	}
	snap := u.snap
	u.snap = nil

	u.store.mu.Lock()
	err := u.store.fault(FailCommit)
	u.store.mu.Unlock()
	if err != nil {
		u.store.restore(snap)
		u.store.mu.Lock()
		u.store.Rollbacks++
		u.store.mu.Unlock()
		return err
	}
	u.store.mu.Lock()
	u.store.Commits++
	u.store.mu.Unlock()
	return nil
}

func (u *UnitOfWork) Rollback(context.Context) error {
	if u.snap == nil {
		return nil
	}
	u.store.restore(u.snap)
	u.snap = nil
	u.store.mu.Lock()
	u.store.Rollbacks++
	u.store.mu.Unlock()
	return nil
}

func (u *UnitOfWork) EnsureOpen(context.Context) error { return nil }

func (u *UnitOfWork) InTransaction() bool { return u.snap != nil }

func (u *UnitOfWork) Sales() repository.SaleRepository { return SaleRepository{u.store} }

func (u *UnitOfWork) Outbox() repository.OutboxRepository { return &OutboxRepository{store: u.store} }

func (u *UnitOfWork) Idempotency() repository.IdempotencyLedger { return Ledger{u.store} }

type SaleRepository struct {
	store *Store
}

func (r SaleRepository) Create(_ context.Context, v *sale.Sale) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if err := r.store.fault(FailSaleCreate); err != nil {
		return err
	}
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	r.store.sales[v.ID] = cloneSale(*v)
	return nil
}

func (r SaleRepository) GetByID(_ context.Context, id uuid.UUID) (*sale.Sale, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if err := r.store.fault(FailSaleGet); err != nil {
		return nil, err
	}
	v, ok := r.store.sales[id]
	if !ok || v.IsDeleted {
		return nil, nil
	}
	c := cloneSale(v)
	return &c, nil
}

func (r SaleRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*sale.Sale, error) {
	return r.GetByID(ctx, id)
}

func (r SaleRepository) GetAll(context.Context) ([]sale.Sale, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if err := r.store.fault(FailSaleGet); err != nil {
		return nil, err
	}
	out := make([]sale.Sale, 0, len(r.store.sales))
	for _, v := range r.store.sales {
		if !v.IsDeleted {
			out = append(out, cloneSale(v))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (r SaleRepository) Update(_ context.Context, v *sale.Sale) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if err := r.store.fault(FailSaleUpdate); err != nil {
		return err
	}
	cur, ok := r.store.sales[v.ID]
	if !ok {
		return nil
	}
	now := time.Now().UTC()
	v.UpdatedAt = &now
	next := cloneSale(*v)
	next.CreatedAt = cur.CreatedAt
	next.CreatedBy = cur.CreatedBy
	next.IsDeleted = cur.IsDeleted
	r.store.sales[v.ID] = next
	return nil
}

func (r SaleRepository) Delete(_ context.Context, id uuid.UUID, updatedBy string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if err := r.store.fault(FailSaleDelete); err != nil {
		return err
	}
	cur, ok := r.store.sales[id]
	if !ok {
		return nil
	}
	now := time.Now().UTC()
	cur.IsDeleted = true
	cur.UpdatedAt = &now
	cur.UpdatedBy = &updatedBy
	r.store.sales[id] = cur
	return nil
}

type OutboxRepository struct {
	store       *Store
	MaxAttempts int
}

// NewOutboxRepository returns an outbox store over s for publisher tests.
func NewOutboxRepository(s *Store, maxAttempts int) *OutboxRepository {
	return &OutboxRepository{store: s, MaxAttempts: maxAttempts}
}

func (r *OutboxRepository) Add(_ context.Context, msg *outbox.Message) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if err := r.store.fault(FailOutboxAdd); err != nil {
		return err
	}
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	msg.Status = outbox.StatusPending
	r.store.outbox = append(r.store.outbox, *msg)
	return nil
}

func (r *OutboxRepository) GetPending(_ context.Context, limit int) ([]outbox.Message, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if err := r.store.fault(FailOutboxPending); err != nil {
		return nil, err
	}
	var out []outbox.Message
	for _, m := range r.store.outbox {
		if m.Status != outbox.StatusPending {
			continue
		}
		if r.MaxAttempts > 0 && m.AttemptCount >= r.MaxAttempts {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *OutboxRepository) CountExhausted(context.Context) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if r.MaxAttempts <= 0 {
		return 0, nil
	}
	n := 0
	for _, m := range r.store.outbox {
		if m.Status == outbox.StatusPending && m.AttemptCount >= r.MaxAttempts {
			n++
		}
	}
	return n, nil
}

func (r *OutboxRepository) MarkSent(_ context.Context, id uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if err := r.store.fault(FailOutboxMarkSent); err != nil {
		return err
	}
	for i := range r.store.outbox {
		if r.store.outbox[i].ID == id && r.store.outbox[i].Status == outbox.StatusPending {
			now := time.Now().UTC()
			r.store.outbox[i].Status = outbox.StatusPublished
			r.store.outbox[i].PublishedAt = &now
		}
	}
	return nil
}

func (r *OutboxRepository) IncrementAttempt(_ context.Context, id uuid.UUID, reason string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if err := r.store.fault(FailOutboxIncrement); err != nil {
		return err
	}
	for i := range r.store.outbox {
		if r.store.outbox[i].ID == id && r.store.outbox[i].Status == outbox.StatusPending {
			r.store.outbox[i].AttemptCount++
			reason := reason
			r.store.outbox[i].ErrorLog = &reason
		}
	}
	return nil
}

type Ledger struct {
	store *Store
}

// NewLedger returns the idempotency ledger over s.
func NewLedger(s *Store) Ledger {
	return Ledger{store: s}
}

func (l Ledger) HasProcessed(_ context.Context, messageID string) (bool, error) {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	if err := l.store.fault(FailLedgerHas); err != nil {
		return false, err
	}
	_, ok := l.store.ledger[messageID]
	return ok, nil
}

func (l Ledger) MarkProcessed(_ context.Context, messageID, routingKey string) error {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	if err := l.store.fault(FailLedgerMark); err != nil {
		return err
	}
	if _, ok := l.store.ledger[messageID]; ok {
		return sale_errors.ErrAlreadyProcessed
	}
	l.store.ledger[messageID] = idempotency.Record{
		MessageID:   messageID,
		RoutingKey:  routingKey,
		ProcessedAt: time.Now().UTC(),
	}
	return nil
}
