package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"notification-engine/internal/core/domain"
	"notification-engine/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// mockTx implements pgx.Tx for testing
type mockTx struct{ pgx.Tx }

func (m *mockTx) Rollback(_ context.Context) error { return nil }
func (m *mockTx) Commit(_ context.Context) error   { return nil }

// recordingTx remembers whether it was committed.
type recordingTx struct {
	pgx.Tx
	committed bool
}

func (r *recordingTx) Rollback(_ context.Context) error { return nil }
func (r *recordingTx) Commit(_ context.Context) error {
	r.committed = true
	return nil
}

// fakeSender is a ChannelSender driven by a func.
type fakeSender struct {
	channel domain.Channel
	mu      sync.Mutex
	calls   int
	send    func(ctx context.Context) error
}

func newFakeSender(ch domain.Channel, send func(ctx context.Context) error) *fakeSender {
	return &fakeSender{channel: ch, send: send}
}

func (s *fakeSender) Channel() domain.Channel { return s.channel }

func (s *fakeSender) Send(ctx context.Context, _ domain.Recipient, _ domain.RenderedMessage, _ domain.DomainEvent) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.send == nil {
		return nil
	}
	return s.send(ctx)
}

func (s *fakeSender) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func okSend(context.Context) error { return nil }

func noTargets(context.Context) error { return domain.ErrNoTargets }

// memLedger is an in-memory DeliveryLedger keyed by event id.
type memLedger struct {
	mu      sync.Mutex
	nextID  int64
	records map[uuid.UUID]*domain.DeliveryRecord
	writes  int
}

func newMemLedger() *memLedger {
	return &memLedger{records: make(map[uuid.UUID]*domain.DeliveryRecord)}
}

func (l *memLedger) Record(_ context.Context, rec *domain.DeliveryRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writes++
	if existing, ok := l.records[rec.EventID]; ok {
		if existing.Attempt > rec.Attempt {
			return nil
		}
		rec.ID = existing.ID
		rec.Read, rec.ReadAt = existing.Read, existing.ReadAt
	} else {
		l.nextID++
		rec.ID = l.nextID
	}
	cp := *rec
	l.records[rec.EventID] = &cp
	return nil
}

func (l *memLedger) GetByEventID(_ context.Context, id uuid.UUID) (*domain.DeliveryRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[id]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (l *memLedger) List(_ context.Context, email string, limit, offset int) ([]domain.DeliveryRecord, int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.DeliveryRecord
	for _, r := range l.records {
		if r.RecipientEmail == email {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	total := int64(len(out))
	if offset >= len(out) {
		return nil, total, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

func (l *memLedger) CountUnread(_ context.Context, email string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int64
	for _, r := range l.records {
		if r.RecipientEmail == email && !r.Read {
			n++
		}
	}
	return n, nil
}

func (l *memLedger) MarkRead(_ context.Context, email string, id int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range l.records {
		if r.ID == id && r.RecipientEmail == email {
			if !r.Read {
				now := time.Now()
				r.Read, r.ReadAt = true, &now
			}
			return true, nil
		}
	}
	return false, nil
}

func (l *memLedger) MarkAllRead(_ context.Context, email string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int64
	now := time.Now()
	for _, r := range l.records {
		if r.RecipientEmail == email && !r.Read {
			r.Read, r.ReadAt = true, &now
			n++
		}
	}
	return n, nil
}

func (l *memLedger) byType(t domain.EventType) []domain.DeliveryRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.DeliveryRecord
	for _, r := range l.records {
		if r.Type == t {
			out = append(out, *r)
		}
	}
	return out
}

// memStore backs both registration and installment repositories.
type memStore struct {
	mu    sync.Mutex
	regs  map[uuid.UUID]*domain.Registration
	insts map[uuid.UUID]*domain.Installment
}

func newMemStore() *memStore {
	return &memStore{
		regs:  make(map[uuid.UUID]*domain.Registration),
		insts: make(map[uuid.UUID]*domain.Installment),
	}
}

type memRegistrations struct{ s *memStore }

func (r memRegistrations) Create(_ context.Context, _ pgx.Tx, reg *domain.Registration) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *reg
	r.s.regs[reg.ID] = &cp
	return nil
}

func (r memRegistrations) GetByID(_ context.Context, id uuid.UUID) (*domain.Registration, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	reg, ok := r.s.regs[id]
	if !ok {
		return nil, nil
	}
	cp := *reg
	return &cp, nil
}

func (r memRegistrations) UpdateStatusIf(_ context.Context, id uuid.UUID, from, to domain.RegistrationStatus) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	reg, ok := r.s.regs[id]
	if !ok || reg.Status != from {
		return false, nil
	}
	reg.Status = to
	return true, nil
}

func (r memRegistrations) UpdateStatusIfTx(ctx context.Context, _ pgx.Tx, id uuid.UUID, from, to domain.RegistrationStatus) (bool, error) {
	return r.UpdateStatusIf(ctx, id, from, to)
}

type memInstallments struct{ s *memStore }

func (r memInstallments) CreateBatch(_ context.Context, _ pgx.Tx, items []*domain.Installment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, it := range items {
		cp := *it
		r.s.insts[it.ID] = &cp
	}
	return nil
}

func (r memInstallments) GetByID(_ context.Context, id uuid.UUID) (*domain.Installment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inst, ok := r.s.insts[id]
	if !ok {
		return nil, nil
	}
	cp := *inst
	return &cp, nil
}

func (r memInstallments) ListByRegistration(_ context.Context, regID uuid.UUID) ([]domain.Installment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Installment
	for _, it := range r.s.insts {
		if it.RegistrationID == regID {
			out = append(out, *it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SequenceNumber < out[j].SequenceNumber })
	return out, nil
}

func (r memInstallments) CountCompleted(_ context.Context, regID uuid.UUID) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, it := range r.s.insts {
		if it.RegistrationID == regID && it.Status == domain.InstallmentCompleted {
			n++
		}
	}
	return n, nil
}

func (r memInstallments) UpdateStatusIf(_ context.Context, c domain.InstallmentStatusChange) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inst, ok := r.s.insts[c.InstallmentID]
	if !ok || inst.Status != c.From {
		return false, nil
	}
	if c.ExternalReference != nil {
		for id, other := range r.s.insts {
			if id != inst.ID && other.ExternalReference != nil && *other.ExternalReference == *c.ExternalReference {
				return false, domain.ErrDuplicateRef
			}
		}
		ref := *c.ExternalReference
		inst.ExternalReference = &ref
	}
	inst.Status = c.To
	if c.PaidAt != nil {
		inst.PaidAt = c.PaidAt
	}
	return true, nil
}

func (r memInstallments) CancelPending(_ context.Context, _ pgx.Tx, regID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, it := range r.s.insts {
		if it.RegistrationID == regID && it.Status == domain.InstallmentPending {
			it.Status = domain.InstallmentCancelled
			n++
		}
	}
	return n, nil
}

func (r memInstallments) ListDueForReminder(context.Context, time.Time, int) ([]ports.InstallmentReminder, error) {
	return nil, nil
}

// recordingDispatcher captures dispatched events.
type recordingDispatcher struct {
	mu     sync.Mutex
	events []domain.DomainEvent
	err    error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, e domain.DomainEvent) (domain.DispatchOutcome, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return "", d.err
	}
	d.events = append(d.events, e)
	return domain.OutcomeQueued, nil
}

func (d *recordingDispatcher) count(t domain.EventType) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, e := range d.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

type noopLocker struct{}

func (noopLocker) Acquire(context.Context, string, time.Duration) (func(), error) {
	return func() {}, nil
}

type memDedupe struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMemDedupe() *memDedupe { return &memDedupe{seen: make(map[string]bool)} }

func (d *memDedupe) Seen(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seen[key], nil
}

func (d *memDedupe) MarkProcessed(_ context.Context, key string, _ time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[key] = true
	return nil
}

type discardAudit struct{}

func (discardAudit) Log(context.Context, *domain.ReconciliationAudit) {}

// stubGateway serves payments from a map.
type stubGateway struct {
	payments map[string]domain.WebhookNotification
	calls    int
}

func (g *stubGateway) GetPayment(_ context.Context, id string) (*domain.WebhookNotification, error) {
	g.calls++
	p, ok := g.payments[id]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	return &p, nil
}
