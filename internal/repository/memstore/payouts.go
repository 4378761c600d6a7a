package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/set-night/groupoffer/internal/domain"
)

// PayoutTable is one payout relation. A table that is not present answers
// every call with domain.ErrSchemaMissing, like an undefined Postgres table.
// Rows are unique per fulfillment ref.
type PayoutTable struct {
	mu        sync.Mutex
	shape     domain.PayoutShape
	present   bool
	rows      map[uuid.UUID]domain.PayoutObligation
	insertErr map[uuid.UUID]error
	readErr   error
}

func NewPayoutTable(shape domain.PayoutShape, present bool) *PayoutTable {
	return &PayoutTable{
		shape:     shape,
		present:   present,
		rows:      make(map[uuid.UUID]domain.PayoutObligation),
		insertErr: make(map[uuid.UUID]error),
	}
}

func (t *PayoutTable) SetPresent(present bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.present = present
}

// FailInsert makes inserts for ref fail with err until cleared with nil.
func (t *PayoutTable) FailInsert(ref uuid.UUID, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err == nil {
		delete(t.insertErr, ref)
		return
	}
	t.insertErr[ref] = err
}

func (t *PayoutTable) FailReads(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.readErr = err
}

func (t *PayoutTable) Rows() []domain.PayoutObligation {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.PayoutObligation, 0, len(t.rows))
	for _, p := range t.rows {
		out = append(out, p)
	}
	return out
}

func (t *PayoutTable) missing() error {
	return fmt.Errorf("%s: %w", t.shape, domain.ErrSchemaMissing)
}

func (t *PayoutTable) Shape() domain.PayoutShape {
	return t.shape
}

func (t *PayoutTable) Supports(context.Context) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.present, nil
}

func (t *PayoutTable) ExistingRefs(_ context.Context, refs []uuid.UUID) (map[uuid.UUID]struct{}, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.present {
		return nil, t.missing()
	}
	if t.readErr != nil {
		return nil, t.readErr
	}
	out := make(map[uuid.UUID]struct{})
	for _, ref := range refs {
		if _, ok := t.rows[ref]; ok {
			out[ref] = struct{}{}
		}
	}
	return out, nil
}

func (t *PayoutTable) Insert(_ context.Context, p *domain.PayoutObligation) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.present {
		return t.missing()
	}
	if err := t.insertErr[p.FulfillmentRef]; err != nil {
		return err
	}
	if _, ok := t.rows[p.FulfillmentRef]; ok {
		return fmt.Errorf("%s: %w", t.shape, domain.ErrConflict)
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.Shape = t.shape
	t.rows[p.FulfillmentRef] = *p
	return nil
}
