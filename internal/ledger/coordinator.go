package ledger

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wayfare/backend/internal/domain"
)

// OutcomeStatus is the terminal state of one coordinated mutation.
type OutcomeStatus string

const (
	// StatusConfirmed: the optimistic change was replaced by the
	// authoritative record and server-confirmed total.
	StatusConfirmed OutcomeStatus = "confirmed"
	// StatusRolledBack: the durable mutation failed and the in-memory state
	// was restored to its pre-mutation value.
	StatusRolledBack OutcomeStatus = "rolled_back"
	// StatusDuplicate: an identical mutation was already in flight; this
	// call was rejected as a no-op and had no effect.
	StatusDuplicate OutcomeStatus = "duplicate"
)

// MutationOutcome is returned from every coordinated mutation. The
// presentation layer decides how to notify; the coordinator itself carries
// no notification mechanism.
type MutationOutcome struct {
	Status   OutcomeStatus
	Expense  domain.Expense
	Expenses []domain.Expense
	TripID   uuid.UUID
	Total    decimal.Decimal
	Err      error
}

// dedupBucket is the timestamp granularity folded into operation keys. Two
// identical mutations issued within the same bucket while the first is still
// in flight are treated as one logical operation (a double-click), not two.
const dedupBucket = 2 * time.Second

// DefaultMutationTimeout bounds how long a durable mutation may stay
// unconfirmed before it is treated as failed and rolled back.
const DefaultMutationTimeout = 10 * time.Second

// Coordinator makes single-expense mutations feel instantaneous while
// preserving eventual correctness. It owns each authenticated user's
// in-memory trip/expense view, applies every change optimistically before
// the durable mutation is issued, reconciles on confirmation, and rolls back
// exactly on failure.
//
// The coordinator protects one process's view against duplicate clicks and
// race-prone callbacks; it does not arbitrate between clients. Cross-client
// drift is bounded by the refresh path instead.
type Coordinator struct {
	mutator Mutator
	timeout time.Duration
	now     func() time.Time
	settle  func(ownerID uuid.UUID)

	mu       sync.Mutex
	views    map[uuid.UUID]*view
	inflight map[opKey]struct{}
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithClock injects the time source used for dedup bucketing. Tests use it
// to pin two calls into the same bucket deterministically.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithSettleHook registers a callback invoked after every mutation settles
// (confirmed or rolled back). Production wires this to the refresher's
// debounced kick.
func WithSettleHook(fn func(ownerID uuid.UUID)) Option {
	return func(c *Coordinator) { c.settle = fn }
}

// WithTimeout overrides DefaultMutationTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.timeout = d }
}

// NewCoordinator constructs a Coordinator issuing durable mutations through
// the given strategy.
func NewCoordinator(m Mutator, opts ...Option) *Coordinator {
	c := &Coordinator{
		mutator:  m,
		timeout:  DefaultMutationTimeout,
		now:      time.Now,
		views:    make(map[uuid.UUID]*view),
		inflight: make(map[opKey]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register ensures a view exists for the owner and reports whether it was
// newly created. The refresh path uses this to learn which owners to reload.
func (c *Coordinator) Register(ownerID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.views[ownerID]; ok {
		return false
	}
	c.views[ownerID] = newView()
	return true
}

// ReplaceAll swaps the owner's entire view for a freshly loaded collection.
func (c *Coordinator) ReplaceAll(ownerID uuid.UUID, trips []domain.TripWithExpenses) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viewLocked(ownerID).replaceAll(trips)
}

// Snapshot returns a deep copy of the owner's view, trips ordered by
// departure descending.
func (c *Coordinator) Snapshot(ownerID uuid.UUID) []domain.TripWithExpenses {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked(ownerID).snapshot()
}

// TripSnapshot returns a deep copy of a single trip's view state.
func (c *Coordinator) TripSnapshot(ownerID, tripID uuid.UUID) (domain.TripWithExpenses, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.viewLocked(ownerID).trips[tripID]
	if !ok {
		return domain.TripWithExpenses{}, false
	}
	cp := domain.TripWithExpenses{Trip: t.Trip}
	cp.Trip.Travelers = append([]string(nil), t.Trip.Travelers...)
	cp.Expenses = append([]domain.Expense{}, t.Expenses...)
	return cp, true
}

// ReconcileTrip folds a trip-level create/update into the view.
func (c *Coordinator) ReconcileTrip(ownerID uuid.UUID, trip domain.Trip) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viewLocked(ownerID).putTrip(trip)
}

// ForgetTrip drops a deleted trip and its expenses from the view.
func (c *Coordinator) ForgetTrip(ownerID, tripID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viewLocked(ownerID).dropTrip(tripID)
}

// AddExpense applies the expense optimistically under a placeholder id,
// issues the durable add, and reconciles or rolls back.
//
// On confirmation the placeholder is swapped for the authoritative record
// and the trip total is overwritten with the server-confirmed value, never
// a locally recomputed one, so concurrent mutations from elsewhere are
// absorbed. On failure the placeholder is removed and its amount subtracted
// back out, restoring the exact pre-mutation state.
func (c *Coordinator) AddExpense(ctx context.Context, ownerID uuid.UUID, e domain.Expense) (MutationOutcome, error) {
	key := newOpKey("add", ownerID, e.TripID, addPayload(e), c.bucket())

	placeholder := e
	placeholder.ID = uuid.New()

	c.mu.Lock()
	if _, busy := c.inflight[key]; busy {
		c.mu.Unlock()
		return MutationOutcome{Status: StatusDuplicate, TripID: e.TripID, Err: domain.ErrDuplicateOperation},
			domain.ErrDuplicateOperation
	}
	c.inflight[key] = struct{}{}

	v := c.viewLocked(ownerID)
	applied := false
	if t, ok := v.trips[e.TripID]; ok {
		v.appendExpense(placeholder, true)
		t.Trip.Total = t.Trip.Total.Add(e.Amount)
		applied = true
	}
	c.mu.Unlock()

	result, err := c.mutate(ctx, func(ctx context.Context) (MutationResult, error) {
		return c.mutator.AddExpense(ctx, ownerID, e)
	})

	c.mu.Lock()
	delete(c.inflight, key)
	if err != nil {
		if applied {
			if _, ok := v.removeExpense(placeholder.ID); ok {
				if t, ok := v.trips[e.TripID]; ok {
					t.Trip.Total = t.Trip.Total.Sub(e.Amount)
				}
			}
		}
		c.mu.Unlock()
		c.settled(ownerID)
		return MutationOutcome{Status: StatusRolledBack, TripID: e.TripID, Err: err}, err
	}

	if applied {
		v.swapExpense(placeholder.ID, result.Expense)
	} else {
		v.appendExpense(result.Expense, false)
	}
	if t, ok := v.trips[result.TripID]; ok {
		t.Trip.Total = result.Total
	}
	c.mu.Unlock()
	c.settled(ownerID)

	return MutationOutcome{
		Status:  StatusConfirmed,
		Expense: result.Expense,
		TripID:  result.TripID,
		Total:   result.Total,
	}, nil
}

// UpdateExpense captures the full pre-mutation record and total before
// applying the optimistic delta: a partial update's delta depends on the
// old amount, so both are required for exact rollback.
func (c *Coordinator) UpdateExpense(ctx context.Context, ownerID, expenseID uuid.UUID, patch domain.ExpensePatch) (MutationOutcome, error) {
	key := newOpKey("update", ownerID, expenseID, patchPayload(patch), c.bucket())

	c.mu.Lock()
	if _, busy := c.inflight[key]; busy {
		c.mu.Unlock()
		return MutationOutcome{Status: StatusDuplicate, Err: domain.ErrDuplicateOperation},
			domain.ErrDuplicateOperation
	}
	c.inflight[key] = struct{}{}

	v := c.viewLocked(ownerID)
	var (
		applied    bool
		prior      domain.Expense
		priorTotal decimal.Decimal
	)
	if captured, ok := v.getExpense(expenseID); ok {
		if t, ok := v.trips[captured.TripID]; ok {
			prior = captured
			priorTotal = t.Trip.Total
			optimistic := patch.ApplyTo(captured)
			v.setExpense(optimistic)
			t.Trip.Total = t.Trip.Total.Sub(prior.Amount).Add(optimistic.Amount)
			applied = true
		}
	}
	c.mu.Unlock()

	result, err := c.mutate(ctx, func(ctx context.Context) (MutationResult, error) {
		return c.mutator.UpdateExpense(ctx, ownerID, expenseID, patch)
	})

	c.mu.Lock()
	delete(c.inflight, key)
	if err != nil {
		if applied {
			if _, ok := v.getExpense(expenseID); ok {
				v.setExpense(prior)
				if t, ok := v.trips[prior.TripID]; ok {
					t.Trip.Total = priorTotal
				}
			}
		}
		c.mu.Unlock()
		c.settled(ownerID)
		return MutationOutcome{Status: StatusRolledBack, TripID: prior.TripID, Err: err}, err
	}

	v.setExpense(result.Expense)
	if t, ok := v.trips[result.TripID]; ok {
		t.Trip.Total = result.Total
	}
	c.mu.Unlock()
	c.settled(ownerID)

	return MutationOutcome{
		Status:  StatusConfirmed,
		Expense: result.Expense,
		TripID:  result.TripID,
		Total:   result.Total,
	}, nil
}

// DeleteExpense captures the record before removing it optimistically. On
// failure the record is reinserted (the list re-sorts into display order)
// and the captured total restored.
func (c *Coordinator) DeleteExpense(ctx context.Context, ownerID, expenseID uuid.UUID) (MutationOutcome, error) {
	key := newOpKey("delete", ownerID, expenseID, "", c.bucket())

	c.mu.Lock()
	if _, busy := c.inflight[key]; busy {
		c.mu.Unlock()
		return MutationOutcome{Status: StatusDuplicate, Err: domain.ErrDuplicateOperation},
			domain.ErrDuplicateOperation
	}
	c.inflight[key] = struct{}{}

	v := c.viewLocked(ownerID)
	var (
		applied    bool
		prior      domain.Expense
		priorTotal decimal.Decimal
	)
	if captured, ok := v.getExpense(expenseID); ok {
		if t, ok := v.trips[captured.TripID]; ok {
			prior = captured
			priorTotal = t.Trip.Total
			v.removeExpense(expenseID)
			t.Trip.Total = t.Trip.Total.Sub(captured.Amount)
			applied = true
		}
	}
	c.mu.Unlock()

	result, err := c.mutate(ctx, func(ctx context.Context) (MutationResult, error) {
		return c.mutator.DeleteExpense(ctx, ownerID, expenseID)
	})

	c.mu.Lock()
	delete(c.inflight, key)
	if err != nil {
		if applied {
			v.appendExpense(prior, false)
			if t, ok := v.trips[prior.TripID]; ok {
				t.Trip.Total = priorTotal
			}
		}
		c.mu.Unlock()
		c.settled(ownerID)
		return MutationOutcome{Status: StatusRolledBack, TripID: prior.TripID, Err: err}, err
	}

	if t, ok := v.trips[result.TripID]; ok {
		t.Trip.Total = result.Total
	}
	c.mu.Unlock()
	c.settled(ownerID)

	return MutationOutcome{
		Status: StatusConfirmed,
		TripID: result.TripID,
		Total:  result.Total,
	}, nil
}

// AddExpensesBatch applies every row optimistically under placeholder ids,
// issues the all-or-nothing durable batch, and reconciles or rolls the whole
// set back together.
func (c *Coordinator) AddExpensesBatch(ctx context.Context, ownerID, tripID uuid.UUID, expenses []domain.Expense) (MutationOutcome, error) {
	key := newOpKey("batch", ownerID, tripID, batchPayload(expenses), c.bucket())

	placeholders := make([]domain.Expense, len(expenses))
	batchSum := decimal.Zero
	for i, e := range expenses {
		e.TripID = tripID
		e.ID = uuid.New()
		placeholders[i] = e
		batchSum = batchSum.Add(e.Amount)
	}

	c.mu.Lock()
	if _, busy := c.inflight[key]; busy {
		c.mu.Unlock()
		return MutationOutcome{Status: StatusDuplicate, TripID: tripID, Err: domain.ErrDuplicateOperation},
			domain.ErrDuplicateOperation
	}
	c.inflight[key] = struct{}{}

	v := c.viewLocked(ownerID)
	applied := false
	if t, ok := v.trips[tripID]; ok {
		for _, p := range placeholders {
			v.appendExpense(p, true)
		}
		t.Trip.Total = t.Trip.Total.Add(batchSum)
		applied = true
	}
	c.mu.Unlock()

	result, err := c.mutate(ctx, func(ctx context.Context) (MutationResult, error) {
		return c.mutator.AddExpensesBatch(ctx, ownerID, tripID, expenses)
	})

	c.mu.Lock()
	delete(c.inflight, key)
	if err != nil {
		if applied {
			removedSum := decimal.Zero
			for _, p := range placeholders {
				if removed, ok := v.removeExpense(p.ID); ok {
					removedSum = removedSum.Add(removed.Amount)
				}
			}
			if t, ok := v.trips[tripID]; ok {
				t.Trip.Total = t.Trip.Total.Sub(removedSum)
			}
		}
		c.mu.Unlock()
		c.settled(ownerID)
		return MutationOutcome{Status: StatusRolledBack, TripID: tripID, Err: err}, err
	}

	if applied {
		for i, created := range result.Expenses {
			if i < len(placeholders) {
				v.swapExpense(placeholders[i].ID, created)
			} else {
				v.appendExpense(created, false)
			}
		}
	} else {
		for _, created := range result.Expenses {
			v.appendExpense(created, false)
		}
	}
	if t, ok := v.trips[tripID]; ok {
		t.Trip.Total = result.Total
	}
	c.mu.Unlock()
	c.settled(ownerID)

	return MutationOutcome{
		Status:   StatusConfirmed,
		Expenses: result.Expenses,
		TripID:   tripID,
		Total:    result.Total,
	}, nil
}

// mutate runs the durable operation under the bounded-wait timeout. A
// mutation that never resolves is treated as failed so the rollback path
// runs instead of leaving the view permanently optimistic.
func (c *Coordinator) mutate(ctx context.Context, op func(context.Context) (MutationResult, error)) (MutationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, err := op(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return MutationResult{}, fmt.Errorf("%w: mutation unconfirmed after %s", domain.ErrOperationFailed, c.timeout)
		}
		return MutationResult{}, err
	}
	return result, nil
}

// viewLocked returns the owner's view, creating it on first touch.
// Caller holds c.mu.
func (c *Coordinator) viewLocked(ownerID uuid.UUID) *view {
	v, ok := c.views[ownerID]
	if !ok {
		v = newView()
		c.views[ownerID] = v
	}
	return v
}

func (c *Coordinator) settled(ownerID uuid.UUID) {
	if c.settle != nil {
		c.settle(ownerID)
	}
}

func (c *Coordinator) bucket() int64 {
	return c.now().Unix() / int64(dedupBucket/time.Second)
}

// --- operation keys ---------------------------------------------------------

// opKey identifies one logical mutation for deduplication: operation kind,
// target (expense or trip), a payload digest, and the timestamp bucket.
type opKey struct {
	kind    string
	ownerID uuid.UUID
	target  uuid.UUID
	payload uint64
	bucket  int64
}

func newOpKey(kind string, ownerID, target uuid.UUID, payload string, bucket int64) opKey {
	h := fnv.New64a()
	h.Write([]byte(payload))
	return opKey{kind: kind, ownerID: ownerID, target: target, payload: h.Sum64(), bucket: bucket}
}

func addPayload(e domain.Expense) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s",
		e.Description, e.Amount.String(), e.Category, e.Date.Format("2006-01-02"), e.TimeOfDay)
}

func patchPayload(p domain.ExpensePatch) string {
	var b []byte
	if p.Description != nil {
		b = fmt.Appendf(b, "d=%s|", *p.Description)
	}
	if p.Amount != nil {
		b = fmt.Appendf(b, "a=%s|", p.Amount.String())
	}
	if p.Category != nil {
		b = fmt.Appendf(b, "c=%s|", *p.Category)
	}
	if p.Date != nil {
		b = fmt.Appendf(b, "t=%s|", p.Date.Format("2006-01-02"))
	}
	if p.TimeOfDay != nil {
		b = fmt.Appendf(b, "h=%s|", *p.TimeOfDay)
	}
	return string(b)
}

func batchPayload(expenses []domain.Expense) string {
	var b []byte
	for _, e := range expenses {
		b = append(b, addPayload(e)...)
		b = append(b, ';')
	}
	return string(b)
}
