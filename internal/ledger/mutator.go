// Package ledger implements the expense-ledger consistency core: durable
// mutation strategies with atomic-preferred/manual-secondary selection, and
// the optimistic coordinator that mirrors the sum invariant in memory before
// the database confirms it.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"

	"github.com/wayfare/backend/internal/domain"
	"github.com/wayfare/backend/internal/repo"
)

// MutationResult is the authoritative state a durable mutation returns: the
// affected record(s), the owning trip, and the server-recomputed total.
type MutationResult struct {
	Expense  domain.Expense   // zero value for deletes
	Expenses []domain.Expense // populated by batch adds only
	TripID   uuid.UUID
	Total    decimal.Decimal
}

// Mutator issues a durable expense mutation and reports the new state in as
// few round trips as its strategy allows. Implementations must re-validate
// ownership server-side; stale client belief is not trusted.
type Mutator interface {
	AddExpense(ctx context.Context, ownerID uuid.UUID, e domain.Expense) (MutationResult, error)
	UpdateExpense(ctx context.Context, ownerID, expenseID uuid.UUID, patch domain.ExpensePatch) (MutationResult, error)
	DeleteExpense(ctx context.Context, ownerID, expenseID uuid.UUID) (MutationResult, error)
	AddExpensesBatch(ctx context.Context, ownerID, tripID uuid.UUID, expenses []domain.Expense) (MutationResult, error)
}

// SelectMutator probes the database for the atomic procedures and returns
// the atomic-preferred strategy wrapped with the manual fallback when they
// are installed, or the plain manual strategy when they are not.
// enabled=false forces the manual strategy regardless of the probe, which is
// the configuration escape hatch for databases where the procedures exist
// but must not be used.
func SelectMutator(ctx context.Context, procs repo.ProcRepo, expenses repo.ExpenseRepo, enabled bool, log *slog.Logger) Mutator {
	manual := NewManualMutator(expenses)
	if !enabled {
		log.Info("ledger: atomic procedures disabled by configuration, using manual strategy")
		return manual
	}
	installed, err := procs.Probe(ctx)
	if err != nil || !installed {
		log.Warn("ledger: atomic procedures unavailable, using manual strategy", "error", err)
		return manual
	}
	return NewFallbackMutator(NewAtomicMutator(procs), manual, log)
}

// --- atomic strategy --------------------------------------------------------

// atomicMutator issues mutations through the server-side procedures: one
// round trip per mutation, mutation and recomputation in one transaction.
type atomicMutator struct {
	procs repo.ProcRepo
}

// NewAtomicMutator constructs the single-round-trip strategy.
func NewAtomicMutator(procs repo.ProcRepo) Mutator {
	return &atomicMutator{procs: procs}
}

func (m *atomicMutator) AddExpense(ctx context.Context, ownerID uuid.UUID, e domain.Expense) (MutationResult, error) {
	expense, total, err := m.procs.AddExpense(ctx, ownerID, e)
	if err != nil {
		return MutationResult{}, classify(err)
	}
	return MutationResult{Expense: expense, TripID: expense.TripID, Total: total}, nil
}

func (m *atomicMutator) UpdateExpense(ctx context.Context, ownerID, expenseID uuid.UUID, patch domain.ExpensePatch) (MutationResult, error) {
	expense, total, err := m.procs.UpdateExpense(ctx, ownerID, expenseID, patch)
	if err != nil {
		return MutationResult{}, classify(err)
	}
	return MutationResult{Expense: expense, TripID: expense.TripID, Total: total}, nil
}

func (m *atomicMutator) DeleteExpense(ctx context.Context, ownerID, expenseID uuid.UUID) (MutationResult, error) {
	tripID, total, err := m.procs.DeleteExpense(ctx, ownerID, expenseID)
	if err != nil {
		return MutationResult{}, classify(err)
	}
	return MutationResult{TripID: tripID, Total: total}, nil
}

func (m *atomicMutator) AddExpensesBatch(ctx context.Context, ownerID, tripID uuid.UUID, expenses []domain.Expense) (MutationResult, error) {
	created, total, err := m.procs.AddExpensesBatch(ctx, ownerID, tripID, expenses)
	if err != nil {
		return MutationResult{}, classify(err)
	}
	return MutationResult{Expenses: created, TripID: tripID, Total: total}, nil
}

// classify maps non-domain failures of the atomic path onto ErrUnavailable
// so the fallback layer can distinguish "target is wrong" (terminal) from
// "path is unreachable" (retry on the manual strategy).
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrValidation) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrUnavailable, err)
}

// --- manual strategy --------------------------------------------------------

// manualMutator is the plain-write fallback: the row mutation relies on the
// database trigger for recomputation and the new total is read back in a
// second round trip. The inconsistency window is wider (two round trips) but
// converges to the same invariant.
type manualMutator struct {
	expenses repo.ExpenseRepo
}

// NewManualMutator constructs the two-round-trip fallback strategy.
func NewManualMutator(expenses repo.ExpenseRepo) Mutator {
	return &manualMutator{expenses: expenses}
}

func (m *manualMutator) AddExpense(ctx context.Context, ownerID uuid.UUID, e domain.Expense) (MutationResult, error) {
	created, err := m.expenses.Insert(ctx, ownerID, e)
	if err != nil {
		return MutationResult{}, err
	}
	total, err := m.expenses.TripTotal(ctx, ownerID, created.TripID)
	if err != nil {
		return MutationResult{}, fmt.Errorf("ledger: read total after insert: %w", err)
	}
	return MutationResult{Expense: created, TripID: created.TripID, Total: total}, nil
}

func (m *manualMutator) UpdateExpense(ctx context.Context, ownerID, expenseID uuid.UUID, patch domain.ExpensePatch) (MutationResult, error) {
	updated, err := m.expenses.Update(ctx, ownerID, expenseID, patch)
	if err != nil {
		return MutationResult{}, err
	}
	total, err := m.expenses.TripTotal(ctx, ownerID, updated.TripID)
	if err != nil {
		return MutationResult{}, fmt.Errorf("ledger: read total after update: %w", err)
	}
	return MutationResult{Expense: updated, TripID: updated.TripID, Total: total}, nil
}

func (m *manualMutator) DeleteExpense(ctx context.Context, ownerID, expenseID uuid.UUID) (MutationResult, error) {
	tripID, err := m.expenses.Delete(ctx, ownerID, expenseID)
	if err != nil {
		return MutationResult{}, err
	}
	total, err := m.expenses.TripTotal(ctx, ownerID, tripID)
	if err != nil {
		return MutationResult{}, fmt.Errorf("ledger: read total after delete: %w", err)
	}
	return MutationResult{TripID: tripID, Total: total}, nil
}

// AddExpensesBatch on the manual strategy inserts rows sequentially and
// compensates with best-effort deletes if a later row fails, so the caller
// still observes all-or-nothing. The atomic strategy does this in one real
// transaction and should be preferred.
func (m *manualMutator) AddExpensesBatch(ctx context.Context, ownerID, tripID uuid.UUID, expenses []domain.Expense) (MutationResult, error) {
	created := make([]domain.Expense, 0, len(expenses))
	for _, e := range expenses {
		e.TripID = tripID
		row, err := m.expenses.Insert(ctx, ownerID, e)
		if err != nil {
			for _, c := range created {
				if _, derr := m.expenses.Delete(ctx, ownerID, c.ID); derr != nil {
					return MutationResult{}, fmt.Errorf("ledger: batch compensation failed: %w (original: %w)", derr, err)
				}
			}
			return MutationResult{}, err
		}
		created = append(created, row)
	}
	total, err := m.expenses.TripTotal(ctx, ownerID, tripID)
	if err != nil {
		return MutationResult{}, fmt.Errorf("ledger: read total after batch: %w", err)
	}
	return MutationResult{Expenses: created, TripID: tripID, Total: total}, nil
}

// --- fallback composition ---------------------------------------------------

// manualBackoff bounds the secondary attempt: up to two retries at a constant
// 200ms apart, only for errors still classified transient.
const (
	manualRetryGap = 200 * time.Millisecond
	manualRetries  = 2
)

// fallbackMutator prefers the atomic strategy and falls back to the manual
// one exactly once per operation when the atomic path reports
// ErrUnavailable. A manual failure after that escalates to
// ErrOperationFailed; terminal errors (ErrNotFound, ErrValidation) are never
// retried on either path.
type fallbackMutator struct {
	primary   Mutator
	secondary Mutator
	log       *slog.Logger
}

// NewFallbackMutator composes the two strategies.
func NewFallbackMutator(primary, secondary Mutator, log *slog.Logger) Mutator {
	return &fallbackMutator{primary: primary, secondary: secondary, log: log}
}

func (m *fallbackMutator) AddExpense(ctx context.Context, ownerID uuid.UUID, e domain.Expense) (MutationResult, error) {
	return m.run(ctx, "add_expense",
		func(mut Mutator) (MutationResult, error) { return mut.AddExpense(ctx, ownerID, e) })
}

func (m *fallbackMutator) UpdateExpense(ctx context.Context, ownerID, expenseID uuid.UUID, patch domain.ExpensePatch) (MutationResult, error) {
	return m.run(ctx, "update_expense",
		func(mut Mutator) (MutationResult, error) { return mut.UpdateExpense(ctx, ownerID, expenseID, patch) })
}

func (m *fallbackMutator) DeleteExpense(ctx context.Context, ownerID, expenseID uuid.UUID) (MutationResult, error) {
	return m.run(ctx, "delete_expense",
		func(mut Mutator) (MutationResult, error) { return mut.DeleteExpense(ctx, ownerID, expenseID) })
}

func (m *fallbackMutator) AddExpensesBatch(ctx context.Context, ownerID, tripID uuid.UUID, expenses []domain.Expense) (MutationResult, error) {
	return m.run(ctx, "add_expenses_batch",
		func(mut Mutator) (MutationResult, error) { return mut.AddExpensesBatch(ctx, ownerID, tripID, expenses) })
}

// run executes op against the primary strategy and, if the atomic path is
// unreachable, retries it on the secondary with a bounded constant backoff.
func (m *fallbackMutator) run(ctx context.Context, name string, op func(Mutator) (MutationResult, error)) (MutationResult, error) {
	result, err := op(m.primary)
	if err == nil {
		return result, nil
	}
	if !errors.Is(err, domain.ErrUnavailable) {
		return MutationResult{}, err
	}

	m.log.Warn("ledger: atomic path unavailable, falling back to manual strategy",
		"operation", name, "error", err)

	backoff := retry.WithMaxRetries(manualRetries, retry.NewConstant(manualRetryGap))
	rerr := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var oerr error
		result, oerr = op(m.secondary)
		if oerr == nil {
			return nil
		}
		if errors.Is(oerr, domain.ErrNotFound) || errors.Is(oerr, domain.ErrValidation) {
			return oerr // terminal, stop retrying
		}
		return retry.RetryableError(oerr)
	})
	if rerr != nil {
		if errors.Is(rerr, domain.ErrNotFound) || errors.Is(rerr, domain.ErrValidation) {
			return MutationResult{}, rerr
		}
		return MutationResult{}, fmt.Errorf("%w: %s: fallback exhausted: %w", domain.ErrOperationFailed, name, rerr)
	}
	return result, nil
}
