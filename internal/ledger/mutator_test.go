package ledger_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfare/backend/internal/domain"
	"github.com/wayfare/backend/internal/ledger"
	"github.com/wayfare/backend/internal/repo"
)

// ---- mock repos ------------------------------------------------------------

// mockProcRepo is a hand-written test double for repo.ProcRepo.
type mockProcRepo struct {
	probe      func(ctx context.Context) (bool, error)
	addExpense func(ctx context.Context, ownerID uuid.UUID, e domain.Expense) (domain.Expense, decimal.Decimal, error)
}

func (m *mockProcRepo) Probe(ctx context.Context) (bool, error) {
	return m.probe(ctx)
}

func (m *mockProcRepo) AddExpense(ctx context.Context, ownerID uuid.UUID, e domain.Expense) (domain.Expense, decimal.Decimal, error) {
	return m.addExpense(ctx, ownerID, e)
}

func (m *mockProcRepo) UpdateExpense(context.Context, uuid.UUID, uuid.UUID, domain.ExpensePatch) (domain.Expense, decimal.Decimal, error) {
	return domain.Expense{}, decimal.Zero, errors.New("not wired")
}

func (m *mockProcRepo) DeleteExpense(context.Context, uuid.UUID, uuid.UUID) (uuid.UUID, decimal.Decimal, error) {
	return uuid.Nil, decimal.Zero, errors.New("not wired")
}

func (m *mockProcRepo) AddExpensesBatch(context.Context, uuid.UUID, uuid.UUID, []domain.Expense) ([]domain.Expense, decimal.Decimal, error) {
	return nil, decimal.Zero, errors.New("not wired")
}

var _ repo.ProcRepo = (*mockProcRepo)(nil)

// mockExpenseRepo is a hand-written test double for repo.ExpenseRepo.
type mockExpenseRepo struct {
	insert    func(ctx context.Context, ownerID uuid.UUID, e domain.Expense) (domain.Expense, error)
	update    func(ctx context.Context, ownerID, expenseID uuid.UUID, patch domain.ExpensePatch) (domain.Expense, error)
	delete    func(ctx context.Context, ownerID, expenseID uuid.UUID) (uuid.UUID, error)
	tripTotal func(ctx context.Context, ownerID, tripID uuid.UUID) (decimal.Decimal, error)
}

func (m *mockExpenseRepo) Insert(ctx context.Context, ownerID uuid.UUID, e domain.Expense) (domain.Expense, error) {
	return m.insert(ctx, ownerID, e)
}

func (m *mockExpenseRepo) GetByID(context.Context, uuid.UUID, uuid.UUID) (domain.Expense, error) {
	return domain.Expense{}, domain.ErrNotFound
}

func (m *mockExpenseRepo) ListByTrip(context.Context, uuid.UUID, uuid.UUID) ([]domain.Expense, error) {
	return nil, nil
}

func (m *mockExpenseRepo) Update(ctx context.Context, ownerID, expenseID uuid.UUID, patch domain.ExpensePatch) (domain.Expense, error) {
	return m.update(ctx, ownerID, expenseID, patch)
}

func (m *mockExpenseRepo) Delete(ctx context.Context, ownerID, expenseID uuid.UUID) (uuid.UUID, error) {
	return m.delete(ctx, ownerID, expenseID)
}

func (m *mockExpenseRepo) TripTotal(ctx context.Context, ownerID, tripID uuid.UUID) (decimal.Decimal, error) {
	return m.tripTotal(ctx, ownerID, tripID)
}

var _ repo.ExpenseRepo = (*mockExpenseRepo)(nil)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ---- strategy selection ----------------------------------------------------

func TestSelectMutator_DisabledByConfig(t *testing.T) {
	probed := false
	procs := &mockProcRepo{probe: func(context.Context) (bool, error) {
		probed = true
		return true, nil
	}}
	expenses := &mockExpenseRepo{
		insert: func(_ context.Context, _ uuid.UUID, e domain.Expense) (domain.Expense, error) {
			e.ID = uuid.New()
			return e, nil
		},
		tripTotal: func(context.Context, uuid.UUID, uuid.UUID) (decimal.Decimal, error) {
			return dec("5.00"), nil
		},
	}

	m := ledger.SelectMutator(context.Background(), procs, expenses, false, discardLogger())

	assert.False(t, probed, "disabled config must skip the probe")

	// The returned strategy writes through the plain repo path.
	result, err := m.AddExpense(context.Background(), uuid.New(), expense(uuid.New(), "coffee", "5.00", 1))
	require.NoError(t, err)
	assert.True(t, result.Total.Equal(dec("5.00")))
}

func TestSelectMutator_ProbeMissFallsBackToManual(t *testing.T) {
	procs := &mockProcRepo{
		probe: func(context.Context) (bool, error) { return false, nil },
		addExpense: func(context.Context, uuid.UUID, domain.Expense) (domain.Expense, decimal.Decimal, error) {
			t.Fatal("atomic path must not be used when the probe misses")
			return domain.Expense{}, decimal.Zero, nil
		},
	}
	expenses := &mockExpenseRepo{
		insert: func(_ context.Context, _ uuid.UUID, e domain.Expense) (domain.Expense, error) {
			e.ID = uuid.New()
			return e, nil
		},
		tripTotal: func(context.Context, uuid.UUID, uuid.UUID) (decimal.Decimal, error) {
			return dec("7.00"), nil
		},
	}

	m := ledger.SelectMutator(context.Background(), procs, expenses, true, discardLogger())

	result, err := m.AddExpense(context.Background(), uuid.New(), expense(uuid.New(), "coffee", "7.00", 1))
	require.NoError(t, err)
	assert.True(t, result.Total.Equal(dec("7.00")))
}

// ---- atomic strategy -------------------------------------------------------

func TestAtomicMutator_WrapsInfraErrorsAsUnavailable(t *testing.T) {
	procs := &mockProcRepo{
		addExpense: func(context.Context, uuid.UUID, domain.Expense) (domain.Expense, decimal.Decimal, error) {
			return domain.Expense{}, decimal.Zero, errors.New("connection refused")
		},
	}
	m := ledger.NewAtomicMutator(procs)

	_, err := m.AddExpense(context.Background(), uuid.New(), expense(uuid.New(), "x", "1.00", 1))

	assert.ErrorIs(t, err, domain.ErrUnavailable)
}

func TestAtomicMutator_PassesThroughDomainErrors(t *testing.T) {
	procs := &mockProcRepo{
		addExpense: func(context.Context, uuid.UUID, domain.Expense) (domain.Expense, decimal.Decimal, error) {
			return domain.Expense{}, decimal.Zero, domain.ErrNotFound
		},
	}
	m := ledger.NewAtomicMutator(procs)

	_, err := m.AddExpense(context.Background(), uuid.New(), expense(uuid.New(), "x", "1.00", 1))

	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NotErrorIs(t, err, domain.ErrUnavailable)
}

// ---- manual strategy -------------------------------------------------------

func TestManualMutator_BatchCompensatesOnMidFailure(t *testing.T) {
	tripID := uuid.New()

	var inserted, deleted []uuid.UUID
	expenses := &mockExpenseRepo{
		insert: func(_ context.Context, _ uuid.UUID, e domain.Expense) (domain.Expense, error) {
			if len(inserted) == 1 {
				return domain.Expense{}, domain.ErrValidation
			}
			e.ID = uuid.New()
			inserted = append(inserted, e.ID)
			return e, nil
		},
		delete: func(_ context.Context, _ uuid.UUID, id uuid.UUID) (uuid.UUID, error) {
			deleted = append(deleted, id)
			return tripID, nil
		},
	}
	m := ledger.NewManualMutator(expenses)

	batch := []domain.Expense{
		expense(tripID, "one", "10.00", 1),
		expense(tripID, "two", "20.00", 2),
	}
	_, err := m.AddExpensesBatch(context.Background(), uuid.New(), tripID, batch)

	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, inserted, deleted, "every inserted row must be compensated")
}

// ---- fallback composition --------------------------------------------------

func TestFallbackMutator_UnavailablePrimaryRetriesOnSecondary(t *testing.T) {
	primaryCalls, secondaryCalls := 0, 0
	primary := &mockMutator{
		t: t,
		addExpense: func(context.Context, uuid.UUID, domain.Expense) (ledger.MutationResult, error) {
			primaryCalls++
			return ledger.MutationResult{}, domain.ErrUnavailable
		},
	}
	secondary := &mockMutator{
		t: t,
		addExpense: func(_ context.Context, _ uuid.UUID, e domain.Expense) (ledger.MutationResult, error) {
			secondaryCalls++
			if secondaryCalls == 1 {
				return ledger.MutationResult{}, errors.New("transient")
			}
			e.ID = uuid.New()
			return ledger.MutationResult{Expense: e, TripID: e.TripID, Total: e.Amount}, nil
		},
	}
	m := ledger.NewFallbackMutator(primary, secondary, discardLogger())

	result, err := m.AddExpense(context.Background(), uuid.New(), expense(uuid.New(), "x", "2.00", 1))

	require.NoError(t, err)
	assert.Equal(t, 1, primaryCalls)
	assert.Equal(t, 2, secondaryCalls, "first secondary failure should be retried")
	assert.True(t, result.Total.Equal(dec("2.00")))
}

func TestFallbackMutator_TerminalErrorNotRetried(t *testing.T) {
	primary := &mockMutator{
		t: t,
		addExpense: func(context.Context, uuid.UUID, domain.Expense) (ledger.MutationResult, error) {
			return ledger.MutationResult{}, domain.ErrUnavailable
		},
	}
	secondaryCalls := 0
	secondary := &mockMutator{
		t: t,
		addExpense: func(context.Context, uuid.UUID, domain.Expense) (ledger.MutationResult, error) {
			secondaryCalls++
			return ledger.MutationResult{}, domain.ErrNotFound
		},
	}
	m := ledger.NewFallbackMutator(primary, secondary, discardLogger())

	_, err := m.AddExpense(context.Background(), uuid.New(), expense(uuid.New(), "x", "2.00", 1))

	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 1, secondaryCalls)
}

func TestFallbackMutator_ExhaustionEscalatesToOperationFailed(t *testing.T) {
	primary := &mockMutator{
		t: t,
		addExpense: func(context.Context, uuid.UUID, domain.Expense) (ledger.MutationResult, error) {
			return ledger.MutationResult{}, domain.ErrUnavailable
		},
	}
	secondary := &mockMutator{
		t: t,
		addExpense: func(context.Context, uuid.UUID, domain.Expense) (ledger.MutationResult, error) {
			return ledger.MutationResult{}, errors.New("still down")
		},
	}
	m := ledger.NewFallbackMutator(primary, secondary, discardLogger())

	_, err := m.AddExpense(context.Background(), uuid.New(), expense(uuid.New(), "x", "2.00", 1))

	assert.ErrorIs(t, err, domain.ErrOperationFailed)
}

func TestFallbackMutator_NonUnavailablePrimaryErrorReturnedDirectly(t *testing.T) {
	primary := &mockMutator{
		t: t,
		addExpense: func(context.Context, uuid.UUID, domain.Expense) (ledger.MutationResult, error) {
			return ledger.MutationResult{}, domain.ErrValidation
		},
	}
	secondary := &mockMutator{t: t} // any call would fail the test
	m := ledger.NewFallbackMutator(primary, secondary, discardLogger())

	_, err := m.AddExpense(context.Background(), uuid.New(), expense(uuid.New(), "x", "2.00", 1))

	assert.ErrorIs(t, err, domain.ErrValidation)
}
