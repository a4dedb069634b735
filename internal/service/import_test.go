package service_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfare/backend/internal/domain"
	"github.com/wayfare/backend/internal/ledger"
	"github.com/wayfare/backend/internal/service"
)

func tripImportRow(line int) domain.TripImportRow {
	return domain.TripImportRow{
		Line:        line,
		Origin:      "Lisbon",
		Destination: "Porto",
		Mode:        "train",
		DepartureAt: "2026-09-12T08:30:00Z",
		Travelers:   "Alex|Sam",
	}
}

func expenseImportRow(line int, tripNumber string) domain.ImportRow {
	return domain.ImportRow{
		Line:        line,
		TripNumber:  tripNumber,
		Description: "dinner",
		Amount:      "45.00",
		Category:    "food",
		Date:        "2026-09-13",
	}
}

func newImportService(trips *mockTripRepo, coord service.ExpenseCoordinator) *service.ImportService {
	tripSvc := service.NewTripService(trips, nil)
	expenseSvc := service.NewExpenseService(coord)
	return service.NewImportService(trips, tripSvc, expenseSvc)
}

// ---- trips -----------------------------------------------------------------

func TestImportService_Trips_BestEffortPerRow(t *testing.T) {
	var created []domain.Trip
	trips := &mockTripRepo{
		create: func(_ context.Context, trip domain.Trip) (domain.Trip, error) {
			trip.ID = uuid.New()
			created = append(created, trip)
			return trip, nil
		},
	}
	svc := newImportService(trips, nil)

	bad := tripImportRow(3)
	bad.DepartureAt = "next tuesday"

	result := svc.ImportTrips(context.Background(), uuid.New(),
		[]domain.TripImportRow{tripImportRow(2), bad, tripImportRow(4)})

	assert.Equal(t, 2, result.Imported)
	require.Len(t, result.Rejected, 1)
	assert.Equal(t, 3, result.Rejected[0].Line)
	assert.Len(t, created, 2, "valid rows around a bad one still import")
}

func TestImportService_Trips_MissingModeDefaultsToCar(t *testing.T) {
	trips := &mockTripRepo{
		create: func(_ context.Context, trip domain.Trip) (domain.Trip, error) {
			assert.Equal(t, domain.ModeCar, trip.Mode)
			return trip, nil
		},
	}
	svc := newImportService(trips, nil)

	row := tripImportRow(2)
	row.Mode = ""

	result := svc.ImportTrips(context.Background(), uuid.New(), []domain.TripImportRow{row})
	assert.Equal(t, 1, result.Imported)
}

func TestImportService_Trips_UnknownModeRejected(t *testing.T) {
	svc := newImportService(&mockTripRepo{}, nil)

	row := tripImportRow(2)
	row.Mode = "zeppelin"

	result := svc.ImportTrips(context.Background(), uuid.New(), []domain.TripImportRow{row})
	assert.Zero(t, result.Imported)
	require.Len(t, result.Rejected, 1)
	assert.Contains(t, result.Rejected[0].Message, "zeppelin")
}

// ---- expenses --------------------------------------------------------------

func TestImportService_Expenses_ResolvesTripNumber(t *testing.T) {
	ownerID := uuid.New()
	tripID := uuid.New()

	trips := &mockTripRepo{
		getBySeq: func(_ context.Context, _ uuid.UUID, seq int) (domain.Trip, error) {
			assert.Equal(t, 7, seq)
			return domain.Trip{ID: tripID, OwnerID: ownerID, Seq: seq, Number: "WF-007"}, nil
		},
	}
	coord := &mockCoordinator{
		addExpense: func(_ context.Context, _ uuid.UUID, e domain.Expense) (ledger.MutationOutcome, error) {
			assert.Equal(t, tripID, e.TripID)
			return ledger.MutationOutcome{Status: ledger.StatusConfirmed, Expense: e}, nil
		},
	}
	svc := newImportService(trips, coord)

	result := svc.ImportExpenses(context.Background(), ownerID,
		[]domain.ImportRow{expenseImportRow(2, "WF-007")})

	assert.Equal(t, 1, result.Imported)
	assert.Empty(t, result.Rejected)
}

func TestImportService_Expenses_UnknownTripNumberRejected(t *testing.T) {
	trips := &mockTripRepo{
		getBySeq: func(context.Context, uuid.UUID, int) (domain.Trip, error) {
			return domain.Trip{}, domain.ErrNotFound
		},
	}
	svc := newImportService(trips, &mockCoordinator{})

	result := svc.ImportExpenses(context.Background(), uuid.New(),
		[]domain.ImportRow{expenseImportRow(2, "WF-099")})

	assert.Zero(t, result.Imported)
	require.Len(t, result.Rejected, 1)
	assert.Contains(t, result.Rejected[0].Message, "WF-099")
}

func TestImportService_Expenses_MalformedNumberAndAmount(t *testing.T) {
	trips := &mockTripRepo{
		getBySeq: func(_ context.Context, _ uuid.UUID, seq int) (domain.Trip, error) {
			return domain.Trip{ID: uuid.New(), Seq: seq}, nil
		},
	}
	svc := newImportService(trips, &mockCoordinator{})

	badNumber := expenseImportRow(2, "seven")
	badAmount := expenseImportRow(3, "WF-001")
	badAmount.Amount = "a lot"

	result := svc.ImportExpenses(context.Background(), uuid.New(),
		[]domain.ImportRow{badNumber, badAmount})

	assert.Zero(t, result.Imported)
	assert.Len(t, result.Rejected, 2)
}

func TestImportService_Expenses_RolledBackRowReported(t *testing.T) {
	// A row that fails durably (not just in validation) is reported like any
	// other rejected row; the import keeps going.
	trips := &mockTripRepo{
		getBySeq: func(_ context.Context, _ uuid.UUID, seq int) (domain.Trip, error) {
			return domain.Trip{ID: uuid.New(), Seq: seq}, nil
		},
	}
	calls := 0
	coord := &mockCoordinator{
		addExpense: func(_ context.Context, _ uuid.UUID, e domain.Expense) (ledger.MutationOutcome, error) {
			calls++
			if calls == 1 {
				return ledger.MutationOutcome{Status: ledger.StatusRolledBack, Err: domain.ErrOperationFailed}, domain.ErrOperationFailed
			}
			return ledger.MutationOutcome{Status: ledger.StatusConfirmed, Expense: e}, nil
		},
	}
	svc := newImportService(trips, coord)

	result := svc.ImportExpenses(context.Background(), uuid.New(),
		[]domain.ImportRow{expenseImportRow(2, "WF-001"), expenseImportRow(3, "WF-001")})

	assert.Equal(t, 1, result.Imported)
	assert.Len(t, result.Rejected, 1)
}
