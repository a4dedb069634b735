package repo_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfare/backend/internal/domain"
	"github.com/wayfare/backend/internal/repo"
	"github.com/wayfare/backend/testutil"
)

// newTestTripRepo returns a TripRepo backed by a transaction that is rolled
// back when the test finishes, so every test starts from a clean database.
func newTestTripRepo(t *testing.T) repo.TripRepo {
	t.Helper()
	pool := testutil.NewPool(t)
	return repo.NewTripRepo(testutil.BeginTx(t, pool))
}

// tripFixture returns a Trip ready for insertion for the given owner.
func tripFixture(ownerID uuid.UUID) domain.Trip {
	return domain.Trip{
		OwnerID:     ownerID,
		Origin:      "Lisbon",
		Destination: "Porto",
		Mode:        domain.ModeTrain,
		DepartureAt: time.Date(2026, 9, 12, 8, 30, 0, 0, time.UTC),
		Notes:       "long weekend",
		Travelers:   []string{"Alex", "Sam"},
	}
}

func TestTripRepo_Create(t *testing.T) {
	r := newTestTripRepo(t)
	ctx := context.Background()

	ownerID := uuid.New()
	input := tripFixture(ownerID)

	got, err := r.Create(ctx, input)

	require.NoError(t, err)
	assert.NotEqual(t, uuid.UUID{}, got.ID, "ID should be DB-generated")
	assert.Equal(t, ownerID, got.OwnerID)
	assert.Equal(t, 1, got.Seq, "first trip for an owner gets seq 1")
	assert.Equal(t, "WF-001", got.Number)
	assert.Equal(t, input.Origin, got.Origin)
	assert.Equal(t, input.Destination, got.Destination)
	assert.Equal(t, domain.ModeTrain, got.Mode)
	assert.Equal(t, domain.StatusPlanning, got.Status, "new trips start in planning")
	assert.True(t, got.DepartureAt.Equal(input.DepartureAt))
	assert.Equal(t, input.Travelers, got.Travelers)
	assert.True(t, got.Total.IsZero(), "new trip total should be zero")
	assert.False(t, got.CreatedAt.IsZero())
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestTripRepo_Create_SequenceIsPerOwner(t *testing.T) {
	r := newTestTripRepo(t)
	ctx := context.Background()

	alice := uuid.New()
	bob := uuid.New()

	first, err := r.Create(ctx, tripFixture(alice))
	require.NoError(t, err)
	second, err := r.Create(ctx, tripFixture(alice))
	require.NoError(t, err)
	other, err := r.Create(ctx, tripFixture(bob))
	require.NoError(t, err)

	assert.Equal(t, 1, first.Seq)
	assert.Equal(t, 2, second.Seq)
	assert.Equal(t, "WF-002", second.Number)
	assert.Equal(t, 1, other.Seq, "counters do not leak across owners")
}

func TestTripRepo_GetByID(t *testing.T) {
	r := newTestTripRepo(t)
	ctx := context.Background()

	ownerID := uuid.New()
	created, err := r.Create(ctx, tripFixture(ownerID))
	require.NoError(t, err)

	got, err := r.GetByID(ctx, ownerID, created.ID)

	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, created.Number, got.Number)
}

func TestTripRepo_GetByID_WrongOwnerIsNotFound(t *testing.T) {
	r := newTestTripRepo(t)
	ctx := context.Background()

	created, err := r.Create(ctx, tripFixture(uuid.New()))
	require.NoError(t, err)

	_, err = r.GetByID(ctx, uuid.New(), created.ID)

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTripRepo_GetBySeq(t *testing.T) {
	r := newTestTripRepo(t)
	ctx := context.Background()

	ownerID := uuid.New()
	_, err := r.Create(ctx, tripFixture(ownerID))
	require.NoError(t, err)
	second, err := r.Create(ctx, tripFixture(ownerID))
	require.NoError(t, err)

	got, err := r.GetBySeq(ctx, ownerID, 2)

	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	_, err = r.GetBySeq(ctx, ownerID, 99)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTripRepo_ListPaged(t *testing.T) {
	r := newTestTripRepo(t)
	ctx := context.Background()

	ownerID := uuid.New()
	for i := 0; i < 5; i++ {
		trip := tripFixture(ownerID)
		trip.DepartureAt = trip.DepartureAt.AddDate(0, 0, i)
		_, err := r.Create(ctx, trip)
		require.NoError(t, err)
	}

	page, total, err := r.ListPaged(ctx, ownerID, domain.PaginationParams{Page: 1, Limit: 2})

	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, page, 2)
	assert.True(t, page[0].DepartureAt.After(page[1].DepartureAt), "ordered by departure descending")

	last, _, err := r.ListPaged(ctx, ownerID, domain.PaginationParams{Page: 3, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, last, 1)
}

func TestTripRepo_ListWithExpenses(t *testing.T) {
	pool := testutil.NewPool(t)
	tx := testutil.BeginTx(t, pool)
	r := repo.NewTripRepo(tx)
	ctx := context.Background()

	ownerID := uuid.New()
	trip, err := r.Create(ctx, tripFixture(ownerID))
	require.NoError(t, err)
	empty, err := r.Create(ctx, tripFixture(ownerID))
	require.NoError(t, err)

	testutil.InsertExpense(t, tx, trip.ID, "120.50")
	testutil.InsertExpense(t, tx, trip.ID, "45.00")

	got, err := r.ListWithExpenses(ctx, ownerID)

	require.NoError(t, err)
	require.Len(t, got, 2)

	byID := map[uuid.UUID]domain.TripWithExpenses{}
	for _, twe := range got {
		byID[twe.Trip.ID] = twe
	}

	loaded := byID[trip.ID]
	require.Len(t, loaded.Expenses, 2)
	assert.True(t, loaded.Trip.Total.Equal(decimal.RequireFromString("165.50")),
		"trigger keeps total equal to the expense sum, got %s", loaded.Trip.Total)
	assert.True(t, loaded.Trip.Total.Equal(loaded.SumExpenses()))

	assert.Empty(t, byID[empty.ID].Expenses)
	assert.NotNil(t, byID[empty.ID].Expenses, "expense-less trips carry an empty slice, not nil")
}

func TestTripRepo_Update(t *testing.T) {
	r := newTestTripRepo(t)
	ctx := context.Background()

	ownerID := uuid.New()
	created, err := r.Create(ctx, tripFixture(ownerID))
	require.NoError(t, err)

	created.Destination = "Faro"
	created.Mode = domain.ModeBus
	created.Travelers = []string{"Alex"}

	got, err := r.Update(ctx, created)

	require.NoError(t, err)
	assert.Equal(t, "Faro", got.Destination)
	assert.Equal(t, domain.ModeBus, got.Mode)
	assert.Equal(t, []string{"Alex"}, got.Travelers)
	assert.Equal(t, created.Seq, got.Seq, "update never touches the sequence")
}

func TestTripRepo_UpdateStatus(t *testing.T) {
	r := newTestTripRepo(t)
	ctx := context.Background()

	ownerID := uuid.New()
	created, err := r.Create(ctx, tripFixture(ownerID))
	require.NoError(t, err)

	got, err := r.UpdateStatus(ctx, ownerID, created.ID, domain.StatusInProgress)

	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, got.Status)

	_, err = r.UpdateStatus(ctx, uuid.New(), created.ID, domain.StatusInProgress)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTripRepo_Delete_CascadesExpenses(t *testing.T) {
	pool := testutil.NewPool(t)
	tx := testutil.BeginTx(t, pool)
	r := repo.NewTripRepo(tx)
	expenses := repo.NewExpenseRepo(tx)
	ctx := context.Background()

	ownerID := uuid.New()
	trip, err := r.Create(ctx, tripFixture(ownerID))
	require.NoError(t, err)
	expenseID := testutil.InsertExpense(t, tx, trip.ID, "10.00")

	require.NoError(t, r.Delete(ctx, ownerID, trip.ID))

	_, err = r.GetByID(ctx, ownerID, trip.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = expenses.GetByID(ctx, ownerID, expenseID)
	assert.ErrorIs(t, err, domain.ErrNotFound, "expenses cascade with their trip")
}

func TestTripRepo_Delete_NotFound(t *testing.T) {
	r := newTestTripRepo(t)

	err := r.Delete(context.Background(), uuid.New(), uuid.New())

	assert.ErrorIs(t, err, domain.ErrNotFound)
}
