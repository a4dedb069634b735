package domain_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfare/backend/internal/domain"
)

func TestParseTravelMode(t *testing.T) {
	for _, valid := range []string{"car", "plane", "train", "bus", "walking", "other"} {
		mode, err := domain.ParseTravelMode(valid)
		require.NoError(t, err, valid)
		assert.Equal(t, domain.TravelMode(valid), mode)
	}

	_, err := domain.ParseTravelMode("zeppelin")
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.ErrorContains(t, err, "zeppelin", "error should name the offending value")

	_, err = domain.ParseTravelMode("")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestParseTripStatus(t *testing.T) {
	for _, valid := range []string{"planning", "in_progress", "completed"} {
		status, err := domain.ParseTripStatus(valid)
		require.NoError(t, err, valid)
		assert.Equal(t, domain.TripStatus(valid), status)
	}

	_, err := domain.ParseTripStatus("cancelled")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

// TestTripStatus_CanTransitionTo pins the forward-only lifecycle: each state
// may step to its immediate successor and nothing else.
func TestTripStatus_CanTransitionTo(t *testing.T) {
	cases := []struct {
		from, to domain.TripStatus
		want     bool
	}{
		{domain.StatusPlanning, domain.StatusInProgress, true},
		{domain.StatusPlanning, domain.StatusCompleted, false},
		{domain.StatusPlanning, domain.StatusPlanning, false},
		{domain.StatusInProgress, domain.StatusCompleted, true},
		{domain.StatusInProgress, domain.StatusPlanning, false},
		{domain.StatusInProgress, domain.StatusInProgress, false},
		{domain.StatusCompleted, domain.StatusPlanning, false},
		{domain.StatusCompleted, domain.StatusInProgress, false},
		{domain.StatusCompleted, domain.StatusCompleted, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.from.CanTransitionTo(tc.to),
			"%s -> %s", tc.from, tc.to)
	}
}

func TestFormatTripNumber(t *testing.T) {
	assert.Equal(t, "WF-001", domain.FormatTripNumber(1))
	assert.Equal(t, "WF-042", domain.FormatTripNumber(42))
	assert.Equal(t, "WF-1000", domain.FormatTripNumber(1000), "padding widens past three digits")
}

func TestTripWithExpenses_SumExpenses(t *testing.T) {
	twe := domain.TripWithExpenses{
		Expenses: []domain.Expense{
			{Amount: decimal.RequireFromString("120.50")},
			{Amount: decimal.RequireFromString("45.00")},
			{Amount: decimal.RequireFromString("0.00")},
		},
	}

	assert.True(t, twe.SumExpenses().Equal(decimal.RequireFromString("165.50")))
	assert.True(t, domain.TripWithExpenses{}.SumExpenses().IsZero())
}
