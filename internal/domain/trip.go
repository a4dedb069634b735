// Package domain contains the core data types for the Wayfare application.
// This package has no database or transport dependencies and is imported by
// every other internal package (repo, ledger, service, handler).
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TravelMode enumerates how a trip is travelled.
type TravelMode string

const (
	ModeCar     TravelMode = "car"
	ModePlane   TravelMode = "plane"
	ModeTrain   TravelMode = "train"
	ModeBus     TravelMode = "bus"
	ModeWalking TravelMode = "walking"
	ModeOther   TravelMode = "other"
)

// ParseTravelMode validates a travel mode string.
// Returns a wrapped ErrValidation naming the offending value on failure.
func ParseTravelMode(s string) (TravelMode, error) {
	switch TravelMode(s) {
	case ModeCar, ModePlane, ModeTrain, ModeBus, ModeWalking, ModeOther:
		return TravelMode(s), nil
	}
	return "", fmt.Errorf("%w: unknown travel mode %q", ErrValidation, s)
}

// TripStatus enumerates the lifecycle of a trip.
// Transitions are forward-only: planning → in_progress → completed.
type TripStatus string

const (
	StatusPlanning   TripStatus = "planning"
	StatusInProgress TripStatus = "in_progress"
	StatusCompleted  TripStatus = "completed"
)

// ParseTripStatus validates a trip status string.
func ParseTripStatus(s string) (TripStatus, error) {
	switch TripStatus(s) {
	case StatusPlanning, StatusInProgress, StatusCompleted:
		return TripStatus(s), nil
	}
	return "", fmt.Errorf("%w: unknown trip status %q", ErrValidation, s)
}

// CanTransitionTo reports whether moving from s to next is a legal forward
// step. Skipping a state (planning → completed) or moving backwards is not.
func (s TripStatus) CanTransitionTo(next TripStatus) bool {
	switch s {
	case StatusPlanning:
		return next == StatusInProgress
	case StatusInProgress:
		return next == StatusCompleted
	}
	return false
}

// TripNumberPrefix is prepended to the zero-padded per-owner ordinal to form
// the human-readable trip number, e.g. "WF-007".
const TripNumberPrefix = "WF-"

// FormatTripNumber renders a per-owner sequence ordinal as a trip number.
func FormatTripNumber(seq int) string {
	return fmt.Sprintf("%s%03d", TripNumberPrefix, seq)
}

// Trip represents a single planned or completed journey owned by one user.
// A trip is the top-level aggregate; expenses belong to a trip.
//
// Total is derived: the database recomputes it as a full sum over the trip's
// expenses on every expense mutation. It is never accepted from client input.
type Trip struct {
	ID          uuid.UUID       `json:"id"`
	OwnerID     uuid.UUID       `json:"-"`
	Seq         int             `json:"-"`
	Number      string          `json:"number"` // e.g. "WF-003", unique per owner
	Origin      string          `json:"origin"`
	Destination string          `json:"destination"`
	Mode        TravelMode      `json:"mode"`
	Status      TripStatus      `json:"status"`
	DepartureAt time.Time       `json:"departure_at"`
	Notes       string          `json:"notes,omitempty"`
	Travelers   []string        `json:"travelers"` // ordered, may be empty
	Total       decimal.Decimal `json:"total"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// TripWithExpenses bundles a trip and its full expense list, ordered by
// expense date ascending. This is the unit the refresh path reloads.
type TripWithExpenses struct {
	Trip     Trip      `json:"trip"`
	Expenses []Expense `json:"expenses"`
}

// SumExpenses returns the sum of the nested expense amounts. The ledger
// invariant says this always equals Trip.Total once mutations settle.
func (t TripWithExpenses) SumExpenses() decimal.Decimal {
	sum := decimal.Zero
	for _, e := range t.Expenses {
		sum = sum.Add(e.Amount)
	}
	return sum
}
