package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ExpenseCategory enumerates the spending categories.
type ExpenseCategory string

const (
	CategoryTransport     ExpenseCategory = "transport"
	CategoryFood          ExpenseCategory = "food"
	CategoryAccommodation ExpenseCategory = "accommodation"
	CategoryEntertainment ExpenseCategory = "entertainment"
	CategoryOther         ExpenseCategory = "other"
)

// ParseExpenseCategory validates an expense category string.
func ParseExpenseCategory(s string) (ExpenseCategory, error) {
	switch ExpenseCategory(s) {
	case CategoryTransport, CategoryFood, CategoryAccommodation,
		CategoryEntertainment, CategoryOther:
		return ExpenseCategory(s), nil
	}
	return "", fmt.Errorf("%w: unknown expense category %q", ErrValidation, s)
}

// Expense represents a single dated spending record attached to exactly one
// trip. TripID is immutable after creation; deleting the trip cascades.
// Amount is currency-agnostic and must be non-negative.
type Expense struct {
	ID          uuid.UUID       `json:"id"`
	TripID      uuid.UUID       `json:"trip_id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Category    ExpenseCategory `json:"category"`
	Date        time.Time       `json:"date"`                  // date-only, midnight UTC
	TimeOfDay   string          `json:"time_of_day,omitempty"` // "15:04", optional
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ExpensePatch is a structured partial update: only non-nil fields are
// applied. TripID is deliberately absent: an expense cannot move between
// trips.
type ExpensePatch struct {
	Description *string
	Amount      *decimal.Decimal
	Category    *ExpenseCategory
	Date        *time.Time
	TimeOfDay   *string
}

// IsZero reports whether the patch touches no fields at all.
func (p ExpensePatch) IsZero() bool {
	return p.Description == nil && p.Amount == nil && p.Category == nil &&
		p.Date == nil && p.TimeOfDay == nil
}

// ApplyTo returns a copy of e with the patch's present fields overwritten.
// The coordinator uses this to compute the optimistic post-update record.
func (p ExpensePatch) ApplyTo(e Expense) Expense {
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.Amount != nil {
		e.Amount = *p.Amount
	}
	if p.Category != nil {
		e.Category = *p.Category
	}
	if p.Date != nil {
		e.Date = *p.Date
	}
	if p.TimeOfDay != nil {
		e.TimeOfDay = *p.TimeOfDay
	}
	return e
}
