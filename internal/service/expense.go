package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wayfare/backend/internal/domain"
	"github.com/wayfare/backend/internal/ledger"
)

// ExpenseCoordinator is the slice of the ledger coordinator the expense
// service depends on. Defining the interface here (in the consumer package)
// lets service tests inject a double without a database.
type ExpenseCoordinator interface {
	AddExpense(ctx context.Context, ownerID uuid.UUID, e domain.Expense) (ledger.MutationOutcome, error)
	UpdateExpense(ctx context.Context, ownerID, expenseID uuid.UUID, patch domain.ExpensePatch) (ledger.MutationOutcome, error)
	DeleteExpense(ctx context.Context, ownerID, expenseID uuid.UUID) (ledger.MutationOutcome, error)
	AddExpensesBatch(ctx context.Context, ownerID, tripID uuid.UUID, expenses []domain.Expense) (ledger.MutationOutcome, error)
	Snapshot(ownerID uuid.UUID) []domain.TripWithExpenses
	TripSnapshot(ownerID, tripID uuid.UUID) (domain.TripWithExpenses, bool)
}

// ExpenseService validates expense input and delegates every mutation to the
// optimistic coordinator. Ownership checks happen server-side inside the
// mutation itself; the service never trusts the client's belief that it owns
// the target.
type ExpenseService struct {
	coord ExpenseCoordinator
}

// NewExpenseService constructs an ExpenseService.
func NewExpenseService(coord ExpenseCoordinator) *ExpenseService {
	return &ExpenseService{coord: coord}
}

// Add validates the expense and runs it through the coordinator.
// Returns domain.ErrValidation before anything is mutated if input violates
// business rules.
func (s *ExpenseService) Add(ctx context.Context, ownerID uuid.UUID, e domain.Expense) (ledger.MutationOutcome, error) {
	if err := validateExpense(e); err != nil {
		return ledger.MutationOutcome{}, err
	}
	outcome, err := s.coord.AddExpense(ctx, ownerID, e)
	if err != nil {
		return outcome, fmt.Errorf("service.ExpenseService.Add: %w", err)
	}
	return outcome, nil
}

// Update validates the patch and runs it through the coordinator.
// An empty patch is rejected; unspecified fields are left unchanged.
func (s *ExpenseService) Update(ctx context.Context, ownerID, expenseID uuid.UUID, patch domain.ExpensePatch) (ledger.MutationOutcome, error) {
	if err := validatePatch(patch); err != nil {
		return ledger.MutationOutcome{}, err
	}
	outcome, err := s.coord.UpdateExpense(ctx, ownerID, expenseID, patch)
	if err != nil {
		return outcome, fmt.Errorf("service.ExpenseService.Update: %w", err)
	}
	return outcome, nil
}

// Delete runs the removal through the coordinator.
func (s *ExpenseService) Delete(ctx context.Context, ownerID, expenseID uuid.UUID) (ledger.MutationOutcome, error) {
	outcome, err := s.coord.DeleteExpense(ctx, ownerID, expenseID)
	if err != nil {
		return outcome, fmt.Errorf("service.ExpenseService.Delete: %w", err)
	}
	return outcome, nil
}

// AddBatch validates every row up front, then runs the all-or-nothing batch
// through the coordinator. A single invalid row rejects the whole batch
// before any mutation is issued.
func (s *ExpenseService) AddBatch(ctx context.Context, ownerID, tripID uuid.UUID, expenses []domain.Expense) (ledger.MutationOutcome, error) {
	if len(expenses) == 0 {
		return ledger.MutationOutcome{}, fmt.Errorf("%w: batch must contain at least one expense", domain.ErrValidation)
	}
	for i, e := range expenses {
		if err := validateExpense(e); err != nil {
			return ledger.MutationOutcome{}, fmt.Errorf("row %d: %w", i+1, err)
		}
	}
	outcome, err := s.coord.AddExpensesBatch(ctx, ownerID, tripID, expenses)
	if err != nil {
		return outcome, fmt.Errorf("service.ExpenseService.AddBatch: %w", err)
	}
	return outcome, nil
}

// ListByTrip returns the current in-view expense list and trip state for
// display: optimistic changes are visible here before they confirm.
func (s *ExpenseService) ListByTrip(ctx context.Context, ownerID, tripID uuid.UUID) (domain.TripWithExpenses, error) {
	t, ok := s.coord.TripSnapshot(ownerID, tripID)
	if !ok {
		return domain.TripWithExpenses{}, fmt.Errorf("service.ExpenseService.ListByTrip: %w", domain.ErrNotFound)
	}
	return t, nil
}

// validateExpense enforces business rules on a new expense.
func validateExpense(e domain.Expense) error {
	if e.TripID == uuid.Nil {
		return fmt.Errorf("%w: trip id is required", domain.ErrValidation)
	}
	if strings.TrimSpace(e.Description) == "" {
		return fmt.Errorf("%w: description is required", domain.ErrValidation)
	}
	if e.Amount.IsNegative() {
		return fmt.Errorf("%w: amount must not be negative", domain.ErrValidation)
	}
	if _, err := domain.ParseExpenseCategory(string(e.Category)); err != nil {
		return err
	}
	if e.Date.IsZero() {
		return fmt.Errorf("%w: date is required", domain.ErrValidation)
	}
	if err := validateTimeOfDay(e.TimeOfDay); err != nil {
		return err
	}
	return nil
}

// validatePatch enforces business rules on a partial update.
func validatePatch(p domain.ExpensePatch) error {
	if p.IsZero() {
		return fmt.Errorf("%w: update must change at least one field", domain.ErrValidation)
	}
	if p.Description != nil && strings.TrimSpace(*p.Description) == "" {
		return fmt.Errorf("%w: description must not be empty", domain.ErrValidation)
	}
	if p.Amount != nil && p.Amount.IsNegative() {
		return fmt.Errorf("%w: amount must not be negative", domain.ErrValidation)
	}
	if p.Category != nil {
		if _, err := domain.ParseExpenseCategory(string(*p.Category)); err != nil {
			return err
		}
	}
	if p.Date != nil && p.Date.IsZero() {
		return fmt.Errorf("%w: date must not be empty", domain.ErrValidation)
	}
	if p.TimeOfDay != nil {
		if err := validateTimeOfDay(*p.TimeOfDay); err != nil {
			return err
		}
	}
	return nil
}

// validateTimeOfDay accepts an empty string (no time recorded) or "HH:MM".
func validateTimeOfDay(s string) error {
	if s == "" {
		return nil
	}
	if _, err := time.Parse("15:04", s); err != nil {
		return fmt.Errorf("%w: time_of_day must be HH:MM", domain.ErrValidation)
	}
	return nil
}
