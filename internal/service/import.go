package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wayfare/backend/internal/domain"
	"github.com/wayfare/backend/internal/repo"
)

// ImportService consumes parsed tabular rows and creates trips or expenses
// one row at a time. Imports are best-effort: a row that fails validation is
// reported and skipped, and the remaining rows still import. Expense creates
// go through the coordinator so each one maintains the ledger invariant
// exactly like an interactive add.
type ImportService struct {
	trips    repo.TripRepo
	tripSvc  *TripService
	expenses *ExpenseService
}

// NewImportService constructs an ImportService.
func NewImportService(trips repo.TripRepo, tripSvc *TripService, expenses *ExpenseService) *ImportService {
	return &ImportService{trips: trips, tripSvc: tripSvc, expenses: expenses}
}

// ImportTrips creates one trip per row. A row with no travel mode defaults
// to car rather than being rejected.
func (s *ImportService) ImportTrips(ctx context.Context, ownerID uuid.UUID, rows []domain.TripImportRow) domain.ImportResult {
	result := domain.ImportResult{Rejected: []domain.RowError{}}
	for _, row := range rows {
		trip, err := tripFromImportRow(ownerID, row)
		if err == nil {
			_, err = s.tripSvc.Create(ctx, trip)
		}
		if err != nil {
			result.Rejected = append(result.Rejected, domain.RowError{Line: row.Line, Message: rowMessage(err)})
			continue
		}
		result.Imported++
	}
	return result
}

// ImportExpenses creates one expense per row, resolving the target trip by
// its human-readable number.
func (s *ImportService) ImportExpenses(ctx context.Context, ownerID uuid.UUID, rows []domain.ImportRow) domain.ImportResult {
	result := domain.ImportResult{Rejected: []domain.RowError{}}
	for _, row := range rows {
		expense, err := s.expenseFromImportRow(ctx, ownerID, row)
		if err == nil {
			_, err = s.expenses.Add(ctx, ownerID, expense)
		}
		if err != nil {
			result.Rejected = append(result.Rejected, domain.RowError{Line: row.Line, Message: rowMessage(err)})
			continue
		}
		result.Imported++
	}
	return result
}

// tripFromImportRow converts and validates the raw strings of a trip row.
func tripFromImportRow(ownerID uuid.UUID, row domain.TripImportRow) (domain.Trip, error) {
	mode := domain.ModeCar // unset mode defaults, matching interactive prefill
	if strings.TrimSpace(row.Mode) != "" {
		var err error
		if mode, err = domain.ParseTravelMode(strings.TrimSpace(row.Mode)); err != nil {
			return domain.Trip{}, err
		}
	}

	departure, err := time.Parse(time.RFC3339, strings.TrimSpace(row.DepartureAt))
	if err != nil {
		return domain.Trip{}, fmt.Errorf("%w: departure_at must be RFC 3339", domain.ErrValidation)
	}

	travelers := []string{}
	for _, name := range strings.Split(row.Travelers, "|") {
		if n := strings.TrimSpace(name); n != "" {
			travelers = append(travelers, n)
		}
	}

	return domain.Trip{
		OwnerID:     ownerID,
		Origin:      strings.TrimSpace(row.Origin),
		Destination: strings.TrimSpace(row.Destination),
		Mode:        mode,
		DepartureAt: departure,
		Notes:       row.Notes,
		Travelers:   travelers,
	}, nil
}

// expenseFromImportRow converts and validates the raw strings of an expense
// row, resolving the trip number.
func (s *ImportService) expenseFromImportRow(ctx context.Context, ownerID uuid.UUID, row domain.ImportRow) (domain.Expense, error) {
	seq, err := parseTripNumber(row.TripNumber)
	if err != nil {
		return domain.Expense{}, err
	}
	trip, err := s.trips.GetBySeq(ctx, ownerID, seq)
	if err != nil {
		return domain.Expense{}, fmt.Errorf("trip %s: %w", row.TripNumber, err)
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(row.Amount))
	if err != nil {
		return domain.Expense{}, fmt.Errorf("%w: amount %q is not a number", domain.ErrValidation, row.Amount)
	}
	date, err := time.Parse("2006-01-02", strings.TrimSpace(row.Date))
	if err != nil {
		return domain.Expense{}, fmt.Errorf("%w: date must be YYYY-MM-DD", domain.ErrValidation)
	}

	return domain.Expense{
		TripID:      trip.ID,
		Description: strings.TrimSpace(row.Description),
		Amount:      amount,
		Category:    domain.ExpenseCategory(strings.TrimSpace(row.Category)),
		Date:        date,
		TimeOfDay:   strings.TrimSpace(row.TimeOfDay),
	}, nil
}

// parseTripNumber extracts the sequence ordinal from a "WF-007" style number.
// A bare ordinal ("7") is accepted too.
func parseTripNumber(s string) (int, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, domain.TripNumberPrefix)
	seq, err := strconv.Atoi(s)
	if err != nil || seq < 1 {
		return 0, fmt.Errorf("%w: malformed trip number %q", domain.ErrValidation, s)
	}
	return seq, nil
}

// rowMessage strips service prefixes so import reports read like validation
// messages, not stack traces.
func rowMessage(err error) string {
	msg := err.Error()
	for _, prefix := range []string{
		"service.TripService.Create: ",
		"service.ExpenseService.Add: ",
	} {
		msg = strings.TrimPrefix(msg, prefix)
	}
	return msg
}
