package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wayfare/backend/internal/domain"
	"github.com/wayfare/backend/internal/repo"
)

// ExportService assembles a full flat export of the owner's trips and
// expenses. It reads from the database rather than the in-memory view so an
// export never contains an unconfirmed optimistic record.
type ExportService struct {
	trips repo.TripRepo
}

// NewExportService constructs an ExportService backed by the trip repo.
func NewExportService(trips repo.TripRepo) *ExportService {
	return &ExportService{trips: trips}
}

// Export returns one ExportRow per expense across all of the owner's trips.
// Trips with no expenses contribute one row with empty expense fields.
// Always returns a non-nil slice.
func (s *ExportService) Export(ctx context.Context, ownerID uuid.UUID) ([]domain.ExportRow, error) {
	trips, err := s.trips.ListWithExpenses(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("service.ExportService.Export: %w", err)
	}

	rows := []domain.ExportRow{}
	for _, t := range trips {
		if len(t.Expenses) == 0 {
			rows = append(rows, tripRow(t.Trip))
			continue
		}
		for _, e := range t.Expenses {
			row := tripRow(t.Trip)
			row.ExpenseID = e.ID.String()
			row.Description = e.Description
			row.Amount = e.Amount.StringFixed(2)
			row.Category = string(e.Category)
			row.Date = e.Date.Format("2006-01-02")
			row.TimeOfDay = e.TimeOfDay
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// tripRow fills the trip columns shared by every row of one trip.
func tripRow(t domain.Trip) domain.ExportRow {
	return domain.ExportRow{
		TripID:      t.ID.String(),
		TripNumber:  t.Number,
		Origin:      t.Origin,
		Destination: t.Destination,
		Mode:        string(t.Mode),
		Status:      string(t.Status),
		DepartureAt: t.DepartureAt.UTC().Format(time.RFC3339),
		Travelers:   strings.Join(t.Travelers, "|"),
		TripTotal:   t.Total.StringFixed(2),
	}
}
