// Package handler implements the HTTP handlers for the Wayfare API.
// All handlers are methods on Server. Methods are split into domain-specific
// files (health.go, trip.go, expense.go, ...) but all share the same Server
// struct so they can access its dependencies.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wayfare/backend/internal/domain"
	"github.com/wayfare/backend/internal/ledger"
	"github.com/wayfare/backend/internal/middleware"
)

// TripServicer defines the business operations the trip handlers depend on.
// Defining the interface here (in the consumer package) follows the Go
// convention: "accept interfaces, return concrete types". It lets handler
// tests inject a mock without touching the database or service layer.
type TripServicer interface {
	Create(ctx context.Context, trip domain.Trip) (domain.Trip, error)
	GetByID(ctx context.Context, ownerID, tripID uuid.UUID) (domain.Trip, error)
	ListPaged(ctx context.Context, ownerID uuid.UUID, p domain.PaginationParams) ([]domain.Trip, int64, error)
	Update(ctx context.Context, trip domain.Trip) (domain.Trip, error)
	Start(ctx context.Context, ownerID, tripID uuid.UUID) (domain.Trip, error)
	Complete(ctx context.Context, ownerID, tripID uuid.UUID) (domain.Trip, error)
	Delete(ctx context.Context, ownerID, tripID uuid.UUID) error
}

// ExpenseServicer defines the ledger-backed operations the expense handlers
// depend on.
type ExpenseServicer interface {
	Add(ctx context.Context, ownerID uuid.UUID, e domain.Expense) (ledger.MutationOutcome, error)
	Update(ctx context.Context, ownerID, expenseID uuid.UUID, patch domain.ExpensePatch) (ledger.MutationOutcome, error)
	Delete(ctx context.Context, ownerID, expenseID uuid.UUID) (ledger.MutationOutcome, error)
	AddBatch(ctx context.Context, ownerID, tripID uuid.UUID, expenses []domain.Expense) (ledger.MutationOutcome, error)
	ListByTrip(ctx context.Context, ownerID, tripID uuid.UUID) (domain.TripWithExpenses, error)
}

// ExportServicer assembles the flat export rows.
type ExportServicer interface {
	Export(ctx context.Context, ownerID uuid.UUID) ([]domain.ExportRow, error)
}

// ImportServicer consumes parsed tabular rows, best-effort per row.
type ImportServicer interface {
	ImportTrips(ctx context.Context, ownerID uuid.UUID, rows []domain.TripImportRow) domain.ImportResult
	ImportExpenses(ctx context.Context, ownerID uuid.UUID, rows []domain.ImportRow) domain.ImportResult
}

// RefreshServicer triggers a synchronous full reload for one owner.
type RefreshServicer interface {
	RefreshNow(ctx context.Context, ownerID uuid.UUID) error
}

// Server holds the handlers' dependencies. Methods live in domain-specific
// files but all operate on this struct.
type Server struct {
	trips     TripServicer
	expenses  ExpenseServicer
	export    ExportServicer
	importer  ImportServicer
	refresher RefreshServicer
}

// NewServer constructs the Server with all its dependencies.
// Tests pass nil for services a given test does not exercise.
func NewServer(trips TripServicer, expenses ExpenseServicer, export ExportServicer, importer ImportServicer, refresher RefreshServicer) *Server {
	return &Server{trips: trips, expenses: expenses, export: export, importer: importer, refresher: refresher}
}

// Routes returns the chi router for every authenticated API endpoint.
// The health check is registered separately in main so it stays outside the
// auth middleware.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/trips", func(r chi.Router) {
		r.Post("/", s.CreateTrip)
		r.Get("/", s.ListTrips)
		r.Route("/{tripID}", func(r chi.Router) {
			r.Get("/", s.GetTrip)
			r.Put("/", s.UpdateTrip)
			r.Delete("/", s.DeleteTrip)
			r.Post("/start", s.StartTrip)
			r.Post("/complete", s.CompleteTrip)

			r.Route("/expenses", func(r chi.Router) {
				r.Get("/", s.ListExpenses)
				r.Post("/", s.CreateExpense)
				r.Post("/batch", s.CreateExpensesBatch)
				r.Patch("/{expenseID}", s.UpdateExpense)
				r.Delete("/{expenseID}", s.DeleteExpense)
			})
		})
	})

	r.Get("/export", s.GetExport)
	r.Post("/import/trips", s.ImportTrips)
	r.Post("/import/expenses", s.ImportExpenses)
	r.Post("/refresh", s.Refresh)

	return r
}

// owner returns the authenticated owner id set by the auth middleware.
// The middleware rejects unauthenticated requests, so a miss here means the
// route was mounted without it; treat as unauthenticated rather than panic.
func owner(r *http.Request) (uuid.UUID, bool) {
	return middleware.OwnerID(r.Context())
}

// unauthenticated writes the 401 body for a request with no owner identity.
func unauthenticated(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, ErrorResponse{
		Error: ErrorDetail{Code: "unauthenticated", Message: "missing or malformed user identity"},
	})
}

// pathUUID parses a chi URL parameter as a UUID.
func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, name))
}
