package handler

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	openapi_types "github.com/oapi-codegen/runtime/types"
	"github.com/shopspring/decimal"

	"github.com/wayfare/backend/internal/domain"
	"github.com/wayfare/backend/internal/ledger"
)

// ExpenseRequest is the JSON body for creating an expense.
// Amount accepts a JSON number or a quoted decimal string; either way it is
// parsed exactly, never through a float.
type ExpenseRequest struct {
	Description string             `json:"description"`
	Amount      decimal.Decimal    `json:"amount"`
	Category    string             `json:"category"`
	Date        openapi_types.Date `json:"date"`
	TimeOfDay   *string            `json:"time_of_day,omitempty"`
}

// ExpensePatchRequest is the JSON body for a partial update: only fields
// present in the body are touched.
type ExpensePatchRequest struct {
	Description *string             `json:"description,omitempty"`
	Amount      *decimal.Decimal    `json:"amount,omitempty"`
	Category    *string             `json:"category,omitempty"`
	Date        *openapi_types.Date `json:"date,omitempty"`
	TimeOfDay   *string             `json:"time_of_day,omitempty"`
}

// BatchRequest is the JSON body for the all-or-nothing batch add.
type BatchRequest struct {
	Expenses []ExpenseRequest `json:"expenses"`
}

// MutationResponse reports how a coordinated mutation settled: the
// authoritative record (absent for deletes), the owning trip, and the
// server-confirmed total.
type MutationResponse struct {
	Status   ledger.OutcomeStatus `json:"status"`
	Expense  *domain.Expense      `json:"expense,omitempty"`
	Expenses []domain.Expense     `json:"expenses,omitempty"`
	TripID   string               `json:"trip_id"`
	Total    decimal.Decimal      `json:"total"`
}

// CreateExpense handles POST /trips/{tripID}/expenses.
func (s *Server) CreateExpense(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(r)
	if !ok {
		unauthenticated(w)
		return
	}
	tripID, err := pathUUID(r, "tripID")
	if err != nil {
		requestError(w, "malformed trip id")
		return
	}

	var body ExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		requestError(w, errMalformedBody.Error())
		return
	}
	expense := requestToExpense(tripID, body)

	outcome, err := s.expenses.Add(r.Context(), ownerID, expense)
	if err != nil {
		writeError(w, err, "trip")
		return
	}
	writeJSON(w, http.StatusCreated, outcomeToResponse(outcome))
}

// CreateExpensesBatch handles POST /trips/{tripID}/expenses/batch.
// The batch persists entirely or not at all.
func (s *Server) CreateExpensesBatch(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(r)
	if !ok {
		unauthenticated(w)
		return
	}
	tripID, err := pathUUID(r, "tripID")
	if err != nil {
		requestError(w, "malformed trip id")
		return
	}

	var body BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		requestError(w, errMalformedBody.Error())
		return
	}
	expenses := make([]domain.Expense, len(body.Expenses))
	for i, e := range body.Expenses {
		expenses[i] = requestToExpense(tripID, e)
	}

	outcome, err := s.expenses.AddBatch(r.Context(), ownerID, tripID, expenses)
	if err != nil {
		writeError(w, err, "trip")
		return
	}
	writeJSON(w, http.StatusCreated, outcomeToResponse(outcome))
}

// ListExpenses handles GET /trips/{tripID}/expenses.
// Serves the in-memory view, so optimistic records are visible immediately.
func (s *Server) ListExpenses(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(r)
	if !ok {
		unauthenticated(w)
		return
	}
	tripID, err := pathUUID(r, "tripID")
	if err != nil {
		requestError(w, "malformed trip id")
		return
	}

	t, err := s.expenses.ListByTrip(r.Context(), ownerID, tripID)
	if err != nil {
		writeError(w, err, "trip")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// UpdateExpense handles PATCH /trips/{tripID}/expenses/{expenseID}.
func (s *Server) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(r)
	if !ok {
		unauthenticated(w)
		return
	}
	expenseID, err := pathUUID(r, "expenseID")
	if err != nil {
		requestError(w, "malformed expense id")
		return
	}

	var body ExpensePatchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		requestError(w, errMalformedBody.Error())
		return
	}

	outcome, err := s.expenses.Update(r.Context(), ownerID, expenseID, requestToPatch(body))
	if err != nil {
		writeError(w, err, "expense")
		return
	}
	writeJSON(w, http.StatusOK, outcomeToResponse(outcome))
}

// DeleteExpense handles DELETE /trips/{tripID}/expenses/{expenseID}.
func (s *Server) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(r)
	if !ok {
		unauthenticated(w)
		return
	}
	expenseID, err := pathUUID(r, "expenseID")
	if err != nil {
		requestError(w, "malformed expense id")
		return
	}

	outcome, err := s.expenses.Delete(r.Context(), ownerID, expenseID)
	if err != nil {
		writeError(w, err, "expense")
		return
	}
	writeJSON(w, http.StatusOK, outcomeToResponse(outcome))
}

// --- mapping helpers --------------------------------------------------------

func requestToExpense(tripID uuid.UUID, body ExpenseRequest) domain.Expense {
	e := domain.Expense{
		TripID:      tripID,
		Description: body.Description,
		Amount:      body.Amount,
		Category:    domain.ExpenseCategory(body.Category),
		Date:        body.Date.Time,
	}
	if body.TimeOfDay != nil {
		e.TimeOfDay = *body.TimeOfDay
	}
	return e
}

func requestToPatch(body ExpensePatchRequest) domain.ExpensePatch {
	p := domain.ExpensePatch{
		Description: body.Description,
		Amount:      body.Amount,
		TimeOfDay:   body.TimeOfDay,
	}
	if body.Category != nil {
		c := domain.ExpenseCategory(*body.Category)
		p.Category = &c
	}
	if body.Date != nil {
		d := body.Date.Time
		p.Date = &d
	}
	return p
}

func outcomeToResponse(o ledger.MutationOutcome) MutationResponse {
	resp := MutationResponse{
		Status: o.Status,
		TripID: o.TripID.String(),
		Total:  o.Total,
	}
	if o.Expense.ID != uuid.Nil {
		e := o.Expense
		resp.Expense = &e
	}
	if len(o.Expenses) > 0 {
		resp.Expenses = o.Expenses
	}
	return resp
}
