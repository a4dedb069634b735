package ledger

import (
	"sort"

	"github.com/google/uuid"

	"github.com/wayfare/backend/internal/domain"
)

// view is one owner's in-memory picture of their trips and expenses. It is a
// cache of the database, never durable truth: a record that fails to confirm
// is removed again, and the refresh path may replace the whole view at any
// settle point.
//
// All access goes through the Coordinator's mutex; view itself is not safe
// for concurrent use.
type view struct {
	trips   map[uuid.UUID]*domain.TripWithExpenses
	byExp   map[uuid.UUID]uuid.UUID // expense id → owning trip id
	pending map[uuid.UUID]struct{}  // placeholder expense ids awaiting confirmation
}

func newView() *view {
	return &view{
		trips:   make(map[uuid.UUID]*domain.TripWithExpenses),
		byExp:   make(map[uuid.UUID]uuid.UUID),
		pending: make(map[uuid.UUID]struct{}),
	}
}

// replaceAll swaps the entire view for a freshly loaded collection.
// Pending placeholders are dropped with the rest of the old state; a
// tentative record missing from a stale payload self-corrects on its own
// confirmation or the next reload.
func (v *view) replaceAll(trips []domain.TripWithExpenses) {
	v.trips = make(map[uuid.UUID]*domain.TripWithExpenses, len(trips))
	v.byExp = make(map[uuid.UUID]uuid.UUID)
	v.pending = make(map[uuid.UUID]struct{})
	for i := range trips {
		t := trips[i]
		if t.Expenses == nil {
			t.Expenses = []domain.Expense{}
		}
		v.trips[t.Trip.ID] = &t
		for _, e := range t.Expenses {
			v.byExp[e.ID] = t.Trip.ID
		}
	}
}

// putTrip inserts or overwrites a single trip (without touching expenses of
// other trips). Used to reconcile trip-level CRUD into the view.
func (v *view) putTrip(t domain.Trip) {
	if existing, ok := v.trips[t.ID]; ok {
		existing.Trip = t
		return
	}
	v.trips[t.ID] = &domain.TripWithExpenses{Trip: t, Expenses: []domain.Expense{}}
}

// dropTrip removes a trip and all of its expenses from the view.
func (v *view) dropTrip(tripID uuid.UUID) {
	t, ok := v.trips[tripID]
	if !ok {
		return
	}
	for _, e := range t.Expenses {
		delete(v.byExp, e.ID)
		delete(v.pending, e.ID)
	}
	delete(v.trips, tripID)
}

// appendExpense adds e to its trip's list and index. The caller has already
// adjusted the trip total.
func (v *view) appendExpense(e domain.Expense, isPending bool) {
	t, ok := v.trips[e.TripID]
	if !ok {
		return
	}
	t.Expenses = append(t.Expenses, e)
	v.byExp[e.ID] = e.TripID
	if isPending {
		v.pending[e.ID] = struct{}{}
	}
	sortExpenses(t.Expenses)
}

// removeExpense deletes the expense record from its trip's list and index,
// returning the removed record and whether it was present.
func (v *view) removeExpense(expenseID uuid.UUID) (domain.Expense, bool) {
	tripID, ok := v.byExp[expenseID]
	if !ok {
		return domain.Expense{}, false
	}
	t := v.trips[tripID]
	for i, e := range t.Expenses {
		if e.ID == expenseID {
			t.Expenses = append(t.Expenses[:i], t.Expenses[i+1:]...)
			delete(v.byExp, expenseID)
			delete(v.pending, expenseID)
			return e, true
		}
	}
	return domain.Expense{}, false
}

// getExpense returns the current in-view record for expenseID.
func (v *view) getExpense(expenseID uuid.UUID) (domain.Expense, bool) {
	tripID, ok := v.byExp[expenseID]
	if !ok {
		return domain.Expense{}, false
	}
	for _, e := range v.trips[tripID].Expenses {
		if e.ID == expenseID {
			return e, true
		}
	}
	return domain.Expense{}, false
}

// setExpense overwrites the in-view record with the same id, re-sorting the
// trip's list in case the date changed.
func (v *view) setExpense(e domain.Expense) {
	tripID, ok := v.byExp[e.ID]
	if !ok {
		return
	}
	t := v.trips[tripID]
	for i := range t.Expenses {
		if t.Expenses[i].ID == e.ID {
			t.Expenses[i] = e
			break
		}
	}
	sortExpenses(t.Expenses)
}

// swapExpense replaces a placeholder record with the authoritative one,
// moving the index entry to the real id.
func (v *view) swapExpense(placeholderID uuid.UUID, authoritative domain.Expense) {
	tripID, ok := v.byExp[placeholderID]
	if !ok {
		return
	}
	t := v.trips[tripID]
	for i := range t.Expenses {
		if t.Expenses[i].ID == placeholderID {
			t.Expenses[i] = authoritative
			break
		}
	}
	delete(v.byExp, placeholderID)
	delete(v.pending, placeholderID)
	v.byExp[authoritative.ID] = authoritative.TripID
	sortExpenses(t.Expenses)
}

// snapshot returns a deep copy of the view ordered by departure descending,
// so callers can read it without holding the coordinator lock.
func (v *view) snapshot() []domain.TripWithExpenses {
	out := make([]domain.TripWithExpenses, 0, len(v.trips))
	for _, t := range v.trips {
		cp := domain.TripWithExpenses{Trip: t.Trip}
		cp.Trip.Travelers = append([]string(nil), t.Trip.Travelers...)
		cp.Expenses = append([]domain.Expense{}, t.Expenses...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Trip, out[j].Trip
		if !a.DepartureAt.Equal(b.DepartureAt) {
			return a.DepartureAt.After(b.DepartureAt)
		}
		return a.Seq > b.Seq
	})
	return out
}

// sortExpenses keeps a trip's expense list in the display order the UI
// contract expects: date ascending, then creation time, then id for
// stability when both match (placeholders share a zero creation time).
func sortExpenses(expenses []domain.Expense) {
	sort.SliceStable(expenses, func(i, j int) bool {
		if !expenses[i].Date.Equal(expenses[j].Date) {
			return expenses[i].Date.Before(expenses[j].Date)
		}
		return expenses[i].CreatedAt.Before(expenses[j].CreatedAt)
	})
}
