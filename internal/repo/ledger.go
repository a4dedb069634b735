package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/wayfare/backend/internal/domain"
)

// Postgres error codes the procedure repo translates into domain errors.
const (
	pgNoDataFound    = "P0002" // RAISE no_data_found → ownership/existence miss
	pgCheckViolation = "23514" // table CHECK constraint → invalid input
)

// ProcRepo calls the server-side atomic mutation procedures. Each call
// bundles the expense mutation, the trigger-driven total recomputation, and
// the read-back of the new state into a single round trip.
//
// Ownership is re-validated inside every procedure; a miss surfaces as
// domain.ErrNotFound exactly like a missing row.
type ProcRepo interface {
	// Probe reports whether the atomic procedures are installed in the
	// connected database. The ledger uses it at startup to choose between
	// the atomic-preferred and manual-secondary mutation strategies.
	Probe(ctx context.Context) (bool, error)

	// AddExpense inserts an expense and returns the persisted record plus
	// the trip's new total.
	AddExpense(ctx context.Context, ownerID uuid.UUID, e domain.Expense) (domain.Expense, decimal.Decimal, error)

	// UpdateExpense applies the non-nil fields of patch and returns the
	// updated record plus the owning trip's new total.
	UpdateExpense(ctx context.Context, ownerID, expenseID uuid.UUID, patch domain.ExpensePatch) (domain.Expense, decimal.Decimal, error)

	// DeleteExpense removes an expense and returns the owning trip's id and
	// new total.
	DeleteExpense(ctx context.Context, ownerID, expenseID uuid.UUID) (uuid.UUID, decimal.Decimal, error)

	// AddExpensesBatch inserts all expenses in one transaction with a single
	// settling recomputation. Any invalid row aborts the whole batch: zero
	// rows persist.
	AddExpensesBatch(ctx context.Context, ownerID, tripID uuid.UUID, expenses []domain.Expense) ([]domain.Expense, decimal.Decimal, error)
}

// pgProcRepo is the Postgres implementation of ProcRepo.
type pgProcRepo struct {
	db db
}

// NewProcRepo constructs a ProcRepo backed by the provided db connection.
func NewProcRepo(db db) ProcRepo {
	return &pgProcRepo{db: db}
}

func (r *pgProcRepo) Probe(ctx context.Context) (bool, error) {
	const q = `SELECT to_regprocedure('add_expense_atomic(uuid, uuid, text, numeric, text, date, text)') IS NOT NULL`

	var installed bool
	if err := r.db.QueryRow(ctx, q).Scan(&installed); err != nil {
		return false, fmt.Errorf("repo.ProcRepo.Probe: %w", err)
	}
	return installed, nil
}

func (r *pgProcRepo) AddExpense(ctx context.Context, ownerID uuid.UUID, e domain.Expense) (domain.Expense, decimal.Decimal, error) {
	const q = `
		SELECT expense_id, trip_id, description, amount::text, category,
		       expense_date, time_of_day, created_at, updated_at, new_total::text
		FROM add_expense_atomic(@owner_id, @trip_id, @description, CAST(@amount AS numeric), @category, @expense_date, @time_of_day)`

	args := pgx.NamedArgs{
		"owner_id":     ownerID,
		"trip_id":      e.TripID,
		"description":  e.Description,
		"amount":       e.Amount.String(),
		"category":     string(e.Category),
		"expense_date": e.Date,
		"time_of_day":  e.TimeOfDay,
	}

	expense, total, err := scanExpenseWithTotal(r.db.QueryRow(ctx, q, args))
	if err != nil {
		return domain.Expense{}, decimal.Zero, fmt.Errorf("repo.ProcRepo.AddExpense: %w", translateProcErr(err))
	}
	return expense, total, nil
}

func (r *pgProcRepo) UpdateExpense(ctx context.Context, ownerID, expenseID uuid.UUID, patch domain.ExpensePatch) (domain.Expense, decimal.Decimal, error) {
	const q = `
		SELECT expense_id, trip_id, description, amount::text, category,
		       expense_date, time_of_day, created_at, updated_at, new_total::text
		FROM update_expense_atomic(@owner_id, @expense_id, @description, CAST(@amount AS numeric), @category, @expense_date, @time_of_day)`

	args := pgx.NamedArgs{
		"owner_id":     ownerID,
		"expense_id":   expenseID,
		"description":  patch.Description,
		"amount":       amountArg(patch.Amount),
		"category":     categoryArg(patch.Category),
		"expense_date": patch.Date,
		"time_of_day":  patch.TimeOfDay,
	}

	expense, total, err := scanExpenseWithTotal(r.db.QueryRow(ctx, q, args))
	if err != nil {
		return domain.Expense{}, decimal.Zero, fmt.Errorf("repo.ProcRepo.UpdateExpense: %w", translateProcErr(err))
	}
	return expense, total, nil
}

func (r *pgProcRepo) DeleteExpense(ctx context.Context, ownerID, expenseID uuid.UUID) (uuid.UUID, decimal.Decimal, error) {
	const q = `
		SELECT trip_id, new_total::text
		FROM delete_expense_atomic(@owner_id, @expense_id)`

	var (
		tripID   pgtype.UUID
		totalRaw string
	)
	err := r.db.QueryRow(ctx, q, pgx.NamedArgs{"owner_id": ownerID, "expense_id": expenseID}).Scan(&tripID, &totalRaw)
	if err != nil {
		return uuid.Nil, decimal.Zero, fmt.Errorf("repo.ProcRepo.DeleteExpense: %w", translateProcErr(err))
	}

	total, err := decimal.NewFromString(totalRaw)
	if err != nil {
		return uuid.Nil, decimal.Zero, fmt.Errorf("repo.ProcRepo.DeleteExpense: parse total %q: %w", totalRaw, err)
	}
	return uuid.UUID(tripID.Bytes), total, nil
}

func (r *pgProcRepo) AddExpensesBatch(ctx context.Context, ownerID, tripID uuid.UUID, expenses []domain.Expense) ([]domain.Expense, decimal.Decimal, error) {
	type jsonRow struct {
		Description string `json:"description"`
		Amount      string `json:"amount"`
		Category    string `json:"category"`
		ExpenseDate string `json:"expense_date"`
		TimeOfDay   string `json:"time_of_day"`
	}
	rows := make([]jsonRow, len(expenses))
	for i, e := range expenses {
		rows[i] = jsonRow{
			Description: e.Description,
			Amount:      e.Amount.String(),
			Category:    string(e.Category),
			ExpenseDate: e.Date.Format("2006-01-02"),
			TimeOfDay:   e.TimeOfDay,
		}
	}
	payload, err := json.Marshal(rows)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("repo.ProcRepo.AddExpensesBatch: marshal: %w", err)
	}

	const q = `
		SELECT expense_id, trip_id, description, amount::text, category,
		       expense_date, time_of_day, created_at, updated_at, new_total::text
		FROM add_expenses_batch(@owner_id, @trip_id, @rows)`

	prows, err := r.db.Query(ctx, q, pgx.NamedArgs{
		"owner_id": ownerID,
		"trip_id":  tripID,
		"rows":     payload,
	})
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("repo.ProcRepo.AddExpensesBatch: %w", translateProcErr(err))
	}
	defer prows.Close()

	var (
		created []domain.Expense
		total   decimal.Decimal
	)
	for prows.Next() {
		e, t, err := scanExpenseWithTotal(prows)
		if err != nil {
			return nil, decimal.Zero, fmt.Errorf("repo.ProcRepo.AddExpensesBatch: scan: %w", translateProcErr(err))
		}
		created = append(created, e)
		total = t
	}
	if err := prows.Err(); err != nil {
		return nil, decimal.Zero, fmt.Errorf("repo.ProcRepo.AddExpensesBatch: rows: %w", translateProcErr(err))
	}

	return created, total, nil
}

// scanExpenseWithTotal scans an expense row that carries the recomputed trip
// total as its trailing column.
func scanExpenseWithTotal(s scanner) (domain.Expense, decimal.Decimal, error) {
	var (
		e         domain.Expense
		id        pgtype.UUID
		tripID    pgtype.UUID
		amountRaw string
		category  string
		dateRaw   pgtype.Date
		totalRaw  string
	)

	err := s.Scan(&id, &tripID, &e.Description, &amountRaw, &category,
		&dateRaw, &e.TimeOfDay, &e.CreatedAt, &e.UpdatedAt, &totalRaw)
	if err != nil {
		return domain.Expense{}, decimal.Zero, err
	}

	e.ID = uuid.UUID(id.Bytes)
	e.TripID = uuid.UUID(tripID.Bytes)
	e.Category = domain.ExpenseCategory(category)
	e.Date = dateRaw.Time
	if e.Amount, err = decimal.NewFromString(amountRaw); err != nil {
		return domain.Expense{}, decimal.Zero, fmt.Errorf("parse amount %q: %w", amountRaw, err)
	}
	total, err := decimal.NewFromString(totalRaw)
	if err != nil {
		return domain.Expense{}, decimal.Zero, fmt.Errorf("parse total %q: %w", totalRaw, err)
	}

	return e, total, nil
}

// translateProcErr maps Postgres procedure errors onto domain sentinels.
// no_data_found raised by a procedure means the target row does not exist or
// belongs to someone else; check violations mean invalid input rejected
// before persisting.
func translateProcErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgNoDataFound:
			return domain.ErrNotFound
		case pgCheckViolation:
			return fmt.Errorf("%w: %s", domain.ErrValidation, pgErr.Message)
		}
	}
	return err
}
