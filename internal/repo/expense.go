package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/wayfare/backend/internal/domain"
)

// expenseColumns is the shared SELECT column list for expense queries.
// amount is cast to text and parsed into a decimal on scan.
const expenseColumns = `id, trip_id, description, amount::text, category,
	expense_date, time_of_day, created_at, updated_at`

// ExpenseRepo defines the plain, non-atomic persistence operations for
// Expenses. These are the primitives of the manual fallback path: a mutation
// here relies on the database trigger for total recomputation, and the new
// total must be read back separately with TripTotal.
type ExpenseRepo interface {
	// Insert persists a new expense under the given owner's trip.
	// Returns domain.ErrNotFound if the trip does not belong to the owner.
	Insert(ctx context.Context, ownerID uuid.UUID, e domain.Expense) (domain.Expense, error)

	// GetByID retrieves a single expense owned by ownerID.
	GetByID(ctx context.Context, ownerID, expenseID uuid.UUID) (domain.Expense, error)

	// ListByTrip returns all expenses for the owner's trip ordered by date
	// ascending, then creation time.
	ListByTrip(ctx context.Context, ownerID, tripID uuid.UUID) ([]domain.Expense, error)

	// Update applies the non-nil fields of patch to an expense.
	// Returns domain.ErrNotFound if the expense does not belong to the owner.
	Update(ctx context.Context, ownerID, expenseID uuid.UUID, patch domain.ExpensePatch) (domain.Expense, error)

	// Delete removes an expense and reports the trip it belonged to.
	// Returns domain.ErrNotFound if the expense does not belong to the owner.
	Delete(ctx context.Context, ownerID, expenseID uuid.UUID) (tripID uuid.UUID, err error)

	// TripTotal reads the current persisted total of the owner's trip.
	// The manual fallback path calls this after a plain write to learn the
	// trigger-recomputed total in a second round trip.
	TripTotal(ctx context.Context, ownerID, tripID uuid.UUID) (decimal.Decimal, error)
}

// pgExpenseRepo is the Postgres implementation of ExpenseRepo.
type pgExpenseRepo struct {
	db db
}

// NewExpenseRepo constructs an ExpenseRepo backed by the provided db connection.
// In production pass *pgxpool.Pool; in tests pass a pgx.Tx for rollback isolation.
func NewExpenseRepo(db db) ExpenseRepo {
	return &pgExpenseRepo{db: db}
}

func (r *pgExpenseRepo) Insert(ctx context.Context, ownerID uuid.UUID, e domain.Expense) (domain.Expense, error) {
	// The trip subquery scopes the insert to the owner: inserting into a
	// foreign or missing trip affects zero rows and scans ErrNoRows.
	const q = `
		INSERT INTO expenses (trip_id, owner_id, description, amount, category, expense_date, time_of_day)
		SELECT t.id, t.owner_id, @description, CAST(@amount AS numeric), @category, @expense_date, @time_of_day
		FROM trips t
		WHERE t.id = @trip_id AND t.owner_id = @owner_id
		RETURNING ` + expenseColumns

	args := pgx.NamedArgs{
		"trip_id":      e.TripID,
		"owner_id":     ownerID,
		"description":  e.Description,
		"amount":       e.Amount.String(),
		"category":     string(e.Category),
		"expense_date": e.Date,
		"time_of_day":  e.TimeOfDay,
	}

	row := r.db.QueryRow(ctx, q, args)
	result, err := scanExpense(row)
	if err != nil {
		return domain.Expense{}, fmt.Errorf("repo.ExpenseRepo.Insert: %w", err)
	}
	return result, nil
}

func (r *pgExpenseRepo) GetByID(ctx context.Context, ownerID, expenseID uuid.UUID) (domain.Expense, error) {
	const q = `
		SELECT ` + expenseColumns + `
		FROM expenses
		WHERE id = @id AND owner_id = @owner_id`

	row := r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": expenseID, "owner_id": ownerID})
	result, err := scanExpense(row)
	if err != nil {
		return domain.Expense{}, fmt.Errorf("repo.ExpenseRepo.GetByID: %w", err)
	}
	return result, nil
}

func (r *pgExpenseRepo) ListByTrip(ctx context.Context, ownerID, tripID uuid.UUID) ([]domain.Expense, error) {
	const q = `
		SELECT ` + expenseColumns + `
		FROM expenses
		WHERE trip_id = @trip_id AND owner_id = @owner_id
		ORDER BY expense_date, created_at`

	rows, err := r.db.Query(ctx, q, pgx.NamedArgs{"trip_id": tripID, "owner_id": ownerID})
	if err != nil {
		return nil, fmt.Errorf("repo.ExpenseRepo.ListByTrip: %w", err)
	}
	defer rows.Close()

	var expenses []domain.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("repo.ExpenseRepo.ListByTrip: scan: %w", err)
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo.ExpenseRepo.ListByTrip: rows: %w", err)
	}

	return expenses, nil
}

func (r *pgExpenseRepo) Update(ctx context.Context, ownerID, expenseID uuid.UUID, patch domain.ExpensePatch) (domain.Expense, error) {
	// NULL args mean "leave unchanged", mirroring the atomic procedure.
	const q = `
		UPDATE expenses
		SET description  = COALESCE(@description, description),
		    amount       = COALESCE(CAST(@amount AS numeric), amount),
		    category     = COALESCE(@category, category),
		    expense_date = COALESCE(@expense_date, expense_date),
		    time_of_day  = COALESCE(@time_of_day, time_of_day),
		    updated_at   = now()
		WHERE id = @id AND owner_id = @owner_id
		RETURNING ` + expenseColumns

	args := pgx.NamedArgs{
		"id":           expenseID,
		"owner_id":     ownerID,
		"description":  patch.Description,
		"amount":       amountArg(patch.Amount),
		"category":     categoryArg(patch.Category),
		"expense_date": patch.Date,
		"time_of_day":  patch.TimeOfDay,
	}

	row := r.db.QueryRow(ctx, q, args)
	result, err := scanExpense(row)
	if err != nil {
		return domain.Expense{}, fmt.Errorf("repo.ExpenseRepo.Update: %w", err)
	}
	return result, nil
}

func (r *pgExpenseRepo) Delete(ctx context.Context, ownerID, expenseID uuid.UUID) (uuid.UUID, error) {
	const q = `
		DELETE FROM expenses
		WHERE id = @id AND owner_id = @owner_id
		RETURNING trip_id`

	var tripID pgtype.UUID
	err := r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": expenseID, "owner_id": ownerID}).Scan(&tripID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("repo.ExpenseRepo.Delete: %w", domain.ErrNotFound)
		}
		return uuid.Nil, fmt.Errorf("repo.ExpenseRepo.Delete: %w", err)
	}
	return uuid.UUID(tripID.Bytes), nil
}

func (r *pgExpenseRepo) TripTotal(ctx context.Context, ownerID, tripID uuid.UUID) (decimal.Decimal, error) {
	const q = `SELECT total::text FROM trips WHERE id = @id AND owner_id = @owner_id`

	var raw string
	err := r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": tripID, "owner_id": ownerID}).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, fmt.Errorf("repo.ExpenseRepo.TripTotal: %w", domain.ErrNotFound)
		}
		return decimal.Zero, fmt.Errorf("repo.ExpenseRepo.TripTotal: %w", err)
	}

	total, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("repo.ExpenseRepo.TripTotal: parse %q: %w", raw, err)
	}
	return total, nil
}

// amountArg converts an optional decimal into a nullable SQL text argument.
func amountArg(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

// categoryArg converts an optional category into a nullable SQL text argument.
func categoryArg(c *domain.ExpenseCategory) *string {
	if c == nil {
		return nil
	}
	s := string(*c)
	return &s
}

// scanExpense maps a single database row into a domain.Expense.
func scanExpense(s scanner) (domain.Expense, error) {
	var (
		e         domain.Expense
		id        pgtype.UUID
		tripID    pgtype.UUID
		amountRaw string
		category  string
		dateRaw   pgtype.Date
	)

	err := s.Scan(&id, &tripID, &e.Description, &amountRaw, &category,
		&dateRaw, &e.TimeOfDay, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Expense{}, domain.ErrNotFound
		}
		return domain.Expense{}, err
	}

	e.ID = uuid.UUID(id.Bytes)
	e.TripID = uuid.UUID(tripID.Bytes)
	e.Category = domain.ExpenseCategory(category)
	e.Date = dateRaw.Time
	e.Amount, err = decimal.NewFromString(amountRaw)
	if err != nil {
		return domain.Expense{}, fmt.Errorf("parse amount %q: %w", amountRaw, err)
	}

	return e, nil
}
