// Package repo contains all database access logic for the Wayfare API.
// Each resource has its own file with an interface and a Postgres
// implementation. No business logic lives here, only SQL and type mapping.
//
// Every read and write is scoped by owner id. A row that exists but belongs
// to a different owner is indistinguishable from a missing row: both come
// back as domain.ErrNotFound.
package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/wayfare/backend/internal/domain"
)

// db is the minimal interface satisfied by *pgxpool.Pool, pgx.Conn, and pgx.Tx.
// Accepting this interface instead of *pgxpool.Pool directly allows integration
// tests to pass a transaction that is rolled back after each test, giving free
// per-test isolation without any manual cleanup.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// tripColumns is the shared SELECT column list for trip queries.
// total is cast to text and parsed into a decimal on scan so the value never
// passes through a float.
const tripColumns = `id, owner_id, seq, origin, destination, mode, status,
	departure_at, notes, travelers, total::text, created_at, updated_at`

// TripRepo defines the persistence operations for Trips.
// The service layer depends on this interface, not the concrete Postgres
// implementation, which allows the service to be unit-tested with a mock.
type TripRepo interface {
	// Create inserts a new trip and returns the persisted record with the
	// DB-generated id, per-owner sequence number, and timestamps populated.
	Create(ctx context.Context, trip domain.Trip) (domain.Trip, error)

	// GetByID retrieves a single trip owned by ownerID.
	// Returns domain.ErrNotFound if no such trip exists for that owner.
	GetByID(ctx context.Context, ownerID, tripID uuid.UUID) (domain.Trip, error)

	// GetBySeq retrieves a trip by its per-owner sequence ordinal.
	// The import path addresses trips by human-readable number.
	GetBySeq(ctx context.Context, ownerID uuid.UUID, seq int) (domain.Trip, error)

	// ListPaged returns one page of the owner's trips ordered by departure
	// descending, plus the total row count for pagination metadata.
	ListPaged(ctx context.Context, ownerID uuid.UUID, p domain.PaginationParams) ([]domain.Trip, int64, error)

	// ListWithExpenses returns all of the owner's trips with nested expenses,
	// trips ordered by departure descending, expenses by date ascending.
	// This is the full-reload query used by the refresh path.
	ListWithExpenses(ctx context.Context, ownerID uuid.UUID) ([]domain.TripWithExpenses, error)

	// Update overwrites the mutable fields of an existing trip (origin,
	// destination, mode, departure, notes, travelers) and returns the updated
	// record. Status, seq, and total are not touched here.
	Update(ctx context.Context, trip domain.Trip) (domain.Trip, error)

	// UpdateStatus sets the lifecycle status. Transition legality is enforced
	// by the service layer; the repo only persists.
	UpdateStatus(ctx context.Context, ownerID, tripID uuid.UUID, status domain.TripStatus) (domain.Trip, error)

	// Delete removes a trip; its expenses cascade in the database.
	// Returns domain.ErrNotFound if no such trip exists for that owner.
	Delete(ctx context.Context, ownerID, tripID uuid.UUID) error
}

// pgTripRepo is the Postgres implementation of TripRepo.
type pgTripRepo struct {
	db db
}

// NewTripRepo constructs a TripRepo backed by the provided db connection.
// In production pass *pgxpool.Pool; in tests pass a pgx.Tx for rollback isolation.
func NewTripRepo(db db) TripRepo {
	return &pgTripRepo{db: db}
}

func (r *pgTripRepo) Create(ctx context.Context, trip domain.Trip) (domain.Trip, error) {
	const q = `
		INSERT INTO trips (owner_id, origin, destination, mode, departure_at, notes, travelers)
		VALUES (@owner_id, @origin, @destination, @mode, @departure_at, @notes, @travelers)
		RETURNING ` + tripColumns

	args := pgx.NamedArgs{
		"owner_id":     trip.OwnerID,
		"origin":       trip.Origin,
		"destination":  trip.Destination,
		"mode":         string(trip.Mode),
		"departure_at": trip.DepartureAt,
		"notes":        trip.Notes,
		"travelers":    trip.Travelers,
	}

	row := r.db.QueryRow(ctx, q, args)
	result, err := scanTrip(row)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.Create: %w", err)
	}
	return result, nil
}

func (r *pgTripRepo) GetByID(ctx context.Context, ownerID, tripID uuid.UUID) (domain.Trip, error) {
	const q = `
		SELECT ` + tripColumns + `
		FROM trips
		WHERE id = @id AND owner_id = @owner_id`

	row := r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": tripID, "owner_id": ownerID})
	result, err := scanTrip(row)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.GetByID: %w", err)
	}
	return result, nil
}

func (r *pgTripRepo) GetBySeq(ctx context.Context, ownerID uuid.UUID, seq int) (domain.Trip, error) {
	const q = `
		SELECT ` + tripColumns + `
		FROM trips
		WHERE owner_id = @owner_id AND seq = @seq`

	row := r.db.QueryRow(ctx, q, pgx.NamedArgs{"owner_id": ownerID, "seq": seq})
	result, err := scanTrip(row)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.GetBySeq: %w", err)
	}
	return result, nil
}

func (r *pgTripRepo) ListPaged(ctx context.Context, ownerID uuid.UUID, p domain.PaginationParams) ([]domain.Trip, int64, error) {
	const countQ = `SELECT count(*) FROM trips WHERE owner_id = @owner_id`

	var total int64
	if err := r.db.QueryRow(ctx, countQ, pgx.NamedArgs{"owner_id": ownerID}).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repo.TripRepo.ListPaged: count: %w", err)
	}

	const q = `
		SELECT ` + tripColumns + `
		FROM trips
		WHERE owner_id = @owner_id
		ORDER BY departure_at DESC, seq DESC
		LIMIT @limit OFFSET @offset`

	rows, err := r.db.Query(ctx, q, pgx.NamedArgs{
		"owner_id": ownerID,
		"limit":    p.Limit,
		"offset":   p.Offset(),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("repo.TripRepo.ListPaged: %w", err)
	}
	defer rows.Close()

	var trips []domain.Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("repo.TripRepo.ListPaged: scan: %w", err)
		}
		trips = append(trips, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("repo.TripRepo.ListPaged: rows: %w", err)
	}

	return trips, total, nil
}

func (r *pgTripRepo) ListWithExpenses(ctx context.Context, ownerID uuid.UUID) ([]domain.TripWithExpenses, error) {
	const q = `
		SELECT ` + tripColumns + `
		FROM trips
		WHERE owner_id = @owner_id
		ORDER BY departure_at DESC, seq DESC`

	rows, err := r.db.Query(ctx, q, pgx.NamedArgs{"owner_id": ownerID})
	if err != nil {
		return nil, fmt.Errorf("repo.TripRepo.ListWithExpenses: %w", err)
	}

	var result []domain.TripWithExpenses
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("repo.TripRepo.ListWithExpenses: scan trip: %w", err)
		}
		index[t.ID] = len(result)
		result = append(result, domain.TripWithExpenses{Trip: t, Expenses: []domain.Expense{}})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo.TripRepo.ListWithExpenses: rows: %w", err)
	}

	const eq = `
		SELECT ` + expenseColumns + `
		FROM expenses
		WHERE owner_id = @owner_id
		ORDER BY expense_date, created_at`

	erows, err := r.db.Query(ctx, eq, pgx.NamedArgs{"owner_id": ownerID})
	if err != nil {
		return nil, fmt.Errorf("repo.TripRepo.ListWithExpenses: expenses: %w", err)
	}
	defer erows.Close()

	for erows.Next() {
		e, err := scanExpense(erows)
		if err != nil {
			return nil, fmt.Errorf("repo.TripRepo.ListWithExpenses: scan expense: %w", err)
		}
		if i, ok := index[e.TripID]; ok {
			result[i].Expenses = append(result[i].Expenses, e)
		}
	}
	if err := erows.Err(); err != nil {
		return nil, fmt.Errorf("repo.TripRepo.ListWithExpenses: expense rows: %w", err)
	}

	return result, nil
}

func (r *pgTripRepo) Update(ctx context.Context, trip domain.Trip) (domain.Trip, error) {
	const q = `
		UPDATE trips
		SET origin       = @origin,
		    destination  = @destination,
		    mode         = @mode,
		    departure_at = @departure_at,
		    notes        = @notes,
		    travelers    = @travelers,
		    updated_at   = now()
		WHERE id = @id AND owner_id = @owner_id
		RETURNING ` + tripColumns

	args := pgx.NamedArgs{
		"id":           trip.ID,
		"owner_id":     trip.OwnerID,
		"origin":       trip.Origin,
		"destination":  trip.Destination,
		"mode":         string(trip.Mode),
		"departure_at": trip.DepartureAt,
		"notes":        trip.Notes,
		"travelers":    trip.Travelers,
	}

	row := r.db.QueryRow(ctx, q, args)
	result, err := scanTrip(row)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.Update: %w", err)
	}
	return result, nil
}

func (r *pgTripRepo) UpdateStatus(ctx context.Context, ownerID, tripID uuid.UUID, status domain.TripStatus) (domain.Trip, error) {
	const q = `
		UPDATE trips
		SET status     = @status,
		    updated_at = now()
		WHERE id = @id AND owner_id = @owner_id
		RETURNING ` + tripColumns

	row := r.db.QueryRow(ctx, q, pgx.NamedArgs{
		"id":       tripID,
		"owner_id": ownerID,
		"status":   string(status),
	})
	result, err := scanTrip(row)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.UpdateStatus: %w", err)
	}
	return result, nil
}

func (r *pgTripRepo) Delete(ctx context.Context, ownerID, tripID uuid.UUID) error {
	const q = `DELETE FROM trips WHERE id = @id AND owner_id = @owner_id`

	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{"id": tripID, "owner_id": ownerID})
	if err != nil {
		return fmt.Errorf("repo.TripRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repo.TripRepo.Delete: %w", domain.ErrNotFound)
	}
	return nil
}

// scanner is satisfied by both pgx.Row and pgx.Rows, allowing the scan
// helpers to be reused for both QueryRow and Query calls.
type scanner interface {
	Scan(dest ...any) error
}

// scanTrip maps a single database row into a domain.Trip.
// It handles the UUID, numeric-as-text, and text-array conversions and
// derives the human-readable trip number from the stored sequence.
func scanTrip(s scanner) (domain.Trip, error) {
	var (
		t        domain.Trip
		id       pgtype.UUID
		owner    pgtype.UUID
		mode     string
		status   string
		totalRaw string
	)

	err := s.Scan(&id, &owner, &t.Seq, &t.Origin, &t.Destination, &mode, &status,
		&t.DepartureAt, &t.Notes, &t.Travelers, &totalRaw, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Trip{}, domain.ErrNotFound
		}
		return domain.Trip{}, err
	}

	t.ID = uuid.UUID(id.Bytes)
	t.OwnerID = uuid.UUID(owner.Bytes)
	t.Mode = domain.TravelMode(mode)
	t.Status = domain.TripStatus(status)
	t.Number = domain.FormatTripNumber(t.Seq)
	t.Total, err = decimal.NewFromString(totalRaw)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("parse total %q: %w", totalRaw, err)
	}
	if t.Travelers == nil {
		t.Travelers = []string{}
	}

	return t, nil
}
