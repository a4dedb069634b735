// Package service contains the business logic for the Wayfare API.
// Services validate inputs, enforce business rules, and orchestrate repo and
// ledger calls. No SQL lives here; services depend on interfaces, not
// implementations.
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/wayfare/backend/internal/domain"
	"github.com/wayfare/backend/internal/repo"
)

// TripCache is the slice of the ledger coordinator the trip service needs:
// folding trip-level CRUD results into the in-memory view so the next
// snapshot reflects them without waiting for a refresh.
type TripCache interface {
	ReconcileTrip(ownerID uuid.UUID, trip domain.Trip)
	ForgetTrip(ownerID, tripID uuid.UUID)
}

// TripService implements business logic for Trip operations.
type TripService struct {
	repo  repo.TripRepo
	cache TripCache
}

// NewTripService constructs a TripService. cache may be nil in tests that do
// not exercise view reconciliation.
func NewTripService(r repo.TripRepo, cache TripCache) *TripService {
	return &TripService{repo: r, cache: cache}
}

// Create validates and persists a new trip. The trip starts in planning
// status with a zero total; the database assigns the per-owner number.
func (s *TripService) Create(ctx context.Context, trip domain.Trip) (domain.Trip, error) {
	if err := validateTrip(trip); err != nil {
		return domain.Trip{}, err
	}
	if trip.Travelers == nil {
		trip.Travelers = []string{}
	}
	created, err := s.repo.Create(ctx, trip)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("service.TripService.Create: %w", err)
	}
	s.reconcile(created)
	return created, nil
}

// GetByID returns a single trip owned by ownerID.
func (s *TripService) GetByID(ctx context.Context, ownerID, tripID uuid.UUID) (domain.Trip, error) {
	trip, err := s.repo.GetByID(ctx, ownerID, tripID)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("service.TripService.GetByID: %w", err)
	}
	return trip, nil
}

// ListPaged returns one page of the owner's trips plus the total count.
// Always returns a non-nil slice so callers can safely range over it.
func (s *TripService) ListPaged(ctx context.Context, ownerID uuid.UUID, p domain.PaginationParams) ([]domain.Trip, int64, error) {
	trips, total, err := s.repo.ListPaged(ctx, ownerID, p)
	if err != nil {
		return nil, 0, fmt.Errorf("service.TripService.ListPaged: %w", err)
	}
	if trips == nil {
		trips = []domain.Trip{}
	}
	return trips, total, nil
}

// Update validates and persists changes to a trip's mutable fields.
// Status is not updatable here; use Start and Complete.
func (s *TripService) Update(ctx context.Context, trip domain.Trip) (domain.Trip, error) {
	if err := validateTrip(trip); err != nil {
		return domain.Trip{}, err
	}
	if trip.Travelers == nil {
		trip.Travelers = []string{}
	}
	updated, err := s.repo.Update(ctx, trip)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("service.TripService.Update: %w", err)
	}
	s.reconcile(updated)
	return updated, nil
}

// Start transitions a planning trip to in_progress.
func (s *TripService) Start(ctx context.Context, ownerID, tripID uuid.UUID) (domain.Trip, error) {
	return s.transition(ctx, ownerID, tripID, domain.StatusInProgress)
}

// Complete transitions an in_progress trip to completed.
func (s *TripService) Complete(ctx context.Context, ownerID, tripID uuid.UUID) (domain.Trip, error) {
	return s.transition(ctx, ownerID, tripID, domain.StatusCompleted)
}

// transition enforces the forward-only lifecycle before persisting.
func (s *TripService) transition(ctx context.Context, ownerID, tripID uuid.UUID, next domain.TripStatus) (domain.Trip, error) {
	current, err := s.repo.GetByID(ctx, ownerID, tripID)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("service.TripService.transition: %w", err)
	}
	if !current.Status.CanTransitionTo(next) {
		return domain.Trip{}, fmt.Errorf("%w: cannot transition trip from %s to %s",
			domain.ErrValidation, current.Status, next)
	}
	updated, err := s.repo.UpdateStatus(ctx, ownerID, tripID, next)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("service.TripService.transition: %w", err)
	}
	s.reconcile(updated)
	return updated, nil
}

// Delete removes a trip from any lifecycle state; its expenses cascade.
func (s *TripService) Delete(ctx context.Context, ownerID, tripID uuid.UUID) error {
	if err := s.repo.Delete(ctx, ownerID, tripID); err != nil {
		return fmt.Errorf("service.TripService.Delete: %w", err)
	}
	if s.cache != nil {
		s.cache.ForgetTrip(ownerID, tripID)
	}
	return nil
}

func (s *TripService) reconcile(trip domain.Trip) {
	if s.cache != nil {
		s.cache.ReconcileTrip(trip.OwnerID, trip)
	}
}

// validateTrip enforces business rules common to Create and Update.
//   - Origin and destination must be non-empty (whitespace-only rejected).
//   - Mode must be a known travel mode.
//   - Departure must be set.
func validateTrip(trip domain.Trip) error {
	if strings.TrimSpace(trip.Origin) == "" {
		return fmt.Errorf("%w: origin is required", domain.ErrValidation)
	}
	if strings.TrimSpace(trip.Destination) == "" {
		return fmt.Errorf("%w: destination is required", domain.ErrValidation)
	}
	if _, err := domain.ParseTravelMode(string(trip.Mode)); err != nil {
		return err
	}
	if trip.DepartureAt.IsZero() {
		return fmt.Errorf("%w: departure_at is required", domain.ErrValidation)
	}
	return nil
}
