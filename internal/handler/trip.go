package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/wayfare/backend/internal/domain"
)

// errMalformedBody is the shape-level rejection for an unparseable request.
var errMalformedBody = errors.New("request body is malformed or missing")

// TripRequest is the JSON body for creating or replacing a trip.
type TripRequest struct {
	Origin      string    `json:"origin"`
	Destination string    `json:"destination"`
	Mode        string    `json:"mode"`
	DepartureAt time.Time `json:"departure_at"`
	Notes       *string   `json:"notes,omitempty"`
	Travelers   *[]string `json:"travelers,omitempty"`
}

// TripListResponse wraps one page of trips with pagination metadata.
type TripListResponse struct {
	Data       []domain.Trip `json:"data"`
	Pagination Pagination    `json:"pagination"`
}

// Pagination echoes the applied page/limit plus the total row count.
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
}

// CreateTrip handles POST /trips.
func (s *Server) CreateTrip(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(r)
	if !ok {
		unauthenticated(w)
		return
	}

	trip, err := decodeTripRequest(r)
	if err != nil {
		requestError(w, err.Error())
		return
	}
	trip.OwnerID = ownerID

	created, err := s.trips.Create(r.Context(), trip)
	if err != nil {
		writeError(w, err, "trip")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// ListTrips handles GET /trips.
// Supports ?page= and ?limit= query parameters (defaults: page=1, limit=20, max=100).
func (s *Server) ListTrips(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(r)
	if !ok {
		unauthenticated(w)
		return
	}

	params := domain.NewPaginationParams(queryInt(r, "page"), queryInt(r, "limit"))
	trips, total, err := s.trips.ListPaged(r.Context(), ownerID, params)
	if err != nil {
		writeError(w, err, "trips")
		return
	}

	writeJSON(w, http.StatusOK, TripListResponse{
		Data: trips,
		Pagination: Pagination{
			Page:  params.Page,
			Limit: params.Limit,
			Total: total,
		},
	})
}

// GetTrip handles GET /trips/{tripID}.
func (s *Server) GetTrip(w http.ResponseWriter, r *http.Request) {
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

	trip, err := s.trips.GetByID(r.Context(), ownerID, tripID)
	if err != nil {
		writeError(w, err, "trip")
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

// UpdateTrip handles PUT /trips/{tripID}.
func (s *Server) UpdateTrip(w http.ResponseWriter, r *http.Request) {
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

	trip, err := decodeTripRequest(r)
	if err != nil {
		requestError(w, err.Error())
		return
	}
	trip.ID = tripID
	trip.OwnerID = ownerID

	updated, err := s.trips.Update(r.Context(), trip)
	if err != nil {
		writeError(w, err, "trip")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// StartTrip handles POST /trips/{tripID}/start.
func (s *Server) StartTrip(w http.ResponseWriter, r *http.Request) {
	s.transitionTrip(w, r, s.trips.Start)
}

// CompleteTrip handles POST /trips/{tripID}/complete.
func (s *Server) CompleteTrip(w http.ResponseWriter, r *http.Request) {
	s.transitionTrip(w, r, s.trips.Complete)
}

func (s *Server) transitionTrip(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, ownerID, tripID uuid.UUID) (domain.Trip, error)) {
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

	trip, err := op(r.Context(), ownerID, tripID)
	if err != nil {
		writeError(w, err, "trip")
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

// DeleteTrip handles DELETE /trips/{tripID}.
func (s *Server) DeleteTrip(w http.ResponseWriter, r *http.Request) {
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

	if err := s.trips.Delete(r.Context(), ownerID, tripID); err != nil {
		writeError(w, err, "trip")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeTripRequest converts the JSON body into a domain.Trip.
// Enum validation happens in the service; here only shape is checked.
func decodeTripRequest(r *http.Request) (domain.Trip, error) {
	var body TripRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return domain.Trip{}, errMalformedBody
	}
	t := domain.Trip{
		Origin:      body.Origin,
		Destination: body.Destination,
		Mode:        domain.TravelMode(body.Mode),
		DepartureAt: body.DepartureAt,
		Travelers:   []string{},
	}
	if body.Notes != nil {
		t.Notes = *body.Notes
	}
	if body.Travelers != nil {
		t.Travelers = *body.Travelers
	}
	return t, nil
}

// queryInt parses an optional integer query parameter, nil when absent or
// malformed.
func queryInt(r *http.Request, name string) *int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &n
}
