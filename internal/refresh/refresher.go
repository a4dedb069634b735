// Package refresh bounds the drift between the optimistic in-memory view and
// the database: it reloads each tracked owner's full trip+expense collection
// on a fixed interval and, debounced, after any mutation settles.
package refresh

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wayfare/backend/internal/domain"
)

// Loader fetches the authoritative full collection for one owner.
// repo.TripRepo satisfies it.
type Loader interface {
	ListWithExpenses(ctx context.Context, ownerID uuid.UUID) ([]domain.TripWithExpenses, error)
}

// Sink receives the freshly loaded collection as a wholesale replacement.
// The ledger coordinator satisfies it.
type Sink interface {
	ReplaceAll(ownerID uuid.UUID, trips []domain.TripWithExpenses)
}

// Defaults used when the configuration leaves the knobs unset.
const (
	DefaultInterval = 30 * time.Second
	DefaultDebounce = 500 * time.Millisecond
)

// Refresher periodically resynchronizes every tracked owner's view and
// offers a debounced per-owner kick for the settle hook: rapid successive
// mutations collapse into at most one reload per debounce window.
type Refresher struct {
	loader   Loader
	sink     Sink
	interval time.Duration
	debounce time.Duration
	log      *slog.Logger

	mu     sync.Mutex
	owners map[uuid.UUID]struct{}
	timers map[uuid.UUID]*time.Timer
}

// New constructs a Refresher. Zero interval or debounce fall back to the
// package defaults.
func New(loader Loader, sink Sink, interval, debounce time.Duration, log *slog.Logger) *Refresher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Refresher{
		loader:   loader,
		sink:     sink,
		interval: interval,
		debounce: debounce,
		log:      log,
		owners:   make(map[uuid.UUID]struct{}),
		timers:   make(map[uuid.UUID]*time.Timer),
	}
}

// Track adds an owner to the periodic reload set. Called on the owner's
// first authenticated request. Idempotent.
func (r *Refresher) Track(ownerID uuid.UUID) {
	r.mu.Lock()
	r.owners[ownerID] = struct{}{}
	r.mu.Unlock()
}

// Kick schedules a reload for the owner after the debounce window. A kick
// arriving while one is pending resets the window, so a burst of settled
// mutations causes a single reload.
func (r *Refresher) Kick(ownerID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if timer, ok := r.timers[ownerID]; ok {
		timer.Reset(r.debounce)
		return
	}
	r.timers[ownerID] = time.AfterFunc(r.debounce, func() {
		r.mu.Lock()
		delete(r.timers, ownerID)
		r.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), r.interval)
		defer cancel()
		r.reload(ctx, ownerID)
	})
}

// RefreshNow reloads one owner synchronously, bypassing the debounce.
// Backs the manual refresh endpoint.
func (r *Refresher) RefreshNow(ctx context.Context, ownerID uuid.UUID) error {
	trips, err := r.loader.ListWithExpenses(ctx, ownerID)
	if err != nil {
		return err
	}
	r.sink.ReplaceAll(ownerID, trips)
	return nil
}

// Run reloads every tracked owner on the fixed interval until ctx is
// cancelled. Start it in its own goroutine from main.
func (r *Refresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.mu.Lock()
			owners := make([]uuid.UUID, 0, len(r.owners))
			for id := range r.owners {
				owners = append(owners, id)
			}
			r.mu.Unlock()

			for _, id := range owners {
				r.reload(ctx, id)
			}
		}
	}
}

func (r *Refresher) reload(ctx context.Context, ownerID uuid.UUID) {
	trips, err := r.loader.ListWithExpenses(ctx, ownerID)
	if err != nil {
		// A failed reload leaves the previous view in place; the next tick
		// or settle kick tries again.
		r.log.Warn("refresh: reload failed", "owner_id", ownerID, "error", err)
		return
	}
	r.sink.ReplaceAll(ownerID, trips)
}
