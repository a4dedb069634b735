package refresh_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfare/backend/internal/domain"
	"github.com/wayfare/backend/internal/refresh"
)

// mockLoader counts loads per owner and can be set to fail.
type mockLoader struct {
	mu    sync.Mutex
	loads map[uuid.UUID]int
	fail  bool
	trips []domain.TripWithExpenses
}

func newMockLoader(trips ...domain.TripWithExpenses) *mockLoader {
	return &mockLoader{loads: make(map[uuid.UUID]int), trips: trips}
}

func (m *mockLoader) ListWithExpenses(_ context.Context, ownerID uuid.UUID) ([]domain.TripWithExpenses, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads[ownerID]++
	if m.fail {
		return nil, errors.New("db down")
	}
	return m.trips, nil
}

func (m *mockLoader) loadCount(ownerID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loads[ownerID]
}

// mockSink records every replacement.
type mockSink struct {
	mu       sync.Mutex
	replaced map[uuid.UUID][][]domain.TripWithExpenses
}

func newMockSink() *mockSink {
	return &mockSink{replaced: make(map[uuid.UUID][][]domain.TripWithExpenses)}
}

func (m *mockSink) ReplaceAll(ownerID uuid.UUID, trips []domain.TripWithExpenses) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replaced[ownerID] = append(m.replaced[ownerID], trips)
}

func (m *mockSink) replaceCount(ownerID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.replaced[ownerID])
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestRefresher_RefreshNowReplacesView(t *testing.T) {
	ownerID := uuid.New()
	trip := domain.TripWithExpenses{Trip: domain.Trip{ID: uuid.New(), OwnerID: ownerID}}
	loader := newMockLoader(trip)
	sink := newMockSink()

	r := refresh.New(loader, sink, 0, 0, discardLogger())

	require.NoError(t, r.RefreshNow(context.Background(), ownerID))
	assert.Equal(t, 1, loader.loadCount(ownerID))
	assert.Equal(t, 1, sink.replaceCount(ownerID))
}

func TestRefresher_RefreshNowPropagatesLoaderError(t *testing.T) {
	loader := newMockLoader()
	loader.fail = true
	sink := newMockSink()

	r := refresh.New(loader, sink, 0, 0, discardLogger())

	err := r.RefreshNow(context.Background(), uuid.New())
	assert.Error(t, err)
	assert.Equal(t, 0, sink.replaceCount(uuid.Nil))
}

func TestRefresher_KickDebouncesBursts(t *testing.T) {
	ownerID := uuid.New()
	loader := newMockLoader()
	sink := newMockSink()

	r := refresh.New(loader, sink, time.Minute, 30*time.Millisecond, discardLogger())

	// A burst of kicks inside the window collapses to one reload.
	for i := 0; i < 5; i++ {
		r.Kick(ownerID)
		time.Sleep(2 * time.Millisecond)
	}

	waitFor(t, func() bool { return sink.replaceCount(ownerID) >= 1 }, "kick never fired")
	// Give a second reload a chance to (wrongly) happen.
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, sink.replaceCount(ownerID), "burst must collapse to one reload")
}

func TestRefresher_KickAfterWindowReloadsAgain(t *testing.T) {
	ownerID := uuid.New()
	loader := newMockLoader()
	sink := newMockSink()

	r := refresh.New(loader, sink, time.Minute, 10*time.Millisecond, discardLogger())

	r.Kick(ownerID)
	waitFor(t, func() bool { return sink.replaceCount(ownerID) == 1 }, "first kick never fired")

	r.Kick(ownerID)
	waitFor(t, func() bool { return sink.replaceCount(ownerID) == 2 }, "second kick never fired")
}

func TestRefresher_RunReloadsTrackedOwnersOnInterval(t *testing.T) {
	ownerID := uuid.New()
	other := uuid.New()
	loader := newMockLoader()
	sink := newMockSink()

	r := refresh.New(loader, sink, 15*time.Millisecond, time.Minute, discardLogger())
	r.Track(ownerID)
	r.Track(other)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	waitFor(t, func() bool {
		return sink.replaceCount(ownerID) >= 2 && sink.replaceCount(other) >= 2
	}, "periodic reload never ran for both owners")
}

func TestRefresher_FailedReloadKeepsOldViewAndRetries(t *testing.T) {
	ownerID := uuid.New()
	loader := newMockLoader()
	loader.fail = true
	sink := newMockSink()

	r := refresh.New(loader, sink, 10*time.Millisecond, time.Minute, discardLogger())
	r.Track(ownerID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	// Loads happen but nothing is replaced while the loader fails.
	waitFor(t, func() bool { return loader.loadCount(ownerID) >= 2 }, "reload never retried")
	assert.Equal(t, 0, sink.replaceCount(ownerID))

	loader.mu.Lock()
	loader.fail = false
	loader.mu.Unlock()

	waitFor(t, func() bool { return sink.replaceCount(ownerID) >= 1 }, "recovered reload never replaced the view")
}
