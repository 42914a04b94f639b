// ABOUTME: Tests for window planning and the discovery engine with a fake relay source.
// ABOUTME: Covers idempotent ingestion, partial failure, early exit, deadlines and pagination.
package discovery

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/harperreed/workoutfeed/internal/models"
	"github.com/harperreed/workoutfeed/internal/relay"
	"github.com/harperreed/workoutfeed/internal/relay/relaytest"
	"github.com/stretchr/testify/require"
)

var (
	signer   = relaytest.NewSigner(1)
	identity = signer.PubKey()
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type respondFunc func(ctx context.Context, url string, f relay.Filter, out chan<- relay.Event) error

type fakeSource struct {
	relays  []string
	respond respondFunc

	mu      sync.Mutex
	filters []relay.Filter
}

func (s *fakeSource) Relays() []string { return s.relays }

func (s *fakeSource) Subscribe(ctx context.Context, url string, f relay.Filter, out chan<- relay.Event) error {
	s.mu.Lock()
	s.filters = append(s.filters, f)
	s.mu.Unlock()
	return s.respond(ctx, url, f, out)
}

func (s *fakeSource) calls() []relay.Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]relay.Filter(nil), s.filters...)
}

func makeEvents(prefix string, n int) []relay.Event {
	events := make([]relay.Event, n)
	for i := range events {
		events[i] = signer.Sign(relay.Event{
			CreatedAt: fixedNow.Unix() - int64(i*3600),
			Kind:      relay.KindWorkout,
			Content:   fmt.Sprintf("%s-%03d", prefix, i),
		})
	}
	return events
}

func send(events []relay.Event) respondFunc {
	return func(ctx context.Context, _ string, _ relay.Filter, out chan<- relay.Event) error {
		for _, ev := range events {
			select {
			case out <- ev:
			case <-ctx.Done():
				return nil
			}
		}
		return nil
	}
}

func newTestEngine(src Source, opts ...Option) *Engine {
	base := []Option{
		WithClock(func() time.Time { return fixedNow }),
		WithLadder(DefaultLadder(50*time.Millisecond, []time.Duration{50 * time.Millisecond})),
		WithPageLadder(BroadLadder([]time.Duration{50 * time.Millisecond})),
		WithWindowTimeout(50 * time.Millisecond),
	}
	return NewEngine(src, append(base, opts...)...)
}

func TestPlanPartitionsWithoutGaps(t *testing.T) {
	ladder := DefaultLadder(0, nil)
	windows := Plan(ladder[0], fixedNow, time.Time{})

	require.Len(t, windows, 6)
	require.True(t, windows[0].Until.IsZero(), "newest window is open-ended")
	require.True(t, windows[len(windows)-1].Since.IsZero(), "oldest window has no lower bound")
	for i := 0; i < len(windows)-1; i++ {
		require.Equal(t, windows[i].Since, windows[i+1].Until, "window %d and %d must touch", i, i+1)
	}
	require.Equal(t, fixedNow.Add(-7*day), windows[0].Since)
	require.Equal(t, 50, windows[0].Limit)
	require.Equal(t, 200, windows[5].Limit)
}

func TestDefaultLadderShape(t *testing.T) {
	ladder := DefaultLadder(0, nil)

	names := make([]string, len(ladder))
	for i, s := range ladder {
		names[i] = s.Name
	}
	require.Equal(t, []string{"windowed", "broad-100", "broad-200", "broad-500"}, names)
	require.Equal(t, DefaultWindowTimeout, ladder[0].Timeout)
	require.Equal(t, 5*time.Second, ladder[1].Timeout)
	require.Equal(t, 20*time.Second, ladder[3].Timeout)
	require.Equal(t, 500, ladder[3].Windows[0].Limit)
}

func TestPlanWithUntil(t *testing.T) {
	until := fixedNow.Add(-20 * day)

	windows := Plan(DefaultLadder(0, nil)[0], fixedNow, until)
	require.Len(t, windows, 4)
	for _, w := range windows {
		require.False(t, w.Until.After(until))
		if !w.Since.IsZero() {
			require.True(t, w.Since.Before(w.Until))
		}
	}

	broad := Plan(BroadLadder(nil)[0], fixedNow, until)
	require.Len(t, broad, 1)
	require.Equal(t, until, broad[0].Until)
	require.True(t, broad[0].Since.IsZero())
}

func TestDiscoverIdempotentIngestion(t *testing.T) {
	events := makeEvents("dup", 5)
	doubled := append(append([]relay.Event(nil), events...), events...)
	src := &fakeSource{relays: []string{"r1", "r2", "r3"}, respond: send(doubled)}

	res := newTestEngine(src).Discover(context.Background(), Request{Identity: identity})

	require.Len(t, res.Events, 5)
	seen := map[string]int{}
	for _, ev := range res.Events {
		seen[ev.ID]++
	}
	for id, n := range seen {
		require.Equal(t, 1, n, "event %s returned more than once", id)
	}
	require.Greater(t, res.Stats.RecordsReceived, res.Stats.UniqueRecords)
	require.Equal(t, 5, res.Stats.UniqueRecords)
}

func TestDiscoverPartialFailure(t *testing.T) {
	good := makeEvents("ok", 40)
	src := &fakeSource{
		relays: []string{"wss://down-1", "wss://down-2", "wss://up"},
		respond: func(ctx context.Context, url string, f relay.Filter, out chan<- relay.Event) error {
			if url != "wss://up" {
				return &relay.DialError{URL: url, Err: errors.New("connection refused")}
			}
			return send(good)(ctx, url, f, out)
		},
	}

	res := newTestEngine(src).Discover(context.Background(), Request{Identity: identity})

	require.Len(t, res.Events, 40)
	require.True(t, res.Stats.Partial)
	require.Greater(t, res.Stats.RelayFailures, 0)
	require.Greater(t, res.Stats.RelaySuccesses, 0)
}

func TestDiscoverTotalFailureReturnsEmpty(t *testing.T) {
	src := &fakeSource{
		relays: []string{"a", "b"},
		respond: func(context.Context, string, relay.Filter, chan<- relay.Event) error {
			return errors.New("boom")
		},
	}

	res := newTestEngine(src).Discover(context.Background(), Request{Identity: identity})

	require.NotNil(t, res.Events)
	require.Empty(t, res.Events)
	require.False(t, res.Stats.Partial)
	require.Equal(t, 4, len(res.Stats.Strategies), "every strategy is attempted")
}

func TestDiscoverStopsWhenSufficient(t *testing.T) {
	src := &fakeSource{relays: []string{"r1"}, respond: send(makeEvents("many", 150))}

	res := newTestEngine(src).Discover(context.Background(), Request{Identity: identity})

	require.Equal(t, []string{"windowed"}, res.Stats.Strategies)
	require.Len(t, res.Events, 150)
	require.Equal(t, 6, res.Stats.WindowsIssued)
}

func TestDiscoverEscalatesWhenUnderDelivered(t *testing.T) {
	src := &fakeSource{
		relays: []string{"r1"},
		respond: func(ctx context.Context, url string, f relay.Filter, out chan<- relay.Event) error {
			if f.Since != nil || f.Until != nil {
				return nil
			}
			if f.Limit >= 200 {
				return send(makeEvents("broad", 120))(ctx, url, f, out)
			}
			return send(makeEvents("broad", 10))(ctx, url, f, out)
		},
	}

	res := newTestEngine(src).Discover(context.Background(), Request{Identity: identity})

	require.Equal(t, []string{"windowed", "broad-100", "broad-200"}, res.Stats.Strategies)
	require.Len(t, res.Events, 120)
}

func TestDiscoverTimerFinalizesWindow(t *testing.T) {
	events := makeEvents("slow", 2)
	src := &fakeSource{
		relays: []string{"r1"},
		respond: func(ctx context.Context, _ string, _ relay.Filter, out chan<- relay.Event) error {
			out <- events[0]
			time.Sleep(10 * time.Millisecond)
			out <- events[1]
			<-ctx.Done()
			return nil
		},
	}

	req := Request{
		Identity: identity,
		Windows:  []models.QueryWindow{{Since: fixedNow.Add(-day), Limit: 10}},
	}
	res := newTestEngine(src).Discover(context.Background(), req)

	require.Len(t, res.Events, 2)
	require.Equal(t, []string{"explicit"}, res.Stats.Strategies)
	require.Equal(t, 1, res.Stats.WindowsIssued)
	require.Equal(t, 1, res.Stats.Timeouts)

	filters := src.calls()
	require.Len(t, filters, 1)
	require.NotNil(t, filters[0].Since)
	require.Equal(t, fixedNow.Add(-day).Unix(), *filters[0].Since)
	require.Nil(t, filters[0].Until)
}

func TestDiscoverInjectedDeadline(t *testing.T) {
	var deadlines []time.Duration
	var mu sync.Mutex
	immediate := func(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
		mu.Lock()
		deadlines = append(deadlines, d)
		mu.Unlock()
		c, cancel := context.WithCancel(ctx)
		cancel()
		return c, cancel
	}
	src := &fakeSource{
		relays: []string{"r1"},
		respond: func(ctx context.Context, _ string, _ relay.Filter, _ chan<- relay.Event) error {
			<-ctx.Done()
			return nil
		},
	}

	engine := NewEngine(src,
		WithClock(func() time.Time { return fixedNow }),
		WithDeadline(immediate))
	start := time.Now()
	res := engine.Discover(context.Background(), Request{Identity: identity})

	require.Less(t, time.Since(start), time.Second, "no real timers should be awaited")
	require.Empty(t, res.Events)
	require.Len(t, deadlines, 9)
	require.Equal(t, DefaultWindowTimeout, deadlines[0])
}

func TestDiscoverIgnoresForeignEvents(t *testing.T) {
	events := makeEvents("mine", 2)
	foreign := relaytest.NewSigner(2).Sign(relay.Event{Kind: relay.KindWorkout, CreatedAt: fixedNow.Unix()})
	wrongKind := signer.Sign(relay.Event{Kind: 1, CreatedAt: fixedNow.Unix()})
	src := &fakeSource{relays: []string{"r1"}, respond: send(append(events, foreign, wrongKind))}

	res := newTestEngine(src).Discover(context.Background(), Request{Identity: identity})

	require.Len(t, res.Events, 2)
	for _, ev := range res.Events {
		require.Equal(t, identity, ev.PubKey)
	}
}

func TestDiscoverDropsUnverifiedEvents(t *testing.T) {
	good := makeEvents("good", 1)[0]

	tampered := makeEvents("tampered", 1)[0]
	tampered.Tags = [][]string{{"distance", "42.2", "km"}}

	forged := relaytest.NewSigner(3).Sign(relay.Event{Kind: relay.KindWorkout, CreatedAt: fixedNow.Unix(), Content: "forged"})
	forged.PubKey = identity
	h := forged.Hash()
	forged.ID = hex.EncodeToString(h[:])

	unsigned := relay.Event{PubKey: identity, Kind: relay.KindWorkout, CreatedAt: fixedNow.Unix()}
	h = unsigned.Hash()
	unsigned.ID = hex.EncodeToString(h[:])

	src := &fakeSource{relays: []string{"r1"}, respond: send([]relay.Event{good, tampered, forged, unsigned})}
	res := newTestEngine(src).Discover(context.Background(), Request{Identity: identity})

	require.Len(t, res.Events, 1)
	require.Equal(t, good.ID, res.Events[0].ID)
	require.Positive(t, res.Stats.RecordsRejected)
}

func TestDiscoverInvalidIdentity(t *testing.T) {
	src := &fakeSource{relays: []string{"r1"}, respond: send(makeEvents("x", 3))}

	for _, id := range []string{"", "not-a-key"} {
		res := newTestEngine(src).Discover(context.Background(), Request{Identity: id})
		require.Empty(t, res.Events)
	}
	require.Empty(t, src.calls(), "no relay queries for a missing identity")
}

func TestDiscoverAcceptsNpub(t *testing.T) {
	src := &fakeSource{relays: []string{"r1"}, respond: send(makeEvents("n", 1))}

	req := Request{Identity: "npub10elfcs4fr0l0r8af98jlmgdh9c8tcxjvz9qkw038js35mp4dma8qzvjptg"}
	res := newTestEngine(src).Discover(context.Background(), req)

	require.Len(t, res.Events, 1)
	require.Equal(t, []string{identity}, src.calls()[0].Authors)
}

func TestDiscoverOlderPageUsesUntil(t *testing.T) {
	until := fixedNow.Add(-48 * time.Hour)
	src := &fakeSource{relays: []string{"r1"}, respond: send(nil)}

	res := newTestEngine(src).Discover(context.Background(), Request{Identity: identity, Until: until})

	require.Equal(t, []string{"broad-100", "broad-200", "broad-500"}, res.Stats.Strategies)
	for _, f := range src.calls() {
		require.Nil(t, f.Since)
		require.NotNil(t, f.Until)
		require.Equal(t, until.Unix(), *f.Until)
	}
}

func TestDiscoverAbortBetweenStrategies(t *testing.T) {
	src := &fakeSource{relays: []string{"r1"}, respond: send(nil)}
	var polls int
	req := Request{
		Identity: identity,
		Aborted: func() bool {
			polls++
			return polls > 1
		},
	}

	res := newTestEngine(src).Discover(context.Background(), req)

	require.True(t, res.Stats.Aborted)
	require.Equal(t, []string{"windowed"}, res.Stats.Strategies)
}

func TestDiscoverSortsNewestFirst(t *testing.T) {
	events := makeEvents("s", 4)
	shuffled := []relay.Event{events[2], events[0], events[3], events[1]}
	src := &fakeSource{relays: []string{"r1"}, respond: send(shuffled)}

	res := newTestEngine(src).Discover(context.Background(), Request{Identity: identity})

	for i := 1; i < len(res.Events); i++ {
		require.GreaterOrEqual(t, res.Events[i-1].CreatedAt, res.Events[i].CreatedAt)
	}
}
