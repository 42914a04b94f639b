// ABOUTME: Relay query engine: runs the strategy ladder against every relay in the pool.
// ABOUTME: Windows are finalized by their deadline, results are keyed by event id, failures degrade.
package discovery

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/harperreed/workoutfeed/internal/models"
	"github.com/harperreed/workoutfeed/internal/observability"
	"github.com/harperreed/workoutfeed/internal/relay"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentWindows bounds how many windows of one strategy are in flight.
const maxConcurrentWindows = 8

// Source is the relay client the engine queries. *relay.Pool implements it.
type Source interface {
	Relays() []string
	Subscribe(ctx context.Context, url string, filter relay.Filter, out chan<- relay.Event) error
}

// DeadlineFunc derives the context that finalizes one window.
type DeadlineFunc func(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc)

// Request describes one discovery pass.
type Request struct {
	// Identity is a hex or npub identity key.
	Identity string
	// Windows, when set, replace the ladder with a single strategy.
	Windows []models.QueryWindow
	// Until, when set, runs the page ladder with every window capped at Until.
	Until time.Time
	// Aborted is polled between strategies.
	Aborted func() bool
}

// Result is the outcome of one discovery pass.
type Result struct {
	Events []relay.Event
	Stats  models.DiscoveryStats
}

// Engine runs discovery passes against a Source.
type Engine struct {
	source        Source
	ladder        []Strategy
	pageLadder    []Strategy
	windowTimeout time.Duration
	sufficient    int
	logger        *log.Logger
	now           func() time.Time
	deadline      DeadlineFunc
}

// Option configures an Engine.
type Option func(*Engine)

// WithLadder replaces the default ladder.
func WithLadder(ladder []Strategy) Option {
	return func(e *Engine) {
		if len(ladder) > 0 {
			e.ladder = ladder
		}
	}
}

// WithPageLadder replaces the ladder used for older-page requests.
func WithPageLadder(ladder []Strategy) Option {
	return func(e *Engine) {
		if len(ladder) > 0 {
			e.pageLadder = ladder
		}
	}
}

// WithWindowTimeout sets the timeout used for explicit windows.
func WithWindowTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.windowTimeout = d
		}
	}
}

// WithSufficient sets the unique-record count that ends the ladder early.
func WithSufficient(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.sufficient = n
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger.WithPrefix("discovery")
		}
	}
}

// WithClock overrides the time source used to plan windows.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithDeadline overrides how window deadlines are derived.
func WithDeadline(fn DeadlineFunc) Option {
	return func(e *Engine) {
		if fn != nil {
			e.deadline = fn
		}
	}
}

// NewEngine creates an engine querying source.
func NewEngine(source Source, opts ...Option) *Engine {
	e := &Engine{
		source:        source,
		ladder:        DefaultLadder(DefaultWindowTimeout, DefaultBroadTimeouts),
		pageLadder:    BroadLadder(DefaultBroadTimeouts),
		windowTimeout: DefaultWindowTimeout,
		sufficient:    DefaultSufficient,
		logger:        log.New(io.Discard),
		now:           time.Now,
		deadline:      context.WithTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// pass holds the accumulated state of one Discover call.
type pass struct {
	identity string
	mu       sync.Mutex
	seen     map[string]relay.Event
	stats    models.DiscoveryStats
}

func (p *pass) unique() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.seen)
}

// Discover runs the ladder for req and returns every unique workout event
// found, newest first. It never fails: relay errors are logged and counted,
// and a pass where every relay failed yields an empty result.
func (e *Engine) Discover(ctx context.Context, req Request) Result {
	started := time.Now()
	defer func() { observability.ObserveDiscovery(time.Since(started).Seconds()) }()

	identity, err := relay.NormalizeIdentity(req.Identity)
	if err != nil {
		e.logger.Debug("skipping discovery", "err", err)
		return Result{Events: []relay.Event{}}
	}

	p := &pass{identity: identity, seen: make(map[string]relay.Event)}
	now := e.now()

	type planned struct {
		name    string
		windows []models.QueryWindow
		timeout time.Duration
	}
	var plan []planned
	switch {
	case len(req.Windows) > 0:
		plan = append(plan, planned{name: "explicit", windows: req.Windows, timeout: e.windowTimeout})
	case !req.Until.IsZero():
		for _, s := range e.pageLadder {
			plan = append(plan, planned{name: s.Name, windows: Plan(s, now, req.Until), timeout: s.Timeout})
		}
	default:
		for _, s := range e.ladder {
			plan = append(plan, planned{name: s.Name, windows: Plan(s, now, time.Time{}), timeout: s.Timeout})
		}
	}

	for _, step := range plan {
		if req.Aborted != nil && req.Aborted() {
			p.stats.Aborted = true
			e.logger.Debug("discovery aborted", "identity", identity)
			break
		}
		if ctx.Err() != nil {
			p.stats.Aborted = true
			break
		}

		p.stats.Strategies = append(p.stats.Strategies, step.name)
		e.runStrategy(ctx, p, step.name, step.windows, step.timeout)

		if n := p.unique(); n >= e.sufficient {
			e.logger.Debug("sufficient records found", "strategy", step.name, "unique", n)
			break
		}
	}

	events := make([]relay.Event, 0, len(p.seen))
	for _, ev := range p.seen {
		events = append(events, ev)
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].CreatedAt != events[j].CreatedAt {
			return events[i].CreatedAt > events[j].CreatedAt
		}
		return events[i].ID < events[j].ID
	})

	p.stats.UniqueRecords = len(events)
	p.stats.Partial = p.stats.RelayFailures > 0 && p.stats.RelaySuccesses > 0
	if p.stats.RelayFailures > 0 && p.stats.RelaySuccesses == 0 {
		e.logger.Warn("discovery failed on every relay", "identity", identity, "failures", p.stats.RelayFailures)
	}
	return Result{Events: events, Stats: p.stats}
}

func (e *Engine) runStrategy(ctx context.Context, p *pass, name string, windows []models.QueryWindow, timeout time.Duration) {
	var g errgroup.Group
	g.SetLimit(maxConcurrentWindows)
	for i, w := range windows {
		g.Go(func() error {
			e.runWindow(ctx, p, name, i, w, timeout)
			return nil
		})
	}
	_ = g.Wait()
}

func (e *Engine) runWindow(ctx context.Context, p *pass, strategy string, index int, w models.QueryWindow, timeout time.Duration) {
	filter := relay.Filter{
		Kinds:   []int{relay.KindWorkout},
		Authors: []string{p.identity},
		Limit:   w.Limit,
	}
	if !w.Since.IsZero() {
		since := w.Since.Unix()
		filter.Since = &since
	}
	if !w.Until.IsZero() {
		until := w.Until.Unix()
		filter.Until = &until
	}

	wctx, cancel := e.deadline(ctx, timeout)
	defer cancel()

	out := make(chan relay.Event, 64)
	collected := make(chan int, 1)
	rejected := 0
	go func() {
		received := 0
		for ev := range out {
			if !filter.Matches(ev) {
				continue
			}
			received++
			p.mu.Lock()
			_, dup := p.seen[ev.ID]
			p.mu.Unlock()
			if dup {
				continue
			}
			if err := ev.Verify(); err != nil {
				rejected++
				e.logger.Debug("dropping unverifiable event", "id", ev.ID, "err", err)
				continue
			}
			p.mu.Lock()
			p.seen[ev.ID] = ev
			p.mu.Unlock()
		}
		collected <- received
	}()

	var (
		wg        sync.WaitGroup
		statsMu   sync.Mutex
		successes int
		failures  int
	)
	for _, url := range e.source.Relays() {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			err := e.source.Subscribe(wctx, url, filter, out)
			statsMu.Lock()
			defer statsMu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, relay.ErrSubscriptionClosed):
				e.logger.Debug("relay closed subscription", "relay", url, "err", err)
			default:
				failures++
				observability.RecordRelayError(url)
				e.logger.Warn("relay query failed", "relay", url, "err", err)
			}
		}(url)
	}
	wg.Wait()
	close(out)
	received := <-collected

	timedOut := errors.Is(wctx.Err(), context.DeadlineExceeded)
	observability.RecordWindow(strategy, timedOut)
	observability.RecordRecordsReceived(received)
	if rejected > 0 {
		observability.RecordRecordsRejected(rejected)
	}
	e.logger.Debug("window finalized",
		"strategy", strategy,
		"window", index,
		"received", received,
		"timed_out", timedOut)

	p.mu.Lock()
	p.stats.WindowsIssued++
	p.stats.RecordsReceived += received
	p.stats.RecordsRejected += rejected
	p.stats.RelaySuccesses += successes
	p.stats.RelayFailures += failures
	if timedOut {
		p.stats.Timeouts++
	}
	p.mu.Unlock()
}
