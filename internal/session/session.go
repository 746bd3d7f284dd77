// Package session implements the shopping-list planning session: a single
// in-memory state snapshot plus the preview and generation coordinators
// that keep asynchronous backend calls consistent with it.
package session

import (
	"context"
	"sync"
	"time"

	"shopping-planner/internal/export"
	"shopping-planner/internal/metrics"
	"shopping-planner/internal/shopping"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultFreshness is how long a preview is reused for the same range.
const DefaultFreshness = 5 * time.Minute

// Options tune a Session. The zero value is usable.
type Options struct {
	// Freshness is the preview cache window. Zero means DefaultFreshness.
	Freshness time.Duration

	// Limiter throttles preview fetches. Nil means no throttling.
	Limiter *rate.Limiter

	Logger  *zap.Logger
	Metrics *metrics.Store

	// Now is the clock used for preview freshness.
	Now func() time.Time
}

// Session is the shopping-list planning session. It is safe for
// concurrent use.
type Session struct {
	svc       shopping.Service
	freshness time.Duration
	limiter   *rate.Limiter
	logger    *zap.Logger
	metrics   *metrics.Store
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	state  State
	closed bool
	subs   map[int]chan State
	nextID int

	// preview coordinator
	previewToken   uint64
	previewApplied uint64
	cache          map[rangeKey]cachedPreview

	// generation coordinator
	genToken    uint64
	genInFlight bool
	exportToken uint64
}

// New creates a session backed by svc.
func New(svc shopping.Service, opts Options) *Session {
	if opts.Freshness <= 0 {
		opts.Freshness = DefaultFreshness
	}
	if opts.Limiter == nil {
		opts.Limiter = rate.NewLimiter(rate.Inf, 0)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		svc:       svc,
		freshness: opts.Freshness,
		limiter:   opts.Limiter,
		logger:    opts.Logger.Named("session"),
		metrics:   opts.Metrics,
		now:       opts.Now,
		ctx:       ctx,
		cancel:    cancel,
		state:     initialState(),
		subs:      make(map[int]chan State),
		cache:     make(map[rangeKey]cachedPreview),
	}
}

// State returns the current snapshot.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Subscribe returns a channel receiving every new snapshot. Slow readers
// only see the latest one. Call the returned func to unsubscribe.
func (s *Session) Subscribe() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan State, 1)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	ch <- s.state.clone()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

// SetDateRange replaces the selected range. A range that differs by value
// drops the generated list, supersedes outstanding requests and refreshes
// the preview. Setting an equal range is a no-op.
func (s *Session) SetDateRange(r DateRange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.state.DateRange.Equal(r) {
		return
	}

	s.logger.Debug("date range changed", zap.Stringer("from", s.state.DateRange), zap.Stringer("to", r))
	next := s.state.withDateRange(r)
	s.genToken++
	s.exportToken++
	next.Generation = s.supersededGenerationLocked()
	next.Preview = s.schedulePreviewLocked(r, false)
	s.commitLocked(next)
}

// SetFilters replaces the filters used by the next generation. The current
// list and range are kept.
func (s *Session) SetFilters(f Filters) error {
	if err := f.validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.commitLocked(s.state.withFilters(f))
	return nil
}

// Reset clears range, filters and list in one step and suppresses every
// outstanding request.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.previewToken++
	s.genToken++
	s.exportToken++
	s.cache = make(map[rangeKey]cachedPreview)
	s.logger.Debug("session reset")
	next := initialState()
	next.Generation = s.supersededGenerationLocked()
	s.commitLocked(next)
}

// PlainText renders the generated list locally.
func (s *Session) PlainText() (string, error) {
	list := s.currentList()
	if list == nil {
		return "", ErrNoListAvailable
	}
	return export.ToPlainText(list.List)
}

// PrintShoppingList renders the generated list as a printable document,
// labelled with the request that produced it.
func (s *Session) PrintShoppingList() (string, error) {
	doc, _, err := s.PrintableDocument()
	return doc, err
}

// PrintableDocument is PrintShoppingList that also returns the list it
// rendered. Callers naming the document must use that list, not a later
// snapshot, since the range may change concurrently.
func (s *Session) PrintableDocument() (string, *GeneratedList, error) {
	list := s.currentList()
	if list == nil {
		return "", nil, ErrNoListAvailable
	}
	req := list.Request
	doc, err := export.ToPrintableDocument(list.List, &req)
	if err != nil {
		return "", nil, err
	}
	return doc, list, nil
}

// WaitPreview blocks until the preview slot is no longer pending and
// returns it. Unlike Wait it may be called while other goroutines keep
// changing the range.
func (s *Session) WaitPreview(ctx context.Context) (PreviewState, error) {
	ch, unsubscribe := s.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return PreviewState{}, ctx.Err()
		case st, ok := <-ch:
			if !ok {
				return PreviewState{}, ErrClosed
			}
			if st.Preview.Phase != Pending {
				return st.Preview, nil
			}
		}
	}
}

// Wait blocks until every background preview fetch has finished. It must
// not race with calls that start new fetches; use WaitPreview for that.
func (s *Session) Wait() {
	s.wg.Wait()
}

// Close cancels outstanding requests and releases subscribers.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.previewToken++
	s.genToken++
	s.exportToken++
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

// supersededGenerationLocked is the generation status after the request it
// tracked was superseded. A call still outstanding keeps blocking new ones,
// so it stays pending until it returns. s.mu must be held.
func (s *Session) supersededGenerationLocked() OperationStatus {
	if s.genInFlight {
		return pending()
	}
	return OperationStatus{}
}

func (s *Session) currentList() *GeneratedList {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.HasList() {
		return nil
	}
	return s.state.List
}

// commitLocked replaces the snapshot and notifies subscribers. s.mu must be held.
func (s *Session) commitLocked(next State) {
	s.state = next
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- next.clone()
	}
}

func (s *Session) record(op string, outcome metrics.Outcome, started time.Time) {
	s.metrics.Record(metrics.RequestMetric{
		Operation: op,
		Outcome:   outcome,
		Latency:   time.Since(started),
	})
}
