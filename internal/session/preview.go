package session

import (
	"time"

	"shopping-planner/internal/metrics"
	"shopping-planner/internal/shopping"

	"go.uber.org/zap"
)

type cachedPreview struct {
	preview   *shopping.Preview
	fetchedAt time.Time
}

// RefreshPreview refetches the preview for the current range, bypassing
// the cache. Incomplete ranges are rejected without a request.
func (s *Session) RefreshPreview() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.state.DateRange.Validate(); err != nil {
		return err
	}

	next := s.state
	next.Preview = s.schedulePreviewLocked(next.DateRange, true)
	s.commitLocked(next)
	return nil
}

// schedulePreviewLocked decides the preview slot for r and starts a fetch
// when needed. Every call invalidates fetches issued before it.
func (s *Session) schedulePreviewLocked(r DateRange, force bool) PreviewState {
	s.previewToken++
	key, ok := r.key()
	if !ok {
		return PreviewState{}
	}

	if !force {
		if c, hit := s.cache[key]; hit && s.now().Sub(c.fetchedAt) < s.freshness {
			s.logger.Debug("preview cache hit", zap.Stringer("range", r))
			return PreviewState{OperationStatus: succeeded(), Preview: c.preview, FetchedAt: c.fetchedAt}
		}
	}
	delete(s.cache, key)

	token := s.previewToken
	s.wg.Add(1)
	go s.fetchPreview(r, key, token)
	return PreviewState{OperationStatus: pending()}
}

func (s *Session) fetchPreview(r DateRange, key rangeKey, token uint64) {
	defer s.wg.Done()

	started := time.Now()
	if err := s.limiter.Wait(s.ctx); err != nil {
		return
	}
	if !s.isCurrentKey(key) {
		// Debounced: the user moved on before the request went out.
		s.record("preview", metrics.OutcomeSuppressed, started)
		return
	}

	preview, err := s.svc.Preview(s.ctx, r.Start, r.End)
	s.applyPreview(r, key, token, preview, err, started)
}

func (s *Session) isCurrentKey(key rangeKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.state.DateRange.key()
	return !s.closed && ok && current == key
}

// applyPreview stores a resolved fetch if its key is still the current one
// and no newer fetch for that key has already been applied.
func (s *Session) applyPreview(r DateRange, key rangeKey, token uint64, preview *shopping.Preview, err error, started time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.state.DateRange.key()
	if s.closed || !ok || current != key || token <= s.previewApplied {
		s.logger.Debug("stale preview discarded", zap.Stringer("range", r), zap.Uint64("token", token))
		s.record("preview", metrics.OutcomeSuppressed, started)
		return
	}
	s.previewApplied = token

	next := s.state
	if err != nil {
		s.logger.Warn("preview failed", zap.Stringer("range", r), zap.Error(err))
		s.record("preview", metrics.OutcomeFailure, started)
		next.Preview = PreviewState{OperationStatus: failed(&PreviewFetchError{Start: r.Start, End: r.End, Err: err})}
		s.commitLocked(next)
		return
	}

	fetchedAt := s.now()
	s.pruneCacheLocked(fetchedAt)
	s.cache[key] = cachedPreview{preview: preview, fetchedAt: fetchedAt}
	s.record("preview", metrics.OutcomeSuccess, started)
	next.Preview = PreviewState{OperationStatus: succeeded(), Preview: preview, FetchedAt: fetchedAt}
	s.commitLocked(next)
}

// pruneCacheLocked drops previews that are no longer fresh at now.
func (s *Session) pruneCacheLocked(now time.Time) {
	for key, c := range s.cache {
		if now.Sub(c.fetchedAt) >= s.freshness {
			delete(s.cache, key)
		}
	}
}
