package session

import (
	"context"
	"time"

	"shopping-planner/internal/metrics"
	"shopping-planner/internal/shopping"

	"go.uber.org/zap"
)

// Generate requests the authoritative shopping list for the current range
// and filters. Only one generation may be outstanding; a second call
// returns ErrGenerationInProgress without contacting the backend. On
// failure the previously generated list is kept.
func (s *Session) Generate(ctx context.Context) (*GeneratedList, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if err := s.state.DateRange.Validate(); err != nil {
		next := s.state
		next.Generation = failed(err)
		s.commitLocked(next)
		s.mu.Unlock()
		return nil, err
	}
	if s.genInFlight {
		s.mu.Unlock()
		return nil, ErrGenerationInProgress
	}

	req := s.requestLocked()
	s.genInFlight = true
	s.genToken++
	token := s.genToken
	next := s.state
	next.Generation = pending()
	s.commitLocked(next)
	s.mu.Unlock()

	s.logger.Info("generating shopping list",
		zap.Stringer("start", req.StartDate),
		zap.Stringer("end", req.EndDate),
		zap.String("sort_by", string(req.SortBy)),
	)
	started := time.Now()
	list, err := s.svc.Generate(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.genInFlight = false

	if token != s.genToken {
		s.logger.Debug("superseded generation discarded", zap.Uint64("token", token))
		s.record("generate", metrics.OutcomeSuppressed, started)
		if s.state.Generation.Phase == Pending {
			next = s.state
			next.Generation = OperationStatus{}
			s.commitLocked(next)
		}
		return nil, ErrSuperseded
	}

	next = s.state
	if err != nil {
		genErr := &GenerationError{Request: req, Err: err}
		s.logger.Warn("shopping list generation failed", zap.Error(err))
		s.record("generate", metrics.OutcomeFailure, started)
		next.Generation = failed(genErr)
		s.commitLocked(next)
		return nil, genErr
	}

	generated := &GeneratedList{List: list, Request: req}
	s.record("generate", metrics.OutcomeSuccess, started)
	s.logger.Info("shopping list generated", zap.Int("items", len(list.Items)))
	next.List = generated
	next.Generation = succeeded()
	next.Export = OperationStatus{}
	s.commitLocked(next)
	return generated, nil
}

// ExportShoppingList asks the backend for the text export of the list that
// was generated, using the exact request that produced it.
func (s *Session) ExportShoppingList(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrClosed
	}
	if !s.state.HasList() {
		s.mu.Unlock()
		return "", ErrNoListAvailable
	}
	req := s.state.List.Request
	s.exportToken++
	token := s.exportToken
	next := s.state
	next.Export = pending()
	s.commitLocked(next)
	s.mu.Unlock()

	started := time.Now()
	text, err := s.svc.ExportText(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	if token != s.exportToken {
		s.record("export", metrics.OutcomeSuppressed, started)
		return "", ErrSuperseded
	}

	next = s.state
	if err != nil {
		exportErr := &ExportError{Err: err}
		s.logger.Warn("shopping list export failed", zap.Error(err))
		s.record("export", metrics.OutcomeFailure, started)
		next.Export = failed(exportErr)
		s.commitLocked(next)
		return "", exportErr
	}

	s.record("export", metrics.OutcomeSuccess, started)
	next.Export = succeeded()
	s.commitLocked(next)
	return text, nil
}

// requestLocked derives the generate request from the current range and
// filters. s.mu must be held and the range must be complete.
func (s *Session) requestLocked() shopping.GenerateRequest {
	f := s.state.Filters
	return shopping.NewGenerateRequest(s.state.DateRange.Start, s.state.DateRange.End, f.ExcludeMealTypes, f.SortBy)
}
