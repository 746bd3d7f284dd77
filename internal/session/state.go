package session

import (
	"fmt"
	"slices"
	"time"

	"shopping-planner/internal/shopping"
)

// DateRange is the user's selection. A zero date means the bound has not
// been picked yet.
type DateRange struct {
	Start shopping.Date
	End   shopping.Date
}

// NewDateRange returns a range with both bounds set.
func NewDateRange(start, end shopping.Date) DateRange {
	return DateRange{Start: start, End: end}
}

// Complete reports whether both bounds are set and Start <= End.
func (r DateRange) Complete() bool {
	return !r.Start.IsZero() && !r.End.IsZero() && !r.Start.After(r.End.Time)
}

// Equal compares two ranges by calendar day.
func (r DateRange) Equal(o DateRange) bool {
	return sameDay(r.Start, o.Start) && sameDay(r.End, o.End)
}

func (r DateRange) String() string {
	return fmt.Sprintf("%s..%s", formatBound(r.Start), formatBound(r.End))
}

// Validate explains why the range is not complete.
func (r DateRange) Validate() error {
	switch {
	case r.Start.IsZero():
		return &ValidationError{Field: "start_date", Reason: "not selected"}
	case r.End.IsZero():
		return &ValidationError{Field: "end_date", Reason: "not selected"}
	case r.Start.After(r.End.Time):
		return &ValidationError{Field: "date_range", Reason: fmt.Sprintf("start %s is after end %s", r.Start, r.End)}
	}
	return nil
}

// rangeKey identifies a complete range for preview correlation.
type rangeKey struct {
	start, end string
}

func (r DateRange) key() (rangeKey, bool) {
	if !r.Complete() {
		return rangeKey{}, false
	}
	return rangeKey{start: r.Start.String(), end: r.End.String()}, true
}

func sameDay(a, b shopping.Date) bool {
	if a.IsZero() || b.IsZero() {
		return a.IsZero() == b.IsZero()
	}
	return a.String() == b.String()
}

func formatBound(d shopping.Date) string {
	if d.IsZero() {
		return "?"
	}
	return d.String()
}

// Filters narrow the next generation. They never affect a list already
// generated.
type Filters struct {
	ExcludeMealTypes []shopping.MealType
	SortBy           shopping.SortBy
}

// DefaultFilters excludes nothing and sorts by ingredient name.
func DefaultFilters() Filters {
	return Filters{SortBy: shopping.SortByIngredientName}
}

func (f Filters) validate() error {
	for _, m := range f.ExcludeMealTypes {
		if !m.Valid() {
			return &ValidationError{Field: "exclude_meal_types", Reason: fmt.Sprintf("unknown meal type %q", m)}
		}
	}
	if f.SortBy != "" && !f.SortBy.Valid() {
		return &ValidationError{Field: "sort_by", Reason: fmt.Sprintf("unknown sort key %q", f.SortBy)}
	}
	return nil
}

func (f Filters) clone() Filters {
	f.ExcludeMealTypes = slices.Clone(f.ExcludeMealTypes)
	if f.SortBy == "" {
		f.SortBy = shopping.SortByIngredientName
	}
	return f
}

// Phase is the lifecycle position of an operation.
type Phase int

const (
	Idle Phase = iota
	Pending
	Succeeded
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// OperationStatus is the state of one operation slot. Err is set only when
// Phase is Failed.
type OperationStatus struct {
	Phase Phase
	Err   error
}

func (s OperationStatus) String() string {
	if s.Phase == Failed && s.Err != nil {
		return fmt.Sprintf("failed: %v", s.Err)
	}
	return s.Phase.String()
}

func pending() OperationStatus   { return OperationStatus{Phase: Pending} }
func succeeded() OperationStatus { return OperationStatus{Phase: Succeeded} }

func failed(err error) OperationStatus {
	return OperationStatus{Phase: Failed, Err: err}
}

// PreviewState is the advisory preview for the current range.
type PreviewState struct {
	OperationStatus
	Preview   *shopping.Preview
	FetchedAt time.Time
}

// GeneratedList is a successful generation together with the request that
// produced it, so exports are labelled with the filters actually used.
type GeneratedList struct {
	List    *shopping.ShoppingList
	Request shopping.GenerateRequest
}

// State is an immutable snapshot of the session. Lists and previews it
// points to are shared and must be treated as read-only.
type State struct {
	DateRange  DateRange
	Filters    Filters
	List       *GeneratedList
	Preview    PreviewState
	Generation OperationStatus
	Export     OperationStatus
}

func initialState() State {
	return State{Filters: DefaultFilters()}
}

// HasList reports whether a generated list is available for export.
func (s State) HasList() bool {
	return s.List != nil && s.List.List != nil
}

func (s State) clone() State {
	s.Filters = s.Filters.clone()
	return s
}

// withDateRange returns the state after the range changed to r. The caller
// fills in the preview slot.
func (s State) withDateRange(r DateRange) State {
	s.DateRange = r
	s.List = nil
	s.Preview = PreviewState{}
	s.Generation = OperationStatus{}
	s.Export = OperationStatus{}
	return s
}

func (s State) withFilters(f Filters) State {
	s.Filters = f.clone()
	return s
}
