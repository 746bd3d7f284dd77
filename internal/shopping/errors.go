package shopping

import (
	"errors"
	"fmt"
)

// ErrNoMealPlans is returned when the backend finds nothing to shop for in
// the requested range.
var ErrNoMealPlans = errors.New("no meal plans found for the date range")

// APIError is a non-2xx response from the shopping backend.
type APIError struct {
	Op         string
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: shopping api error: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: shopping api error: status %d: %s", e.Op, e.StatusCode, e.Detail)
}

// Is lets 404 responses match ErrNoMealPlans.
func (e *APIError) Is(target error) bool {
	return target == ErrNoMealPlans && e.StatusCode == 404
}
