package shopping

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// DateLayout is the ISO date format used on the wire.
const DateLayout = "2006-01-02"

// MealType tags an assignment slot in the diet plan.
type MealType string

const (
	MealBreakfast MealType = "breakfast"
	MealLunch     MealType = "lunch"
	MealDinner    MealType = "dinner"
	MealSnackAM   MealType = "snack_am"
	MealSnackPM   MealType = "snack_pm"
	MealSupper    MealType = "supper"
)

// MealTypes lists every known meal type in slot order.
var MealTypes = []MealType{MealBreakfast, MealLunch, MealDinner, MealSnackAM, MealSnackPM, MealSupper}

// Valid reports whether m is a known meal type.
func (m MealType) Valid() bool {
	for _, known := range MealTypes {
		if m == known {
			return true
		}
	}
	return false
}

// SortBy selects the server-side ordering of shopping list items.
type SortBy string

const (
	SortByIngredientName SortBy = "ingredient_name"
	SortByQuantity       SortBy = "quantity"
	SortByShopSuggestion SortBy = "shop_suggestion"
	SortByMealName       SortBy = "meal_name"
	SortByPlannedDate    SortBy = "planned_date"
)

// Valid reports whether s is a known sort key.
func (s SortBy) Valid() bool {
	switch s {
	case SortByIngredientName, SortByQuantity, SortByShopSuggestion, SortByMealName, SortByPlannedDate:
		return true
	}
	return false
}

// Date is a calendar day without time of day, encoded as YYYY-MM-DD.
type Date struct {
	time.Time
}

// NewDate returns the calendar day of year/month/day in UTC.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{t}, nil
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Timestamp is the generation time of a list. The backend sends either an
// ISO date or a full RFC 3339 timestamp.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("generated_at must be a string: %w", err)
	}
	for _, layout := range []string{time.RFC3339Nano, DateLayout} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("invalid generated_at %q", s)
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(time.RFC3339))
}

// Quantity is an aggregated amount kept in the backend's textual form.
// The backend sends it as a string, older deployments as a number.
type Quantity string

// UnmarshalJSON implements json.Unmarshaler.
func (q *Quantity) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*q = Quantity(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("total_quantity must be a string or number: %w", err)
	}
	*q = Quantity(n.String())
	return nil
}

// Float parses the quantity as a number.
func (q Quantity) Float() (float64, error) {
	return strconv.ParseFloat(string(q), 64)
}

// Item is a single aggregated ingredient on the list.
type Item struct {
	IngredientID   string   `json:"ingredient_id,omitempty"`
	IngredientName string   `json:"ingredient_name"`
	TotalQuantity  Quantity `json:"total_quantity"`
	Unit           string   `json:"unit"`
	Category       *string  `json:"category,omitempty"`
	EstimatedCost  *float64 `json:"estimated_cost,omitempty"`
	Notes          string   `json:"notes,omitempty"`
	ShopSuggestion *string  `json:"shop_suggestion,omitempty"`
	PlannedMeals   []string `json:"planned_meals,omitempty"`
	PlannedDates   []string `json:"planned_dates,omitempty"`
}

// Summary holds the list totals computed by the backend.
type Summary struct {
	DateRangeStart     Date     `json:"date_range_start"`
	DateRangeEnd       Date     `json:"date_range_end"`
	TotalItems         int      `json:"total_items"`
	TotalEstimatedCost *float64 `json:"total_estimated_cost,omitempty"`
	Categories         []string `json:"categories,omitempty"`
}

// ShoppingList is the authoritative list returned by generate.
type ShoppingList struct {
	Items       []Item    `json:"items"`
	Summary     Summary   `json:"summary"`
	GeneratedAt Timestamp `json:"generated_at"`
}

// GenerateRequest is the body of the generate and export calls.
// Build it with NewGenerateRequest.
type GenerateRequest struct {
	StartDate        Date       `json:"start_date"`
	EndDate          Date       `json:"end_date"`
	ExcludeMealTypes []MealType `json:"exclude_meal_types,omitempty"`
	SortBy           SortBy     `json:"sort_by"`
}

// NewGenerateRequest derives the request for a date range and filters.
// The range must be complete.
func NewGenerateRequest(start, end Date, excluded []MealType, sortBy SortBy) GenerateRequest {
	if sortBy == "" {
		sortBy = SortByIngredientName
	}
	var exclude []MealType
	if len(excluded) > 0 {
		exclude = append(exclude, excluded...)
	}
	return GenerateRequest{
		StartDate:        start,
		EndDate:          end,
		ExcludeMealTypes: exclude,
		SortBy:           sortBy,
	}
}

// PlannedMeal is one meal assignment included in a preview.
type PlannedMeal struct {
	MealID          string `json:"meal_id"`
	MealName        string `json:"meal_name"`
	Servings        int    `json:"servings"`
	IngredientCount int    `json:"ingredient_count"`
}

// PreviewRange echoes the range a preview was computed for.
type PreviewRange struct {
	StartDate Date `json:"start_date"`
	EndDate   Date `json:"end_date"`
}

// Preview is the advisory summary of what a range would include.
// MealAssignments maps ISO date to meal type to the meals planned.
type Preview struct {
	DateRange       PreviewRange                          `json:"date_range"`
	MealAssignments map[string]map[MealType][]PlannedMeal `json:"meal_assignments"`
	TotalDays       int                                   `json:"total_days"`
}

// AssignmentCount returns the number of meal assignments in the preview.
func (p *Preview) AssignmentCount() int {
	if p == nil {
		return 0
	}
	n := 0
	for _, byType := range p.MealAssignments {
		for _, meals := range byType {
			n += len(meals)
		}
	}
	return n
}
