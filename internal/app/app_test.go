package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"shopping-planner/internal/config"
	"shopping-planner/internal/metrics"
	"shopping-planner/internal/session"
	"shopping-planner/internal/shopping"
	"shopping-planner/internal/storage"

	"go.uber.org/zap"
)

type mockService struct {
	generateErr error
	requests    []shopping.GenerateRequest
}

func (m *mockService) Preview(ctx context.Context, start, end shopping.Date) (*shopping.Preview, error) {
	return &shopping.Preview{
		DateRange: shopping.PreviewRange{StartDate: start, EndDate: end},
		MealAssignments: map[string]map[shopping.MealType][]shopping.PlannedMeal{
			"2024-01-02": {shopping.MealDinner: {{MealName: "Curry", Servings: 4}}},
			"2024-01-01": {shopping.MealBreakfast: {{MealName: "Porridge", Servings: 2}}},
		},
		TotalDays: 7,
	}, nil
}

func (m *mockService) Generate(ctx context.Context, req shopping.GenerateRequest) (*shopping.ShoppingList, error) {
	m.requests = append(m.requests, req)
	if m.generateErr != nil {
		return nil, m.generateErr
	}
	cost := 3.456
	shop := "Dairy Barn"
	return &shopping.ShoppingList{
		Items: []shopping.Item{
			{IngredientName: "Milk", TotalQuantity: "2", Unit: "L", ShopSuggestion: &shop},
			{IngredientName: "Oats", TotalQuantity: "500", Unit: "g"},
		},
		Summary: shopping.Summary{
			DateRangeStart:     req.StartDate,
			DateRangeEnd:       req.EndDate,
			TotalItems:         2,
			TotalEstimatedCost: &cost,
		},
		GeneratedAt: shopping.Timestamp{Time: time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)},
	}, nil
}

func (m *mockService) ExportText(ctx context.Context, req shopping.GenerateRequest) (string, error) {
	return "SHOPPING LIST\nMilk: 2 L", nil
}

func newTestApp(t *testing.T, svc shopping.Service) (*App, *bytes.Buffer) {
	t.Helper()
	docs, err := storage.NewDocumentStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create document store: %v", err)
	}
	cfg := &config.Config{PreviewFreshness: 5 * time.Minute}
	a := NewApp(svc, docs, metrics.NewStore(100), cfg, zap.NewNop())
	var out bytes.Buffer
	a.SetOutput(&out)
	return a, &out
}

func week() session.DateRange {
	r, _ := ParseRange("2024-01-01", "2024-01-07")
	return r
}

func TestGenerateShoppingList(t *testing.T) {
	svc := &mockService{}
	a, out := newTestApp(t, svc)

	filters := session.Filters{ExcludeMealTypes: []shopping.MealType{shopping.MealSupper}, SortBy: shopping.SortByShopSuggestion}
	if err := a.GenerateShoppingList(context.Background(), week(), filters); err != nil {
		t.Fatalf("GenerateShoppingList failed: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"=== SHOPPING LIST 2024-01-01..2024-01-07 ===",
		"Milk: 2 L (at Dairy Barn)\nOats: 500 g",
		"Total items: 2",
		"Estimated cost: 3.46",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, got)
		}
	}
	if len(svc.requests) != 1 || svc.requests[0].SortBy != shopping.SortByShopSuggestion {
		t.Errorf("Expected one request sorted by shop, got %+v", svc.requests)
	}
}

func TestGenerateShoppingListErrors(t *testing.T) {
	t.Run("IncompleteRange", func(t *testing.T) {
		svc := &mockService{}
		a, _ := newTestApp(t, svc)
		r, _ := ParseRange("2024-01-01", "")

		err := a.GenerateShoppingList(context.Background(), r, session.DefaultFilters())
		var vErr *session.ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("Expected ValidationError, got %v", err)
		}
		if len(svc.requests) != 0 {
			t.Errorf("Expected no requests, got %d", len(svc.requests))
		}
	})

	t.Run("BackendFailure", func(t *testing.T) {
		a, _ := newTestApp(t, &mockService{generateErr: errors.New("boom")})
		err := a.GenerateShoppingList(context.Background(), week(), session.DefaultFilters())
		var gErr *session.GenerationError
		if !errors.As(err, &gErr) {
			t.Fatalf("Expected GenerationError, got %v", err)
		}
	})
}

func TestExportShoppingList(t *testing.T) {
	a, out := newTestApp(t, &mockService{})
	if err := a.ExportShoppingList(context.Background(), week(), session.DefaultFilters()); err != nil {
		t.Fatalf("ExportShoppingList failed: %v", err)
	}
	if out.String() != "SHOPPING LIST\nMilk: 2 L\n" {
		t.Errorf("Unexpected export output %q", out.String())
	}
}

func TestPrintShoppingList(t *testing.T) {
	a, out := newTestApp(t, &mockService{})
	if err := a.PrintShoppingList(context.Background(), week(), session.DefaultFilters()); err != nil {
		t.Fatalf("PrintShoppingList failed: %v", err)
	}

	path := strings.TrimPrefix(strings.TrimSpace(out.String()), "Printable shopping list written to ")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Expected document at %s: %v", path, err)
	}
	if !strings.Contains(string(data), "<li>Oats: 500 g</li>") {
		t.Errorf("Expected document to list the items, got:\n%s", data)
	}
}

func TestPreview(t *testing.T) {
	a, out := newTestApp(t, &mockService{})
	if err := a.Preview(context.Background(), week()); err != nil {
		t.Fatalf("Preview failed: %v", err)
	}

	got := out.String()
	if !strings.Contains(got, "Days: 7, meal assignments: 2") {
		t.Errorf("Unexpected preview header:\n%s", got)
	}
	if strings.Index(got, "Porridge") > strings.Index(got, "Curry") {
		t.Errorf("Expected assignments in date order:\n%s", got)
	}

	if err := a.Preview(context.Background(), session.DateRange{}); err == nil {
		t.Error("Expected an error for an empty range")
	}
}

func TestParseRange(t *testing.T) {
	r, err := ParseRange("2024-01-01", "2024-01-07")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !r.Complete() {
		t.Error("Expected a complete range")
	}
	if _, err := ParseRange("01/01/2024", ""); err == nil {
		t.Error("Expected an error for a malformed date")
	}
}

func TestPrintMetrics(t *testing.T) {
	a, out := newTestApp(t, &mockService{})
	if err := a.GenerateShoppingList(context.Background(), week(), session.DefaultFilters()); err != nil {
		t.Fatalf("GenerateShoppingList failed: %v", err)
	}
	out.Reset()
	a.PrintMetrics()
	if !strings.Contains(out.String(), "generate calls=1 failures=0") {
		t.Errorf("Expected generate metrics, got:\n%s", out.String())
	}
}
