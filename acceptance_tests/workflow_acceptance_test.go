package acceptance_tests

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"shopping-planner/internal/config"
	"shopping-planner/internal/metrics"
	"shopping-planner/internal/session"
	"shopping-planner/internal/shopping"
	"shopping-planner/internal/storage"

	"github.com/PuerkitoBio/goquery"
)

// --- Fake backend ---
type backend struct {
	mu    sync.Mutex
	calls map[string]int
	last  shopping.GenerateRequest
}

func (b *backend) count(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[path]
}

func (b *backend) lastRequest() shopping.GenerateRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.calls[r.URL.Path]++
	b.mu.Unlock()

	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"detail":"Not authenticated"}`)
		return
	}

	switch r.URL.Path {
	case "/api/v1/shopping/preview":
		start := r.URL.Query().Get("start_date")
		fmt.Fprintf(w, `{
			"date_range": {"start_date": %q, "end_date": %q},
			"meal_assignments": {%q: {"dinner": [{"meal_id": "m1", "meal_name": "Pancakes", "servings": 2, "ingredient_count": 3}]}},
			"total_days": 7
		}`, start, r.URL.Query().Get("end_date"), start)
	case "/api/v1/shopping/generate":
		var req shopping.GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusUnprocessableEntity)
			fmt.Fprintf(w, `{"detail":%q}`, err.Error())
			return
		}
		b.mu.Lock()
		b.last = req
		b.mu.Unlock()
		fmt.Fprintf(w, `{
			"items": [
				{"ingredient_id": "i1", "ingredient_name": "Milk", "total_quantity": 2, "unit": "L", "shop_suggestion": "Dairy Barn", "planned_meals": ["Pancakes"]},
				{"ingredient_id": "i2", "ingredient_name": "Flour", "total_quantity": "0.5", "unit": "kg"}
			],
			"summary": {"date_range_start": %q, "date_range_end": %q, "total_items": 2, "total_estimated_cost": 4.5, "categories": ["dairy"]},
			"generated_at": "2024-01-08T09:30:00Z"
		}`, req.StartDate, req.EndDate)
	case "/api/v1/shopping/export/text":
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "SHOPPING LIST\nMilk: 2 L\nFlour: 0.5 kg")
	default:
		http.NotFound(w, r)
	}
}

// --- Acceptance Test ---
func TestFullWorkflow(t *testing.T) {
	ctx := context.Background()

	be := &backend{calls: make(map[string]int)}
	server := httptest.NewServer(be)
	defer server.Close()

	// 1. Real client against the fake backend
	cfg := &config.Config{
		APIURL:      server.URL,
		APISecret:   "acceptance-secret",
		HTTPTimeout: 5 * time.Second,
	}
	store := metrics.NewStore(100)
	s := session.New(shopping.NewClient(cfg, nil), session.Options{Metrics: store})
	defer s.Close()

	start, _ := shopping.ParseDate("2024-01-01")
	end, _ := shopping.ParseDate("2024-01-07")
	week := session.NewDateRange(start, end)

	// --- Step 1: Preview and caching ---
	t.Log("--- Step 1: Preview ---")
	s.SetDateRange(week)
	s.Wait()

	st := s.State()
	if st.Preview.Phase != session.Succeeded || st.Preview.Preview.AssignmentCount() != 1 {
		t.Fatalf("Expected a successful preview, got %s", st.Preview.OperationStatus)
	}

	other := session.NewDateRange(end, end)
	s.SetDateRange(other)
	s.Wait()
	s.SetDateRange(week)
	s.Wait()

	if got := be.count("/api/v1/shopping/preview"); got != 2 {
		t.Errorf("Expected cached preview on return to the week, got %d fetches", got)
	}
	if s.State().Preview.Preview.DateRange.StartDate.String() != "2024-01-01" {
		t.Errorf("Expected the week's preview to be current")
	}

	// --- Step 2: Generation ---
	t.Log("--- Step 2: Generating Shopping List ---")
	if err := s.SetFilters(session.Filters{
		ExcludeMealTypes: []shopping.MealType{shopping.MealSnackAM},
		SortBy:           shopping.SortByShopSuggestion,
	}); err != nil {
		t.Fatalf("SetFilters failed: %v", err)
	}
	generated, err := s.Generate(ctx)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if last := be.lastRequest(); last.SortBy != shopping.SortByShopSuggestion || len(last.ExcludeMealTypes) != 1 {
		t.Errorf("Expected filters sent to the backend, got %+v", last)
	}
	if q := generated.List.Items[1].TotalQuantity; q != "0.5" {
		t.Errorf("Expected string quantity kept verbatim, got %q", q)
	}

	text, err := s.PlainText()
	if err != nil {
		t.Fatalf("PlainText failed: %v", err)
	}
	if text != "Milk: 2 L (at Dairy Barn)\nFlour: 0.5 kg" {
		t.Errorf("Unexpected plain text:\n%s", text)
	}

	// --- Step 3: Export ---
	t.Log("--- Step 3: Exporting ---")
	exported, err := s.ExportShoppingList(ctx)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if !strings.HasPrefix(exported, "SHOPPING LIST") {
		t.Errorf("Unexpected export %q", exported)
	}
	if s.State().Export.Phase != session.Succeeded {
		t.Errorf("Expected export to succeed, got %s", s.State().Export)
	}

	// --- Step 4: Print and store ---
	t.Log("--- Step 4: Printing ---")
	doc, err := s.PrintShoppingList()
	if err != nil {
		t.Fatalf("Print failed: %v", err)
	}
	dom, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Failed to parse document: %v", err)
	}
	if got := dom.Find("ol.items li").Length(); got != 2 {
		t.Errorf("Expected 2 items in the document, got %d", got)
	}
	if got := dom.Find("p.total-cost").Text(); got != "Estimated cost: 4.50" {
		t.Errorf("Unexpected total cost %q", got)
	}
	if got := dom.Find("p.excluded").Text(); got != "Excluded meals: snack_am" {
		t.Errorf("Unexpected exclusions %q", got)
	}

	documents, err := storage.NewDocumentStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create document store: %v", err)
	}
	path, err := documents.Save(generated.List, doc)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !documents.Exists(generated.List) {
		t.Error("Expected saved document to exist")
	}
	if saved, err := os.ReadFile(path); err != nil || string(saved) != doc {
		t.Errorf("Expected saved document to match, err=%v", err)
	}

	// --- Step 5: Range change clears the list ---
	t.Log("--- Step 5: Changing range ---")
	s.SetDateRange(other)
	s.Wait()
	if s.State().HasList() {
		t.Error("Expected the list to be cleared by a range change")
	}
	if _, err := s.PrintShoppingList(); err != session.ErrNoListAvailable {
		t.Errorf("Expected ErrNoListAvailable, got %v", err)
	}

	// --- Step 6: Metrics ---
	usage := store.Summary()
	if len(usage) != 3 {
		t.Fatalf("Expected metrics for 3 operations, got %+v", usage)
	}
	for _, u := range usage {
		if u.Failures != 0 {
			t.Errorf("Expected no failures for %s, got %d", u.Operation, u.Failures)
		}
	}
}

func TestUnauthenticatedBackendFailsGeneration(t *testing.T) {
	be := &backend{calls: make(map[string]int)}
	server := httptest.NewServer(be)
	defer server.Close()

	cfg := &config.Config{APIURL: server.URL, HTTPTimeout: 5 * time.Second}
	s := session.New(shopping.NewClient(cfg, nil), session.Options{})
	defer s.Close()

	start, _ := shopping.ParseDate("2024-01-01")
	s.SetDateRange(session.NewDateRange(start, start))
	s.Wait()

	if s.State().Preview.Phase != session.Failed {
		t.Errorf("Expected preview failure, got %s", s.State().Preview.OperationStatus)
	}

	_, err := s.Generate(context.Background())
	if err == nil {
		t.Fatal("Expected generation to fail")
	}
	var apiErr *shopping.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized || apiErr.Detail != "Not authenticated" {
		t.Errorf("Expected 401 APIError, got %v", err)
	}
	if s.State().HasList() {
		t.Error("Expected no list after a failed generation")
	}
}
