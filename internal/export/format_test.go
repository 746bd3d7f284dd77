package export

import (
	"errors"
	"strings"
	"testing"
	"time"

	"shopping-planner/internal/shopping"

	"github.com/PuerkitoBio/goquery"
)

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }

func milkList() *shopping.ShoppingList {
	return &shopping.ShoppingList{
		Items: []shopping.Item{
			{IngredientName: "Milk", TotalQuantity: "2", Unit: "L"},
		},
		Summary: shopping.Summary{
			DateRangeStart: shopping.NewDate(2024, 1, 1),
			DateRangeEnd:   shopping.NewDate(2024, 1, 7),
			TotalItems:     1,
		},
		GeneratedAt: shopping.Timestamp{Time: time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)},
	}
}

func TestToPlainText(t *testing.T) {
	t.Run("SingleItem", func(t *testing.T) {
		text, err := ToPlainText(milkList())
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if text != "Milk: 2 L" {
			t.Errorf("Expected 'Milk: 2 L', got '%s'", text)
		}
	})

	t.Run("ShopSuggestionAndOrder", func(t *testing.T) {
		list := milkList()
		list.Items = []shopping.Item{
			{IngredientName: "Zucchini", TotalQuantity: "3", Unit: "piece", ShopSuggestion: strPtr("Market")},
			{IngredientName: "Apples", TotalQuantity: "1.5", Unit: "kg"},
		}
		text, err := ToPlainText(list)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		expected := "Zucchini: 3 piece (at Market)\nApples: 1.5 kg"
		if text != expected {
			t.Errorf("Expected %q, got %q", expected, text)
		}
	})

	t.Run("NoList", func(t *testing.T) {
		if _, err := ToPlainText(nil); !errors.Is(err, ErrNoListAvailable) {
			t.Errorf("Expected ErrNoListAvailable, got %v", err)
		}
	})

	t.Run("Pure", func(t *testing.T) {
		list := milkList()
		first, _ := ToPlainText(list)
		second, _ := ToPlainText(list)
		if first != second {
			t.Errorf("Expected identical output, got %q and %q", first, second)
		}
	})
}

func TestToPrintableDocument(t *testing.T) {
	t.Run("Header", func(t *testing.T) {
		list := milkList()
		list.Summary.TotalEstimatedCost = floatPtr(12.5)
		req := shopping.NewGenerateRequest(list.Summary.DateRangeStart, list.Summary.DateRangeEnd,
			[]shopping.MealType{shopping.MealSnackAM, shopping.MealSupper}, shopping.SortByShopSuggestion)

		out, err := ToPrintableDocument(list, &req)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(out))
		if err != nil {
			t.Fatalf("Failed to parse document: %v", err)
		}

		if got := doc.Find("p.date-range").Text(); got != "2024-01-01 to 2024-01-07" {
			t.Errorf("Unexpected date range %q", got)
		}
		if got := doc.Find("p.generated-at").Text(); got != "Generated 2024-01-08 00:00 UTC" {
			t.Errorf("Unexpected generation timestamp %q", got)
		}
		if got := doc.Find("p.total-items").Text(); got != "Total items: 1" {
			t.Errorf("Unexpected total items %q", got)
		}
		if got := doc.Find("p.total-cost").Text(); got != "Estimated cost: 12.50" {
			t.Errorf("Unexpected total cost %q", got)
		}
		if got := doc.Find("p.sort-by").Text(); got != "Sorted by: shop suggestion" {
			t.Errorf("Unexpected sort label %q", got)
		}
		if got := doc.Find("p.excluded").Text(); got != "Excluded meals: snack_am, supper" {
			t.Errorf("Unexpected exclusions %q", got)
		}
		items := doc.Find("ol.items li")
		if items.Length() != 1 || items.First().Text() != "Milk: 2 L" {
			t.Errorf("Expected one item 'Milk: 2 L', got %d items: %q", items.Length(), items.Text())
		}
	})

	t.Run("OptionalFieldsOmitted", func(t *testing.T) {
		out, err := ToPrintableDocument(milkList(), nil)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(out))
		if err != nil {
			t.Fatalf("Failed to parse document: %v", err)
		}
		for _, sel := range []string{"p.total-cost", "p.sort-by", "p.excluded"} {
			if doc.Find(sel).Length() != 0 {
				t.Errorf("Expected %s to be omitted", sel)
			}
		}
	})

	t.Run("EscapesItemNames", func(t *testing.T) {
		list := milkList()
		list.Items[0].IngredientName = "<script>alert(1)</script>"
		out, err := ToPrintableDocument(list, nil)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if strings.Contains(out, "<script>") {
			t.Error("Expected item names to be escaped")
		}
	})

	t.Run("NoList", func(t *testing.T) {
		if _, err := ToPrintableDocument(nil, nil); !errors.Is(err, ErrNoListAvailable) {
			t.Errorf("Expected ErrNoListAvailable, got %v", err)
		}
	})

	t.Run("Pure", func(t *testing.T) {
		list := milkList()
		first, _ := ToPrintableDocument(list, nil)
		second, _ := ToPrintableDocument(list, nil)
		if first != second {
			t.Error("Expected identical documents for the same list")
		}
	})
}
