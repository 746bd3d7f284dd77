// Package export turns a generated shopping list into text and printable
// documents. Nothing here performs I/O.
package export

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"shopping-planner/internal/shopping"
)

// ErrNoListAvailable is returned when there is no generated list to format.
var ErrNoListAvailable = errors.New("no shopping list has been generated")

const timestampLayout = "2006-01-02 15:04 MST"

// ItemLine formats a single item as "<name>: <quantity> <unit>", followed by
// " (at <shop>)" when the backend suggested a shop.
func ItemLine(item shopping.Item) string {
	line := fmt.Sprintf("%s: %s %s", item.IngredientName, item.TotalQuantity, item.Unit)
	if item.ShopSuggestion != nil && *item.ShopSuggestion != "" {
		line += fmt.Sprintf(" (at %s)", *item.ShopSuggestion)
	}
	return line
}

// ToPlainText returns one line per item in the order the backend sorted them.
func ToPlainText(list *shopping.ShoppingList) (string, error) {
	if list == nil {
		return "", ErrNoListAvailable
	}
	lines := make([]string, len(list.Items))
	for i, item := range list.Items {
		lines[i] = ItemLine(item)
	}
	return strings.Join(lines, "\n"), nil
}

var documentTmpl = template.Must(template.New("shopping-list").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Shopping List {{.Start}} to {{.End}}</title>
</head>
<body>
<header>
<h1>Shopping List</h1>
<p class="date-range">{{.Start}} to {{.End}}</p>
<p class="generated-at">Generated {{.GeneratedAt}}</p>
<p class="total-items">Total items: {{.TotalItems}}</p>
{{- if .TotalCost}}
<p class="total-cost">Estimated cost: {{.TotalCost}}</p>
{{- end}}
{{- if .SortBy}}
<p class="sort-by">Sorted by: {{.SortBy}}</p>
{{- end}}
{{- if .Excluded}}
<p class="excluded">Excluded meals: {{.Excluded}}</p>
{{- end}}
</header>
<ol class="items">
{{- range .Lines}}
<li>{{.}}</li>
{{- end}}
</ol>
</body>
</html>
`))

type document struct {
	Start       string
	End         string
	GeneratedAt string
	TotalItems  int
	TotalCost   string
	SortBy      string
	Excluded    string
	Lines       []string
}

// ToPrintableDocument renders a self-contained HTML document for printing.
// When req is set the header also names the sort order and exclusions that
// produced the list.
func ToPrintableDocument(list *shopping.ShoppingList, req *shopping.GenerateRequest) (string, error) {
	if list == nil {
		return "", ErrNoListAvailable
	}

	doc := document{
		Start:       list.Summary.DateRangeStart.String(),
		End:         list.Summary.DateRangeEnd.String(),
		GeneratedAt: list.GeneratedAt.UTC().Format(timestampLayout),
		TotalItems:  list.Summary.TotalItems,
		Lines:       make([]string, len(list.Items)),
	}
	if cost := list.Summary.TotalEstimatedCost; cost != nil {
		doc.TotalCost = fmt.Sprintf("%.2f", *cost)
	}
	if req != nil {
		doc.SortBy = strings.ReplaceAll(string(req.SortBy), "_", " ")
		excluded := make([]string, len(req.ExcludeMealTypes))
		for i, m := range req.ExcludeMealTypes {
			excluded[i] = string(m)
		}
		doc.Excluded = strings.Join(excluded, ", ")
	}
	for i, item := range list.Items {
		doc.Lines[i] = ItemLine(item)
	}

	var buf bytes.Buffer
	if err := documentTmpl.Execute(&buf, doc); err != nil {
		return "", fmt.Errorf("failed to render shopping list document: %w", err)
	}
	return buf.String(), nil
}
