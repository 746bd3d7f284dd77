package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"shopping-planner/internal/config"
	"shopping-planner/internal/metrics"
	"shopping-planner/internal/session"
	"shopping-planner/internal/shopping"
	"shopping-planner/internal/storage"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// App holds the application's dependencies.
type App struct {
	service      shopping.Service
	documents    *storage.DocumentStore
	metricsStore *metrics.Store
	cfg          *config.Config
	logger       *zap.Logger
	out          io.Writer
}

// NewApp creates and initializes a new App instance.
func NewApp(
	service shopping.Service,
	documents *storage.DocumentStore,
	metricsStore *metrics.Store,
	cfg *config.Config,
	logger *zap.Logger,
) *App {
	return &App{
		service:      service,
		documents:    documents,
		metricsStore: metricsStore,
		cfg:          cfg,
		logger:       logger,
		out:          os.Stdout,
	}
}

// SetOutput redirects command output.
func (a *App) SetOutput(w io.Writer) {
	a.out = w
}

// NewSession builds a planning session wired to the app's backend, metrics
// and preview settings.
func (a *App) NewSession() *session.Session {
	return session.New(a.service, SessionOptions(a.cfg, a.logger, a.metricsStore))
}

// SessionOptions maps configuration onto session options.
func SessionOptions(cfg *config.Config, logger *zap.Logger, store *metrics.Store) session.Options {
	limit := rate.Inf
	if cfg.PreviewRatePerSec > 0 {
		limit = rate.Limit(cfg.PreviewRatePerSec)
	}
	burst := cfg.PreviewBurst
	if burst < 1 {
		burst = 1
	}
	return session.Options{
		Freshness: cfg.PreviewFreshness,
		Limiter:   rate.NewLimiter(limit, burst),
		Logger:    logger,
		Metrics:   store,
	}
}

// Preview prints the meal assignments a list for r would cover.
func (a *App) Preview(ctx context.Context, r session.DateRange) error {
	s := a.NewSession()
	defer s.Close()

	if err := r.Validate(); err != nil {
		return fmt.Errorf("cannot preview: %w", err)
	}
	s.SetDateRange(r)
	s.Wait()

	st := s.State().Preview
	if st.Phase == session.Failed {
		return st.Err
	}
	if st.Preview == nil {
		return fmt.Errorf("no preview available for %s", r)
	}

	fmt.Fprintf(a.out, "=== PREVIEW %s ===\n", r)
	fmt.Fprintf(a.out, "Days: %d, meal assignments: %d\n", st.Preview.TotalDays, st.Preview.AssignmentCount())

	days := make([]string, 0, len(st.Preview.MealAssignments))
	for day := range st.Preview.MealAssignments {
		days = append(days, day)
	}
	sort.Strings(days)
	for _, day := range days {
		byType := st.Preview.MealAssignments[day]
		for _, mealType := range shopping.MealTypes {
			for _, meal := range byType[mealType] {
				fmt.Fprintf(a.out, "%s %-9s %s (%d servings)\n", day, mealType, meal.MealName, meal.Servings)
			}
		}
	}
	return nil
}

// GenerateShoppingList generates the list for r and f and prints it.
func (a *App) GenerateShoppingList(ctx context.Context, r session.DateRange, f session.Filters) error {
	s, generated, err := a.generate(ctx, r, f)
	if err != nil {
		return err
	}
	defer s.Close()

	text, err := s.PlainText()
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "=== SHOPPING LIST %s..%s ===\n", generated.Request.StartDate, generated.Request.EndDate)
	fmt.Fprintln(a.out, text)
	summary := generated.List.Summary
	fmt.Fprintf(a.out, "\nTotal items: %d\n", summary.TotalItems)
	if summary.TotalEstimatedCost != nil {
		fmt.Fprintf(a.out, "Estimated cost: %.2f\n", *summary.TotalEstimatedCost)
	}
	return nil
}

// ExportShoppingList prints the backend's text export for r and f.
func (a *App) ExportShoppingList(ctx context.Context, r session.DateRange, f session.Filters) error {
	s, _, err := a.generate(ctx, r, f)
	if err != nil {
		return err
	}
	defer s.Close()

	text, err := s.ExportShoppingList(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, text)
	return nil
}

// PrintShoppingList renders the printable document for r and f and saves it.
func (a *App) PrintShoppingList(ctx context.Context, r session.DateRange, f session.Filters) error {
	if a.documents == nil {
		return fmt.Errorf("no output directory configured")
	}
	s, generated, err := a.generate(ctx, r, f)
	if err != nil {
		return err
	}
	defer s.Close()

	doc, err := s.PrintShoppingList()
	if err != nil {
		return err
	}
	path, err := a.documents.Save(generated.List, doc)
	if err != nil {
		return fmt.Errorf("failed to save printable document: %w", err)
	}
	fmt.Fprintf(a.out, "Printable shopping list written to %s\n", path)
	return nil
}

// PrintMetrics prints request totals collected by this process.
func (a *App) PrintMetrics() {
	health := metrics.GetSysHealth()
	fmt.Fprintf(a.out, "Goroutines: %d, RAM: %dMB, uptime %s\n", health.Goroutines, health.AllocMB, health.Uptime)
	for _, u := range a.metricsStore.Summary() {
		fmt.Fprintf(a.out, "%-8s calls=%d failures=%d suppressed=%d avg=%s\n",
			u.Operation, u.Total, u.Failures, u.Suppressed, u.AvgLatency)
	}
}

// generate runs a one-shot session up to a successful generation. The
// caller owns the returned session.
func (a *App) generate(ctx context.Context, r session.DateRange, f session.Filters) (*session.Session, *session.GeneratedList, error) {
	s := a.NewSession()
	if err := s.SetFilters(f); err != nil {
		s.Close()
		return nil, nil, err
	}
	s.SetDateRange(r)

	generated, err := s.Generate(ctx)
	if err != nil {
		s.Close()
		return nil, nil, err
	}
	a.logger.Debug("generated list", zap.Int("items", len(generated.List.Items)))
	return s, generated, nil
}

// ParseRange parses the CLI's -start and -end values.
func ParseRange(start, end string) (session.DateRange, error) {
	var r session.DateRange
	if start != "" {
		d, err := shopping.ParseDate(start)
		if err != nil {
			return r, err
		}
		r.Start = d
	}
	if end != "" {
		d, err := shopping.ParseDate(end)
		if err != nil {
			return r, err
		}
		r.End = d
	}
	return r, nil
}
