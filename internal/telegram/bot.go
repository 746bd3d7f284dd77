package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"shopping-planner/internal/config"
	"shopping-planner/internal/export"
	"shopping-planner/internal/metrics"
	"shopping-planner/internal/session"
	"shopping-planner/internal/shopping"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// maxMessageLen stays under Telegram's 4096 character limit.
const maxMessageLen = 4000

const defaultPreviewTimeout = 30 * time.Second

const helpText = `🛒 *Shopping list planner*

/range 2024-01-01 2024-01-07 - select the dates
/exclude snack_am supper - skip meal types (no args clears)
/sort shop_suggestion - order items
/preview - meals the range covers (/preview refresh to reload)
/generate - build the shopping list
/export - text export from the server
/print - printable document
/status - current selection
/reset - start over`

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Bot drives one planning session per chat over the Telegram API.
type Bot struct {
	api          sender
	sessions     *SessionRepository
	metricsStore *metrics.Store
	cfg          *config.Config
	logger       *zap.Logger
}

// NewBot initializes the Telegram Bot and sets the Webhook.
func NewBot(
	cfg *config.Config,
	sessions *SessionRepository,
	metricsStore *metrics.Store,
	logger *zap.Logger,
) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram api: %w", err)
	}
	logger.Info("authorized on telegram", zap.String("account", api.Self.UserName))

	wh, err := tgbotapi.NewWebhook(cfg.TelegramWebhookURL)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook url %s: %w", cfg.TelegramWebhookURL, err)
	}
	resp, err := api.Request(wh)
	if err != nil {
		return nil, fmt.Errorf("failed to set webhook to %s: %w", cfg.TelegramWebhookURL, err)
	}
	logger.Info("webhook set", zap.String("description", resp.Description))

	return newBot(api, sessions, metricsStore, cfg, logger), nil
}

func newBot(api sender, sessions *SessionRepository, metricsStore *metrics.Store, cfg *config.Config, logger *zap.Logger) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bot{
		api:          api,
		sessions:     sessions,
		metricsStore: metricsStore,
		cfg:          cfg,
		logger:       logger,
	}
}

// RegisterHandlers registers the webhook and health handlers on mux.
func (b *Bot) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/webhook", b.handleWebhook)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

// StartCleanup drops expired chat sessions and old metrics every interval
// until ctx is done.
func (b *Bot) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sessions := b.sessions.CleanupExpired()
				records := b.metricsStore.Cleanup(24 * time.Hour)
				if sessions > 0 || records > 0 {
					b.logger.Debug("cleanup", zap.Int("sessions", sessions), zap.Int("metrics", records))
				}
			}
		}
	}()
}

func (b *Bot) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		b.logger.Warn("error parsing update", zap.Error(err))
		http.Error(w, "bad update", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)

	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	if !b.isAllowed(msg.From.ID) {
		b.logger.Warn("unauthorized access attempt",
			zap.Int64("user_id", msg.From.ID),
			zap.String("username", msg.From.UserName))
		return
	}

	go b.processMessage(msg)
}

func (b *Bot) isAllowed(userID int64) bool {
	for _, id := range b.cfg.TelegramAllowedUserIDs {
		if userID == id {
			return true
		}
	}
	return false
}

func (b *Bot) processMessage(msg *tgbotapi.Message) {
	if !msg.IsCommand() {
		b.sendMarkdown(msg.Chat.ID, helpText)
		return
	}
	b.handleCommand(context.Background(), msg.Chat.ID, msg.From.ID, msg.Command(), msg.CommandArguments())
}

func (b *Bot) handleCommand(ctx context.Context, chatID, userID int64, command, args string) {
	switch command {
	case "metrics":
		b.handleMetricsRequest(chatID, userID)
		return
	case "status":
		b.handleStatus(chatID)
		return
	case "reset":
		b.sessions.Delete(chatID)
		b.send(chatID, "🔄 Selection cleared.")
		return
	}

	s := b.sessions.GetOrCreate(chatID)
	switch command {
	case "start", "help":
		b.sendMarkdown(chatID, helpText)
	case "range":
		r, err := parseRange(args)
		if err != nil {
			b.sendError(chatID, err)
			return
		}
		s.SetDateRange(r)
		b.send(chatID, fmt.Sprintf("📅 Range set to %s. Send /preview or /generate.", r))
	case "exclude":
		excluded, err := parseMealTypes(args)
		if err != nil {
			b.sendError(chatID, err)
			return
		}
		f := s.State().Filters
		f.ExcludeMealTypes = excluded
		b.applyFilters(chatID, s, f)
	case "sort":
		f := s.State().Filters
		f.SortBy = shopping.SortBy(strings.TrimSpace(args))
		b.applyFilters(chatID, s, f)
	case "preview":
		b.handlePreview(ctx, chatID, s, strings.TrimSpace(args) == "refresh")
	case "generate":
		b.handleGenerate(ctx, chatID, s)
	case "export":
		text, err := s.ExportShoppingList(ctx)
		if err != nil {
			b.sendError(chatID, err)
			return
		}
		for _, part := range splitMessage(text) {
			b.send(chatID, part)
		}
	case "print":
		b.handlePrint(chatID, s)
	default:
		b.send(chatID, fmt.Sprintf("Unknown command /%s. Send /help for the list.", command))
	}
}

func (b *Bot) applyFilters(chatID int64, s *session.Session, f session.Filters) {
	if err := s.SetFilters(f); err != nil {
		b.sendError(chatID, err)
		return
	}
	b.send(chatID, "✅ Filters updated. "+formatFilters(s.State().Filters))
}

func (b *Bot) handleStatus(chatID int64) {
	cs, ok := b.sessions.GetActive(chatID)
	if !ok {
		b.send(chatID, "No active selection. Send /range to start.")
		return
	}
	status := formatStatus(cs.Session.State())
	b.send(chatID, fmt.Sprintf("%s\nSession started %s", status, cs.CreatedAt.UTC().Format("2006-01-02 15:04 MST")))
}

func (b *Bot) handlePreview(ctx context.Context, chatID int64, s *session.Session, refresh bool) {
	if refresh {
		if err := s.RefreshPreview(); err != nil {
			b.sendError(chatID, err)
			return
		}
	}
	if err := s.State().DateRange.Validate(); err != nil {
		b.sendError(chatID, err)
		return
	}

	timeout := b.cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = defaultPreviewTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	st, err := s.WaitPreview(waitCtx)
	if err != nil {
		b.sendError(chatID, err)
		return
	}

	switch st.Phase {
	case session.Failed:
		b.send(chatID, fmt.Sprintf("⚠️ Preview unavailable: %v\nYou can still /generate.", st.Err))
	case session.Succeeded:
		b.send(chatID, formatPreview(st.Preview))
	default:
		b.send(chatID, "⏳ Preview not ready yet, try again.")
	}
}

func (b *Bot) handleGenerate(ctx context.Context, chatID int64, s *session.Session) {
	b.send(chatID, "🛒 Generating your shopping list...")
	generated, err := s.Generate(ctx)
	if err != nil {
		b.sendError(chatID, err)
		return
	}
	for _, part := range splitMessage(formatList(generated)) {
		b.send(chatID, part)
	}
}

func (b *Bot) handlePrint(chatID int64, s *session.Session) {
	doc, generated, err := s.PrintableDocument()
	if err != nil {
		b.sendError(chatID, err)
		return
	}
	req := generated.Request
	file := tgbotapi.FileBytes{
		Name:  fmt.Sprintf("shopping_%s_%s.html", req.StartDate, req.EndDate),
		Bytes: []byte(doc),
	}
	if _, err := b.api.Send(tgbotapi.NewDocument(chatID, file)); err != nil {
		b.logger.Error("failed to send document", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) handleMetricsRequest(chatID, userID int64) {
	if userID != b.cfg.AdminTelegramID {
		b.sendMarkdown(chatID, "⛔ *Access Denied*: Admin only.")
		return
	}
	b.send(chatID, formatMetrics(b.metricsStore.Summary(), metrics.GetSysHealth(), b.sessions.Len()))
}

func (b *Bot) send(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.logger.Error("failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) sendMarkdown(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) sendError(chatID int64, err error) {
	b.logger.Debug("command failed", zap.Int64("chat_id", chatID), zap.Error(err))
	b.send(chatID, formatError(err))
}

// parseRange reads "/range <start> <end>" arguments.
func parseRange(args string) (session.DateRange, error) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return session.DateRange{}, fmt.Errorf("usage: /range YYYY-MM-DD YYYY-MM-DD")
	}
	start, err := shopping.ParseDate(fields[0])
	if err != nil {
		return session.DateRange{}, err
	}
	end, err := shopping.ParseDate(fields[1])
	if err != nil {
		return session.DateRange{}, err
	}
	r := session.NewDateRange(start, end)
	if err := r.Validate(); err != nil {
		return session.DateRange{}, err
	}
	return r, nil
}

// parseMealTypes reads space or comma separated meal types.
func parseMealTypes(args string) ([]shopping.MealType, error) {
	fields := strings.FieldsFunc(args, func(r rune) bool {
		return r == ',' || r == ' '
	})
	var types []shopping.MealType
	for _, f := range fields {
		m := shopping.MealType(strings.ToLower(f))
		if !m.Valid() {
			return nil, fmt.Errorf("unknown meal type %q", f)
		}
		types = append(types, m)
	}
	return types, nil
}

func formatError(err error) string {
	var vErr *session.ValidationError
	switch {
	case errors.As(err, &vErr):
		return "❌ " + vErr.Error()
	case errors.Is(err, session.ErrGenerationInProgress):
		return "⏳ A shopping list is already being generated."
	case errors.Is(err, session.ErrNoListAvailable):
		return "ℹ️ No shopping list yet. Send /generate first."
	case errors.Is(err, shopping.ErrNoMealPlans):
		return "🍽 No meal plans found for this range."
	case errors.Is(err, session.ErrClosed):
		return "ℹ️ The selection was cleared. Send /range to start again."
	case errors.Is(err, session.ErrSuperseded):
		return "ℹ️ The selection changed before the list was ready. Send /generate again."
	}
	return fmt.Sprintf("❌ %v", err)
}

func formatFilters(f session.Filters) string {
	excluded := "none"
	if len(f.ExcludeMealTypes) > 0 {
		names := make([]string, len(f.ExcludeMealTypes))
		for i, m := range f.ExcludeMealTypes {
			names[i] = string(m)
		}
		excluded = strings.Join(names, ", ")
	}
	return fmt.Sprintf("Sort: %s, excluded: %s", f.SortBy, excluded)
}

func formatStatus(st session.State) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📅 Range: %s\n", st.DateRange))
	sb.WriteString(fmt.Sprintf("⚙️ %s\n", formatFilters(st.Filters)))
	sb.WriteString(fmt.Sprintf("👀 Preview: %s\n", st.Preview.OperationStatus))
	sb.WriteString(fmt.Sprintf("🛒 Generation: %s\n", st.Generation))
	sb.WriteString(fmt.Sprintf("📤 Export: %s\n", st.Export))
	if st.HasList() {
		sb.WriteString(fmt.Sprintf("List: %d items", len(st.List.List.Items)))
	} else {
		sb.WriteString("List: none")
	}
	return sb.String()
}

func formatPreview(p *shopping.Preview) string {
	r := session.NewDateRange(p.DateRange.StartDate, p.DateRange.EndDate)
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("👀 Preview %s\n%d days, %d meal assignments\n", r, p.TotalDays, p.AssignmentCount()))

	days := make([]string, 0, len(p.MealAssignments))
	for day := range p.MealAssignments {
		days = append(days, day)
	}
	sort.Strings(days)
	for _, day := range days {
		sb.WriteString(fmt.Sprintf("\n%s\n", day))
		for _, mealType := range shopping.MealTypes {
			for _, meal := range p.MealAssignments[day][mealType] {
				sb.WriteString(fmt.Sprintf("• %s: %s (%d servings)\n", mealType, meal.MealName, meal.Servings))
			}
		}
	}
	return sb.String()
}

func formatList(g *session.GeneratedList) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🛒 Shopping List %s - %s\n\n", g.Request.StartDate, g.Request.EndDate))
	for _, item := range g.List.Items {
		sb.WriteString("• " + export.ItemLine(item) + "\n")
	}
	sb.WriteString(fmt.Sprintf("\nTotal items: %d", g.List.Summary.TotalItems))
	if cost := g.List.Summary.TotalEstimatedCost; cost != nil {
		sb.WriteString(fmt.Sprintf("\nEstimated cost: %.2f", *cost))
	}
	return sb.String()
}

func formatMetrics(usage []metrics.OperationUsage, health metrics.SysHealth, activeSessions int) string {
	var sb strings.Builder
	sb.WriteString("📊 Usage & Health Report\n\n")

	sb.WriteString("🔌 Backend calls\n")
	if len(usage) == 0 {
		sb.WriteString("No data yet\n")
	}
	for _, u := range usage {
		sb.WriteString(fmt.Sprintf("• %s: %d calls, %d failed, %d suppressed, avg %s\n",
			u.Operation, u.Total, u.Failures, u.Suppressed, u.AvgLatency.Round(time.Millisecond)))
	}

	sb.WriteString("\n🧠 System Health\n")
	sb.WriteString(fmt.Sprintf("• RAM: %dMB (Alloc) / %dMB (Sys)\n", health.AllocMB, health.SysMB))
	sb.WriteString(fmt.Sprintf("• Goroutines: %d\n", health.Goroutines))
	sb.WriteString(fmt.Sprintf("• Active sessions: %d\n", activeSessions))
	sb.WriteString(fmt.Sprintf("• Uptime: %s", health.Uptime))
	return sb.String()
}

// splitMessage breaks text on line boundaries into Telegram-sized parts.
func splitMessage(text string) []string {
	if len(text) <= maxMessageLen {
		return []string{text}
	}
	var parts []string
	var current strings.Builder
	for _, line := range strings.SplitAfter(text, "\n") {
		if current.Len()+len(line) > maxMessageLen && current.Len() > 0 {
			parts = append(parts, current.String())
			current.Reset()
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}
