// Package notify delivers price reports and failure notices over email,
// webhooks, Telegram and the console.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"memwatch/internal/config"
	apperrors "memwatch/internal/errors"
	"memwatch/internal/logging"
	"memwatch/internal/models"
	"memwatch/internal/security"
	"memwatch/pkg/utils"
)

// Notifier defines the interface for sending notifications.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
	SendReport(ctx context.Context, r *Report) error
	SendError(ctx context.Context, err error, context string) error
}

// NotificationChannel defines the interface for a notification channel.
type NotificationChannel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
	IsEnabled() bool
}

// Notification represents a notification message. HTML, when set, is an
// alternative rendering of Message for channels that support it.
type Notification struct {
	Type      NotificationType
	Title     string
	Message   string
	HTML      string
	Data      map[string]interface{}
	Timestamp time.Time
}

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationReport NotificationType = "report"
	NotificationError  NotificationType = "error"
)

// NotificationLevel represents the notification level filter.
type NotificationLevel string

const (
	LevelAll         NotificationLevel = config.LevelAll
	LevelReportsOnly NotificationLevel = config.LevelReportsOnly
	LevelErrorsOnly  NotificationLevel = config.LevelErrorsOnly
)

// Report is a rendered price report ready for delivery.
type Report struct {
	Date    string
	Subject string
	Text    string
	HTML    string
	Summary map[string]interface{}
}

// ReportSubject returns the subject line for the report of date.
func ReportSubject(date string) string {
	return "Memory/SSD Price Report - " + date
}

// NewReport packages rendered text and HTML for cs.
func NewReport(cs *models.ChangeSet, text, html string) *Report {
	return &Report{
		Date:    cs.Date,
		Subject: ReportSubject(cs.Date),
		Text:    text,
		HTML:    html,
		Summary: map[string]interface{}{
			"date":           cs.Date,
			"total_products": cs.TotalProducts,
			"price_ups":      len(cs.PriceUps),
			"price_downs":    len(cs.PriceDowns),
			"average_change": cs.AverageChangePercent(),
			"data_updated":   cs.DataUpdateTime(),
		},
	}
}

// MultiNotifier sends notifications to multiple channels.
type MultiNotifier struct {
	channels []NotificationChannel
	level    NotificationLevel
	logger   zerolog.Logger
	mu       sync.RWMutex
}

// Option configures a MultiNotifier.
type Option func(*MultiNotifier)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(mn *MultiNotifier) { mn.logger = l }
}

// NewMultiNotifier creates a new MultiNotifier with the given configuration.
func NewMultiNotifier(cfg *config.NotificationConfig, opts ...Option) *MultiNotifier {
	mn := &MultiNotifier{
		channels: make([]NotificationChannel, 0),
		level:    NotificationLevel(cfg.Level),
		logger:   zerolog.Nop(),
	}

	if mn.level == "" {
		mn.level = LevelAll
	}

	// Add enabled channels
	if cfg.Email.Enabled {
		mn.channels = append(mn.channels, NewEmailNotifier(cfg.Email))
	}
	if cfg.Webhook.Enabled {
		mn.channels = append(mn.channels, NewWebhookNotifier(cfg.Webhook))
	}
	if cfg.Telegram.Enabled {
		mn.channels = append(mn.channels, NewTelegramNotifier(cfg.Telegram))
	}

	for _, opt := range opts {
		opt(mn)
	}
	return mn
}

// AddChannel adds a notification channel.
func (mn *MultiNotifier) AddChannel(ch NotificationChannel) {
	mn.mu.Lock()
	defer mn.mu.Unlock()
	mn.channels = append(mn.channels, ch)
}

// Channels returns the names of the enabled channels.
func (mn *MultiNotifier) Channels() []string {
	mn.mu.RLock()
	defer mn.mu.RUnlock()
	var names []string
	for _, ch := range mn.channels {
		if ch.IsEnabled() {
			names = append(names, ch.Name())
		}
	}
	return names
}

// shouldSend checks if a notification should be sent based on the level filter.
func (mn *MultiNotifier) shouldSend(notifType NotificationType) bool {
	switch mn.level {
	case LevelReportsOnly:
		return notifType == NotificationReport
	case LevelErrorsOnly:
		return notifType == NotificationError
	default:
		return true
	}
}

// Send sends a notification to all enabled channels. Every channel is tried;
// the returned error joins the failures.
func (mn *MultiNotifier) Send(ctx context.Context, n Notification) error {
	if !mn.shouldSend(n.Type) {
		return nil
	}

	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	mn.mu.RLock()
	channels := mn.channels
	mn.mu.RUnlock()

	var errs []error
	for _, ch := range channels {
		if !ch.IsEnabled() {
			continue
		}
		err := ch.Send(ctx, n)
		logging.LogNotification(mn.logger, ch.Name(), n.Title, err)
		if err != nil {
			errs = append(errs, apperrors.NewNotifyError(ch.Name(), err))
		}
	}

	return apperrors.Join(errs...)
}

// SendReport delivers a price report. It fails with ErrNotifierNotConfigured
// when no channel is enabled and with ErrReportSuppressed when the level
// filter drops reports.
func (mn *MultiNotifier) SendReport(ctx context.Context, r *Report) error {
	if len(mn.Channels()) == 0 {
		return apperrors.ErrNotifierNotConfigured
	}
	if !mn.shouldSend(NotificationReport) {
		return fmt.Errorf("%w (level %s)", apperrors.ErrReportSuppressed, mn.level)
	}
	return mn.Send(ctx, reportNotification(r))
}

// SendError sends an error notification.
func (mn *MultiNotifier) SendError(ctx context.Context, err error, errContext string) error {
	return mn.Send(ctx, errorNotification(err, errContext))
}

func reportNotification(r *Report) Notification {
	return Notification{
		Type:    NotificationReport,
		Title:   r.Subject,
		Message: r.Text,
		HTML:    r.HTML,
		Data:    r.Summary,
	}
}

func errorNotification(err error, errContext string) Notification {
	now := time.Now()
	return Notification{
		Type:  NotificationError,
		Title: "Memory price monitor failed",
		Message: fmt.Sprintf("Context: %s\nError: %v\nTime: %s",
			errContext, err, now.Format("2006-01-02 15:04:05")),
		Data: map[string]interface{}{
			"context": errContext,
			"error":   err.Error(),
		},
		Timestamp: now,
	}
}

// WebhookNotifier sends notifications via HTTP webhook.
type WebhookNotifier struct {
	url     string
	enabled bool
	client  *http.Client
}

// NewWebhookNotifier creates a new WebhookNotifier.
func NewWebhookNotifier(cfg config.WebhookConfig) *WebhookNotifier {
	return &WebhookNotifier{
		url:     cfg.URL,
		enabled: cfg.Enabled && cfg.URL != "",
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Name returns the name of the notifier.
func (w *WebhookNotifier) Name() string {
	return "webhook"
}

// IsEnabled returns whether the notifier is enabled.
func (w *WebhookNotifier) IsEnabled() bool {
	return w.enabled
}

// Send sends a notification via webhook.
func (w *WebhookNotifier) Send(ctx context.Context, n Notification) error {
	if !w.enabled {
		return nil
	}

	payload := map[string]interface{}{
		"type":      n.Type,
		"title":     n.Title,
		"message":   n.Message,
		"data":      n.Data,
		"timestamp": n.Timestamp.Format(time.RFC3339),
	}

	return postJSON(ctx, w.client, w.url, payload)
}

// TelegramNotifier sends notifications via Telegram bot.
type TelegramNotifier struct {
	botToken string
	chatID   string
	enabled  bool
	apiBase  string
	client   *http.Client
}

// telegramMaxText is the Bot API limit on message length.
const telegramMaxText = 4096

// NewTelegramNotifier creates a new TelegramNotifier.
func NewTelegramNotifier(cfg config.TelegramConfig) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		enabled:  cfg.Enabled && cfg.BotToken != "" && cfg.ChatID != "",
		apiBase:  "https://api.telegram.org",
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Name returns the name of the notifier.
func (t *TelegramNotifier) Name() string {
	return "telegram"
}

// IsEnabled returns whether the notifier is enabled.
func (t *TelegramNotifier) IsEnabled() bool {
	return t.enabled
}

// Send sends a notification via Telegram.
func (t *TelegramNotifier) Send(ctx context.Context, n Notification) error {
	if !t.enabled {
		return nil
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.botToken)
	payload := map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       telegramText(n.Title, n.Message),
		"parse_mode": "HTML",
	}

	return security.MaskError(postJSON(ctx, t.client, url, payload), t.botToken)
}

// telegramText formats a message in HTML parse mode. The escaped body is
// shortened so the whole text stays within telegramMaxText characters.
func telegramText(title, message string) string {
	head := "<b>" + truncateEscaped(escapeHTML(title), 256) + "</b>\n\n<pre>"
	const tail = "</pre>"

	body := escapeHTML(message)
	budget := telegramMaxText - utf8.RuneCountInString(head) - len(tail)
	return head + truncateEscaped(body, budget) + tail
}

// truncateEscaped shortens escaped HTML to at most n characters without
// splitting an entity.
func truncateEscaped(s string, n int) string {
	t := utils.Truncate(s, n)
	if t == s || n <= 3 {
		return t
	}
	cut := strings.TrimSuffix(t, "...")
	if i := strings.LastIndexByte(cut, '&'); i >= 0 && !strings.Contains(cut[i:], ";") {
		cut = cut[:i]
	}
	return cut + "..."
}

func postJSON(ctx context.Context, client *http.Client, url string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "memwatch/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}

	return nil
}

// escapeHTML escapes HTML special characters for Telegram.
func escapeHTML(s string) string {
	var b bytes.Buffer
	for _, r := range s {
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NoOpNotifier discards every notification. Runs with delivery switched off
// use it for their failure notices.
type NoOpNotifier struct{}

// NewNoOpNotifier creates a new NoOpNotifier.
func NewNoOpNotifier() *NoOpNotifier {
	return &NoOpNotifier{}
}

// Send does nothing.
func (n *NoOpNotifier) Send(ctx context.Context, notif Notification) error {
	return nil
}

// SendReport does nothing.
func (n *NoOpNotifier) SendReport(ctx context.Context, r *Report) error {
	return nil
}

// SendError does nothing.
func (n *NoOpNotifier) SendError(ctx context.Context, err error, context string) error {
	return nil
}
