// Package telegram posts run summaries to a Telegram chat through the Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/yvsainath/postgres-backup-simple/internal/models"
)

const (
	defaultAPIURL = "https://api.telegram.org"
	clientTimeout = 30 * time.Second

	// Bot API error descriptions are short; anything longer is not worth logging.
	maxErrorBody = 4 << 10
)

// Service defines the interface for run notifications.
type Service interface {
	SendNotification(ctx context.Context, cfg models.TelegramConfig, msg models.TelegramMessage) (*models.TelegramResult, error)
}

// HTTPClient is the subset of *http.Client the notifier needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Impl implements the notification Service on top of the Bot API.
type Impl struct {
	client HTTPClient
	apiURL string
	logger zerolog.Logger
}

// New creates a notifier that talks to the public Bot API.
func New(logger zerolog.Logger) *Impl {
	return NewWithClient(logger, &http.Client{Timeout: clientTimeout}, defaultAPIURL)
}

// NewWithClient creates a notifier with a custom HTTP client and API root (for testing).
func NewWithClient(logger zerolog.Logger, client HTTPClient, apiURL string) *Impl {
	return &Impl{
		client: client,
		apiURL: strings.TrimRight(apiURL, "/"),
		logger: logger.With().Str("component", "telegram").Logger(),
	}
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// apiReply is the envelope every Bot API method answers with.
type apiReply struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// SendNotification posts the run summary. Delivery problems are reported in
// result.Error and never returned.
func (s *Impl) SendNotification(ctx context.Context, cfg models.TelegramConfig, msg models.TelegramMessage) (*models.TelegramResult, error) {
	result := &models.TelegramResult{}
	log := s.logger.With().Str("chat_id", cfg.ChatID).Str("run_id", msg.RunID).Logger()

	log.Debug().Bool("success", msg.Success).Msg("posting run summary")

	err := s.call(ctx, cfg.BotToken, "sendMessage", sendMessageRequest{
		ChatID:                cfg.ChatID,
		Text:                  s.formatMessage(msg),
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	})
	if err != nil {
		log.Warn().Err(err).Msg("run summary not delivered")
		result.Error = err
		return result, nil
	}

	result.MessageSent = true
	log.Info().Msg("run summary delivered")
	return result, nil
}

// call invokes a Bot API method with a JSON payload.
func (s *Impl) call(ctx context.Context, token, method string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", method, err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", s.apiURL, token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var reply apiReply
	// Some proxies answer with non-JSON bodies; the status code still decides.
	_ = json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&reply)

	if resp.StatusCode != http.StatusOK {
		if reply.Description != "" {
			return fmt.Errorf("telegram API returned status %d: %s", resp.StatusCode, reply.Description)
		}
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}
	return nil
}

func (s *Impl) formatMessage(msg models.TelegramMessage) string {
	var b strings.Builder

	headline := "✅ <b>PostgreSQL Backup Successful</b>"
	if !msg.Success {
		headline = "❌ <b>PostgreSQL Backup Failed</b>"
	}
	b.WriteString(headline + "\n\n")

	field(&b, "🖥", "Host", html.EscapeString(msg.Host))
	field(&b, "🪣", "Bucket", html.EscapeString(msg.Bucket))
	field(&b, "🆔", "Run", "<code>"+html.EscapeString(msg.RunID)+"</code>")
	field(&b, "⏰", "Started", msg.StartTime.UTC().Format("2006-01-02 15:04:05 MST"))
	field(&b, "⏱", "Duration", msg.Duration.Round(time.Second).String())

	if msg.ErrorMessage != "" {
		b.WriteString("\n<b>⚠️ Error Details:</b>\n")
		item(&b, "Failed step", html.EscapeString(msg.FailedStep))
		item(&b, "Error", "<code>"+html.EscapeString(msg.ErrorMessage)+"</code>")
		return b.String()
	}

	b.WriteString("\n<b>📊 Databases:</b>\n")
	item(&b, "Attempted", fmt.Sprint(msg.Attempted))
	item(&b, "Succeeded", fmt.Sprint(msg.Succeeded))
	item(&b, "Failed", fmt.Sprint(msg.Failed))
	item(&b, "Uploaded", byteSize(msg.BytesTransferred))
	if len(msg.FailedDatabases) > 0 {
		item(&b, "Failed databases", html.EscapeString(strings.Join(msg.FailedDatabases, ", ")))
	}

	if msg.RetentionDeleted > 0 {
		b.WriteString("\n<b>🗑 Retention:</b>\n")
		item(&b, "Expired backups deleted", fmt.Sprint(msg.RetentionDeleted))
	}

	return b.String()
}

func field(b *strings.Builder, icon, label, value string) {
	fmt.Fprintf(b, "%s <b>%s:</b> %s\n", icon, label, value)
}

func item(b *strings.Builder, label, value string) {
	fmt.Fprintf(b, "  • %s: %s\n", label, value)
}

var sizeUnits = []string{"KiB", "MiB", "GiB", "TiB", "PiB", "EiB"}

// byteSize renders n with binary prefixes, one decimal place.
func byteSize(n int64) string {
	if n < 1024 {
		return fmt.Sprintf("%d B", n)
	}
	v := float64(n) / 1024
	unit := 0
	for v >= 1024 && unit < len(sizeUnits)-1 {
		v /= 1024
		unit++
	}
	return fmt.Sprintf("%.1f %s", v, sizeUnits[unit])
}
