package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"wallet-activity/internal/activity"
)

// maxListed caps how many records one message spells out.
const maxListed = 10

// Notification 封装新交易通知的上下文。
type Notification struct {
	Address    string
	Records    []activity.ClassifiedTransaction
	Symbol     string
	TxURL      string
	DetectedAt time.Time
}

// Notifier 定义通知输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 通知器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "notify_telegram").Logger(),
	}
}

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	if len(note.Records) == 0 {
		return nil
	}

	payload := map[string]any{
		"chat_id":                  n.chatID,
		"text":                     renderMessage(note),
		"disable_web_page_preview": true,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", redactToken(err, n.botToken))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}

	n.logger.Info().Str("address", note.Address).
		Int("records", len(note.Records)).
		Msg("新交易通知已发送 (Telegram)")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString("[Wallet Activity]\n")
	builder.WriteString(fmt.Sprintf("Address: %s\n", note.Address))
	if !note.DetectedAt.IsZero() {
		builder.WriteString(fmt.Sprintf("Detected: %s UTC\n", note.DetectedAt.UTC().Format(time.RFC3339)))
	}
	builder.WriteString(fmt.Sprintf("New transactions: %d\n", len(note.Records)))

	for i, tx := range note.Records {
		if i == maxListed {
			builder.WriteString(fmt.Sprintf("... and %d more\n", len(note.Records)-maxListed))
			break
		}
		builder.WriteString(fmt.Sprintf("- %s %s", tx.Label(), tx.FormatAmount(note.Symbol)))
		if tx.Timestamp > 0 {
			builder.WriteString(fmt.Sprintf(" at %s", time.Unix(tx.Timestamp, 0).UTC().Format(time.RFC3339)))
		}
		builder.WriteString("\n")
		if note.TxURL != "" {
			builder.WriteString(fmt.Sprintf("  %s/%s\n", strings.TrimRight(note.TxURL, "/"), tx.Hash))
		}
	}
	return builder.String()
}

// redactToken strips the bot token, which url.Error repeats verbatim.
func redactToken(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return fmt.Errorf("%s", strings.ReplaceAll(err.Error(), token, "<redacted>"))
}

var _ Notifier = (*TelegramNotifier)(nil)
