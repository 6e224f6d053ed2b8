package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// maxMessageLen is the Telegram sendMessage text limit.
const maxMessageLen = 4096

// Notification 封装一次分析的告警摘要。
type Notification struct {
	RunID       string
	Source      string
	GeneratedAt time.Time
	Blocked     int
	Investigate int
	Spikes      int
	Drops       int

	// Body is the rendered digest.
	Body string
}

// Actionable reports whether anything in the notification needs a human.
func (n Notification) Actionable() bool {
	return n.Blocked+n.Investigate+n.Spikes+n.Drops > 0
}

// Notifier 定义告警输送接口。
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

// NewTelegramNotifier 构造 Telegram 告警器。
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
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
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
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false: %s", result.Description)
		}
	}

	n.logger.Info().Str("run_id", note.RunID).
		Int("blocked", note.Blocked).
		Int("spikes", note.Spikes).
		Int("drops", note.Drops).
		Msg("digest sent (Telegram)")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString("[Revenue Action Center]\n")
	builder.WriteString(fmt.Sprintf("Run: %s\n", note.RunID))
	builder.WriteString(fmt.Sprintf("Block: %d  Investigate: %d  Spikes: %d  Drops: %d\n\n",
		note.Blocked, note.Investigate, note.Spikes, note.Drops))
	builder.WriteString(note.Body)

	msg := builder.String()
	if len(msg) > maxMessageLen {
		const cut = "\n... (truncated)"
		msg = truncateUTF8(msg, maxMessageLen-len(cut)) + cut
	}
	return msg
}

func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// LogNotifier writes digests to the log, for runs without a chat channel.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier builds a notifier that only logs.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

// Notify logs the digest at warn level when actionable, info otherwise.
func (n *LogNotifier) Notify(_ context.Context, note Notification) error {
	event := n.logger.Info()
	if note.Actionable() {
		event = n.logger.Warn()
	}
	event.Str("run_id", note.RunID).
		Str("source", note.Source).
		Int("blocked", note.Blocked).
		Int("investigate", note.Investigate).
		Int("spikes", note.Spikes).
		Int("drops", note.Drops).
		Msg(note.Body)
	return nil
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*LogNotifier)(nil)
)
