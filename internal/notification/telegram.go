package notification

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"sort"
	"strings"
	"time"
)

const telegramAPI = "https://api.telegram.org"

// TelegramNotifier sends alerts via the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
}

// NewTelegramNotifier creates a Telegram notifier.
// botToken: Bot API token from @BotFather
// chatID: Target chat/group/channel ID
func NewTelegramNotifier(botToken, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  telegramAPI,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	msg := map[string]string{
		"chat_id":    t.chatID,
		"text":       formatHTML(alert),
		"parse_mode": "HTML",
	}
	return postJSON(ctx, t.client, "telegram", t.baseURL+"/bot"+t.botToken+"/sendMessage", msg)
}

// formatHTML renders an alert for Telegram's HTML parse mode.
func formatHTML(a Alert) string {
	var b strings.Builder
	switch a.Level {
	case AlertWarning:
		b.WriteString("⚠️ ")
	case AlertCritical:
		b.WriteString("🚨 ")
	default:
		b.WriteString("ℹ️ ")
	}
	fmt.Fprintf(&b, "<b>%s</b>", html.EscapeString(a.Title))
	if a.Token != "" {
		fmt.Fprintf(&b, "\n<code>%s</code>", html.EscapeString(a.Token))
	}
	if a.Message != "" {
		fmt.Fprintf(&b, "\n\n%s", html.EscapeString(a.Message))
	}
	keys := make([]string, 0, len(a.Fields))
	for k := range a.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n%s: %s", html.EscapeString(k), html.EscapeString(fmt.Sprint(a.Fields[k])))
	}
	return b.String()
}
