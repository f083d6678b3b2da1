package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/ports"
)

// maxMessageRunes is the Bot API limit for one text message.
const maxMessageRunes = 4096

// Notifier sends digest deliveries to a Telegram chat via the bot API.
type Notifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier authenticates the bot. An empty endpoint uses the public Bot API.
func NewNotifier(botToken string, chatID int64, endpoint string) (*Notifier, error) {
	if botToken == "" || chatID == 0 {
		return nil, fmt.Errorf("telegram notifier misconfigured")
	}
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}

	bot, err := tgbotapi.NewBotAPIWithClient(botToken, endpoint, &http.Client{Timeout: 10 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &Notifier{bot: bot, chatID: chatID}, nil
}

// Deliver posts the daily brief followed by the top stories as one plain-text message.
func (n *Notifier) Deliver(ctx context.Context, delivery domain.Delivery) error {
	if n == nil || n.bot == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(n.chatID, FormatDelivery(delivery))
	msg.DisableWebPagePreview = true
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// FormatDelivery renders a delivery as plain text within the message size limit.
func FormatDelivery(d domain.Delivery) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Daily Brief %s\n", d.GeneratedAt.Format("2006-01-02 15:04"))
	for i, n := range d.Brief {
		fmt.Fprintf(&b, "%d. %s\n", i+1, n.Title)
	}

	if len(d.TopStories) > 0 {
		b.WriteString("\nTop stories\n")
		for _, n := range d.TopStories {
			if n.Category != "" {
				fmt.Fprintf(&b, "[%s] ", n.Category)
			}
			b.WriteString(n.Title)
			b.WriteString("\n")
			if n.URL != "" {
				b.WriteString(n.URL)
				b.WriteString("\n")
			}
		}
	}

	text := strings.TrimSpace(b.String())
	if runes := []rune(text); len(runes) > maxMessageRunes {
		text = string(runes[:maxMessageRunes])
	}
	return text
}
