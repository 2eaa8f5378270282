// Package telegram provides a client for sending notifications via Telegram Bot API.
// It reports composite risk threshold crossings, failed runs and recoveries, and
// handles delivery with retry logic for reliability.
//
// Messages use MarkdownV2; every dynamic value is escaped before it is embedded.
package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/strikewatch/internal/models"
)

// maxErrorLength bounds the error text included in a failure message.
const maxErrorLength = 300

// Client handles Telegram notifications
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
	now            func() time.Time
}

// NewClient creates a new Telegram client
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	return NewClientWithEndpoint(botToken, chatID, tgbotapi.APIEndpoint, maxRetries, retryDelayBase)
}

// NewClientWithEndpoint creates a client against a custom Bot API endpoint,
// formatted like tgbotapi.APIEndpoint.
func NewClientWithEndpoint(botToken, chatID, endpoint string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(botToken, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
		now:            time.Now,
	}, nil
}

// ShouldAlert reports whether the composite crossed threshold upward between two runs.
// A missing previous document counts as below the threshold.
func ShouldAlert(previous, current *models.State, threshold int) bool {
	if current == nil || current.Total.Risk < threshold {
		return false
	}
	if previous == nil || previous.IsEmpty() {
		return true
	}
	return previous.Total.Risk < threshold
}

// SendAlert reports a threshold crossing with the per-source breakdown
func (c *Client) SendAlert(previous, current *models.State) error {
	return c.send(formatAlert(previous, current))
}

// SendError reports a failed run
func (c *Client) SendError(runErr error, failures int, since time.Time) error {
	return c.send(c.formatError(runErr, failures, since))
}

// SendRecovery reports the first successful run after failures
func (c *Client) SendRecovery(failures int, since time.Time, state *models.State) error {
	return c.send(c.formatRecovery(failures, since, state))
}

// send delivers message with retry
func (c *Client) send(message string) error {
	msg := tgbotapi.NewMessage(c.chatID, message)
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		_, err := c.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		if i < c.maxRetries-1 {
			time.Sleep(c.retryDelayBase * time.Duration(i+1))
		}
	}

	return fmt.Errorf("failed to send message after %d retries: %w", c.maxRetries, lastErr)
}

// formatAlert formats a threshold crossing into a Telegram message
func formatAlert(previous, current *models.State) string {
	var b strings.Builder

	b.WriteString("🚨 *Strike risk elevated*\n\n")

	was := ""
	if previous != nil && !previous.IsEmpty() {
		was = fmt.Sprintf(" \\(was %d\\)", previous.Total.Risk)
	}
	fmt.Fprintf(&b, "Total risk: *%d*%s\n", current.Total.Risk, was)
	fmt.Fprintf(&b, "Elevated signals: %d/%d\n\n", current.Total.ElevatedCount, len(current.Signals))

	for _, key := range models.SourceOrder {
		snap := current.Snapshot(key)
		if snap == nil {
			continue
		}
		marker := "▫️"
		if snap.Risk >= 50 {
			marker = "🔺"
		}
		fmt.Fprintf(&b, "%s %s: *%d* %s\n", marker, escapeMarkdownV2(key), snap.Risk, escapeMarkdownV2("("+snap.Detail+")"))
	}

	fmt.Fprintf(&b, "\n📅 Updated: %s", escapeMarkdownV2(current.LastUpdated.UTC().Format("2006-01-02 15:04 MST")))
	return b.String()
}

// formatError formats a failed run into a Telegram message
func (c *Client) formatError(runErr error, failures int, since time.Time) string {
	text := "unknown error"
	if runErr != nil {
		text = runErr.Error()
	}
	if len(text) > maxErrorLength {
		text = text[:maxErrorLength] + "..."
	}

	var b strings.Builder
	b.WriteString("⚠️ *Risk update failed*\n\n")
	fmt.Fprintf(&b, "Error: `%s`\n", escapeCode(text))
	fmt.Fprintf(&b, "Consecutive failures: %s\n", escapeMarkdownV2(humanize.Comma(int64(failures))))
	fmt.Fprintf(&b, "Failing since: %s", escapeMarkdownV2(humanize.RelTime(since, c.now(), "ago", "from now")))
	return b.String()
}

// formatRecovery formats a recovery into a Telegram message
func (c *Client) formatRecovery(failures int, since time.Time, state *models.State) string {
	var b strings.Builder
	b.WriteString("✅ *Risk updates recovered*\n\n")
	fmt.Fprintf(&b, "Recovered after %s failed %s, first failure %s\n",
		escapeMarkdownV2(humanize.Comma(int64(failures))),
		plural(failures, "run", "runs"),
		escapeMarkdownV2(humanize.RelTime(since, c.now(), "ago", "from now")))
	if state != nil {
		fmt.Fprintf(&b, "Total risk: *%d*", state.Total.Risk)
	}
	return b.String()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2
func escapeMarkdownV2(text string) string {
	// Characters that need escaping in MarkdownV2:
	// _ * [ ] ( ) ~ ` > # + - = | { } . ! \
	var b strings.Builder
	b.Grow(len(text))
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}

// escapeCode escapes text placed inside a `code` span, where only ` and \ are special
func escapeCode(text string) string {
	return strings.NewReplacer("\\", "\\\\", "`", "\\`").Replace(text)
}
