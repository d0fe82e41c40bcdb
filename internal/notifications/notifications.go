package notifications

import (
	"context"
	"fmt"
	"strings"
	"time"

	"natgas_trading/internal/models"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const defaultTelegramURL = "https://api.telegram.org"

// Telegram posts cycle summaries to a chat. A zero token or chat ID turns
// every call into a no-op.
type Telegram struct {
	client *resty.Client
	token  string
	chatID string
}

func NewTelegram(token, chatID string, timeout time.Duration) *Telegram {
	client := resty.New()
	client.SetBaseURL(defaultTelegramURL)
	client.SetTimeout(timeout)
	return &Telegram{client: client, token: token, chatID: chatID}
}

// Enabled reports whether credentials are configured.
func (t *Telegram) Enabled() bool {
	return t != nil && t.token != "" && t.chatID != ""
}

// Notify sends text as a Markdown message. Failures are logged, never returned:
// a lost notification must not fail a trading cycle.
func (t *Telegram) Notify(ctx context.Context, text string) {
	if !t.Enabled() {
		log.Debug().Msg("Telegram credentials missing, skipping notification")
		return
	}

	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"chat_id":    t.chatID,
			"text":       text,
			"parse_mode": "Markdown",
		}).
		Post(fmt.Sprintf("/bot%s/sendMessage", t.token))
	if err != nil {
		log.Warn().Err(err).Msg("Telegram alert failed")
		return
	}
	if resp.IsError() {
		log.Warn().Int("status", resp.StatusCode()).Str("body", resp.String()).Msg("Telegram API error")
	}
}

// CycleSummary renders one trading cycle for the chat.
func CycleSummary(d models.Decision, trade *models.TradeResult, tradeErr error, p *models.Portfolio) string {
	var sb strings.Builder
	sb.WriteString("📊 *Natural Gas Cycle*\n")
	sb.WriteString(fmt.Sprintf("Signal: `%.3f` (T %.2f / I %.2f / S %.2f)\n",
		d.Total, d.Signals.Temperature, d.Signals.Inventory, d.Signals.Storm))

	switch {
	case d.Action == models.ActionHold:
		sb.WriteString("Decision: *HOLD*\n")
	case tradeErr != nil:
		sb.WriteString(fmt.Sprintf("Decision: *BUY %s* (confidence %.2f)\n", d.Symbol, d.Confidence))
		sb.WriteString(fmt.Sprintf("⚠️ Trade failed: %s\n", tradeErr))
	case trade != nil:
		sb.WriteString(fmt.Sprintf("Decision: *BUY %s* (confidence %.2f)\n", d.Symbol, d.Confidence))
		sb.WriteString(fmt.Sprintf("✅ %s %d %s: %s", trade.Side, trade.Qty, trade.Symbol, trade.Status))
		if trade.FilledAvgPrice != nil {
			sb.WriteString(fmt.Sprintf(" @ $%s", trade.FilledAvgPrice.StringFixed(2)))
		}
		sb.WriteString("\n")
	}

	if p != nil {
		sb.WriteString(fmt.Sprintf("Equity: $%s | Cash: $%s\n", p.Equity.StringFixed(2), p.Cash.StringFixed(2)))
		for _, pos := range p.Positions {
			sb.WriteString(fmt.Sprintf("- %s: %s @ $%s (P&L $%s)\n",
				pos.Symbol, pos.Qty.String(), pos.CurrentPrice.StringFixed(2), pos.UnrealizedPL.StringFixed(2)))
		}
	}
	return sb.String()
}
