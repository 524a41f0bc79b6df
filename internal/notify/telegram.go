package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Notifier sends alerts to a Telegram chat via the Bot API.
type Notifier struct {
	botToken   string
	chatID     string
	httpClient *http.Client
	enabled    bool
	baseURL    string // overridable for testing; defaults to Telegram API
}

// NewNotifier creates a Notifier. Notifications are enabled only when both
// botToken and chatID are non-empty.
func NewNotifier(botToken, chatID string) *Notifier {
	return &Notifier{
		botToken:   botToken,
		chatID:     chatID,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		enabled:    botToken != "" && chatID != "",
	}
}

// Enabled reports whether the notifier is active.
func (n *Notifier) Enabled() bool { return n.enabled }

// Send posts a message to the configured Telegram chat.
func (n *Notifier) Send(ctx context.Context, msg string) error {
	if !n.enabled {
		return nil
	}

	endpoint := n.baseURL
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.botToken)
	}
	vals := url.Values{
		"chat_id":    {n.chatID},
		"text":       {msg},
		"parse_mode": {"HTML"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.URL.RawQuery = vals.Encode()

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Description string `json:"description"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return fmt.Errorf("notify: telegram %d: %s", resp.StatusCode, body.Description)
	}
	return nil
}

// NotifyTPSLTrigger sends a HIGH-priority alert when a take-profit or
// stop-loss trigger closes or adjusts a position.
func (n *Notifier) NotifyTPSLTrigger(ctx context.Context, triggerType, marketTitle string, executionPrice, entryPrice, tokensSold, usdReceived, pnl, pnlPct float64, txHash string) error {
	msg := fmt.Sprintf(
		"<b>%s Triggered</b>\nMarket: %s\nEntry: %.4f\nExit: %.4f\nTokens Sold: %.2f\nUSD Received: %.2f\nPnL: %.2f (%.1f%%)\nTx: <code>%s</code>",
		triggerType, marketTitle, entryPrice, executionPrice, tokensSold, usdReceived, pnl, pnlPct, txHash,
	)
	return n.Send(ctx, msg)
}

// NotifyTPSLFailed sends a HIGH-priority alert when step 5d (sell
// execution) of a TP/SL trigger fails.
func (n *Notifier) NotifyTPSLFailed(ctx context.Context, marketTitle, reason, hint string) error {
	msg := fmt.Sprintf("<b>TP/SL Execution Failed</b>\nMarket: %s\nReason: %s\nHint: %s", marketTitle, reason, hint)
	return n.Send(ctx, msg)
}

// NotifyCopyTradeSkipped sends a lower-priority alert when a copy-trade
// mirror is intentionally skipped.
func (n *Notifier) NotifyCopyTradeSkipped(ctx context.Context, leaderAddress, marketTitle, reason string) error {
	msg := fmt.Sprintf("Copy-trade skipped\nLeader: <code>%s</code>\nMarket: %s\nReason: %s", leaderAddress, marketTitle, reason)
	return n.Send(ctx, msg)
}

// NotifyCopyTradeFilled sends a confirmation when a mirror order fills.
func (n *Notifier) NotifyCopyTradeFilled(ctx context.Context, leaderAddress, marketTitle, side string, copyAmountUSD float64) error {
	msg := fmt.Sprintf("<b>Copy-Trade Filled</b>\nLeader: <code>%s</code>\nMarket: %s\nSide: %s\nAmount: %.2f USD", leaderAddress, marketTitle, side, copyAmountUSD)
	return n.Send(ctx, msg)
}

// NotifySmartWalletShare forwards a qualifying smart-wallet trade to the
// configured chat for manual review or downstream fan-out.
func (n *Notifier) NotifySmartWalletShare(ctx context.Context, walletAddress, marketQuestion, outcome string, value float64) error {
	msg := fmt.Sprintf("<b>Smart Wallet Trade</b>\nWallet: <code>%s</code>\nMarket: %s\nOutcome: %s\nValue: %.2f USD", walletAddress, marketQuestion, outcome, value)
	return n.Send(ctx, msg)
}
