// Package notify delivers trade and alert notifications to external channels.
package notify

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Type classifies a notification.
type Type string

const (
	TypeSignal     Type = "signal"
	TypeTradeOpen  Type = "trade_open"
	TypeTradeClose Type = "trade_close"
	TypeAlert      Type = "alert"
	TypeError      Type = "error"
)

// Notification is a single message for delivery.
type Notification struct {
	Type       Type
	Title      string
	Message    string
	Symbol     string
	Price      float64
	PnL        float64
	PnLPercent float64
	Timestamp  time.Time
}

// Notifier is a delivery channel.
type Notifier interface {
	Send(n *Notification) error
	Name() string
	IsEnabled() bool
}

// Manager fans a notification out to every enabled channel.
type Manager struct {
	notifiers []Notifier
	logger    zerolog.Logger
}

func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{
		logger: logger.With().Str("component", "notify").Logger(),
	}
}

func (m *Manager) AddNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// Send delivers to all enabled channels; a failing channel does not stop
// the others. The last error is returned.
func (m *Manager) Send(n *Notification) error {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	var lastErr error
	for _, notifier := range m.notifiers {
		if !notifier.IsEnabled() {
			continue
		}
		if err := notifier.Send(n); err != nil {
			m.logger.Error().Err(err).Str("channel", notifier.Name()).Msg("notification failed")
			lastErr = err
		}
	}
	return lastErr
}

// SendSignal announces a council decision worth acting on.
func (m *Manager) SendSignal(symbol, action string, confidence float64, price float64) error {
	return m.Send(&Notification{
		Type:    TypeSignal,
		Title:   fmt.Sprintf("Signal: %s", symbol),
		Message: fmt.Sprintf("%s %s @ %.4f (confidence %.0f%%)", action, symbol, price, confidence),
		Symbol:  symbol,
		Price:   price,
	})
}

// SendTradeOpen announces a new paper position.
func (m *Manager) SendTradeOpen(symbol string, price, quantity float64) error {
	return m.Send(&Notification{
		Type:    TypeTradeOpen,
		Title:   fmt.Sprintf("Position Opened: %s", symbol),
		Message: fmt.Sprintf("BUY %s\nPrice: %.4f\nQuantity: %.8f", symbol, price, quantity),
		Symbol:  symbol,
		Price:   price,
	})
}

// SendTradeClose announces a closed paper position.
func (m *Manager) SendTradeClose(symbol string, entryPrice, exitPrice, pnl, pnlPercent float64, reason string) error {
	return m.Send(&Notification{
		Type:       TypeTradeClose,
		Title:      fmt.Sprintf("Position Closed: %s", symbol),
		Message:    fmt.Sprintf("Entry: %.4f -> Exit: %.4f\nP&L: %.4f (%.2f%%)\nReason: %s", entryPrice, exitPrice, pnl, pnlPercent, reason),
		Symbol:     symbol,
		Price:      exitPrice,
		PnL:        pnl,
		PnLPercent: pnlPercent,
	})
}

// SendAlert announces a fired price alert.
func (m *Manager) SendAlert(symbol, condition string, target, price float64) error {
	return m.Send(&Notification{
		Type:    TypeAlert,
		Title:   fmt.Sprintf("Price Alert: %s", symbol),
		Message: fmt.Sprintf("%s crossed %s %.4f (now %.4f)", symbol, condition, target, price),
		Symbol:  symbol,
		Price:   price,
	})
}

// SendError announces a component failure.
func (m *Manager) SendError(title, message string) error {
	return m.Send(&Notification{
		Type:    TypeError,
		Title:   title,
		Message: message,
	})
}
