package notify

import "github.com/rs/zerolog"

// LogNotifier writes notifications to the structured log. It is always on
// and acts as the fallback channel when no external channel is configured.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notify").Logger()}
}

func (l *LogNotifier) Name() string { return "log" }

func (l *LogNotifier) IsEnabled() bool { return true }

func (l *LogNotifier) Send(n *Notification) error {
	event := l.logger.Info().
		Str("type", string(n.Type)).
		Str("title", n.Title)
	if n.Symbol != "" {
		event = event.Str("symbol", n.Symbol).Float64("price", n.Price)
	}
	if n.Type == TypeTradeClose {
		event = event.Float64("pnl", n.PnL).Float64("pnlPercent", n.PnLPercent)
	}
	event.Msg(n.Message)
	return nil
}

var _ Notifier = (*LogNotifier)(nil)
