// Package alerts manages price alerts checked on a recurring timer.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"argus-terminal/internal/events"
	"argus-terminal/internal/market"
	"argus-terminal/internal/notify"
	"argus-terminal/internal/store"
)

// Condition is the trigger direction for an alert.
type Condition string

const (
	ConditionAbove Condition = "above"
	ConditionBelow Condition = "below"
)

// Alert is one price threshold watch. Triggered alerts are kept for
// history until removed.
type Alert struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	Condition   Condition `json:"condition"`
	Target      float64   `json:"target"`
	CreatedAt   time.Time `json:"createdAt"`
	Triggered   bool      `json:"triggered"`
	TriggeredAt time.Time `json:"triggeredAt,omitempty"`
}

var ErrAlertNotFound = errors.New("alerts: alert not found")

// Service owns the alert list and checks it against live prices.
type Service struct {
	source   market.DataSource
	st       store.Store
	bus      *events.Bus
	notifier *notify.Manager
	logger   zerolog.Logger

	mu     sync.Mutex
	alerts []Alert
}

func NewService(source market.DataSource, st store.Store, bus *events.Bus, notifier *notify.Manager, logger zerolog.Logger) *Service {
	return &Service{
		source:   source,
		st:       st,
		bus:      bus,
		notifier: notifier,
		logger:   logger.With().Str("component", "alerts").Logger(),
	}
}

// Load restores persisted alerts. A missing record is not an error.
func (s *Service) Load(ctx context.Context) error {
	var alerts []Alert
	err := s.st.GetJSON(ctx, store.KeyAlerts, &alerts)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load alerts: %w", err)
	}
	s.mu.Lock()
	s.alerts = alerts
	s.mu.Unlock()
	return nil
}

// Add registers a new alert and persists the list.
func (s *Service) Add(ctx context.Context, symbol string, condition Condition, target float64) (*Alert, error) {
	if condition != ConditionAbove && condition != ConditionBelow {
		return nil, fmt.Errorf("alerts: invalid condition %q", condition)
	}
	if target <= 0 {
		return nil, errors.New("alerts: target must be positive")
	}

	alert := Alert{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		Condition: condition,
		Target:    target,
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	s.alerts = append(s.alerts, alert)
	s.mu.Unlock()

	if err := s.persist(ctx); err != nil {
		return nil, err
	}
	return &alert, nil
}

// Remove deletes an alert by id.
func (s *Service) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	found := false
	kept := s.alerts[:0]
	for _, a := range s.alerts {
		if a.ID == id {
			found = true
			continue
		}
		kept = append(kept, a)
	}
	s.alerts = kept
	s.mu.Unlock()

	if !found {
		return ErrAlertNotFound
	}
	return s.persist(ctx)
}

// List returns a copy of all alerts.
func (s *Service) List() []Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Alert, len(s.alerts))
	copy(out, s.alerts)
	return out
}

// Check evaluates all pending alerts against current prices. It is the
// scheduler tick function; one symbol's fetch failure never blocks the
// rest.
func (s *Service) Check(ctx context.Context) error {
	pending := s.pendingSymbols()
	if len(pending) == 0 {
		return nil
	}

	prices := make(map[string]float64, len(pending))
	for _, symbol := range pending {
		ticker, err := s.source.GetTicker(ctx, symbol)
		if err != nil {
			s.logger.Error().Err(err).Str("symbol", symbol).Msg("alert price fetch failed")
			continue
		}
		prices[symbol] = ticker.Price
	}

	fired := s.markTriggered(prices)
	for _, a := range fired {
		s.logger.Info().
			Str("symbol", a.Symbol).
			Str("condition", string(a.Condition)).
			Float64("target", a.Target).
			Float64("price", prices[a.Symbol]).
			Msg("alert triggered")
		s.bus.PublishAlertTriggered(a.Symbol, string(a.Condition), a.Target, prices[a.Symbol])
		if err := s.notifier.SendAlert(a.Symbol, string(a.Condition), a.Target, prices[a.Symbol]); err != nil {
			s.logger.Warn().Err(err).Str("symbol", a.Symbol).Msg("alert notification failed")
		}
	}

	if len(fired) > 0 {
		return s.persist(ctx)
	}
	return nil
}

func (s *Service) pendingSymbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool)
	var symbols []string
	for _, a := range s.alerts {
		if a.Triggered || seen[a.Symbol] {
			continue
		}
		seen[a.Symbol] = true
		symbols = append(symbols, a.Symbol)
	}
	return symbols
}

func (s *Service) markTriggered(prices map[string]float64) []Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fired []Alert
	now := time.Now()
	for i, a := range s.alerts {
		if a.Triggered {
			continue
		}
		price, ok := prices[a.Symbol]
		if !ok {
			continue
		}
		hit := (a.Condition == ConditionAbove && price >= a.Target) ||
			(a.Condition == ConditionBelow && price <= a.Target)
		if !hit {
			continue
		}
		s.alerts[i].Triggered = true
		s.alerts[i].TriggeredAt = now
		fired = append(fired, s.alerts[i])
	}
	return fired
}

func (s *Service) persist(ctx context.Context) error {
	s.mu.Lock()
	alerts := make([]Alert, len(s.alerts))
	copy(alerts, s.alerts)
	s.mu.Unlock()
	return s.st.SetJSON(ctx, store.KeyAlerts, alerts)
}
