package market

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// StreamManager owns a websocket connection to the exchange mini-ticker
// stream and fans price updates out to subscribers. It has an explicit
// lifecycle: Start connects (and reconnects with exponential backoff on
// failure), Stop tears the connection down.
type StreamManager struct {
	mu          sync.RWMutex
	baseURL     string
	symbols     []string
	subscribers []chan Ticker
	logger      zerolog.Logger

	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewStreamManager creates a stream manager for the given symbols.
func NewStreamManager(baseURL string, symbols []string, logger zerolog.Logger) *StreamManager {
	return &StreamManager{
		baseURL: strings.TrimRight(baseURL, "/"),
		symbols: symbols,
		logger:  logger.With().Str("component", "stream").Logger(),
	}
}

// Subscribe returns a channel receiving live ticker updates. Slow consumers
// miss updates rather than blocking the read loop.
func (sm *StreamManager) Subscribe() <-chan Ticker {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan Ticker, 64)
	sm.subscribers = append(sm.subscribers, ch)
	return ch
}

// IsRunning reports whether the manager is connected or reconnecting.
func (sm *StreamManager) IsRunning() bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.running
}

// Start opens the stream and keeps it alive until Stop or ctx cancellation.
func (sm *StreamManager) Start(ctx context.Context) error {
	sm.mu.Lock()
	if sm.running {
		sm.mu.Unlock()
		return fmt.Errorf("stream manager already running")
	}
	if len(sm.symbols) == 0 {
		sm.mu.Unlock()
		return fmt.Errorf("no symbols to stream")
	}
	ctx, cancel := context.WithCancel(ctx)
	sm.running = true
	sm.cancel = cancel
	sm.done = make(chan struct{})
	sm.mu.Unlock()

	go sm.run(ctx)
	return nil
}

// Stop disconnects and waits for the read loop to exit.
func (sm *StreamManager) Stop() {
	sm.mu.Lock()
	if !sm.running {
		sm.mu.Unlock()
		return
	}
	sm.running = false
	sm.cancel()
	done := sm.done
	sm.mu.Unlock()

	<-done
	sm.logger.Info().Msg("stream stopped")
}

func (sm *StreamManager) run(ctx context.Context) {
	defer close(sm.done)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.MaxInterval = time.Minute
	policy.MaxElapsedTime = 0 // retry until stopped

	for {
		err := sm.readLoop(ctx)
		if ctx.Err() != nil {
			return
		}

		wait := policy.NextBackOff()
		sm.logger.Warn().Err(err).Dur("retry_in", wait).Msg("stream disconnected, reconnecting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// miniTickerEvent mirrors the exchange 24hr mini-ticker stream payload.
type miniTickerEvent struct {
	Symbol string `json:"s"`
	Close  string `json:"c"`
	Open   string `json:"o"`
	High   string `json:"h"`
	Low    string `json:"l"`
	Volume string `json:"v"`
}

func (sm *StreamManager) readLoop(ctx context.Context) error {
	streams := make([]string, len(sm.symbols))
	for i, s := range sm.symbols {
		streams[i] = strings.ToLower(s) + "@miniTicker"
	}
	endpoint := sm.baseURL + "/stream?streams=" + strings.Join(streams, "/")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()

	sm.logger.Info().Int("symbols", len(sm.symbols)).Msg("stream connected")

	// Close the connection when ctx is cancelled so ReadMessage unblocks.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read failed: %w", err)
		}

		var envelope struct {
			Data miniTickerEvent `json:"data"`
		}
		if err := json.Unmarshal(message, &envelope); err != nil || envelope.Data.Symbol == "" {
			continue
		}
		sm.publish(envelope.Data)
	}
}

func (sm *StreamManager) publish(ev miniTickerEvent) {
	price, _ := strconv.ParseFloat(ev.Close, 64)
	open, _ := strconv.ParseFloat(ev.Open, 64)
	high, _ := strconv.ParseFloat(ev.High, 64)
	low, _ := strconv.ParseFloat(ev.Low, 64)
	volume, _ := strconv.ParseFloat(ev.Volume, 64)

	ticker := Ticker{
		Symbol: ev.Symbol,
		Price:  price,
		Change: price - open,
		High:   high,
		Low:    low,
		Volume: volume,
	}
	if open != 0 {
		ticker.ChangePercent = (price - open) / open * 100
	}

	sm.mu.RLock()
	defer sm.mu.RUnlock()
	for _, ch := range sm.subscribers {
		select {
		case ch <- ticker:
		default:
		}
	}
}
