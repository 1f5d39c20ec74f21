package notify

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

type stubNotifier struct {
	name    string
	enabled bool
	err     error
	sent    []*Notification
}

func (s *stubNotifier) Send(n *Notification) error {
	s.sent = append(s.sent, n)
	return s.err
}
func (s *stubNotifier) Name() string    { return s.name }
func (s *stubNotifier) IsEnabled() bool { return s.enabled }

func TestManager_SkipsDisabledChannels(t *testing.T) {
	on := &stubNotifier{name: "on", enabled: true}
	off := &stubNotifier{name: "off", enabled: false}

	m := NewManager(zerolog.Nop())
	m.AddNotifier(on)
	m.AddNotifier(off)

	if err := m.SendTradeOpen("BTCUSDT", 43000, 0.5); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(on.sent) != 1 {
		t.Errorf("enabled channel sent = %d, want 1", len(on.sent))
	}
	if len(off.sent) != 0 {
		t.Errorf("disabled channel sent = %d, want 0", len(off.sent))
	}
	if on.sent[0].Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}

func TestManager_FailingChannelDoesNotStopOthers(t *testing.T) {
	bad := &stubNotifier{name: "bad", enabled: true, err: errors.New("boom")}
	good := &stubNotifier{name: "good", enabled: true}

	m := NewManager(zerolog.Nop())
	m.AddNotifier(bad)
	m.AddNotifier(good)

	err := m.SendError("scan failed", "details")
	if err == nil {
		t.Error("expected error from failing channel")
	}
	if len(good.sent) != 1 {
		t.Errorf("good channel sent = %d, want 1", len(good.sent))
	}
}

func TestTelegramNotifier_DisabledWithoutCredentials(t *testing.T) {
	n := NewTelegramNotifier(TelegramConfig{Enabled: true})
	if n.IsEnabled() {
		t.Error("notifier enabled without token and chat id")
	}
	if err := n.Send(&Notification{Title: "x"}); err != nil {
		t.Errorf("disabled send returned error: %v", err)
	}
}

func TestTelegramNotifier_SendsPayload(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewTelegramNotifier(TelegramConfig{BotToken: "tok", ChatID: "42", Enabled: true})
	n.baseURL = srv.URL

	err := n.Send(&Notification{Title: "Price Alert: BTCUSDT", Message: "crossed above 50000"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if got["chat_id"] != "42" {
		t.Errorf("chat_id = %v", got["chat_id"])
	}
	if got["text"] == "" {
		t.Error("empty text")
	}
}

func TestLogNotifier_AlwaysEnabled(t *testing.T) {
	n := NewLogNotifier(zerolog.Nop())
	if !n.IsEnabled() {
		t.Error("log notifier must always be enabled")
	}
	if err := n.Send(&Notification{Type: TypeTradeClose, Title: "t", Symbol: "BTCUSDT", PnL: -5}); err != nil {
		t.Errorf("send: %v", err)
	}
}
