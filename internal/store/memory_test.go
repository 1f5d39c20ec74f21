package store

import (
	"context"
	"errors"
	"testing"
)

type fakeState struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	in := fakeState{Symbol: "BTCUSDT", Price: 43250.5}
	if err := s.SetJSON(ctx, KeyPortfolio, in); err != nil {
		t.Fatalf("set: %v", err)
	}

	var out fakeState
	if err := s.GetJSON(ctx, KeyPortfolio, &out); err != nil {
		t.Fatalf("get: %v", err)
	}
	if out != in {
		t.Errorf("got %+v, want %+v", out, in)
	}
}

func TestMemoryStore_MissingKey(t *testing.T) {
	s := NewMemoryStore()
	var out fakeState
	err := s.GetJSON(context.Background(), "nope", &out)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.SetJSON(ctx, KeyWatchlist, []string{"BTCUSDT"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, KeyWatchlist); err != nil {
		t.Fatal(err)
	}
	var out []string
	if err := s.GetJSON(ctx, KeyWatchlist, &out); !errors.Is(err, ErrNotFound) {
		t.Errorf("err after delete = %v, want ErrNotFound", err)
	}

	// deleting again is not an error
	if err := s.Delete(ctx, KeyWatchlist); err != nil {
		t.Errorf("second delete: %v", err)
	}
}

func TestAlertsKey(t *testing.T) {
	if got := AlertsKey("ETHUSDT"); got != "argus:alerts:ETHUSDT" {
		t.Errorf("AlertsKey = %q", got)
	}
}
