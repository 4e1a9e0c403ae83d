package record_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/xraph/thermal/record"
	"github.com/xraph/thermal/types"
)

func TestSettlementValue(t *testing.T) {
	tests := []struct {
		name   string
		amount types.Amount
		price  types.Amount
		want   types.Amount
	}{
		{"one unit at 45.50", 100, 4550, 4550},
		{"ten units at 0.80", 1000, 80, 800},
		{"fractional floors", 1, 1, 0},
		{"half unit at 1.99", 50, 199, 99},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := record.SettlementValue(tt.amount, tt.price)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSettlementValueOverflow(t *testing.T) {
	_, err := record.SettlementValue(types.Amount(math.MaxInt64/10), 1000)
	if !errors.Is(err, types.ErrOverflow) {
		t.Errorf("expected overflow, got %v", err)
	}
}

func TestStatus(t *testing.T) {
	if record.StatusPending.IsTerminal() {
		t.Error("pending must not be terminal")
	}
	if !record.StatusSettled.IsTerminal() || !record.StatusFailed.IsTerminal() {
		t.Error("settled and failed must be terminal")
	}
	if record.Status("bogus").Valid() {
		t.Error("unknown status reported valid")
	}
}

func TestTradeCloneCopiesSettledAt(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	orig := &record.TradeRecord{TradeID: "t1", SettledAt: &at}
	c := orig.Clone()
	*c.SettledAt = at.Add(time.Hour)
	if !orig.SettledAt.Equal(at) {
		t.Error("clone shares SettledAt with the original")
	}
}
