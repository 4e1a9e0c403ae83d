package types

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestAmountString(t *testing.T) {
	tests := []struct {
		amount  Amount
		display string
		whole   int64
	}{
		{0, "0.00", 0},
		{1, "0.01", 0},
		{4550, "45.50", 45},
		{10000, "100.00", 100},
		{-150, "-1.50", -2},
	}

	for _, tt := range tests {
		t.Run(tt.display, func(t *testing.T) {
			if got := tt.amount.String(); got != tt.display {
				t.Errorf("String: got %s, want %s", got, tt.display)
			}
			if got := tt.amount.Whole(); got != tt.whole {
				t.Errorf("Whole: got %d, want %d", got, tt.whole)
			}
		})
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    Amount
		wantErr bool
	}{
		{"45.5", 4550, false},
		{"100", 10000, false},
		{"0.01", 1, false},
		{"1.234", 0, true},
		{"-1", 0, true},
		{"abc", 0, true},
		{"100000000000000000000", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAmount(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAmountCheckedArithmetic(t *testing.T) {
	if _, err := Amount(math.MaxInt64).Add(1); !errors.Is(err, ErrOverflow) {
		t.Errorf("Add overflow: got %v", err)
	}
	if _, err := Amount(math.MinInt64).Sub(1); !errors.Is(err, ErrOverflow) {
		t.Errorf("Sub overflow: got %v", err)
	}
	if _, err := Amount(math.MaxInt64 / 2).Mul(3); !errors.Is(err, ErrOverflow) {
		t.Errorf("Mul overflow: got %v", err)
	}
	if _, err := Amount(math.MinInt64).Mul(-1); !errors.Is(err, ErrOverflow) {
		t.Errorf("Mul MinInt64*-1: got %v", err)
	}

	sum, err := Amount(7000).Add(3000)
	if err != nil || sum != 10000 {
		t.Errorf("Add: got %d, %v", sum, err)
	}
	diff, err := Amount(10000).Sub(3000)
	if err != nil || diff != 7000 {
		t.Errorf("Sub: got %d, %v", diff, err)
	}
	prod, err := Amount(100).Mul(4550)
	if err != nil || prod != 455000 {
		t.Errorf("Mul: got %d, %v", prod, err)
	}
}

func TestAmountJSON(t *testing.T) {
	var a Amount
	if err := json.Unmarshal([]byte(`"12.34"`), &a); err != nil {
		t.Fatal(err)
	}
	if a != 1234 {
		t.Errorf("got %d, want 1234", a)
	}
	if err := json.Unmarshal([]byte(`99`), &a); err != nil {
		t.Fatal(err)
	}
	if a != 99 {
		t.Errorf("got %d, want 99", a)
	}
	out, err := json.Marshal(Amount(4550))
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "4550" {
		t.Errorf("got %s", out)
	}
}

func TestAccountIsNull(t *testing.T) {
	tests := []struct {
		account Account
		null    bool
	}{
		{"", true},
		{"  ", true},
		{NullAccount, true},
		{"0xabc", false},
	}
	for _, tt := range tests {
		if got := tt.account.IsNull(); got != tt.null {
			t.Errorf("%q.IsNull() = %v, want %v", tt.account, got, tt.null)
		}
	}
}
