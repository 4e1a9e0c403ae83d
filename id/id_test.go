package id_test

import (
	"strings"
	"testing"

	"github.com/xraph/thermal/id"
)

func TestConstructorsAndParsers(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
		prefix  string
	}{
		{"ProductionID", id.NewProductionID, id.ParseProductionID, "prod_"},
		{"EventID", id.NewEventID, id.ParseEventID, "evt_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			if !strings.HasPrefix(original.String(), tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, original.String())
			}
			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if parsed.String() != original.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
			}
		})
	}
}

func TestCrossTypeRejection(t *testing.T) {
	if _, err := id.ParseProductionID(id.NewEventID().String()); err == nil {
		t.Error("ParseProductionID accepted an evt_ id")
	}
	if _, err := id.ParseEventID(id.NewProductionID().String()); err == nil {
		t.Error("ParseEventID accepted a prod_ id")
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Error("expected error for empty string")
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if i.String() != "" {
		t.Errorf("expected empty string, got %q", i.String())
	}
}

func TestTextRoundTrip(t *testing.T) {
	original := id.NewProductionID()

	data, err := original.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText failed: %v", err)
	}
	var restored id.ID
	if err := restored.UnmarshalText(data); err != nil {
		t.Fatalf("UnmarshalText failed: %v", err)
	}
	if restored.String() != original.String() {
		t.Errorf("text mismatch: %q != %q", restored.String(), original.String())
	}

	var nilID id.ID
	if err := nilID.UnmarshalText(nil); err != nil || !nilID.IsNil() {
		t.Errorf("UnmarshalText(nil) = %v, nil=%v", err, nilID.IsNil())
	}
}

func TestUniqueness(t *testing.T) {
	a := id.NewEventID()
	b := id.NewEventID()
	if a.String() == b.String() {
		t.Errorf("two consecutive NewEventID() calls returned the same ID: %q", a.String())
	}
}
