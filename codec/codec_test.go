package codec_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/xraph/thermal/codec"
	"github.com/xraph/thermal/id"
)

type sample struct {
	ID     id.ID             `json:"id"`
	Name   string            `json:"name"`
	Amount int64             `json:"amount"`
	At     time.Time         `json:"at"`
	Tags   map[string]string `json:"tags"`
}

func TestRoundTrip(t *testing.T) {
	in := sample{
		ID:     id.NewEventID(),
		Name:   "t1",
		Amount: 4550,
		At:     time.Date(2025, 3, 1, 12, 0, 0, 123456789, time.UTC),
		Tags:   map[string]string{"b": "2", "a": "1"},
	}

	data, err := codec.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}

	var out sample
	if err := codec.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out.ID.String() != in.ID.String() {
		t.Errorf("ID: got %q, want %q", out.ID, in.ID)
	}
	if !out.At.Equal(in.At) {
		t.Errorf("At: got %v, want %v", out.At, in.At)
	}
	if out.Amount != in.Amount || out.Name != in.Name || out.Tags["a"] != "1" {
		t.Errorf("got %+v", out)
	}
}

func TestDeterministic(t *testing.T) {
	a := map[string]int{"x": 1, "y": 2, "z": 3}
	b := map[string]int{"z": 3, "y": 2, "x": 1}

	da, err := codec.Marshal(a)
	if err != nil {
		t.Fatal(err)
	}
	db, err := codec.Marshal(b)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(da, db) {
		t.Error("same logical map encoded to different bytes")
	}
}
