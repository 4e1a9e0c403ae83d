package store

import (
	"fmt"

	"github.com/xraph/thermal/codec"
)

// EncodeBatch serializes a batch for the journal.
func EncodeBatch(b *Batch) ([]byte, error) {
	data, err := codec.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("store: encode batch %d: %w", b.Seq, err)
	}
	return data, nil
}

// DecodeBatch deserializes a journal payload.
func DecodeBatch(data []byte) (*Batch, error) {
	var b Batch
	if err := codec.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("store: decode batch: %w", err)
	}
	return &b, nil
}

// Replay applies journal payloads in order on top of snap.
func Replay(snap *Snapshot, payloads [][]byte) error {
	for _, p := range payloads {
		b, err := DecodeBatch(p)
		if err != nil {
			return err
		}
		snap.Apply(b)
	}
	return nil
}
