package embedding

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"
)

// codecVersion is bumped whenever the persisted record layout changes.
const codecVersion = 1

// record is the on-disk form of one embedding.
type record struct {
	Version int
	Dim     int
	Values  []float32
}

// Encode writes e to w in a self-describing binary form.
func Encode(w io.Writer, e Embedding) error {
	if e.IsZero() {
		return ErrEmpty
	}
	rec := record{Version: codecVersion, Dim: e.Dim(), Values: e.values}
	if err := gob.NewEncoder(w).Encode(rec); err != nil {
		return fmt.Errorf("failed to encode embedding: %w", err)
	}
	return nil
}

// Decode reads one embedding written by Encode.
func Decode(r io.Reader) (Embedding, error) {
	var rec record
	if err := gob.NewDecoder(r).Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Embedding{}, fmt.Errorf("failed to decode embedding: %w", io.ErrUnexpectedEOF)
		}
		return Embedding{}, fmt.Errorf("failed to decode embedding: %w", err)
	}
	if rec.Version != codecVersion {
		return Embedding{}, fmt.Errorf("unsupported embedding version %d", rec.Version)
	}
	if rec.Dim != len(rec.Values) {
		return Embedding{}, fmt.Errorf("embedding declares %d components but holds %d", rec.Dim, len(rec.Values))
	}
	if len(rec.Values) == 0 {
		return Embedding{}, ErrEmpty
	}
	return Embedding{values: rec.Values}, nil
}
