package embedding

import (
	"errors"
	"fmt"
	"slices"

	"github.com/viterin/vek/vek32"
)

// ErrEmpty is returned when an embedding would have no components.
var ErrEmpty = errors.New("empty embedding")

// Embedding is an immutable fixed-length face descriptor.
type Embedding struct {
	values []float32
}

// New creates an embedding from a copy of values.
func New(values []float32) (Embedding, error) {
	if len(values) == 0 {
		return Embedding{}, ErrEmpty
	}
	return Embedding{values: slices.Clone(values)}, nil
}

// MustNew is like New but panics on empty input. Intended for tests and literals.
func MustNew(values ...float32) Embedding {
	e, err := New(values)
	if err != nil {
		panic(err)
	}
	return e
}

// Dim returns the number of components.
func (e Embedding) Dim() int {
	return len(e.values)
}

// IsZero reports whether e holds no components (the zero value).
func (e Embedding) IsZero() bool {
	return len(e.values) == 0
}

// Values returns a copy of the components.
func (e Embedding) Values() []float32 {
	return slices.Clone(e.values)
}

// Equal reports whether both embeddings hold exactly the same components.
func (e Embedding) Equal(other Embedding) bool {
	return slices.Equal(e.values, other.values)
}

// String renders the vector the way a column transpose prints.
func (e Embedding) String() string {
	return fmt.Sprint(e.values)
}

// Distance returns the Euclidean (L2) distance between a and b.
// The second return value is false when the dimensions differ or either side is empty.
func Distance(a, b Embedding) (float64, bool) {
	if a.IsZero() || len(a.values) != len(b.values) {
		return 0, false
	}
	return float64(vek32.Distance(a.values, b.values)), true
}
