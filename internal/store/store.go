// Package store keeps per-identity reference embeddings and persists them
// as one directory per identity with one file per embedding.
package store

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/kozaktomas/face-engine/internal/embedding"
	"github.com/rs/zerolog"
	"golang.org/x/text/unicode/norm"
)

var (
	// ErrNotFound is returned when a required path does not exist or is not a directory.
	ErrNotFound = errors.New("path not found")
	// ErrCorruptEmbedding is returned when a persisted embedding cannot be decoded.
	ErrCorruptEmbedding = errors.New("corrupt embedding")
	// ErrDuplicate reports an insertion under a name that already exists. It is not fatal.
	ErrDuplicate = errors.New("duplicate identity")
	// ErrDimensionMismatch is returned when embeddings of different sizes would be mixed.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrEmptyIdentity is returned when inserting an identity without embeddings.
	ErrEmptyIdentity = errors.New("identity has no embeddings")
	// ErrInvalidName is returned for names that cannot be used as a directory name.
	ErrInvalidName = errors.New("invalid identity name")
)

// Identity is a named collection of reference embeddings.
type Identity struct {
	Name       string
	Embeddings []embedding.Embedding
}

// Store maps identity names to reference embeddings.
// It is not safe for concurrent mutation; treat it as read-only once loaded.
type Store struct {
	order []string
	byKey map[string]*Identity
	dim   int
	log   zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used to report skipped and duplicate identities.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) {
		s.log = l
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		byKey: make(map[string]*Identity),
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NormalizeName returns the canonical form of an identity name (trimmed, NFC).
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// ValidateName checks that name is usable as an identity directory.
func ValidateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(name, `/\`), strings.ContainsRune(name, 0):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	}
	return nil
}

// Insert adds an identity. An existing name is left untouched and ErrDuplicate is returned.
func (s *Store) Insert(name string, embeddings []embedding.Embedding) error {
	key := NormalizeName(name)
	if err := ValidateName(key); err != nil {
		return err
	}
	if len(embeddings) == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyIdentity, key)
	}
	if _, exists := s.byKey[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, key)
	}

	dim := s.dim
	for i, e := range embeddings {
		if e.IsZero() {
			return fmt.Errorf("%s[%d]: %w", key, i, embedding.ErrEmpty)
		}
		if dim == 0 {
			dim = e.Dim()
		}
		if e.Dim() != dim {
			return fmt.Errorf("%w: %s[%d] has %d components, store uses %d", ErrDimensionMismatch, key, i, e.Dim(), dim)
		}
	}

	s.dim = dim
	s.byKey[key] = &Identity{Name: key, Embeddings: slices.Clone(embeddings)}
	s.order = append(s.order, key)
	return nil
}

// All iterates identities in insertion order. Callers must not modify the yielded slices.
func (s *Store) All() iter.Seq2[string, []embedding.Embedding] {
	return func(yield func(string, []embedding.Embedding) bool) {
		for _, name := range s.order {
			if !yield(name, s.byKey[name].Embeddings) {
				return
			}
		}
	}
}

// Get returns the embeddings stored for name.
func (s *Store) Get(name string) ([]embedding.Embedding, bool) {
	id, ok := s.byKey[NormalizeName(name)]
	if !ok {
		return nil, false
	}
	return id.Embeddings, true
}

// Names returns identity names in insertion order.
func (s *Store) Names() []string {
	return slices.Clone(s.order)
}

// Len returns the number of identities.
func (s *Store) Len() int {
	return len(s.order)
}

// Total returns the number of reference embeddings across all identities.
func (s *Store) Total() int {
	total := 0
	for _, id := range s.byKey {
		total += len(id.Embeddings)
	}
	return total
}

// Dim returns the embedding dimensionality, or 0 for an empty store.
func (s *Store) Dim() int {
	return s.dim
}

// Counts returns the number of embeddings per identity.
func (s *Store) Counts() map[string]int {
	counts := make(map[string]int, len(s.byKey))
	for name, id := range s.byKey {
		counts[name] = len(id.Embeddings)
	}
	return counts
}
