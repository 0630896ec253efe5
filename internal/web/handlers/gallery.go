package handlers

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kozaktomas/face-engine/internal/store"
)

// Snapshot is an immutable loaded store. Requests hold on to the snapshot
// they started with, so a reload never changes a store under a reader.
type Snapshot struct {
	Store      *store.Store
	Generation string
	LoadedAt   time.Time
}

// Gallery owns the current snapshot of the embeddings roots.
type Gallery struct {
	roots   []string
	log     zerolog.Logger
	current atomic.Pointer[Snapshot]
	reload  sync.Mutex
}

// NewGallery loads roots and publishes the first snapshot.
func NewGallery(roots []string, log zerolog.Logger) (*Gallery, error) {
	g := &Gallery{roots: roots, log: log}
	if _, err := g.Reload(); err != nil {
		return nil, err
	}
	return g, nil
}

// Snapshot returns the current snapshot.
func (g *Gallery) Snapshot() *Snapshot {
	return g.current.Load()
}

// Reload reads the roots into a new store and swaps it in. On failure the
// previous snapshot stays current.
func (g *Gallery) Reload() (*Snapshot, error) {
	g.reload.Lock()
	defer g.reload.Unlock()

	s, err := store.LoadAll(g.roots, store.WithLogger(g.log))
	if err != nil {
		return nil, fmt.Errorf("failed to load embeddings: %w", err)
	}

	snap := &Snapshot{
		Store:      s,
		Generation: uuid.NewString(),
		LoadedAt:   time.Now().UTC(),
	}
	g.current.Store(snap)

	g.log.Info().
		Str("generation", snap.Generation).
		Int("identities", s.Len()).
		Int("embeddings", s.Total()).
		Msg("gallery loaded")
	return snap, nil
}
