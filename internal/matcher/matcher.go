// Package matcher assigns identities to faces by brute-force nearest-neighbour voting.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/face-engine/internal/embedding"
	"github.com/kozaktomas/face-engine/internal/face"
	"github.com/kozaktomas/face-engine/internal/store"
)

// Unknown is the identity reported when no reference is within the threshold.
const Unknown = "unknown"

var (
	// ErrNoFacesDetected is reported (not returned) when an evaluated image has no face.
	ErrNoFacesDetected = errors.New("no face found")
	// ErrInvalidThreshold is returned by NewMatcher for thresholds outside (0, 1].
	ErrInvalidThreshold = errors.New("threshold must be in (0, 1]")
)

// Result is the outcome of matching one query embedding.
type Result struct {
	Identity    string
	Hits        int
	AvgDistance float64 // NaN when Identity is Unknown
}

// Known reports whether the query matched an identity.
func (r Result) Known() bool {
	return r.Identity != Unknown
}

// Match returns the identity with the most references closer than threshold.
// Ties on the hit count go to the strictly smaller average distance; a complete
// tie keeps the identity seen first in store order.
func Match(query embedding.Embedding, s *store.Store, threshold float64) Result {
	best := Result{Identity: Unknown, AvgDistance: math.NaN()}

	for name, refs := range s.All() {
		hits := 0
		sum := 0.0
		for _, ref := range refs {
			d, ok := embedding.Distance(query, ref)
			if !ok || !(d < threshold) {
				continue
			}
			hits++
			sum += d
		}
		if hits == 0 {
			continue
		}

		avg := sum / float64(hits)
		if hits > best.Hits || (hits == best.Hits && avg < best.AvgDistance) {
			best = Result{Identity: name, Hits: hits, AvgDistance: avg}
		}
	}

	return best
}

// Label is a detected face with its assigned identity.
type Label struct {
	Region face.Region
	Result
}

// Matcher evaluates whole images against a store.
type Matcher struct {
	engine    face.Engine
	threshold float64
	log       zerolog.Logger
}

type Option func(*Matcher)

// WithLogger sets the logger used to report images without faces.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Matcher) { m.log = l }
}

// NewMatcher creates a Matcher; threshold must be in (0, 1].
func NewMatcher(engine face.Engine, threshold float64, opts ...Option) (*Matcher, error) {
	if math.IsNaN(threshold) || threshold <= 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidThreshold, threshold)
	}
	m := &Matcher{engine: engine, threshold: threshold, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Threshold returns the configured distance threshold.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// WithThreshold returns a copy of m using a different threshold.
func (m *Matcher) WithThreshold(threshold float64) (*Matcher, error) {
	return NewMatcher(m.engine, threshold, WithLogger(m.log))
}

// Evaluate detects every face in img and labels it against s.
// An image without faces yields an empty slice and a nil error; the condition is
// logged as ErrNoFacesDetected. A face that cannot be aligned is logged and
// labelled Unknown; detection and embedding failures are returned.
func (m *Matcher) Evaluate(ctx context.Context, img image.Image, s *store.Store) ([]Label, error) {
	regions, err := m.engine.DetectFaces(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("failed to detect faces: %w", err)
	}
	if len(regions) == 0 {
		m.log.Info().Err(ErrNoFacesDetected).Msg("nothing to match")
		return []Label{}, nil
	}

	labels := make([]Label, len(regions))
	crops := make([]image.Image, 0, len(regions))
	aligned := make([]int, 0, len(regions))
	for i, region := range regions {
		labels[i] = Label{Region: region, Result: Result{Identity: Unknown, AvgDistance: math.NaN()}}
		crop, err := m.engine.AlignCrop(ctx, img, region)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			m.log.Warn().Err(err).Int("face", i).Stringer("box", region.Box).Msg("failed to align face, labelling it unknown")
			continue
		}
		crops = append(crops, crop)
		aligned = append(aligned, i)
	}
	if len(crops) == 0 {
		return labels, nil
	}

	embs, err := m.engine.ComputeEmbeddings(ctx, crops)
	if err != nil {
		return nil, fmt.Errorf("failed to compute embeddings: %w", err)
	}
	if len(embs) != len(crops) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(crops), len(embs))
	}

	for j, i := range aligned {
		labels[i].Result = Match(embs[j], s, m.threshold)
		m.log.Debug().
			Int("face", i).
			Str("identity", labels[i].Identity).
			Int("hits", labels[i].Hits).
			Msg("face matched")
	}
	return labels, nil
}
