// Package face defines the detection, alignment and embedding capability the
// recognizer is built on. Implementations live elsewhere (see inference).
package face

import (
	"context"
	"image"

	"github.com/kozaktomas/face-engine/internal/embedding"
)

// Region is one detected face in image pixel coordinates.
type Region struct {
	Box       image.Rectangle
	Score     float64       // detector confidence, 0 when the detector does not report one
	Landmarks []image.Point // optional 5-point landmarks: eyes, nose, mouth corners
}

// Detector finds face regions in an image.
type Detector interface {
	DetectFaces(ctx context.Context, img image.Image) ([]Region, error)
}

// Aligner produces a normalized face crop for a detected region.
type Aligner interface {
	AlignCrop(ctx context.Context, img image.Image, region Region) (image.Image, error)
}

// Embedder computes one embedding per aligned crop, in input order.
type Embedder interface {
	ComputeEmbeddings(ctx context.Context, crops []image.Image) ([]embedding.Embedding, error)
}

// Engine is the full capability: detect, align, embed.
type Engine interface {
	Detector
	Aligner
	Embedder
}

type composed struct {
	Detector
	Aligner
	Embedder
}

// Compose assembles an Engine from independent parts.
func Compose(d Detector, a Aligner, e Embedder) Engine {
	return composed{Detector: d, Aligner: a, Embedder: e}
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(ctx context.Context, img image.Image) ([]Region, error)

// DetectFaces calls f.
func (f DetectorFunc) DetectFaces(ctx context.Context, img image.Image) ([]Region, error) {
	return f(ctx, img)
}
