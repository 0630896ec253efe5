// Package facetest provides a scripted face.Engine for tests.
package facetest

import (
	"context"
	"image"
	"image/color"
	"sync"

	"github.com/kozaktomas/face-engine/internal/embedding"
	"github.com/kozaktomas/face-engine/internal/face"
)

// Engine answers detection and embedding calls from user supplied functions.
// AlignCrop returns the sub-image under the region box.
type Engine struct {
	Regions func(img image.Image) ([]face.Region, error)
	Vector  func(crop image.Image) []float32
	// AlignErr, when set, decides per region whether AlignCrop fails.
	AlignErr func(region face.Region) error
	// EmbedErr, when set, fails every ComputeEmbeddings call.
	EmbedErr error
	// BatchErr, when set, decides per batch whether ComputeEmbeddings fails.
	BatchErr func(crops []image.Image) error

	mu          sync.Mutex
	detectCalls int
	embedCalls  int
	embedSizes  []int
}

var _ face.Engine = (*Engine)(nil)

func (e *Engine) DetectFaces(ctx context.Context, img image.Image) ([]face.Region, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.detectCalls++
	e.mu.Unlock()
	if e.Regions == nil {
		return nil, nil
	}
	return e.Regions(img)
}

func (e *Engine) AlignCrop(ctx context.Context, img image.Image, region face.Region) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.AlignErr != nil {
		if err := e.AlignErr(region); err != nil {
			return nil, err
		}
	}
	if sub, ok := img.(interface {
		SubImage(r image.Rectangle) image.Image
	}); ok {
		return sub.SubImage(region.Box), nil
	}
	return img, nil
}

func (e *Engine) ComputeEmbeddings(ctx context.Context, crops []image.Image) ([]embedding.Embedding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.embedCalls++
	e.embedSizes = append(e.embedSizes, len(crops))
	e.mu.Unlock()
	if e.EmbedErr != nil {
		return nil, e.EmbedErr
	}
	if e.BatchErr != nil {
		if err := e.BatchErr(crops); err != nil {
			return nil, err
		}
	}

	vector := e.Vector
	if vector == nil {
		vector = ColorVector
	}
	out := make([]embedding.Embedding, len(crops))
	for i, crop := range crops {
		emb, err := embedding.New(vector(crop))
		if err != nil {
			return nil, err
		}
		out[i] = emb
	}
	return out, nil
}

// DetectCalls returns how many times DetectFaces was called.
func (e *Engine) DetectCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.detectCalls
}

// EmbedBatches returns the crop count of every ComputeEmbeddings call.
func (e *Engine) EmbedBatches() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int(nil), e.embedSizes...)
}

// Swatch returns a w x h image filled with c.
func Swatch(c color.RGBA, w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	Fill(img, img.Bounds(), c)
	return img
}

// Fill paints r inside img with c.
func Fill(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

// ColorVector maps the top-left pixel of crop to {R, G, B} in [0, 1].
func ColorVector(crop image.Image) []float32 {
	r, g, b, _ := crop.At(crop.Bounds().Min.X, crop.Bounds().Min.Y).RGBA()
	return []float32{float32(r>>8) / 255, float32(g>>8) / 255, float32(b>>8) / 255}
}
