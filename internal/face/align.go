package face

import (
	"context"
	"errors"
	"image"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

const (
	// DefaultChipSize matches the 150px chips the recognition network expects.
	DefaultChipSize = 150
	// DefaultChipPadding is the fraction of the face size added on every side.
	DefaultChipPadding = 0.25
)

// ErrEmptyRegion is returned when a region has no area.
var ErrEmptyRegion = errors.New("empty face region")

// referenceLandmarks is the canonical 5-point layout on a 112x112 chip
// (left eye, right eye, nose tip, left mouth corner, right mouth corner).
var referenceLandmarks = [5][2]float64{
	{38.2946, 51.6963},
	{73.5318, 51.5014},
	{56.0252, 71.7366},
	{41.5493, 92.3655},
	{70.7299, 92.2041},
}

const referenceSize = 112.0

// ChipAligner warps a face region into a square chip.
// With 5 landmarks the chip is produced by the least-squares similarity
// transform onto referenceLandmarks; otherwise the padded box is scaled.
type ChipAligner struct {
	Size    int     // output edge in pixels (DefaultChipSize when 0)
	Padding float64 // box padding fraction for the fallback crop (DefaultChipPadding when 0)
}

// AlignCrop implements Aligner.
func (a ChipAligner) AlignCrop(ctx context.Context, img image.Image, region Region) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if region.Box.Empty() {
		return nil, ErrEmptyRegion
	}

	size := a.Size
	if size <= 0 {
		size = DefaultChipSize
	}

	s2d, ok := landmarkTransform(region.Landmarks, float64(size))
	if !ok {
		s2d = boxTransform(region.Box, float64(size), a.padding())
	}

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Transform(dst, s2d, img, img.Bounds(), draw.Src, nil)
	return dst, nil
}

func (a ChipAligner) padding() float64 {
	if a.Padding <= 0 {
		return DefaultChipPadding
	}
	return a.Padding
}

// boxTransform maps a square, padded window centered on box onto a size x size chip.
func boxTransform(box image.Rectangle, size, padding float64) f64.Aff3 {
	w := float64(box.Dx())
	h := float64(box.Dy())
	side := math.Max(w, h) * (1 + 2*padding)
	cx := float64(box.Min.X) + w/2
	cy := float64(box.Min.Y) + h/2
	x0 := cx - side/2
	y0 := cy - side/2

	k := size / side
	return f64.Aff3{
		k, 0, -k * x0,
		0, k, -k * y0,
	}
}

// landmarkTransform estimates the similarity transform (rotation, uniform scale,
// translation) taking the detected landmarks onto the reference layout.
// Treating points as complex numbers, the least-squares solution of d = a*s + b is
// a = sum((d-dm)*conj(s-sm)) / sum(|s-sm|^2), b = dm - a*sm.
func landmarkTransform(points []image.Point, size float64) (f64.Aff3, bool) {
	if len(points) != len(referenceLandmarks) {
		return f64.Aff3{}, false
	}

	scale := size / referenceSize
	var src, dst [5]complex128
	var srcMean, dstMean complex128
	for i, p := range points {
		src[i] = complex(float64(p.X), float64(p.Y))
		dst[i] = complex(referenceLandmarks[i][0]*scale, referenceLandmarks[i][1]*scale)
		srcMean += src[i]
		dstMean += dst[i]
	}
	srcMean /= complex(float64(len(points)), 0)
	dstMean /= complex(float64(len(points)), 0)

	var num complex128
	var den float64
	for i := range src {
		ds := src[i] - srcMean
		dd := dst[i] - dstMean
		num += dd * complex(real(ds), -imag(ds))
		den += real(ds)*real(ds) + imag(ds)*imag(ds)
	}
	if den == 0 {
		return f64.Aff3{}, false
	}

	a := num / complex(den, 0)
	b := dstMean - a*srcMean
	ar, ai := real(a), imag(a)
	return f64.Aff3{
		ar, -ai, real(b),
		ai, ar, imag(b),
	}, true
}
