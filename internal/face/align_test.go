package face

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"testing"
)

func TestChipAlignerBoxFallback(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 200, 200))
	red := color.RGBA{255, 0, 0, 255}
	for x := 80; x < 120; x++ {
		for y := 60; y < 100; y++ {
			img.Set(x, y, red)
		}
	}

	chip, err := ChipAligner{Size: 100, Padding: 0.25}.AlignCrop(context.Background(), img, Region{Box: image.Rect(80, 60, 120, 100)})
	if err != nil {
		t.Fatalf("AlignCrop failed: %v", err)
	}

	if b := chip.Bounds(); b.Dx() != 100 || b.Dy() != 100 {
		t.Fatalf("chip size = %v, want 100x100", b)
	}

	// The face occupies the middle 1/(1+2*0.25) = 2/3 of the chip.
	r, g, _, _ := chip.At(50, 50).RGBA()
	if r>>8 < 200 || g>>8 > 50 {
		t.Errorf("chip center should be red, got r=%d g=%d", r>>8, g>>8)
	}
	r, _, _, _ = chip.At(5, 5).RGBA()
	if r>>8 > 50 {
		t.Errorf("chip corner should be background, got r=%d", r>>8)
	}
}

func TestChipAlignerDefaults(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	chip, err := ChipAligner{}.AlignCrop(context.Background(), img, Region{Box: image.Rect(10, 10, 30, 40)})
	if err != nil {
		t.Fatalf("AlignCrop failed: %v", err)
	}
	if b := chip.Bounds(); b.Dx() != DefaultChipSize || b.Dy() != DefaultChipSize {
		t.Errorf("chip size = %v, want %dx%d", b, DefaultChipSize, DefaultChipSize)
	}
}

func TestChipAlignerErrors(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))

	if _, err := (ChipAligner{}).AlignCrop(context.Background(), img, Region{}); !errors.Is(err, ErrEmptyRegion) {
		t.Errorf("empty region error = %v, want ErrEmptyRegion", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (ChipAligner{}).AlignCrop(ctx, img, Region{Box: image.Rect(0, 0, 5, 5)}); !errors.Is(err, context.Canceled) {
		t.Errorf("canceled context error = %v, want context.Canceled", err)
	}
}

func TestLandmarkTransform(t *testing.T) {
	tests := []struct {
		name   string
		mapPt  func(x, y float64) (float64, float64)
		wantAr float64
		wantAi float64
	}{
		{
			name:   "translated",
			mapPt:  func(x, y float64) (float64, float64) { return x + 10, y + 20 },
			wantAr: 1,
			wantAi: 0,
		},
		{
			name:   "scaled up twice",
			mapPt:  func(x, y float64) (float64, float64) { return 2 * x, 2 * y },
			wantAr: 0.5,
			wantAi: 0,
		},
		{
			// Source rotated by +90 degrees, so the estimate rotates back by -90.
			name:   "rotated",
			mapPt:  func(x, y float64) (float64, float64) { return 300 - y, x },
			wantAr: 0,
			wantAi: -1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			points := make([]image.Point, len(referenceLandmarks))
			for i, p := range referenceLandmarks {
				x, y := tc.mapPt(p[0], p[1])
				points[i] = image.Pt(int(math.Round(x)), int(math.Round(y)))
			}

			m, ok := landmarkTransform(points, referenceSize)
			if !ok {
				t.Fatal("expected a transform")
			}
			if math.Abs(m[0]-tc.wantAr) > 0.03 || math.Abs(m[3]-tc.wantAi) > 0.03 {
				t.Errorf("transform = %v, want ar=%v ai=%v", m, tc.wantAr, tc.wantAi)
			}

			// Mapping the detected landmarks must land close to the reference layout.
			for i, p := range points {
				x := m[0]*float64(p.X) + m[1]*float64(p.Y) + m[2]
				y := m[3]*float64(p.X) + m[4]*float64(p.Y) + m[5]
				if math.Hypot(x-referenceLandmarks[i][0], y-referenceLandmarks[i][1]) > 1.5 {
					t.Errorf("landmark %d mapped to (%.1f, %.1f), want near %v", i, x, y, referenceLandmarks[i])
				}
			}
		})
	}
}

func TestLandmarkTransformDegenerate(t *testing.T) {
	same := []image.Point{{5, 5}, {5, 5}, {5, 5}, {5, 5}, {5, 5}}
	if _, ok := landmarkTransform(same, 150); ok {
		t.Error("coincident landmarks should not produce a transform")
	}
	if _, ok := landmarkTransform([]image.Point{{1, 2}, {3, 4}}, 150); ok {
		t.Error("wrong landmark count should not produce a transform")
	}
}

func TestCompose(t *testing.T) {
	called := false
	d := DetectorFunc(func(ctx context.Context, img image.Image) ([]Region, error) {
		called = true
		return []Region{{Box: image.Rect(0, 0, 1, 1)}}, nil
	})

	engine := Compose(d, ChipAligner{}, nil)
	regions, err := engine.DetectFaces(context.Background(), image.NewRGBA(image.Rect(0, 0, 2, 2)))
	if err != nil || len(regions) != 1 || !called {
		t.Errorf("DetectFaces = %v, %v (called=%v)", regions, err, called)
	}
}
