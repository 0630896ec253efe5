// Package annotate draws recognition results onto the query image.
package annotate

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"strconv"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/kozaktomas/face-engine/internal/constants"
	"github.com/kozaktomas/face-engine/internal/imageio"
	"github.com/kozaktomas/face-engine/internal/matcher"
)

const (
	DefaultQuality   = constants.JPEGQuality
	defaultLineWidth = 2
)

var (
	red   = color.RGBA{255, 0, 0, 255}
	white = color.RGBA{255, 255, 255, 255}
)

type Options struct {
	MaxSize   int // longest output edge, 0 keeps the original size
	LineWidth int
	Quality   int
}

// Render returns a copy of img with a red box and the identity name drawn for every label.
func Render(img image.Image, labels []matcher.Label, opts Options) *image.RGBA {
	scaled, factor := imageio.Fit(img, opts.MaxSize)

	bounds := scaled.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), scaled, bounds.Min, draw.Src)

	lineWidth := opts.LineWidth
	if lineWidth <= 0 {
		lineWidth = defaultLineWidth
	}

	origin := img.Bounds().Min
	for _, label := range labels {
		box := scaleRect(label.Region.Box.Sub(origin), factor)
		drawBox(dst, box, lineWidth, red)
		drawCaption(dst, box, caption(label))
	}
	return dst
}

func caption(label matcher.Label) string {
	if !label.Known() {
		return label.Identity
	}
	return label.Identity + " " + strconv.FormatFloat(label.AvgDistance, 'f', 2, 64)
}

func scaleRect(r image.Rectangle, factor float64) image.Rectangle {
	if factor == 1 {
		return r
	}
	return image.Rect(
		int(float64(r.Min.X)/factor), int(float64(r.Min.Y)/factor),
		int(float64(r.Max.X)/factor), int(float64(r.Max.Y)/factor),
	)
}

// drawHLine draws a horizontal line on the image.
func drawHLine(dst *image.RGBA, x1, x2, y int, c color.RGBA) {
	bounds := dst.Bounds()
	if y < bounds.Min.Y || y >= bounds.Max.Y {
		return
	}
	for x := max(x1, bounds.Min.X); x <= x2 && x < bounds.Max.X; x++ {
		dst.SetRGBA(x, y, c)
	}
}

// drawVLine draws a vertical line on the image.
func drawVLine(dst *image.RGBA, y1, y2, x int, c color.RGBA) {
	bounds := dst.Bounds()
	if x < bounds.Min.X || x >= bounds.Max.X {
		return
	}
	for y := max(y1, bounds.Min.Y); y <= y2 && y < bounds.Max.Y; y++ {
		dst.SetRGBA(x, y, c)
	}
}

// drawBox draws the outline of r, lineWidth pixels thick, inside r.
func drawBox(dst *image.RGBA, r image.Rectangle, lineWidth int, c color.RGBA) {
	x1, y1 := r.Min.X, r.Min.Y
	x2, y2 := r.Max.X-1, r.Max.Y-1
	for w := range lineWidth {
		drawHLine(dst, x1, x2, y1+w, c)
		drawHLine(dst, x1, x2, y2-w, c)
		drawVLine(dst, y1, y2, x1+w, c)
		drawVLine(dst, y1, y2, x2-w, c)
	}
}

// drawCaption writes text on a red strip just above the box, or inside its top
// edge when the box touches the top of the image.
func drawCaption(dst *image.RGBA, box image.Rectangle, text string) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil() + 4
	height := face.Metrics().Height.Ceil() + 2

	top := box.Min.Y - height
	if top < dst.Bounds().Min.Y {
		top = box.Min.Y
	}
	strip := image.Rect(box.Min.X, top, box.Min.X+width, top+height).Intersect(dst.Bounds())
	draw.Draw(dst, strip, image.NewUniform(red), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(white),
		Face: face,
		Dot:  fixed.P(box.Min.X+2, top+face.Metrics().Ascent.Ceil()+1),
	}
	d.DrawString(text)
}

// Encode writes img as JPEG.
func Encode(w io.Writer, img image.Image, quality int) error {
	if quality <= 0 {
		quality = DefaultQuality
	}
	data, err := imageio.EncodeJPEG(img, quality)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write image: %w", err)
	}
	return nil
}

// WriteFile renders the labels and saves the result as a JPEG at path.
func WriteFile(path string, img image.Image, labels []matcher.Label, opts Options) error {
	f, err := os.Create(path) //nolint:gosec // user-provided output path
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := Encode(f, Render(img, labels, opts), opts.Quality); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close output file: %w", err)
	}
	return nil
}
