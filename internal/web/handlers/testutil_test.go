package handlers

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/face-engine/internal/embedding"
	"github.com/kozaktomas/face-engine/internal/face"
	"github.com/kozaktomas/face-engine/internal/face/facetest"
	"github.com/kozaktomas/face-engine/internal/store"
)

// saveIdentity writes one embedding per vector for name under root.
func saveIdentity(t *testing.T, root, name string, vectors ...[]float32) {
	t.Helper()
	embs := make([]embedding.Embedding, len(vectors))
	for i, v := range vectors {
		embs[i] = embedding.MustNew(v...)
	}
	if err := store.Save(name, embs, root); err != nil {
		t.Fatalf("Save(%s) failed: %v", name, err)
	}
}

// testGallery loads a gallery with a red identity and a green identity.
func testGallery(t *testing.T) (*Gallery, string) {
	t.Helper()
	root := t.TempDir()
	saveIdentity(t, root, "red", []float32{1, 0, 0})
	saveIdentity(t, root, "green", []float32{0, 1, 0}, []float32{0, 0.9, 0})

	g, err := NewGallery([]string{root}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewGallery failed: %v", err)
	}
	return g, root
}

// halvesEngine reports the left and right half of every image as one face each.
func halvesEngine() *facetest.Engine {
	return &facetest.Engine{
		Regions: func(img image.Image) ([]face.Region, error) {
			b := img.Bounds()
			mid := b.Min.X + b.Dx()/2
			return []face.Region{
				{Box: image.Rect(b.Min.X, b.Min.Y, mid, b.Max.Y), Score: 0.9},
				{Box: image.Rect(mid, b.Min.Y, b.Max.X, b.Max.Y), Score: 0.8},
			}, nil
		},
	}
}

// pngTwoFaces encodes a red left half and a blue right half.
func pngTwoFaces(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	facetest.Fill(img, image.Rect(0, 0, 20, 20), color.RGBA{255, 0, 0, 255})
	facetest.Fill(img, image.Rect(20, 0, 40, 20), color.RGBA{0, 0, 255, 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// multipartRequest builds a POST with an optional file part and form fields.
func multipartRequest(t *testing.T, path string, file []byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if file != nil {
		part, err := writer.CreateFormFile("file", "query.png")
		if err != nil {
			t.Fatal(err)
		}
		part.Write(file)
	}
	for k, v := range fields {
		writer.WriteField(k, v)
	}
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}
