// Package inference talks to the face inference server that runs detection,
// landmark prediction and the recognition network.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/face-engine/internal/config"
	"github.com/kozaktomas/face-engine/internal/embedding"
	"github.com/kozaktomas/face-engine/internal/face"
	"github.com/kozaktomas/face-engine/internal/imageio"
)

const (
	defaultEngineURL = "http://localhost:8000"

	// DetectorHOG is the histogram-of-gradients detector, always available.
	DetectorHOG = "hog"
	// DetectorCNN is the MMOD convolutional detector, used when its model file is present.
	DetectorCNN = "cnn"

	// detectQuality is used when re-encoding query images for upload.
	detectQuality = 95
)

// ErrModelMissing is returned by Open when a required model file is not configured or absent.
var ErrModelMissing = errors.New("model file missing")

// Client implements face.Engine on top of the inference server.
// Alignment runs locally; detection and embedding are remote calls.
type Client struct {
	face.ChipAligner

	baseURL  string
	client   *http.Client
	models   config.ModelsConfig
	detector string
	detect   face.DetectorFunc
	log      zerolog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithLogger sets the logger used for model selection messages.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// Open validates the model files and chooses the detector.
// The shape predictor and recognition model are required. The MMOD model is optional:
// when it is configured and present the CNN detector is used, otherwise HOG.
func Open(cfg *config.Config, opts ...Option) (*Client, error) {
	models := cfg.Models
	if err := requireModel("shape predictor", models.ShapePredictor); err != nil {
		return nil, err
	}
	if err := requireModel("face recognition", models.Recognition); err != nil {
		return nil, err
	}

	baseURL := cfg.Inference.URL
	if baseURL == "" {
		baseURL = defaultEngineURL
	}

	c := &Client{
		ChipAligner: face.ChipAligner{Size: face.DefaultChipSize, Padding: face.DefaultChipPadding},
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		client:      &http.Client{Timeout: cfg.Inference.Timeout},
		models:      models,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	switch {
	case models.MMOD == "":
		c.log.Info().Msg("no MMOD model configured, using HOG face detector")
		c.useDetector(DetectorHOG)
	case !fileExists(models.MMOD):
		c.log.Warn().Str("path", models.MMOD).Msg("failed to load MMOD model, falling back to HOG face detector")
		c.useDetector(DetectorHOG)
	default:
		c.log.Info().Str("path", models.MMOD).Msg("using CNN face detector")
		c.useDetector(DetectorCNN)
	}

	return c, nil
}

// useDetector binds DetectFaces to one detector kind and its model fields.
func (c *Client) useDetector(kind string) {
	c.detector = kind
	fields := map[string]string{
		"detector":        kind,
		"shape_predictor": c.models.ShapePredictor,
	}
	if kind == DetectorCNN {
		fields["mmod"] = c.models.MMOD
	}
	c.detect = func(ctx context.Context, img image.Image) ([]face.Region, error) {
		return c.detectRemote(ctx, img, fields)
	}
}

// Detector returns the detector kind chosen by Open, "hog" or "cnn".
func (c *Client) Detector() string {
	return c.detector
}

func requireModel(name, path string) error {
	if path == "" {
		return fmt.Errorf("%w: %s model path not set", ErrModelMissing, name)
	}
	if !fileExists(path) {
		return fmt.Errorf("%w: %s model not found at %s", ErrModelMissing, name, path)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// detectResponse represents the response from the detection endpoint
type detectResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []FaceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// FaceDetection represents a single detected face
type FaceDetection struct {
	FaceIndex int          `json:"face_index"`
	BBox      []float64    `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64      `json:"det_score"`
	Kps       [][2]float64 `json:"kps,omitempty"` // landmarks, 5 points when present
}

// embedResponse represents the response from the chip embedding endpoint
type embedResponse struct {
	Dim        int         `json:"dim"`
	Embeddings [][]float32 `json:"embeddings"`
	Model      string      `json:"model"`
}

// DetectFaces implements face.Detector with the detector chosen by Open.
func (c *Client) DetectFaces(ctx context.Context, img image.Image) ([]face.Region, error) {
	return c.detect.DetectFaces(ctx, img)
}

func (c *Client) detectRemote(ctx context.Context, img image.Image, fields map[string]string) ([]face.Region, error) {
	data, err := imageio.EncodeJPEG(img, detectQuality)
	if err != nil {
		return nil, err
	}

	body, err := c.postMultipart(ctx, "/detect", [][]byte{data}, fields)
	if err != nil {
		return nil, fmt.Errorf("face detection failed: %w", err)
	}

	var resp detectResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	bounds := img.Bounds()
	regions := make([]face.Region, 0, len(resp.Faces))
	for _, det := range resp.Faces {
		region, ok := det.region(bounds)
		if !ok {
			c.log.Debug().Int("face_index", det.FaceIndex).Msg("ignoring face outside the image")
			continue
		}
		regions = append(regions, region)
	}
	return regions, nil
}

// region converts a detection into image coordinates, clipped to bounds.
func (d FaceDetection) region(bounds image.Rectangle) (face.Region, bool) {
	if len(d.BBox) != 4 {
		return face.Region{}, false
	}
	box := image.Rect(
		int(math.Round(d.BBox[0])), int(math.Round(d.BBox[1])),
		int(math.Round(d.BBox[2])), int(math.Round(d.BBox[3])),
	).Add(bounds.Min).Intersect(bounds)
	if box.Empty() {
		return face.Region{}, false
	}

	region := face.Region{Box: box, Score: d.DetScore}
	if len(d.Kps) == 5 {
		region.Landmarks = make([]image.Point, len(d.Kps))
		for i, p := range d.Kps {
			region.Landmarks[i] = image.Pt(int(math.Round(p[0])), int(math.Round(p[1]))).Add(bounds.Min)
		}
	}
	return region, true
}

// ComputeEmbeddings implements face.Embedder with one request for all crops.
func (c *Client) ComputeEmbeddings(ctx context.Context, crops []image.Image) ([]embedding.Embedding, error) {
	if len(crops) == 0 {
		return nil, nil
	}

	files := make([][]byte, len(crops))
	for i, crop := range crops {
		var buf bytes.Buffer
		if err := png.Encode(&buf, crop); err != nil {
			return nil, fmt.Errorf("failed to encode chip %d: %w", i, err)
		}
		files[i] = buf.Bytes()
	}

	body, err := c.postMultipart(ctx, "/embed/chips", files, map[string]string{"model": c.models.Recognition})
	if err != nil {
		return nil, fmt.Errorf("embedding computation failed: %w", err)
	}

	var resp embedResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(resp.Embeddings) != len(crops) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(crops), len(resp.Embeddings))
	}

	out := make([]embedding.Embedding, len(resp.Embeddings))
	for i, values := range resp.Embeddings {
		if resp.Dim > 0 && len(values) != resp.Dim {
			return nil, fmt.Errorf("embedding %d has %d values, expected %d", i, len(values), resp.Dim)
		}
		e, err := embedding.New(values)
		if err != nil {
			return nil, fmt.Errorf("embedding %d: %w", i, err)
		}
		out[i] = e
	}
	return out, nil
}

// postMultipart constructs a multipart form with one "file" part per entry and
// the given text fields, and posts it to the endpoint.
func (c *Client) postMultipart(ctx context.Context, endpoint string, files [][]byte, fields map[string]string) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for i, data := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="image%d"`, i))
		h.Set("Content-Type", detectMIMEType(data))
		part, err := writer.CreatePart(h)
		if err != nil {
			return nil, fmt.Errorf("failed to create form file: %w", err)
		}
		if _, err := part.Write(data); err != nil {
			return nil, fmt.Errorf("failed to write image data: %w", err)
		}
	}

	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("failed to write form field %s: %w", name, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// detectMIMEType detects the MIME type from image data
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	return "application/octet-stream"
}
