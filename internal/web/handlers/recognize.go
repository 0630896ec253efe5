package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/face-engine/internal/constants"
	"github.com/kozaktomas/face-engine/internal/imageio"
	"github.com/kozaktomas/face-engine/internal/matcher"
)

// RecognizeHandler labels the faces of uploaded images.
type RecognizeHandler struct {
	gallery *Gallery
	matcher *matcher.Matcher
	log     zerolog.Logger
}

func NewRecognizeHandler(gallery *Gallery, m *matcher.Matcher, log zerolog.Logger) *RecognizeHandler {
	return &RecognizeHandler{gallery: gallery, matcher: m, log: log}
}

// FaceResponse is one labelled face.
type FaceResponse struct {
	Identity    string   `json:"identity"`
	Hits        int      `json:"hits"`
	AvgDistance *float64 `json:"avg_distance,omitempty"` // absent for unknown faces
	BBox        [4]int   `json:"bbox"`                   // [x1, y1, x2, y2]
	DetScore    float64  `json:"det_score,omitempty"`
}

// RecognizeResponse is the result for one image.
type RecognizeResponse struct {
	Generation string         `json:"generation"`
	Threshold  float64        `json:"threshold"`
	FacesCount int            `json:"faces_count"`
	Faces      []FaceResponse `json:"faces"`
}

// NewFaceResponse converts a label for JSON output.
func NewFaceResponse(label matcher.Label) FaceResponse {
	box := label.Region.Box
	resp := FaceResponse{
		Identity: label.Identity,
		Hits:     label.Hits,
		BBox:     [4]int{box.Min.X, box.Min.Y, box.Max.X, box.Max.Y},
		DetScore: label.Region.Score,
	}
	if label.Known() {
		avg := label.AvgDistance
		resp.AvgDistance = &avg
	}
	return resp
}

// Recognize handles POST /api/v1/recognize with a multipart "file" and an
// optional "threshold" field.
func (h *RecognizeHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	m := h.matcher
	if value := r.FormValue("threshold"); value != "" {
		threshold, err := strconv.ParseFloat(value, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid threshold")
			return
		}
		if m, err = h.matcher.WithThreshold(threshold); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read file")
		return
	}

	img, err := imageio.Decode(data)
	if err != nil {
		respondError(w, http.StatusBadRequest, "unsupported image")
		return
	}

	snap := h.gallery.Snapshot()
	labels, err := m.Evaluate(r.Context(), img, snap.Store)
	if err != nil {
		if r.Context().Err() != nil {
			// client went away
			return
		}
		h.log.Error().Err(err).Str("file", sanitizeForLog(header.Filename)).Msg("recognition failed")
		respondError(w, http.StatusBadGateway, "face recognition failed")
		return
	}

	faces := make([]FaceResponse, len(labels))
	for i, label := range labels {
		faces[i] = NewFaceResponse(label)
	}
	respondJSON(w, http.StatusOK, RecognizeResponse{
		Generation: snap.Generation,
		Threshold:  m.Threshold(),
		FacesCount: len(faces),
		Faces:      faces,
	})
}
