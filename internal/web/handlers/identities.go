package handlers

import (
	"net/http"
	"time"
)

// IdentitiesHandler lists the identities of the current snapshot and reloads it.
type IdentitiesHandler struct {
	gallery *Gallery
}

func NewIdentitiesHandler(gallery *Gallery) *IdentitiesHandler {
	return &IdentitiesHandler{gallery: gallery}
}

// IdentityResponse is one identity with its reference count.
type IdentityResponse struct {
	Name       string `json:"name"`
	Embeddings int    `json:"embeddings"`
}

// GalleryResponse describes a snapshot.
type GalleryResponse struct {
	Generation string             `json:"generation"`
	LoadedAt   time.Time          `json:"loaded_at"`
	Dim        int                `json:"dim"`
	Total      int                `json:"total"`
	Identities []IdentityResponse `json:"identities"`
}

// HealthResponse reports liveness and which snapshot is being served.
type HealthResponse struct {
	Status     string `json:"status"`
	Generation string `json:"generation"`
	Identities int    `json:"identities"`
}

// Health handles GET /api/v1/health.
func (h *IdentitiesHandler) Health(w http.ResponseWriter, r *http.Request) {
	snap := h.gallery.Snapshot()
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:     "ok",
		Generation: snap.Generation,
		Identities: snap.Store.Len(),
	})
}

func describe(snap *Snapshot) GalleryResponse {
	counts := snap.Store.Counts()
	identities := make([]IdentityResponse, 0, len(counts))
	for _, name := range snap.Store.Names() {
		identities = append(identities, IdentityResponse{Name: name, Embeddings: counts[name]})
	}
	return GalleryResponse{
		Generation: snap.Generation,
		LoadedAt:   snap.LoadedAt,
		Dim:        snap.Store.Dim(),
		Total:      snap.Store.Total(),
		Identities: identities,
	}
}

// List handles GET /api/v1/identities.
func (h *IdentitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, describe(h.gallery.Snapshot()))
}

// Reload handles POST /api/v1/reload.
func (h *IdentitiesHandler) Reload(w http.ResponseWriter, r *http.Request) {
	snap, err := h.gallery.Reload()
	if err != nil {
		h.gallery.log.Error().Err(err).Msg("reload failed, keeping previous gallery")
		respondError(w, http.StatusInternalServerError, "failed to reload embeddings")
		return
	}
	respondJSON(w, http.StatusOK, describe(snap))
}
