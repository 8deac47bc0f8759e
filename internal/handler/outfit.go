package handler

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/outfit-calendar/internal/auth"
	"github.com/sakif/outfit-calendar/internal/service"
)

// OutfitHandler serves outfit text and outfit image generation.
type OutfitHandler struct {
	outfits *service.OutfitService
	images  *service.ImageService
	logger  *slog.Logger
}

func NewOutfitHandler(outfits *service.OutfitService, images *service.ImageService, logger *slog.Logger) *OutfitHandler {
	return &OutfitHandler{outfits: outfits, images: images, logger: logger}
}

type outfitRequest struct {
	Date   string `json:"date"`
	Mood   string `json:"mood"`
	Gender string `json:"gender"`
}

type outfitResponse struct {
	Outfit      string    `json:"outfit"`
	LockedUntil time.Time `json:"lockedUntil"`
	Cached      bool      `json:"cached"`
}

// HandleOutfit returns today's suggestion, generating it if due.
//
// HTTP: POST /api/outfit
// BODY: {"date":"2024-06-01","mood":"calm","gender":"female"}
func (h *OutfitHandler) HandleOutfit(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req outfitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.outfits.Request(r.Context(), userID, req.Date, req.Mood, req.Gender)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, outfitResponse{
		Outfit:      res.Outfit,
		LockedUntil: res.LockedUntil,
		Cached:      res.Cached,
	})
}

type imageRequest struct {
	Date   string `json:"date"`
	Outfit string `json:"outfit"`
	Gender string `json:"gender"`
}

type imageResponse struct {
	Image    string `json:"image"` // base64
	MimeType string `json:"mimeType"`
	Cached   bool   `json:"cached"`
}

// HandleImage returns today's outfit picture.
//
// HTTP: POST /api/outfit/image
// BODY: {"date":"2024-06-01","outfit":"синяя рубашка","gender":"male"}
func (h *OutfitHandler) HandleImage(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req imageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.images.Request(r.Context(), userID, req.Date, req.Outfit, req.Gender)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, imageResponse{
		Image:    base64.StdEncoding.EncodeToString(res.Data),
		MimeType: res.MimeType,
		Cached:   res.Cached,
	})
}
