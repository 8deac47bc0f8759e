package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/outfit-calendar/internal/auth"
	"github.com/sakif/outfit-calendar/internal/service"
)

// AnalysisHandler serves photo analysis and its daily quota.
type AnalysisHandler struct {
	analysis *service.AnalysisService
	logger   *slog.Logger
}

func NewAnalysisHandler(analysis *service.AnalysisService, logger *slog.Logger) *AnalysisHandler {
	return &AnalysisHandler{analysis: analysis, logger: logger}
}

// HandleLimit reports the analyses left today.
//
// HTTP: GET /api/limit
func (h *AnalysisHandler) HandleLimit(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	remaining, err := h.analysis.Remaining(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"remaining": remaining,
		"limit":     h.analysis.Limit(),
	})
}

type analyzeRequest struct {
	ImageData string `json:"imageData"`
	Image     string `json:"image"` // older clients
	MimeType  string `json:"mimeType"`
}

// HandleAnalyze assesses the outfit on an uploaded photo.
//
// HTTP: POST /api/analyze
// BODY: {"imageData":"<base64>","mimeType":"image/jpeg"}
func (h *AnalysisHandler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req analyzeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	data := req.ImageData
	if data == "" {
		data = req.Image
	}

	res, err := h.analysis.Analyze(r.Context(), userID, data, req.MimeType)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"text":      res.Text,
		"remaining": res.Remaining,
	})
}
