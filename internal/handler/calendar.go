package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/outfit-calendar/internal/apperror"
	"github.com/sakif/outfit-calendar/internal/auth"
	"github.com/sakif/outfit-calendar/internal/model"
	"github.com/sakif/outfit-calendar/internal/service"
)

// CalendarHandler serves the month view, manual saves and server time.
type CalendarHandler struct {
	calendar *service.CalendarService
	logger   *slog.Logger
}

func NewCalendarHandler(calendar *service.CalendarService, logger *slog.Logger) *CalendarHandler {
	return &CalendarHandler{calendar: calendar, logger: logger}
}

// dayRequest is the body of POST /api/calendar and PUT /api/calendar/draft.
type dayRequest struct {
	Date   string `json:"date"`
	Mood   string `json:"mood"`
	Gender string `json:"gender"`
	Outfit string `json:"outfit"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

// HandleMonth returns the user's entries for one month.
//
// HTTP: GET /api/calendar?year=2024&month=6   (month is 1-12)
func (h *CalendarHandler) HandleMonth(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	year, errY := strconv.Atoi(r.URL.Query().Get("year"))
	month, errM := strconv.Atoi(r.URL.Query().Get("month"))
	if errY != nil || errM != nil {
		writeError(w, h.logger, apperror.ValidationFailed("month", "query must be ?year=YYYY&month=MM"))
		return
	}

	records, err := h.calendar.Month(r.Context(), userID, year, month)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Entries []model.DailyRecord `json:"entries"`
	}{Entries: records})
}

// HandleConfirm finalizes today's entry.
//
// HTTP: POST /api/calendar
// BODY: {"date":"2024-06-01","mood":"calm","gender":"female","outfit":"..."}
func (h *CalendarHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req dayRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.calendar.Confirm(r.Context(), userID, req.Date, req.Mood, req.Gender, req.Outfit); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// HandleDraft saves today's mood and gender without confirming.
//
// HTTP: PUT /api/calendar/draft
// BODY: {"date":"2024-06-01","mood":"calm","gender":"female","outfit":""}
func (h *CalendarHandler) HandleDraft(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req dayRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.calendar.SaveDraft(r.Context(), userID, req.Date, req.Mood, req.Gender, req.Outfit); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// HandleTime returns the server's business day and display labels. Public.
//
// HTTP: GET /api/time
func (h *CalendarHandler) HandleTime(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, h.calendar.Today())
}
