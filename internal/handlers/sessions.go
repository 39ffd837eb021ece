package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/elecnecta/wifiqr/internal/messages"
	"github.com/elecnecta/wifiqr/internal/models"
)

type sessionResponse struct {
	*models.Session
	Backend       string `json:"backend"`
	Locale        string `json:"locale"`
	ImageURL      string `json:"image_url,omitempty"`
	ResultURL     string `json:"result_url,omitempty"`
	ReloadAfterMs int64  `json:"reload_after_ms"`
}

func (h *Handler) sessionResponse(r *http.Request, session *models.Session) sessionResponse {
	resp := sessionResponse{
		Session:       session,
		Backend:       h.generator.Backend(),
		Locale:        h.localeFor(r),
		ReloadAfterMs: h.reloadDelay.Milliseconds(),
	}
	// the timestamp keeps browsers from showing a stale preview after a retake
	if session.Image != nil {
		resp.ImageURL = fmt.Sprintf("/api/capture?v=%d", session.UpdatedAt.UnixNano())
	}
	if session.Result != nil {
		resp.ResultURL = fmt.Sprintf("/api/result?v=%d", session.UpdatedAt.UnixNano())
	}
	return resp
}

func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	if !h.allowMethod(w, r, http.MethodGet) {
		return
	}
	session := h.sessionFor(w, r)
	h.writeJSON(w, h.sessionResponse(r, session))
}

func (h *Handler) HandleMode(w http.ResponseWriter, r *http.Request) {
	if !h.allowMethod(w, r, http.MethodPost) {
		return
	}

	var request struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	mode, err := models.ParseInputMode(request.Mode)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	session, ok := h.updateSession(w, r, messages.ErrRequestFailed, func(s *models.Session) error {
		return s.SelectMode(mode)
	})
	if !ok {
		return
	}
	h.writeJSON(w, h.sessionResponse(r, session))
}

func (h *Handler) HandleMessages(w http.ResponseWriter, r *http.Request) {
	if !h.allowMethod(w, r, http.MethodGet) {
		return
	}
	h.writeJSON(w, messages.All(h.localeFor(r)))
}

// HandleReset returns the caller to the home screen
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	if !h.allowMethod(w, r, http.MethodPost) {
		return
	}
	session, ok := h.updateSession(w, r, messages.ErrRequestFailed, func(s *models.Session) error {
		s.Reset()
		return nil
	})
	if !ok {
		return
	}
	h.writeJSON(w, h.sessionResponse(r, session))
}
