package handlers

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/elecnecta/wifiqr/internal/dify"
	"github.com/elecnecta/wifiqr/internal/generator"
	"github.com/elecnecta/wifiqr/internal/messages"
	"github.com/elecnecta/wifiqr/internal/models"
)

const (
	resultFilename = "wifi_qr.png"
	lineShareURL   = "https://social-plugins.line.me/lineit/share"
)

// HandleSend runs the captured photo through the generator.
// Any failure sends the session back to the home screen.
func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	if !h.allowMethod(w, r, http.MethodPost) {
		return
	}
	locale := h.localeFor(r)

	session, ok := h.updateSession(w, r, messages.ErrNoImage, func(s *models.Session) error {
		return s.BeginProcessing()
	})
	if !ok {
		return
	}

	slog.Info("Generating QR code", "session_id", session.ID, "backend", h.generator.Backend())
	result, err := h.generator.Generate(r.Context(), generator.Request{
		Image:       session.Image.Data,
		Filename:    session.Image.Filename,
		ContentType: session.Image.ContentType,
		UserID:      session.UserID,
	})
	if err != nil {
		h.failSession(w, session.ID, messages.ForError(locale, err), statusForError(err))
		return
	}

	updated, exists, err := h.sessionStore.Update(session.ID, func(s *models.Session) error {
		return s.Complete(&models.ResultImage{
			ContentType: result.ContentType,
			SourceURL:   result.SourceURL,
			Size:        len(result.Image),
			Data:        result.Image,
		})
	})
	if !exists || err != nil {
		// the session was reset or pruned while the request was in flight
		slog.Warn("Discarding QR code for abandoned session", "session_id", session.ID, "err", err)
		h.writeAPIError(w, messages.Get(locale, messages.ErrRequestFailed), http.StatusConflict)
		return
	}

	h.writeJSON(w, h.sessionResponse(r, updated))
}

// failSession records the error, then returns the session to idle so the
// reloaded page starts over. A session that left processing in the meantime
// belongs to a newer request and is left alone.
func (h *Handler) failSession(w http.ResponseWriter, sessionID, message string, code int) {
	_, _, _ = h.sessionStore.Update(sessionID, func(s *models.Session) error {
		if s.State != models.StateProcessing {
			slog.Warn("Dropping failure for abandoned session", "session_id", s.ID, "state", s.State, "message", message)
			return models.ErrInvalidTransition
		}
		s.Fail(message)
		slog.Warn("Session failed", "session_id", s.ID, "message", s.ErrorMessage)
		s.Reset()
		return nil
	})
	h.writeAPIError(w, message, code)
}

func statusForError(err error) int {
	if dify.IsTimeout(err) {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

// HandleResult serves the generated QR code. ?download=1 asks the browser to save it.
func (h *Handler) HandleResult(w http.ResponseWriter, r *http.Request) {
	if !h.allowMethod(w, r, http.MethodGet) {
		return
	}
	session, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	if session.State != models.StateResult || session.Result == nil {
		h.writeError(w, "No QR code generated", http.StatusNotFound)
		return
	}

	contentType := session.Result.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(session.Result.Data)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(session.Result.Data)))
	w.Header().Set("Cache-Control", "no-store")
	if download, _ := strconv.ParseBool(r.URL.Query().Get("download")); download {
		w.Header().Set("Content-Disposition", `attachment; filename="`+resultFilename+`"`)
	}
	if _, err := w.Write(session.Result.Data); err != nil {
		slog.Error("Unable to write QR code", "err", err)
	}
}

// HandleShare builds a LINE share link for results hosted at a public URL.
// Locally generated codes have no URL, so the user is asked to save and share.
func (h *Handler) HandleShare(w http.ResponseWriter, r *http.Request) {
	if !h.allowMethod(w, r, http.MethodGet) {
		return
	}
	session, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	if session.State != models.StateResult || session.Result == nil {
		h.writeError(w, "No QR code generated", http.StatusNotFound)
		return
	}

	if link := ShareLink(session.Result.SourceURL); link != "" {
		h.writeJSON(w, map[string]string{"share_url": link})
		return
	}
	h.writeJSON(w, map[string]string{"message": messages.Get(h.localeFor(r), messages.ShareManually)})
}

// ShareLink returns the LINE share URL for an absolute http(s) URL, or "" otherwise
func ShareLink(target string) string {
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ""
	}
	return lineShareURL + "?url=" + url.QueryEscape(target)
}
