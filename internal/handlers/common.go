package handlers

import (
	"context"
	"encoding/json"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/elecnecta/wifiqr/internal/generator"
	"github.com/elecnecta/wifiqr/internal/messages"
	"github.com/elecnecta/wifiqr/internal/models"
	"github.com/elecnecta/wifiqr/internal/storage"
)

const sessionCookie = "wifiqr_session"

// Generator is the part of generator.Service the handlers use
type Generator interface {
	Backend() string
	Generate(ctx context.Context, req generator.Request) (*generator.Result, error)
}

type Options struct {
	Locale         string
	ReloadDelay    time.Duration
	MaxUploadBytes int64
	MaxPixels      int
	Static         fs.FS
}

type Handler struct {
	sessionStore *storage.SessionStore
	generator    Generator
	locale       string
	reloadDelay  time.Duration
	maxUpload    int64
	maxPixels    int
	static       fs.FS
}

func New(store *storage.SessionStore, gen Generator, opts Options) *Handler {
	if opts.Locale == "" || !messages.Supported(opts.Locale) {
		opts.Locale = messages.DefaultLocale
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 * 1024 * 1024
	}
	return &Handler{
		sessionStore: store,
		generator:    gen,
		locale:       opts.Locale,
		reloadDelay:  opts.ReloadDelay,
		maxUpload:    opts.MaxUploadBytes,
		maxPixels:    opts.MaxPixels,
		static:       opts.Static,
	}
}

// Routes registers every endpoint on a new mux
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/session", h.HandleSession)
	mux.HandleFunc("/api/session/mode", h.HandleMode)
	mux.HandleFunc("/api/messages", h.HandleMessages)
	mux.HandleFunc("/api/capture", h.HandleCapture)
	mux.HandleFunc("/api/retake", h.HandleRetake)
	mux.HandleFunc("/api/send", h.HandleSend)
	mux.HandleFunc("/api/result", h.HandleResult)
	mux.HandleFunc("/api/share", h.HandleShare)
	mux.HandleFunc("/api/reset", h.HandleReset)
	mux.HandleFunc("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			slog.Error("Unable to write healthcheck", "err", err)
		}
	})
	mux.HandleFunc("/", h.HandleStatic)
	return mux
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	slog.Error(message)
	http.Error(w, message, code)
}

// writeAPIError sends a localized message the UI can show as-is
func (h *Handler) writeAPIError(w http.ResponseWriter, message string, code int) {
	slog.Warn("Request rejected", "status", code, "message", message)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(errorResponse{
		Error:         message,
		ReloadAfterMs: h.reloadDelay.Milliseconds(),
	}); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
	}
}

func (h *Handler) allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// localeFor honors ?lang= when it names a supported catalog
func (h *Handler) localeFor(r *http.Request) string {
	if lang := r.URL.Query().Get("lang"); messages.Supported(lang) {
		return lang
	}
	return h.locale
}

type errorResponse struct {
	Error         string `json:"error"`
	ReloadAfterMs int64  `json:"reload_after_ms"`
}

// Session helpers

// sessionFor returns the caller's session, starting a new one when the
// cookie is missing or points at a pruned session.
func (h *Handler) sessionFor(w http.ResponseWriter, r *http.Request) *models.Session {
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		if session, exists := h.sessionStore.Get(cookie.Value); exists {
			return session
		}
	}

	session := models.NewSession()
	h.sessionStore.Set(session.ID, session)
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    session.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	slog.Info("Session started", "session_id", session.ID, "user", session.UserID)
	return session
}

// getSessionOrError returns the caller's existing session
func (h *Handler) getSessionOrError(w http.ResponseWriter, r *http.Request) (*models.Session, bool) {
	cookie, err := r.Cookie(sessionCookie)
	if err == nil {
		if session, exists := h.sessionStore.Get(cookie.Value); exists {
			return session, true
		}
	}
	h.writeError(w, "Session not found", http.StatusNotFound)
	return nil, false
}

// updateSession applies fn to the caller's session and writes the new state.
// Rejected transitions answer 409 with msg.
func (h *Handler) updateSession(w http.ResponseWriter, r *http.Request, msg messages.ID, fn func(*models.Session) error) (*models.Session, bool) {
	current := h.sessionFor(w, r)
	session, exists, err := h.sessionStore.Update(current.ID, fn)
	if !exists {
		h.writeError(w, "Session not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		slog.Warn("Session update rejected", "session_id", current.ID, "state", session.State, "err", err)
		h.writeAPIError(w, messages.Get(h.localeFor(r), msg), http.StatusConflict)
		return nil, false
	}
	return session, true
}
