package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/elecnecta/wifiqr/internal/imaging"
	"github.com/elecnecta/wifiqr/internal/messages"
	"github.com/elecnecta/wifiqr/internal/models"
)

func (h *Handler) HandleCapture(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handlePreview(w, r)
	case http.MethodPost:
		h.handleFileUpload(w, r)
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleFileUpload stores a camera shot or uploaded file as the session's only image
func (h *Handler) handleFileUpload(w http.ResponseWriter, r *http.Request) {
	locale := h.localeFor(r)
	// room for the multipart envelope on top of the image itself
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+64*1024)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.writeAPIError(w, messages.Get(locale, messages.ErrImageTooLarge), http.StatusRequestEntityTooLarge)
			return
		}
		h.writeAPIError(w, messages.Get(locale, messages.ErrNoImage), http.StatusBadRequest)
		return
	}
	defer file.Close()

	fileData, err := io.ReadAll(io.LimitReader(file, h.maxUpload+1))
	if err != nil {
		h.writeError(w, "Failed to read file contents: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if int64(len(fileData)) > h.maxUpload {
		h.writeAPIError(w, messages.Get(locale, messages.ErrImageTooLarge), http.StatusRequestEntityTooLarge)
		return
	}
	if len(fileData) == 0 {
		h.writeAPIError(w, messages.Get(locale, messages.ErrNoImage), http.StatusBadRequest)
		return
	}

	width, height, err := imaging.Dimensions(fileData)
	if err != nil {
		slog.Warn("Rejected upload", "filename", header.Filename, "err", err)
		h.writeAPIError(w, messages.Get(locale, messages.ErrBadImage), http.StatusUnsupportedMediaType)
		return
	}
	if err := imaging.CheckPixels(width, height, h.maxPixels); err != nil {
		slog.Warn("Rejected upload", "filename", header.Filename, "err", err)
		h.writeAPIError(w, messages.Get(locale, messages.ErrImageTooLarge), http.StatusRequestEntityTooLarge)
		return
	}

	item := &models.ImageItem{
		Filename:    header.Filename,
		ContentType: http.DetectContentType(fileData),
		Width:       width,
		Height:      height,
		Size:        len(fileData),
		Data:        fileData,
	}

	session, ok := h.updateSession(w, r, messages.ErrRequestFailed, func(s *models.Session) error {
		return s.Capture(item)
	})
	if !ok {
		return
	}

	slog.Info("Image captured",
		"session_id", session.ID,
		"mode", session.Mode,
		"filename", item.Filename,
		"width", width,
		"height", height,
		"bytes", item.Size)
	h.writeJSON(w, h.sessionResponse(r, session))
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	if session.Image == nil {
		h.writeError(w, "No captured image", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", session.Image.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(session.Image.Data)))
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(session.Image.Data); err != nil {
		slog.Error("Unable to write preview", "err", err)
	}
}

// HandleRetake discards the captured image
func (h *Handler) HandleRetake(w http.ResponseWriter, r *http.Request) {
	if !h.allowMethod(w, r, http.MethodPost) {
		return
	}
	session, ok := h.updateSession(w, r, messages.ErrNoImage, func(s *models.Session) error {
		return s.Retake()
	})
	if !ok {
		return
	}
	h.writeJSON(w, h.sessionResponse(r, session))
}
