package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// State is the position of a session in the capture -> send -> result flow
type State string

const (
	StateIdle       State = "idle"
	StateCaptured   State = "captured"
	StateProcessing State = "processing"
	StateResult     State = "result"
	StateError      State = "error"
)

// InputMode is the input widget the user picked on the home screen
type InputMode string

const (
	ModeNone   InputMode = ""
	ModeCamera InputMode = "camera"
	ModeFile   InputMode = "file"
)

// ParseInputMode validates a mode sent by the client
func ParseInputMode(s string) (InputMode, error) {
	switch InputMode(s) {
	case ModeCamera, ModeFile:
		return InputMode(s), nil
	default:
		return ModeNone, fmt.Errorf("invalid input mode %q: must be 'camera' or 'file'", s)
	}
}

var ErrInvalidTransition = errors.New("invalid session state transition")

// Session represents one interactive visit
type Session struct {
	ID           string       `json:"id"`
	UserID       string       `json:"user_id"`
	Mode         InputMode    `json:"mode,omitempty"`
	State        State        `json:"state"`
	Image        *ImageItem   `json:"image,omitempty"`
	Result       *ResultImage `json:"result,omitempty"`
	ErrorMessage string       `json:"error,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// ImageItem represents the captured or uploaded photo
type ImageItem struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Size        int    `json:"size"`
	Data        []byte `json:"-"`
}

// ResultImage represents the generated QR code
type ResultImage struct {
	ContentType string `json:"content_type"`
	SourceURL   string `json:"source_url,omitempty"`
	Size        int    `json:"size"`
	Data        []byte `json:"-"`
}

// NewSession creates an idle session with fresh random identifiers
func NewSession() *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.NewString(),
		UserID:    "wifiqr-" + uuid.NewString(),
		State:     StateIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a copy safe to hand out while the original keeps changing.
// Image and result bytes are shared; they are never mutated in place.
func (s *Session) Clone() *Session {
	c := *s
	if s.Image != nil {
		img := *s.Image
		c.Image = &img
	}
	if s.Result != nil {
		res := *s.Result
		c.Result = &res
	}
	return &c
}

func (s *Session) transition(to State, allowed ...State) error {
	for _, from := range allowed {
		if s.State == from {
			s.State = to
			s.UpdatedAt = time.Now()
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.State, to)
}

// SelectMode switches between camera and file input, dropping any captured image
func (s *Session) SelectMode(mode InputMode) error {
	if err := s.transition(StateIdle, StateIdle, StateCaptured); err != nil {
		return err
	}
	s.Mode = mode
	s.Image = nil
	return nil
}

// Capture stores a new photo, replacing the previous one
func (s *Session) Capture(img *ImageItem) error {
	if img == nil || len(img.Data) == 0 {
		return errors.New("captured image is empty")
	}
	if err := s.transition(StateCaptured, StateIdle, StateCaptured); err != nil {
		return err
	}
	s.Image = img
	s.ErrorMessage = ""
	return nil
}

// Retake discards the captured photo
func (s *Session) Retake() error {
	if err := s.transition(StateIdle, StateCaptured); err != nil {
		return err
	}
	s.Image = nil
	return nil
}

// BeginProcessing marks the captured photo as sent
func (s *Session) BeginProcessing() error {
	return s.transition(StateProcessing, StateCaptured)
}

// Complete stores the generated QR code
func (s *Session) Complete(result *ResultImage) error {
	if result == nil || len(result.Data) == 0 {
		return errors.New("result image is empty")
	}
	if err := s.transition(StateResult, StateProcessing); err != nil {
		return err
	}
	s.Result = result
	s.Image = nil
	return nil
}

// Fail records an error message and discards all images
func (s *Session) Fail(message string) {
	s.State = StateError
	s.ErrorMessage = message
	s.Image = nil
	s.Result = nil
	s.UpdatedAt = time.Now()
}

// Reset returns the session to the home screen. The user id is kept.
func (s *Session) Reset() {
	s.State = StateIdle
	s.Mode = ModeNone
	s.Image = nil
	s.Result = nil
	s.ErrorMessage = ""
	s.UpdatedAt = time.Now()
}
