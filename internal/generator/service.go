package generator

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/elecnecta/wifiqr/internal/config"
	"github.com/elecnecta/wifiqr/internal/dify"
	"github.com/elecnecta/wifiqr/internal/gemini"
	"github.com/elecnecta/wifiqr/internal/imaging"
	"github.com/elecnecta/wifiqr/internal/ollama"
	"github.com/elecnecta/wifiqr/internal/openai"
	"github.com/elecnecta/wifiqr/internal/providers"
)

// Request is one captured photo to turn into a QR code
type Request struct {
	Image       []byte
	Filename    string
	ContentType string
	UserID      string
}

// Result is the generated QR code
type Result struct {
	Image       []byte
	ContentType string
	// SourceURL is the absolute URL the image was fetched from, when remote
	SourceURL string
	Backend   string
	Elapsed   time.Duration
}

// Backend turns a normalized photo into a QR code image
type Backend interface {
	Name() string
	Generate(ctx context.Context, img *imaging.Image, req Request) (*Result, error)
}

// Service runs the resize -> backend pipeline
type Service struct {
	backend      Backend
	imageOptions imaging.Options
}

func NewService(backend Backend, imageOptions imaging.Options) *Service {
	return &Service{
		backend:      backend,
		imageOptions: imageOptions,
	}
}

// NewFromConfig wires the backend selected in the configuration
func NewFromConfig(cfg *config.Config) (*Service, error) {
	var backend Backend
	timeout := cfg.Dify.Timeout

	switch cfg.Backend {
	case config.BackendDify:
		client := dify.NewClient(cfg.Dify.BaseURL, cfg.Dify.APIKey, timeout)
		client.FilesURL = cfg.Dify.FilesURL
		if cfg.Dify.InputName != "" {
			client.InputName = cfg.Dify.InputName
		}
		backend = NewWorkflowBackend(client)
	case config.BackendOllama:
		model := cfg.Providers.OllamaModel
		if model == "" {
			model = ollama.DefaultModel
		}
		backend = NewLocalBackend(providers.NewExtractor("ollama", ollama.New(cfg.Providers.OllamaURL, timeout), model), cfg.QR.Size)
	case config.BackendOpenAI:
		model := cfg.Providers.OpenAIModel
		if model == "" {
			model = openai.DefaultModel
		}
		backend = NewLocalBackend(providers.NewExtractor("openai", openai.New(cfg.Providers.OpenAIAPIKey, timeout), model), cfg.QR.Size)
	case config.BackendGemini:
		model := cfg.Providers.GeminiModel
		if model == "" {
			model = gemini.DefaultModel
		}
		backend = NewLocalBackend(providers.NewExtractor("gemini", gemini.New(cfg.Providers.GeminiAPIKey, timeout), model), cfg.QR.Size)
	default:
		return nil, fmt.Errorf("unsupported backend: %s", cfg.Backend)
	}

	return NewService(backend, imaging.Options{
		MaxDimension: cfg.Image.MaxDimension,
		Quality:      cfg.Image.JPEGQuality,
		MaxPixels:    cfg.Image.MaxPixels,
	}), nil
}

// Backend returns the name of the configured backend
func (s *Service) Backend() string {
	return s.backend.Name()
}

// Generate normalizes the photo and hands it to the backend
func (s *Service) Generate(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	img, err := imaging.Normalize(req.Image, s.imageOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare image: %w", err)
	}
	slog.Info("Image prepared",
		"user", req.UserID,
		"source_format", img.SourceFormat,
		"width", img.Width,
		"height", img.Height,
		"bytes", len(img.Data))

	result, err := s.backend.Generate(ctx, img, req)
	if err != nil {
		slog.Error("QR generation failed", "backend", s.backend.Name(), "user", req.UserID, "err", err)
		return nil, err
	}

	result.Backend = s.backend.Name()
	result.Elapsed = time.Since(start)
	slog.Info("QR code generated",
		"backend", result.Backend,
		"user", req.UserID,
		"bytes", len(result.Image),
		"elapsed", result.Elapsed)
	return result, nil
}

// uploadFilename swaps the extension for .jpg since the upload is always re-encoded
func uploadFilename(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if base == "" || base == "." || base == "/" {
		base = "wifi"
	}
	return base + ".jpg"
}

// WorkflowBackend uploads the photo, runs the remote workflow and fetches its output
type WorkflowBackend struct {
	client *dify.Client
}

func NewWorkflowBackend(client *dify.Client) *WorkflowBackend {
	return &WorkflowBackend{client: client}
}

func (b *WorkflowBackend) Name() string { return config.BackendDify }

func (b *WorkflowBackend) Generate(ctx context.Context, img *imaging.Image, req Request) (*Result, error) {
	uploaded, err := b.client.Upload(ctx, bytes.NewReader(img.Data), uploadFilename(req.Filename), img.ContentType, req.UserID)
	if err != nil {
		return nil, err
	}

	run, err := b.client.Run(ctx, uploaded.ID, req.UserID)
	if err != nil {
		return nil, err
	}

	outputURL, err := run.FirstURL()
	if err != nil {
		return nil, err
	}

	resolved, err := b.client.ResolveURL(outputURL)
	if err != nil {
		return nil, err
	}

	data, contentType, err := b.client.Fetch(ctx, resolved)
	if err != nil {
		return nil, err
	}

	return &Result{
		Image:       data,
		ContentType: contentType,
		SourceURL:   resolved,
	}, nil
}
