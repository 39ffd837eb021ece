package providers

import (
	"context"
	"encoding/base64"
)

// Config represents the configuration for a vision LLM call
type Config struct {
	Model       string
	Temperature float64
	Prompt      string
}

// Image is the photo handed to the model
type Image struct {
	Data        []byte
	ContentType string
}

// DataURL renders the image as a base64 data URL
func (i Image) DataURL() string {
	contentType := i.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return "data:" + contentType + ";base64," + i.Base64()
}

// Base64 returns the standard base64 encoding of the image bytes
func (i Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// Provider defines the interface for a vision-capable LLM provider
type Provider interface {
	ExtractText(ctx context.Context, config Config, image Image) (string, error)
}
