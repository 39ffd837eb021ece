package generator

import (
	"context"

	"github.com/elecnecta/wifiqr/internal/imaging"
	"github.com/elecnecta/wifiqr/internal/providers"
	"github.com/elecnecta/wifiqr/internal/wifi"
)

// CredentialsExtractor reads Wi-Fi credentials from a photo
type CredentialsExtractor interface {
	ExtractCredentials(ctx context.Context, image providers.Image) (*wifi.Credentials, error)
}

// LocalBackend reads the credentials with a vision model and encodes the QR code itself
type LocalBackend struct {
	name      string
	extractor CredentialsExtractor
	qrSize    int
}

func NewLocalBackend(extractor *providers.Extractor, qrSize int) *LocalBackend {
	return &LocalBackend{
		name:      extractor.Name,
		extractor: extractor,
		qrSize:    qrSize,
	}
}

func (b *LocalBackend) Name() string { return b.name }

func (b *LocalBackend) Generate(ctx context.Context, img *imaging.Image, req Request) (*Result, error) {
	creds, err := b.extractor.ExtractCredentials(ctx, providers.Image{
		Data:        img.Data,
		ContentType: img.ContentType,
	})
	if err != nil {
		return nil, err
	}

	png, err := creds.QRCode(b.qrSize)
	if err != nil {
		return nil, err
	}

	return &Result{
		Image:       png,
		ContentType: "image/png",
	}, nil
}
