package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/elecnecta/wifiqr/internal/wifi"
)

var ErrNoCredentials = errors.New("no Wi-Fi credentials found in image")

// CredentialsPrompt asks the model for the network printed on the photo
const CredentialsPrompt = `You are reading a photo of a Wi-Fi router label, a printed card or a handwritten note that contains Wi-Fi connection details.

INSTRUCTIONS:
1. Find the network name (SSID). Labels often call it "SSID", "Network", "Network name", "Wi-Fi name" or "ネットワーク名".
2. Find the password. Labels often call it "Password", "Key", "KEY", "WPA key", "Network key", "PSK", "暗号化キー" or "パスワード".
3. If the label lists several networks (for example 2.4GHz and 5GHz), pick the first one.
4. Copy characters exactly, preserving case. Do not guess characters you cannot read.
5. Security is "WPA" unless the label explicitly says WEP, or "nopass" if there is no password.

OUTPUT FORMAT:
Respond with ONLY a JSON object:

{
  "ssid": "...",
  "password": "...",
  "security": "WPA",
  "hidden": false
}

If no Wi-Fi details are visible, respond with {"ssid": ""}.`

// Extractor reads Wi-Fi credentials from a photo with a vision provider
type Extractor struct {
	Provider Provider
	Name     string
	Model    string
}

// NewExtractor wraps a provider with the credentials prompt
func NewExtractor(name string, provider Provider, model string) *Extractor {
	return &Extractor{Provider: provider, Name: name, Model: model}
}

// ExtractCredentials runs the provider and parses its answer
func (e *Extractor) ExtractCredentials(ctx context.Context, image Image) (*wifi.Credentials, error) {
	raw, err := e.Provider.ExtractText(ctx, Config{
		Model:       e.Model,
		Temperature: 0.0,
		Prompt:      CredentialsPrompt,
	}, image)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.Name, err)
	}

	creds, err := ParseCredentials(raw)
	if err != nil {
		return nil, err
	}
	slog.Info("Extracted Wi-Fi credentials", "provider", e.Name, "model", e.Model, "ssid", creds.SSID, "security", creds.Security)
	return creds, nil
}

// ParseCredentials parses the JSON response and falls back to "Key: value"
// lines when the model does not return proper JSON
func ParseCredentials(response string) (*wifi.Credentials, error) {
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	response = strings.TrimSpace(response)

	var creds wifi.Credentials
	if start, end := strings.Index(response, "{"), strings.LastIndex(response, "}"); start >= 0 && end > start {
		if err := json.Unmarshal([]byte(response[start:end+1]), &creds); err != nil {
			slog.Warn("Failed to parse JSON response, trying plain text", "error", err)
			creds = parsePlainText(response)
		}
	} else {
		creds = parsePlainText(response)
	}

	creds.Normalize()
	if creds.SSID == "" {
		return nil, ErrNoCredentials
	}
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	return &creds, nil
}

func parsePlainText(response string) wifi.Credentials {
	var creds wifi.Credentials
	for _, line := range strings.Split(response, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.Trim(key, "*\"- \t"))
		value = strings.Trim(strings.TrimSpace(value), `"`)

		switch key {
		case "ssid", "network", "network name", "wi-fi name", "wifi name":
			if creds.SSID == "" {
				creds.SSID = value
			}
		case "password", "key", "wpa key", "network key", "psk", "pass":
			if creds.Password == "" {
				creds.Password = value
			}
		case "security", "encryption":
			creds.Security = value
		case "hidden":
			creds.Hidden = strings.EqualFold(value, "true") || strings.EqualFold(value, "yes")
		}
	}
	return creds
}
