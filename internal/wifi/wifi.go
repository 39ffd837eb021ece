package wifi

import (
	"errors"
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

const (
	SecurityWPA   = "WPA"
	SecurityWEP   = "WEP"
	SecurityNone  = "nopass"
	DefaultQRSize = 512
	minimumQRSize = 64
	payloadPrefix = "WIFI:"
)

var ErrMissingSSID = errors.New("network name (SSID) is missing")

// Credentials describes a Wi-Fi network as printed on a router label
type Credentials struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"`
	Security string `json:"security"`
	Hidden   bool   `json:"hidden"`
}

// Normalize trims fields and maps security names onto WPA, WEP or nopass
func (c *Credentials) Normalize() {
	c.SSID = strings.TrimSpace(c.SSID)
	c.Password = strings.TrimSpace(c.Password)

	switch sec := strings.ToUpper(strings.TrimSpace(c.Security)); {
	case c.Password == "":
		c.Security = SecurityNone
	case sec == "WEP":
		c.Security = SecurityWEP
	default:
		// WPA, WPA2, WPA3, SAE, or a guessed "open" network that still has a password
		c.Security = SecurityWPA
	}
}

// Validate checks that the credentials can be encoded
func (c *Credentials) Validate() error {
	if c.SSID == "" {
		return ErrMissingSSID
	}
	switch c.Security {
	case SecurityWPA, SecurityWEP:
		if c.Password == "" {
			return fmt.Errorf("security %s requires a password", c.Security)
		}
	case SecurityNone:
	default:
		return fmt.Errorf("unknown security type %q", c.Security)
	}
	return nil
}

// Payload renders the WIFI: string understood by phone cameras
func (c *Credentials) Payload() string {
	var b strings.Builder
	b.WriteString(payloadPrefix)
	b.WriteString("T:")
	b.WriteString(c.Security)
	b.WriteString(";S:")
	b.WriteString(Escape(c.SSID))
	b.WriteString(";")
	if c.Security != SecurityNone {
		b.WriteString("P:")
		b.WriteString(Escape(c.Password))
		b.WriteString(";")
	}
	if c.Hidden {
		b.WriteString("H:true;")
	}
	b.WriteString(";")
	return b.String()
}

// QRCode encodes the payload as a PNG of size x size pixels
func (c *Credentials) QRCode(size int) ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if size <= 0 {
		size = DefaultQRSize
	}
	if size < minimumQRSize {
		size = minimumQRSize
	}
	png, err := qrcode.Encode(c.Payload(), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}
	return png, nil
}

var escaper = strings.NewReplacer(
	`\`, `\\`,
	`;`, `\;`,
	`,`, `\,`,
	`:`, `\:`,
	`"`, `\"`,
)

// Escape backslash-escapes the characters reserved by the WIFI: format
func Escape(s string) string {
	return escaper.Replace(s)
}
