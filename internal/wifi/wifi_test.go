package wifi

import (
	"bytes"
	"errors"
	"testing"
)

func TestEscape(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"HomeNet", "HomeNet"},
		{`a;b`, `a\;b`},
		{`a,b:c`, `a\,b\:c`},
		{`"quoted"`, `\"quoted\"`},
		{`back\slash`, `back\\slash`},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Escape(tt.input); got != tt.expected {
				t.Errorf("Escape(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		creds    Credentials
		security string
	}{
		{"wpa2 maps to WPA", Credentials{SSID: "x", Password: "p", Security: "WPA2-PSK"}, SecurityWPA},
		{"blank security with password", Credentials{SSID: "x", Password: "p"}, SecurityWPA},
		{"wep kept", Credentials{SSID: "x", Password: "p", Security: "wep"}, SecurityWEP},
		{"no password is open", Credentials{SSID: "x", Security: "WPA"}, SecurityNone},
		{"open with password", Credentials{SSID: "x", Password: "p", Security: "open"}, SecurityWPA},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.creds
			c.Normalize()
			if c.Security != tt.security {
				t.Errorf("Expected security %s, got %s", tt.security, c.Security)
			}
		})
	}
}

func TestPayload(t *testing.T) {
	tests := []struct {
		name     string
		creds    Credentials
		expected string
	}{
		{
			name:     "wpa network",
			creds:    Credentials{SSID: "HomeNet", Password: "secret123", Security: SecurityWPA},
			expected: "WIFI:T:WPA;S:HomeNet;P:secret123;;",
		},
		{
			name:     "open network omits password",
			creds:    Credentials{SSID: "Cafe Guest", Security: SecurityNone},
			expected: "WIFI:T:nopass;S:Cafe Guest;;",
		},
		{
			name:     "hidden with reserved characters",
			creds:    Credentials{SSID: "my;net", Password: `pa:ss,"w`, Security: SecurityWPA, Hidden: true},
			expected: `WIFI:T:WPA;S:my\;net;P:pa\:ss\,\"w;H:true;;`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.creds.Payload(); got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	if err := (&Credentials{Password: "p", Security: SecurityWPA}).Validate(); !errors.Is(err, ErrMissingSSID) {
		t.Errorf("Expected ErrMissingSSID, got %v", err)
	}
	if err := (&Credentials{SSID: "x", Security: SecurityWEP}).Validate(); err == nil {
		t.Error("Expected error for WEP without password")
	}
	if err := (&Credentials{SSID: "x", Security: "WPA9"}).Validate(); err == nil {
		t.Error("Expected error for unknown security")
	}
	if err := (&Credentials{SSID: "x", Security: SecurityNone}).Validate(); err != nil {
		t.Errorf("Expected open network to be valid, got %v", err)
	}
}

func TestQRCode(t *testing.T) {
	creds := Credentials{SSID: "HomeNet", Password: "secret123", Security: SecurityWPA}
	png, err := creds.QRCode(256)
	if err != nil {
		t.Fatalf("QRCode failed: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Error("Expected PNG output")
	}

	if _, err := (&Credentials{}).QRCode(256); !errors.Is(err, ErrMissingSSID) {
		t.Errorf("Expected ErrMissingSSID, got %v", err)
	}
}
