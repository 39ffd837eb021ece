package handlers

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/elecnecta/wifiqr/internal/dify"
	"github.com/elecnecta/wifiqr/internal/generator"
	"github.com/elecnecta/wifiqr/internal/messages"
	"github.com/elecnecta/wifiqr/internal/models"
	"github.com/elecnecta/wifiqr/internal/storage"
)

type fakeGenerator struct {
	mu     sync.Mutex
	result *generator.Result
	err    error
	calls  int
	got    generator.Request
}

func (f *fakeGenerator) Backend() string { return "fake" }

func (f *fakeGenerator) snapshot() (int, generator.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, f.got
}

func (f *fakeGenerator) Generate(ctx context.Context, req generator.Request) (*generator.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type testClient struct {
	t      *testing.T
	server *httptest.Server
	client *http.Client
	store  *storage.SessionStore
}

func newTestClient(t *testing.T, gen Generator, maxUpload int64) *testClient {
	t.Helper()
	store := storage.New()
	h := New(store, gen, Options{
		Locale:         "ja",
		ReloadDelay:    3 * time.Second,
		MaxUploadBytes: maxUpload,
		Static: fstest.MapFS{
			"index.html": &fstest.MapFile{Data: []byte("<html>wifiqr</html>")},
			"app.js":     &fstest.MapFile{Data: []byte("console.log(1)")},
		},
	})
	server := httptest.NewServer(h.Routes())
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return &testClient{t: t, server: server, client: &http.Client{Jar: jar}, store: store}
}

func (c *testClient) do(method, path string, body io.Reader, contentType string) *http.Response {
	c.t.Helper()
	req, err := http.NewRequest(method, c.server.URL+path, body)
	if err != nil {
		c.t.Fatal(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatal(err)
	}
	c.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (c *testClient) session(resp *http.Response) sessionResponse {
	c.t.Helper()
	var s sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		c.t.Fatalf("Failed to decode session: %v", err)
	}
	return s
}

func (c *testClient) capture(data []byte, filename string) *http.Response {
	c.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		c.t.Fatal(err)
	}
	_, _ = part.Write(data)
	_ = mw.Close()
	return c.do("POST", "/api/capture", &buf, mw.FormDataContentType())
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 40, 30))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestFullFlow(t *testing.T) {
	gen := &fakeGenerator{result: &generator.Result{
		Image:       []byte("qr-png"),
		ContentType: "image/png",
		SourceURL:   "https://files.example.com/qr.png?sig=a&b=c",
	}}
	c := newTestClient(t, gen, 0)

	s := c.session(c.do("GET", "/api/session", nil, ""))
	if s.State != models.StateIdle || !strings.HasPrefix(s.UserID, "wifiqr-") {
		t.Fatalf("Expected idle session with user id, got %+v", s.Session)
	}
	if s.ReloadAfterMs != 3000 || s.Backend != "fake" {
		t.Errorf("Unexpected session metadata %+v", s)
	}

	s = c.session(c.do("POST", "/api/session/mode", strings.NewReader(`{"mode":"camera"}`), "application/json"))
	if s.Mode != models.ModeCamera {
		t.Errorf("Expected camera mode, got %q", s.Mode)
	}

	photo := testPNG(t)
	s = c.session(c.capture(photo, "label.png"))
	if s.State != models.StateCaptured || s.Image.Width != 40 || s.Image.Height != 30 {
		t.Fatalf("Expected captured 40x30 image, got %+v", s.Image)
	}
	if s.ImageURL == "" {
		t.Error("Expected preview URL")
	}

	preview := c.do("GET", "/api/capture", nil, "")
	if got, _ := io.ReadAll(preview.Body); !bytes.Equal(got, photo) {
		t.Error("Expected preview to return the captured image")
	}

	s = c.session(c.do("POST", "/api/send", nil, ""))
	if s.State != models.StateResult || s.Image != nil {
		t.Fatalf("Expected result state without captured image, got %+v", s.Session)
	}
	if _, got := gen.snapshot(); got.UserID != s.UserID || got.Filename != "label.png" || !bytes.Equal(got.Image, photo) {
		t.Errorf("Unexpected generator request for %s", got.Filename)
	}

	result := c.do("GET", "/api/result?download=1", nil, "")
	if cd := result.Header.Get("Content-Disposition"); cd != `attachment; filename="wifi_qr.png"` {
		t.Errorf("Unexpected Content-Disposition %q", cd)
	}
	if got, _ := io.ReadAll(result.Body); string(got) != "qr-png" {
		t.Errorf("Unexpected result body %q", got)
	}

	var share map[string]string
	_ = json.NewDecoder(c.do("GET", "/api/share", nil, "").Body).Decode(&share)
	want := "https://social-plugins.line.me/lineit/share?url=https%3A%2F%2Ffiles.example.com%2Fqr.png%3Fsig%3Da%26b%3Dc"
	if share["share_url"] != want {
		t.Errorf("Expected share url %s, got %s", want, share["share_url"])
	}

	s = c.session(c.do("POST", "/api/reset", nil, ""))
	if s.State != models.StateIdle || s.Result != nil || s.Mode != models.ModeNone {
		t.Errorf("Expected reset session, got %+v", s.Session)
	}
}

func TestSendFailureResetsSession(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		status   int
		expected string
	}{
		{
			name:     "timeout",
			err:      fmt.Errorf("run workflow: %w", dify.ErrTimeout),
			status:   http.StatusGatewayTimeout,
			expected: messages.Get("ja", messages.ErrTimeout),
		},
		{
			name:     "api status",
			err:      &dify.StatusError{Op: dify.OpUpload, Expected: 201, Got: 500},
			status:   http.StatusBadGateway,
			expected: "API エラー: 500",
		},
		{
			name:     "workflow failed",
			err:      &dify.WorkflowError{RunID: "r", Status: "failed"},
			status:   http.StatusBadGateway,
			expected: messages.Get("ja", messages.ErrWorkflowFailed),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, &fakeGenerator{err: tt.err}, 0)
			c.capture(testPNG(t), "label.png")

			resp := c.do("POST", "/api/send", nil, "")
			if resp.StatusCode != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, resp.StatusCode)
			}
			var body errorResponse
			_ = json.NewDecoder(resp.Body).Decode(&body)
			if body.Error != tt.expected {
				t.Errorf("Expected error %q, got %q", tt.expected, body.Error)
			}
			if body.ReloadAfterMs != 3000 {
				t.Errorf("Expected reload_after_ms 3000, got %d", body.ReloadAfterMs)
			}

			s := c.session(c.do("GET", "/api/session", nil, ""))
			if s.State != models.StateIdle || s.Image != nil {
				t.Errorf("Expected idle session after failure, got %+v", s.Session)
			}
		})
	}
}

// gatedGenerator blocks in Generate until release is closed
type gatedGenerator struct {
	started chan struct{}
	release chan struct{}
	err     error
}

func (g *gatedGenerator) Backend() string { return "gated" }

func (g *gatedGenerator) Generate(ctx context.Context, req generator.Request) (*generator.Result, error) {
	close(g.started)
	<-g.release
	return nil, g.err
}

func TestSendFailureAfterReset(t *testing.T) {
	gen := &gatedGenerator{
		started: make(chan struct{}),
		release: make(chan struct{}),
		err:     &dify.StatusError{Op: dify.OpUpload, Expected: 201, Got: 500},
	}
	c := newTestClient(t, gen, 0)
	c.capture(testPNG(t), "first.png")

	done := make(chan int, 1)
	go func() {
		resp, err := c.client.Post(c.server.URL+"/api/send", "", nil)
		if err != nil {
			done <- 0
			return
		}
		resp.Body.Close()
		done <- resp.StatusCode
	}()
	<-gen.started

	// the user gives up and starts over while the first send is still running
	c.do("POST", "/api/reset", nil, "")
	if resp := c.capture(testPNG(t), "second.png"); resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected capture after reset, got %d", resp.StatusCode)
	}

	close(gen.release)
	if status := <-done; status != http.StatusBadGateway {
		t.Errorf("Expected 502 for the abandoned send, got %d", status)
	}

	s := c.session(c.do("GET", "/api/session", nil, ""))
	if s.State != models.StateCaptured {
		t.Errorf("Expected new capture to survive the stale failure, got %s", s.State)
	}
	if s.Image == nil || s.Image.Filename != "second.png" {
		t.Errorf("Expected second.png to be kept, got %+v", s.Image)
	}
	if s.ErrorMessage != "" {
		t.Errorf("Expected no error message, got %q", s.ErrorMessage)
	}
}

func TestSendWithoutCapture(t *testing.T) {
	gen := &fakeGenerator{}
	c := newTestClient(t, gen, 0)

	resp := c.do("POST", "/api/send", nil, "")
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409, got %d", resp.StatusCode)
	}
	if calls, _ := gen.snapshot(); calls != 0 {
		t.Errorf("Expected generator not to be called, got %d calls", calls)
	}
}

func TestCaptureRejections(t *testing.T) {
	c := newTestClient(t, &fakeGenerator{}, 200)

	resp := c.capture([]byte("definitely not an image"), "notes.txt")
	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Errorf("Expected 415 for non-image, got %d", resp.StatusCode)
	}

	resp = c.capture(bytes.Repeat([]byte{0xff}, 500), "huge.jpg")
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected 413 for oversized upload, got %d", resp.StatusCode)
	}

	resp = c.do("POST", "/api/capture", strings.NewReader("x"), "text/plain")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 without file, got %d", resp.StatusCode)
	}
}

// pngHeaderOnly returns a PNG signature and IHDR chunk declaring width x height
// gray pixels, with no image data behind it
func pngHeaderOnly(width, height uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], width)
	binary.BigEndian.PutUint32(ihdr[4:], height)
	ihdr[8] = 8 // bit depth, gray color type

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr...)
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestCaptureRejectsTooManyPixels(t *testing.T) {
	c := newTestClient(t, &fakeGenerator{}, 0)

	resp := c.capture(pngHeaderOnly(10_000, 10_000), "bomb.png")
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("Expected 413 for 100 megapixel image, got %d", resp.StatusCode)
	}
	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body["error"] != messages.Get("ja", messages.ErrImageTooLarge) {
		t.Errorf("Expected image too large message, got %v", body["error"])
	}

	s := c.session(c.do("GET", "/api/session", nil, ""))
	if s.State != models.StateIdle {
		t.Errorf("Expected session to stay idle, got %s", s.State)
	}

	if resp := c.capture(testPNG(t), "label.png"); resp.StatusCode != http.StatusOK {
		t.Errorf("Expected normal image accepted, got %d", resp.StatusCode)
	}
}

func TestRetake(t *testing.T) {
	c := newTestClient(t, &fakeGenerator{}, 0)

	if resp := c.do("POST", "/api/retake", nil, ""); resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409 when nothing captured, got %d", resp.StatusCode)
	}

	c.capture(testPNG(t), "label.png")
	s := c.session(c.do("POST", "/api/retake", nil, ""))
	if s.State != models.StateIdle || s.Image != nil {
		t.Errorf("Expected image discarded, got %+v", s.Session)
	}
	if resp := c.do("GET", "/api/capture", nil, ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 preview after retake, got %d", resp.StatusCode)
	}
}

func TestShareWithoutURL(t *testing.T) {
	gen := &fakeGenerator{result: &generator.Result{Image: []byte("qr"), ContentType: "image/png"}}
	c := newTestClient(t, gen, 0)
	c.capture(testPNG(t), "label.png")
	c.do("POST", "/api/send", nil, "")

	var share map[string]string
	_ = json.NewDecoder(c.do("GET", "/api/share?lang=en", nil, "").Body).Decode(&share)
	if share["message"] != messages.Get("en", messages.ShareManually) {
		t.Errorf("Expected manual share message, got %v", share)
	}
}

func TestResultBeforeSend(t *testing.T) {
	c := newTestClient(t, &fakeGenerator{}, 0)
	c.do("GET", "/api/session", nil, "")

	if resp := c.do("GET", "/api/result", nil, ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}

func TestInvalidMode(t *testing.T) {
	c := newTestClient(t, &fakeGenerator{}, 0)
	resp := c.do("POST", "/api/session/mode", strings.NewReader(`{"mode":"scanner"}`), "application/json")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", resp.StatusCode)
	}
}

func TestMessagesLocale(t *testing.T) {
	c := newTestClient(t, &fakeGenerator{}, 0)

	var msgs map[string]string
	_ = json.NewDecoder(c.do("GET", "/api/messages?lang=en", nil, "").Body).Decode(&msgs)
	if msgs["send"] != "Send" {
		t.Errorf("Expected English catalog, got %q", msgs["send"])
	}

	_ = json.NewDecoder(c.do("GET", "/api/messages?lang=xx", nil, "").Body).Decode(&msgs)
	if msgs["send"] != "送信する" {
		t.Errorf("Expected default catalog, got %q", msgs["send"])
	}
}

func TestStaticAndHealthcheck(t *testing.T) {
	c := newTestClient(t, &fakeGenerator{}, 0)

	tests := []struct {
		path   string
		status int
		body   string
	}{
		{"/", http.StatusOK, "<html>wifiqr</html>"},
		{"/static/app.js", http.StatusOK, "console.log(1)"},
		{"/static/missing.css", http.StatusNotFound, ""},
		{"/healthcheck", http.StatusOK, "OK"},
	}
	for _, tt := range tests {
		resp := c.do("GET", tt.path, nil, "")
		if resp.StatusCode != tt.status {
			t.Errorf("%s: expected status %d, got %d", tt.path, tt.status, resp.StatusCode)
			continue
		}
		if tt.body != "" {
			if got, _ := io.ReadAll(resp.Body); string(got) != tt.body {
				t.Errorf("%s: expected body %q, got %q", tt.path, tt.body, got)
			}
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	c := newTestClient(t, &fakeGenerator{}, 0)
	if resp := c.do("GET", "/api/send", nil, ""); resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", resp.StatusCode)
	}
}

func TestShareLink(t *testing.T) {
	tests := map[string]string{
		"https://x.test/qr.png": "https://social-plugins.line.me/lineit/share?url=https%3A%2F%2Fx.test%2Fqr.png",
		"/files/qr.png":         "",
		"":                      "",
		"ftp://x.test/qr.png":   "",
	}
	for input, expected := range tests {
		if got := ShareLink(input); got != expected {
			t.Errorf("ShareLink(%q) = %q, want %q", input, got, expected)
		}
	}
}
