package dify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	DefaultBaseURL   = "https://api.dify.ai/v1"
	DefaultTimeout   = 60 * time.Second
	DefaultInputName = "image"

	// StatusSucceeded is the only run status treated as success
	StatusSucceeded = "succeeded"

	maxErrorBody = 512
)

// Client talks to a hosted workflow-execution API
type Client struct {
	BaseURL string
	// FilesURL prefixes relative output URLs. Defaults to the origin of BaseURL.
	FilesURL  string
	APIKey    string
	InputName string

	httpClient *http.Client
}

// UploadedFile is the descriptor returned by the upload endpoint
type UploadedFile struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	Extension string `json:"extension"`
	MimeType  string `json:"mime_type"`
	CreatedBy string `json:"created_by"`
	CreatedAt int64  `json:"created_at"`
}

// OutputFile is a file produced by a workflow run
type OutputFile struct {
	Key      string
	URL      string
	Filename string
	MimeType string
	Type     string
}

// RunResult is the blocking response of a workflow run
type RunResult struct {
	WorkflowRunID string       `json:"workflow_run_id"`
	TaskID        string       `json:"task_id"`
	Data          RunData      `json:"data"`
	QRURL         string       `json:"qr_url,omitempty"`
	Files         []OutputFile `json:"-"`
}

type RunData struct {
	ID          string         `json:"id"`
	WorkflowID  string         `json:"workflow_id"`
	Status      string         `json:"status"`
	Outputs     map[string]any `json:"outputs"`
	Error       string         `json:"error"`
	ElapsedTime float64        `json:"elapsed_time"`
	TotalTokens int            `json:"total_tokens"`
	TotalSteps  int            `json:"total_steps"`
	CreatedAt   int64          `json:"created_at"`
	FinishedAt  int64          `json:"finished_at"`
}

// FirstURL returns the URL of the first output file, preferring images
func (r *RunResult) FirstURL() (string, error) {
	for _, f := range r.Files {
		if f.Type == "image" || strings.HasPrefix(f.MimeType, "image/") {
			return f.URL, nil
		}
	}
	if len(r.Files) > 0 {
		return r.Files[0].URL, nil
	}
	if r.QRURL != "" {
		return r.QRURL, nil
	}
	return "", ErrNoOutput
}

// NewClient creates a new workflow API client
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		APIKey:    apiKey,
		InputName: DefaultInputName,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// WithHTTPClient replaces the underlying HTTP client
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

func (c *Client) authorize(req *http.Request) {
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
}

// Upload sends the photo as multipart form data and returns the file descriptor.
// The API answers 201 Created on success.
func (c *Client) Upload(ctx context.Context, r io.Reader, filename, contentType, user string) (*UploadedFile, error) {
	const op = OpUpload

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(filename)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create form file: %w", op, err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("%s: failed to write file data: %w", op, err)
	}
	if err := writer.WriteField("user", user); err != nil {
		return nil, fmt.Errorf("%s: failed to write user field: %w", op, err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("%s: failed to close multipart writer: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/files/upload", &body)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, wrapTransportError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, statusError(op, http.StatusCreated, resp)
	}

	var uploaded UploadedFile
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return nil, fmt.Errorf("%s: failed to decode response: %w", op, err)
	}
	if uploaded.ID == "" {
		return nil, fmt.Errorf("%s: response contains no file id", op)
	}

	slog.Info("Uploaded file to workflow API", "file_id", uploaded.ID, "size", uploaded.Size, "user", user)
	return &uploaded, nil
}

// Run invokes the workflow in blocking mode with the uploaded file as input.
// It succeeds only on 200 with data.status == "succeeded".
func (c *Client) Run(ctx context.Context, fileID, user string) (*RunResult, error) {
	const op = OpRun

	inputName := c.InputName
	if inputName == "" {
		inputName = DefaultInputName
	}

	requestBody, err := json.Marshal(map[string]any{
		"inputs": map[string]any{
			inputName: map[string]any{
				"type":            "image",
				"transfer_method": "local_file",
				"upload_file_id":  fileID,
			},
		},
		"response_mode": "blocking",
		"user":          user,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: failed to marshal request body: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/workflows/run", bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, wrapTransportError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(op, http.StatusOK, resp)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapTransportError(op, err)
	}

	var result RunResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("%s: failed to decode response: %w", op, err)
	}

	if result.Data.Status != StatusSucceeded {
		return nil, &WorkflowError{
			RunID:   result.WorkflowRunID,
			Status:  result.Data.Status,
			Message: result.Data.Error,
		}
	}

	result.Files = collectOutputFiles(result.Data.Outputs)
	slog.Info("Workflow run finished",
		"run_id", result.WorkflowRunID,
		"status", result.Data.Status,
		"elapsed", result.Data.ElapsedTime,
		"files", len(result.Files))
	return &result, nil
}

// Fetch downloads an output file. Relative URLs are resolved against FilesURL.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	const op = OpFetch

	target, err := c.ResolveURL(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", target, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	if c.sameOrigin(target) {
		c.authorize(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", wrapTransportError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", statusError(op, http.StatusOK, resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", wrapTransportError(op, err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}

// ResolveURL turns an output URL into an absolute one
func (c *Client) ResolveURL(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", ErrNoOutput
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid output URL %q: %w", rawURL, err)
	}
	if parsed.IsAbs() {
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return "", fmt.Errorf("unsupported output URL scheme %q", parsed.Scheme)
		}
		return rawURL, nil
	}

	prefix, err := c.filesPrefix(strings.HasPrefix(rawURL, "/"))
	if err != nil {
		return "", err
	}
	return prefix + "/" + strings.TrimLeft(rawURL, "/"), nil
}

// filesPrefix picks what a relative URL is joined to: FilesURL when set,
// otherwise the origin of BaseURL for rooted paths and BaseURL itself for the rest.
func (c *Client) filesPrefix(rooted bool) (string, error) {
	if c.FilesURL != "" {
		return strings.TrimRight(c.FilesURL, "/"), nil
	}
	base, err := url.Parse(c.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("cannot resolve relative URL against base %q", c.BaseURL)
	}
	if !rooted {
		return strings.TrimRight(c.BaseURL, "/"), nil
	}
	return base.Scheme + "://" + base.Host, nil
}

func (c *Client) sameOrigin(target string) bool {
	t, err := url.Parse(target)
	if err != nil {
		return false
	}
	for _, candidate := range []string{c.BaseURL, c.FilesURL} {
		if candidate == "" {
			continue
		}
		b, err := url.Parse(candidate)
		if err == nil && b.Scheme == t.Scheme && b.Host == t.Host {
			return true
		}
	}
	return false
}

func statusError(op string, expected int, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{
		Op:       op,
		Expected: expected,
		Got:      resp.StatusCode,
		Body:     strings.TrimSpace(string(body)),
	}
}

// collectOutputFiles finds file descriptors in the run outputs. Values may be
// a single descriptor, a list of descriptors or a plain URL string under a key
// ending in "url". Keys are visited in sorted order.
func collectOutputFiles(outputs map[string]any) []OutputFile {
	keys := make([]string, 0, len(outputs))
	for k := range outputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var files []OutputFile
	for _, key := range keys {
		switch v := outputs[key].(type) {
		case map[string]any:
			if f, ok := fileFromMap(key, v); ok {
				files = append(files, f)
			}
		case []any:
			for _, item := range v {
				if m, ok := item.(map[string]any); ok {
					if f, ok := fileFromMap(key, m); ok {
						files = append(files, f)
					}
				}
			}
		case string:
			if strings.HasSuffix(strings.ToLower(key), "url") && v != "" {
				files = append(files, OutputFile{Key: key, URL: v})
			}
		}
	}
	return files
}

func fileFromMap(key string, m map[string]any) (OutputFile, bool) {
	u, _ := m["url"].(string)
	if u == "" {
		return OutputFile{}, false
	}
	f := OutputFile{Key: key, URL: u}
	f.Filename, _ = m["filename"].(string)
	f.MimeType, _ = m["mime_type"].(string)
	f.Type, _ = m["type"].(string)
	return f, true
}

func escapeQuotes(s string) string {
	return strings.NewReplacer("\\", "\\\\", `"`, "\\\"").Replace(s)
}
