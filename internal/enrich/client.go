package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/voss/murmur/internal/apperr"
	"github.com/voss/murmur/internal/models"
)

// Client calls the enrichment service over HTTP:
//
//	POST {base}/transcribe        multipart: audio, locale
//	POST {base}/insights/generate JSON: {notes, locale}
//	POST {base}/insights/ask      JSON: {notes, insightName, prompt, locale}
//
// Calls share nothing beyond the http.Client, so any number may run
// concurrently.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithToken sets a Bearer token sent on every request.
func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var (
	_ Enricher         = (*Client)(nil)
	_ InsightGenerator = (*Client)(nil)
)

// Enrich uploads the audio payload and returns the validated result.
func (c *Client) Enrich(ctx context.Context, audio []byte, mime, locale string) (*Result, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("audio", "recording")
	if err != nil {
		return nil, fmt.Errorf("enrich: build form: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, fmt.Errorf("enrich: write audio: %w", err)
	}
	if err := mw.WriteField("mimeType", mime); err != nil {
		return nil, fmt.Errorf("enrich: write mime field: %w", err)
	}
	if err := mw.WriteField("locale", locale); err != nil {
		return nil, fmt.Errorf("enrich: write locale field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("enrich: close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcribe", &body)
	if err != nil {
		return nil, fmt.Errorf("enrich: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var result Result
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	if err := ValidateResult(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Generate requests a structured cross-note analysis.
func (c *Client) Generate(ctx context.Context, notes []NoteContext, locale string) (*models.InsightContent, error) {
	var content models.InsightContent
	err := c.postJSON(ctx, "/insights/generate", map[string]any{
		"notes":  notes,
		"locale": locale,
	}, &content)
	if err != nil {
		return nil, err
	}
	return &content, nil
}

// Ask answers one ad-hoc question over the notes.
func (c *Client) Ask(ctx context.Context, notes []NoteContext, insightName, prompt, locale string) (string, error) {
	var resp struct {
		Answer string `json:"answer"`
	}
	err := c.postJSON(ctx, "/insights/ask", map[string]any{
		"notes":       notes,
		"insightName": insightName,
		"prompt":      prompt,
		"locale":      locale,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Answer == "" {
		return "", fmt.Errorf("%w: empty answer", apperr.ErrEnrichmentFailed)
	}
	return resp.Answer, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("enrich: encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("enrich: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrEnrichmentFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: service returned %d: %s", apperr.ErrEnrichmentFailed, resp.StatusCode, snippet)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: malformed response: %v", apperr.ErrEnrichmentFailed, err)
	}
	return nil
}
