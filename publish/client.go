// Package publish talks to the content-management backend: template fetch,
// page creation, and sequential diagram upload with partial-failure
// bookkeeping.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ktool/ktool/macro"
)

// MaxResponseBody caps HTTP response body reads (1 MiB). Error bodies past
// the cap are truncated, never streamed unbounded into memory.
const MaxResponseBody int64 = 1 << 20

// Input-validation errors: the only class that propagates to the caller,
// since there is no safe default to substitute.
var (
	ErrNoPageID      = errors.New("publish: page id is required")
	ErrEmptyDocument = errors.New("publish: document is empty")
	ErrNoTitle       = errors.New("publish: page title is required")
	ErrNoSpaceKey    = errors.New("publish: space key is required")
)

// ClientConfig configures a backend Client.
type ClientConfig struct {
	// BaseURL of the backend, without trailing slash.
	BaseURL string

	// Token is sent as a bearer token when set.
	Token string

	// PublishPath is the diagram upload path under BaseURL.
	PublishPath string

	// ContentPath is the page content path under BaseURL.
	ContentPath string

	HTTPClient *http.Client
	Logger     *slog.Logger
}

func (c *ClientConfig) defaults() {
	if c.PublishPath == "" {
		c.PublishPath = "rest/k-tool/1.0/diagram"
	}
	if c.ContentPath == "" {
		c.ContentPath = "rest/api/content"
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Client is the backend REST client.
type Client struct {
	cfg ClientConfig
}

// NewClient creates a backend client.
func NewClient(cfg ClientConfig) *Client {
	cfg.defaults()
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg}
}

// Page is a backend page: title plus storage-format body.
type Page struct {
	ID    string
	Title string
	Body  string
}

// FetchPage retrieves a page's title and storage-format body.
func (c *Client) FetchPage(ctx context.Context, pageID string) (*Page, error) {
	if pageID == "" {
		return nil, ErrNoPageID
	}

	url := fmt.Sprintf("%s/%s/%s?expand=body.storage", c.cfg.BaseURL, c.cfg.ContentPath, pageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	c.auth(req)

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch page %s: %w", pageID, err)
	}
	defer resp.Body.Close()

	body, err := readBounded(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch page %s: read: %w", pageID, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch page %s: status %d: %s", pageID, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		ID    string `json:"id"`
		Title string `json:"title"`
		Body  struct {
			Storage struct {
				Value string `json:"value"`
			} `json:"storage"`
		} `json:"body"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("fetch page %s: decode: %w", pageID, err)
	}
	return &Page{ID: payload.ID, Title: payload.Title, Body: payload.Body.Storage.Value}, nil
}

// CreatePageRequest describes a page to create. Document must already have
// gone through normalize → sanitize → macro rewrite, in that order.
type CreatePageRequest struct {
	Title      string
	SpaceKey   string
	Document   string
	AncestorID string // optional parent page
}

// CreatePage creates a storage-format page and returns its identity.
func (c *Client) CreatePage(ctx context.Context, r CreatePageRequest) (*Page, error) {
	switch {
	case strings.TrimSpace(r.Document) == "":
		return nil, ErrEmptyDocument
	case r.Title == "":
		return nil, ErrNoTitle
	case r.SpaceKey == "":
		return nil, ErrNoSpaceKey
	}

	payload := map[string]any{
		"type":  "page",
		"title": r.Title,
		"space": map[string]string{"key": r.SpaceKey},
		"body": map[string]any{
			"storage": map[string]string{
				"value":          r.Document,
				"representation": "storage",
			},
		},
	}
	if r.AncestorID != "" {
		payload["ancestors"] = []map[string]string{{"id": r.AncestorID}}
	}

	body, err := c.postJSON(ctx, fmt.Sprintf("%s/%s", c.cfg.BaseURL, c.cfg.ContentPath), payload)
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}

	var created struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("create page: decode: %w", err)
	}
	return &Page{ID: created.ID, Title: created.Title}, nil
}

// UploadDiagram posts one rendered diagram to the publish endpoint.
func (c *Client) UploadDiagram(ctx context.Context, pageID string, rec *macro.Record) error {
	if pageID == "" {
		return ErrNoPageID
	}

	payload := map[string]string{
		"filename": rec.Filename,
		"data":     rec.SourceCode,
		"svg":      rec.SVG,
		"png":      rec.PNG,
	}
	_, err := c.postJSON(ctx, fmt.Sprintf("%s/%s/%s", c.cfg.BaseURL, c.cfg.PublishPath, pageID), payload)
	if err != nil {
		return fmt.Errorf("upload %s: %w", rec.Filename, err)
	}
	return nil
}

// postJSON posts a JSON payload and returns the (bounded) response body,
// turning non-2xx responses into errors carrying the body text.
func (c *Client) postJSON(ctx context.Context, url string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.auth(req)

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := readBounded(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func (c *Client) auth(req *http.Request) {
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
}

// readBounded reads at most MaxResponseBody bytes.
func readBounded(r io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, MaxResponseBody))
}
