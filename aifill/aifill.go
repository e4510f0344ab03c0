// Package aifill talks to the external content-fill collaborator: it builds
// the fill payload from a template analysis and cleaned source material, and
// sends it to the fill endpoint.
package aifill

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
)

const maxFillResponse int64 = 8 << 20

var (
	ErrNoTemplate = errors.New("aifill: template structure is empty")
	ErrEmptyFill  = errors.New("aifill: collaborator returned an empty document")
)

// Request is the fill payload: the template skeleton, the placeholders to
// satisfy, the cleaned source material, and operator instructions.
type Request struct {
	Template     string   `json:"template"`
	Placeholders []string `json:"placeholders"`
	Source       string   `json:"source,omitempty"`
	Instructions string   `json:"instructions,omitempty"`
}

// Filler produces a filled storage-format document from a Request.
type Filler interface {
	Fill(ctx context.Context, req Request) (string, error)
}

// HTTPFillerConfig configures an HTTPFiller.
type HTTPFillerConfig struct {
	URL   string
	Token string

	HTTPClient *http.Client
	Logger     *slog.Logger
}

func (c *HTTPFillerConfig) defaults() {
	if c.HTTPClient == nil {
		// Fill calls are slow; the collaborator generates a whole document.
		c.HTTPClient = &http.Client{Timeout: 5 * time.Minute}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// HTTPFiller posts fill requests to a remote collaborator endpoint.
type HTTPFiller struct {
	cfg HTTPFillerConfig
}

var _ Filler = (*HTTPFiller)(nil)

// NewHTTPFiller creates an HTTPFiller.
func NewHTTPFiller(cfg HTTPFillerConfig) *HTTPFiller {
	cfg.defaults()
	return &HTTPFiller{cfg: cfg}
}

// Fill posts req and returns the filled document. The response is either a
// JSON object with a "document" field or a bare JSON string.
func (f *HTTPFiller) Fill(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Template) == "" {
		return "", ErrNoTemplate
	}

	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("fill: marshal: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, f.cfg.URL, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("fill: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if f.cfg.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+f.cfg.Token)
	}

	start := time.Now()
	resp, err := f.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("fill: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFillResponse))
	if err != nil {
		return "", fmt.Errorf("fill: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fill: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	doc, err := decodeFillResponse(body)
	if err != nil {
		return "", err
	}

	f.cfg.Logger.Info("aifill: document filled",
		"placeholders", len(req.Placeholders),
		"bytes", len(doc),
		"duration", time.Since(start))
	return doc, nil
}

// decodeFillResponse accepts {"document": "..."} or a bare JSON string.
func decodeFillResponse(body []byte) (string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return "", ErrEmptyFill
	}

	switch trimmed[0] {
	case '{':
		var payload struct {
			Document string `json:"document"`
		}
		if err := json.Unmarshal(trimmed, &payload); err != nil {
			return "", fmt.Errorf("fill: decode response: %w", err)
		}
		if strings.TrimSpace(payload.Document) == "" {
			return "", ErrEmptyFill
		}
		return payload.Document, nil
	case '"':
		var doc string
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return "", fmt.Errorf("fill: decode response: %w", err)
		}
		if strings.TrimSpace(doc) == "" {
			return "", ErrEmptyFill
		}
		return doc, nil
	default:
		return "", fmt.Errorf("fill: unexpected response shape: %q", firstBytes(trimmed, 40))
	}
}

func firstBytes(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
