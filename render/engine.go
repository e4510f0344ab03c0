// Package render converts diagram source text into a vector image and
// rasterizes it to a bitmap.
//
// Rendering is two-stage: an external engine turns source code into SVG,
// then a headless page rasterizes the SVG to PNG. The stage never fails
// outward: any internal error is logged and the record receives a fixed
// 1×1 transparent placeholder bitmap, so the publish stage always has
// something to upload.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxEngineResponse caps how much of the engine's response is read (4 MiB).
const maxEngineResponse int64 = 4 << 20

// Engine produces a vector image from diagram source text.
type Engine interface {
	Render(ctx context.Context, macroID, source string) (string, error)
}

// HTTPEngine renders diagrams by POSTing source text to a render service.
type HTTPEngine struct {
	url    string
	client *http.Client
}

var _ Engine = (*HTTPEngine)(nil)

// NewHTTPEngine creates an engine client for the given endpoint. If client
// is nil, a default client with a 30s timeout is used.
func NewHTTPEngine(url string, client *http.Client) *HTTPEngine {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPEngine{url: url, client: client}
}

// Render posts the diagram source and returns the SVG text.
func (e *HTTPEngine) Render(ctx context.Context, macroID, source string) (string, error) {
	body, err := json.Marshal(map[string]string{"id": macroID, "source": source})
	if err != nil {
		return "", fmt.Errorf("engine: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("engine: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("engine: post: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxEngineResponse))
	if err != nil {
		return "", fmt.Errorf("engine: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("engine: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	return decodeEngineResponse(data)
}

// decodeEngineResponse normalizes the engine's return shapes to plain SVG
// text. The engine contract has varied across versions: some return the SVG
// bare, some a JSON string, some an object with an "svg" field. Everything
// downstream sees one shape.
func decodeEngineResponse(data []byte) (string, error) {
	s := strings.TrimSpace(string(data))
	if s == "" {
		return "", errors.New("engine: empty response")
	}

	switch s[0] {
	case '{':
		var payload struct {
			SVG string `json:"svg"`
		}
		if err := json.Unmarshal([]byte(s), &payload); err != nil {
			return "", fmt.Errorf("engine: decode object response: %w", err)
		}
		if strings.TrimSpace(payload.SVG) == "" {
			return "", errors.New("engine: object response has no svg field")
		}
		return payload.SVG, nil
	case '"':
		var svg string
		if err := json.Unmarshal([]byte(s), &svg); err != nil {
			return "", fmt.Errorf("engine: decode string response: %w", err)
		}
		return svg, nil
	default:
		return s, nil
	}
}
