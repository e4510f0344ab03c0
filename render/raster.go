package render

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Default canvas dimensions when the image reports no natural size.
const (
	defaultRasterWidth  = 800
	defaultRasterHeight = 600
)

// Rasterizer converts a vector image to a base64-encoded bitmap.
type Rasterizer interface {
	Rasterize(ctx context.Context, svg string) (string, error)
}

// BrowserRasterizer rasterizes SVG in a headless Chrome page. A fresh page
// is created per call so concurrent renders never share canvas state; only
// the browser process is reused.
type BrowserRasterizer struct {
	mu      sync.Mutex
	browser *rod.Browser
}

var _ Rasterizer = (*BrowserRasterizer)(nil)

// NewBrowserRasterizer creates a rasterizer. The browser is launched lazily
// on first use.
func NewBrowserRasterizer() *BrowserRasterizer {
	return &BrowserRasterizer{}
}

// ensureBrowser lazily launches and connects to Chrome.
func (r *BrowserRasterizer) ensureBrowser() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser != nil {
		return r.browser, nil
	}

	l := launcher.New()
	if bin := os.Getenv("ROD_BROWSER_BIN"); bin != "" {
		l = l.Bin(bin)
	}
	if os.Getenv("CI") == "true" || os.Getenv("ROD_BROWSER_BIN") != "" {
		l = l.NoSandbox(true)
	}
	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("raster: launch browser: %w", err)
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("raster: connect browser: %w", err)
	}
	r.browser = b
	return b, nil
}

// Close releases the browser.
func (r *BrowserRasterizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser == nil {
		return nil
	}
	err := r.browser.Close()
	r.browser = nil
	return err
}

// Rasterize loads the SVG as an image on a white background, sizes the
// viewport to the image's natural dimensions (800×600 when unavailable),
// and exports a base64 PNG with no data-URI prefix.
func (r *BrowserRasterizer) Rasterize(ctx context.Context, svg string) (string, error) {
	b, err := r.ensureBrowser()
	if err != nil {
		return "", err
	}

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", fmt.Errorf("raster: create page: %w", err)
	}
	defer page.Close()

	if err := page.Context(ctx).SetDocumentContent(rasterHarness(svg)); err != nil {
		return "", fmt.Errorf("raster: set content: %w", err)
	}
	if err := page.Context(ctx).WaitLoad(); err != nil {
		return "", fmt.Errorf("raster: wait load: %w", err)
	}

	res, err := page.Context(ctx).Eval(`() => {
		const img = document.getElementById("diagram");
		return { w: img.naturalWidth || 0, h: img.naturalHeight || 0 };
	}`)
	if err != nil {
		return "", fmt.Errorf("raster: measure: %w", err)
	}
	width := res.Value.Get("w").Int()
	height := res.Value.Get("h").Int()
	if width <= 0 || height <= 0 {
		width, height = defaultRasterWidth, defaultRasterHeight
	}

	if err := page.Context(ctx).SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
	}); err != nil {
		return "", fmt.Errorf("raster: set viewport: %w", err)
	}

	bin, err := page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return "", fmt.Errorf("raster: screenshot: %w", err)
	}

	return base64.StdEncoding.EncodeToString(bin), nil
}

// rasterHarness builds the page that displays the SVG at natural size on a
// white background.
func rasterHarness(svg string) string {
	return `<!DOCTYPE html><html><head><style>html,body{margin:0;padding:0;background:#ffffff}</style></head>` +
		`<body><img id="diagram" src="data:image/svg+xml;base64,` +
		base64.StdEncoding.EncodeToString([]byte(svg)) +
		`"></body></html>`
}
