package publish

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ktool/ktool/macro"
)

// DefaultUploadDelay is the politeness delay between sequential uploads.
const DefaultUploadDelay = 500 * time.Millisecond

// DiagramRenderer fills a record's images in place and never fails
// (failures become placeholder images inside the renderer).
type DiagramRenderer interface {
	Render(ctx context.Context, rec *macro.Record)
}

// Uploader posts one rendered diagram; *Client is the production
// implementation.
type Uploader interface {
	UploadDiagram(ctx context.Context, pageID string, rec *macro.Record) error
}

// BatchResult is the final report of one publish run. It is never partially
// persisted; the caller receives it whole.
type BatchResult struct {
	Succeeded int      `json:"succeeded"`
	Total     int      `json:"total"`
	Errors    []string `json:"errors,omitempty"`
}

// Config configures a Publisher.
type Config struct {
	Renderer DiagramRenderer
	Uploader Uploader

	// Delay between sequential uploads. Default: DefaultUploadDelay.
	Delay time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Delay == 0 {
		c.Delay = DefaultUploadDelay
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Publisher renders and uploads diagram batches.
type Publisher struct {
	cfg Config
}

// NewPublisher creates a Publisher.
func NewPublisher(cfg Config) *Publisher {
	cfg.defaults()
	return &Publisher{cfg: cfg}
}

// PublishAll renders every record concurrently, then uploads them strictly
// sequentially with a politeness delay between uploads. One failed upload
// never aborts the batch: it is recorded and the run continues. The returned
// result always has Total == len(records).
//
// The only error returned is input validation (missing page id); everything
// else lands in BatchResult.Errors.
func (p *Publisher) PublishAll(ctx context.Context, records []*macro.Record, pageID string) (BatchResult, error) {
	if pageID == "" {
		return BatchResult{}, ErrNoPageID
	}

	res := BatchResult{Total: len(records)}
	if len(records) == 0 {
		return res, nil
	}

	// Fan-out: identity (filename, macro id) is assigned before rendering
	// begins, so parallel renders share no state.
	var wg sync.WaitGroup
	for _, rec := range records {
		wg.Add(1)
		go func(rec *macro.Record) {
			defer wg.Done()
			p.cfg.Renderer.Render(ctx, rec)
		}(rec)
	}
	wg.Wait()

	// Upload strictly sequentially, in record order. The delay is
	// backpressure against the destination service, not a correctness
	// requirement, but the resulting upload order is observable.
	for i, rec := range records {
		if i > 0 {
			select {
			case <-ctx.Done():
				for _, rest := range records[i:] {
					res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", rest.Filename, ctx.Err()))
				}
				return res, nil
			case <-time.After(p.cfg.Delay):
			}
		}

		if err := p.cfg.Uploader.UploadDiagram(ctx, pageID, rec); err != nil {
			p.cfg.Logger.Warn("publish: upload failed, continuing",
				"filename", rec.Filename, "page_id", pageID, "error", err)
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", rec.Filename, err))
			continue
		}
		res.Succeeded++
	}

	p.cfg.Logger.Info("publish: batch complete",
		"page_id", pageID, "succeeded", res.Succeeded, "total", res.Total)
	return res, nil
}
