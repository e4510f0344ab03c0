// Package pipeline drives the full page-generation flow: fetch the template,
// analyze its placeholders, hand it to the fill collaborator, prepare the
// filled document for storage, create the page, and publish its diagrams.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ktool/ktool/aifill"
	"github.com/ktool/ktool/audit"
	"github.com/ktool/ktool/macro"
	"github.com/ktool/ktool/normalize"
	"github.com/ktool/ktool/publish"
	"github.com/ktool/ktool/sanitize"
	"github.com/ktool/ktool/template"
)

// PageClient is the backend surface the pipeline needs; *publish.Client is
// the production implementation.
type PageClient interface {
	FetchPage(ctx context.Context, pageID string) (*publish.Page, error)
	CreatePage(ctx context.Context, r publish.CreatePageRequest) (*publish.Page, error)
}

// BatchPublisher uploads a diagram batch; *publish.Publisher is the
// production implementation.
type BatchPublisher interface {
	PublishAll(ctx context.Context, records []*macro.Record, pageID string) (publish.BatchResult, error)
}

// AuditRecorder persists run history. Optional; nil disables auditing.
type AuditRecorder interface {
	RecordBatch(ctx context.Context, rec audit.BatchRecord) error
}

// Config configures a Pipeline.
type Config struct {
	Client    PageClient
	Filler    aifill.Filler
	Publisher BatchPublisher

	// Audit is optional. A failed audit write never fails the run.
	Audit AuditRecorder

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Pipeline orchestrates one page generation per Run call. It holds no
// per-run state.
type Pipeline struct {
	cfg     Config
	builder *aifill.Builder

	// sanitizeFn is the reconciler entry point; tests swap it in to
	// exercise the degradation path.
	sanitizeFn func(string) string
}

// New creates a Pipeline.
func New(cfg Config) *Pipeline {
	cfg.defaults()
	return &Pipeline{
		cfg:        cfg,
		builder:    aifill.NewBuilder(),
		sanitizeFn: sanitize.Sanitize,
	}
}

// Prepare turns a filled document into its publishable storage form:
// normalize, reconcile tags, rewrite diagram macros to their canonical form.
// It never fails. If the reconciler panics, the normalized input is used
// as-is and the reduced fidelity is logged.
func (p *Pipeline) Prepare(doc string) (string, int) {
	normalized := normalize.Normalize(doc)
	cleaned := p.safeSanitize(normalized)
	return macro.Rewrite(cleaned)
}

func (p *Pipeline) safeSanitize(doc string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			p.cfg.Logger.Error("pipeline: tag reconciler panicked, using normalized document",
				"panic", r)
			out = doc
		}
	}()
	return p.sanitizeFn(doc)
}

// Process prepares a filled document and extracts its diagram records.
// Extraction runs on the raw document: the reconciler rewrites CDATA
// sections, so diagram bodies must be captured before it runs.
func (p *Pipeline) Process(doc string) (string, []*macro.Record) {
	records := macro.Extract(doc)
	body, rewritten := p.Prepare(doc)
	if rewritten != len(records) {
		// Non-diagram macros and empty diagram bodies are rewritten but
		// yield no record, so a difference here is informational.
		p.cfg.Logger.Debug("pipeline: macro counts differ",
			"rewritten", rewritten, "extracted", len(records))
	}
	return body, records
}

// RunRequest describes one page generation.
type RunRequest struct {
	// TemplateID is the backend page holding the template.
	TemplateID string

	// Title of the page to create. Defaults to the template's title.
	Title string

	SpaceKey   string
	AncestorID string

	// RawSource is optional untrusted HTML source material for the fill.
	RawSource string

	// Instructions are passed through to the fill collaborator.
	Instructions string
}

// RunResult reports one completed generation.
type RunResult struct {
	Page     *publish.Page       `json:"page"`
	Analysis *template.Analysis  `json:"analysis"`
	Batch    publish.BatchResult `json:"batch"`
}

// Run executes the full flow. An error aborts the run before anything is
// published; once the page exists, diagram failures land in the batch
// result, not in the returned error.
func (p *Pipeline) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	start := time.Now()
	log := p.cfg.Logger.With("template_id", req.TemplateID)

	tmpl, err := p.cfg.Client.FetchPage(ctx, req.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}

	analysis := template.Analyze(tmpl.Body)
	log.Info("pipeline: template analyzed",
		"placeholders", analysis.PlaceholderCount,
		"empty_paragraphs", analysis.EmptyParagraphs,
		"empty_cells", analysis.EmptyTableCells)

	fillReq, err := p.builder.Build(analysis, req.RawSource, req.Instructions)
	if err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}
	filled, err := p.cfg.Filler.Fill(ctx, fillReq)
	if err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}

	body, records := p.Process(filled)

	title := req.Title
	if title == "" {
		title = tmpl.Title
	}
	page, err := p.cfg.Client.CreatePage(ctx, publish.CreatePageRequest{
		Title:      title,
		SpaceKey:   req.SpaceKey,
		Document:   body,
		AncestorID: req.AncestorID,
	})
	if err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}
	log = log.With("page_id", page.ID)

	batch, err := p.cfg.Publisher.PublishAll(ctx, records, page.ID)
	if err != nil {
		return nil, fmt.Errorf("run: publish: %w", err)
	}

	p.recordAudit(ctx, page.ID, batch, time.Since(start))

	log.Info("pipeline: run complete",
		"diagrams", batch.Total,
		"succeeded", batch.Succeeded,
		"duration", time.Since(start))
	return &RunResult{Page: page, Analysis: analysis, Batch: batch}, nil
}

func (p *Pipeline) recordAudit(ctx context.Context, pageID string, batch publish.BatchResult, dur time.Duration) {
	if p.cfg.Audit == nil {
		return
	}
	rec := audit.BatchRecord{
		PageID:    pageID,
		Succeeded: batch.Succeeded,
		Total:     batch.Total,
		Errors:    batch.Errors,
		Duration:  dur,
	}
	if err := p.cfg.Audit.RecordBatch(ctx, rec); err != nil {
		p.cfg.Logger.Warn("pipeline: audit write failed", "page_id", pageID, "error", err)
	}
}
