package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/ktool/ktool/aifill"
	"github.com/ktool/ktool/audit"
	"github.com/ktool/ktool/macro"
	"github.com/ktool/ktool/normalize"
	"github.com/ktool/ktool/publish"
)

type fakeClient struct {
	template   *publish.Page
	fetchErr   error
	created    *publish.CreatePageRequest
	createID   string
	createErr  error
	fetchedIDs []string
}

func (c *fakeClient) FetchPage(ctx context.Context, pageID string) (*publish.Page, error) {
	c.fetchedIDs = append(c.fetchedIDs, pageID)
	if c.fetchErr != nil {
		return nil, c.fetchErr
	}
	return c.template, nil
}

func (c *fakeClient) CreatePage(ctx context.Context, r publish.CreatePageRequest) (*publish.Page, error) {
	c.created = &r
	if c.createErr != nil {
		return nil, c.createErr
	}
	return &publish.Page{ID: c.createID, Title: r.Title}, nil
}

type fakeFiller struct {
	doc string
	err error
	got aifill.Request
}

func (f *fakeFiller) Fill(ctx context.Context, req aifill.Request) (string, error) {
	f.got = req
	return f.doc, f.err
}

type fakeBatchPublisher struct {
	result  publish.BatchResult
	pageID  string
	records []*macro.Record
}

func (p *fakeBatchPublisher) PublishAll(ctx context.Context, records []*macro.Record, pageID string) (publish.BatchResult, error) {
	p.records = records
	p.pageID = pageID
	p.result.Total = len(records)
	return p.result, nil
}

type fakeAudit struct {
	recs []audit.BatchRecord
	err  error
}

func (a *fakeAudit) RecordBatch(ctx context.Context, rec audit.BatchRecord) error {
	a.recs = append(a.recs, rec)
	return a.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mermaidMacro(code string) string {
	return `<ac:structured-macro ac:name="mermaid" ac:schema-version="1" ac:macro-id="abc">` +
		`<ac:parameter ac:name="code">` + code + `</ac:parameter>` +
		`</ac:structured-macro>`
}

func TestPrepareFullChain(t *testing.T) {
	p := New(Config{Logger: discardLogger()})

	// Mojibake, an unbalanced tag, and a diagram macro in one document.
	doc := "<p>Chiáº¿n lược<div>x</p></div>" + mermaidMacro("graph TD")
	out, n := p.Prepare(doc)

	if n != 1 {
		t.Fatalf("rewrote %d macros, want 1", n)
	}
	if !strings.Contains(out, "Chiến lược") {
		t.Errorf("mojibake not repaired: %q", out)
	}
	if strings.Contains(out, "mermaid") || !strings.Contains(out, `ac:name="drawio"`) {
		t.Errorf("macro not canonicalized: %q", out)
	}
	if !strings.Contains(out, "</div></p>") {
		t.Errorf("tags not reconciled: %q", out)
	}
}

func TestPrepareSanitizerPanicFallsBack(t *testing.T) {
	var logBuf bytes.Buffer
	p := New(Config{Logger: slog.New(slog.NewTextHandler(&logBuf, nil))})
	p.sanitizeFn = func(string) string { panic("tokenizer blew up") }

	// Malformed markup the reconciler would normally repair.
	doc := "<p>Chiáº¿n  lược<div>x</p>"
	out, n := p.Prepare(doc)

	if want := normalize.Normalize(doc); out != want {
		t.Errorf("fallback output = %q, want normalized input %q", out, want)
	}
	if n != 0 {
		t.Errorf("rewrote %d macros, want 0", n)
	}
	// The swallowed failure must stay observable.
	if !strings.Contains(logBuf.String(), "reconciler panicked") {
		t.Errorf("panic not logged: %q", logBuf.String())
	}
}

func TestProcessExtractsBeforePrepare(t *testing.T) {
	p := New(Config{Logger: discardLogger()})

	// CDATA body: the reconciler rewrites CDATA, so extraction must see the
	// raw document.
	doc := `<ac:structured-macro ac:name="mermaid">` +
		`<ac:plain-text-body><![CDATA[graph TD; A-->B]]></ac:plain-text-body>` +
		`</ac:structured-macro>`

	body, records := p.Process(doc)
	if len(records) != 1 {
		t.Fatalf("extracted %d records, want 1", len(records))
	}
	if records[0].SourceCode != "graph TD; A-->B" {
		t.Errorf("source = %q", records[0].SourceCode)
	}
	if !strings.Contains(body, `ac:name="drawio"`) {
		t.Errorf("body not canonicalized: %q", body)
	}
}

func TestRunHappyPath(t *testing.T) {
	client := &fakeClient{
		template: &publish.Page{ID: "10", Title: "Report Template", Body: "<p>{{SUMMARY}}</p>"},
		createID: "42",
	}
	filler := &fakeFiller{doc: "<p>Summary text.</p>" + mermaidMacro("graph TD")}
	pub := &fakeBatchPublisher{result: publish.BatchResult{Succeeded: 1}}
	auditRec := &fakeAudit{}

	p := New(Config{
		Client:    client,
		Filler:    filler,
		Publisher: pub,
		Audit:     auditRec,
		Logger:    discardLogger(),
	})

	res, err := p.Run(context.Background(), RunRequest{
		TemplateID: "10",
		Title:      "Weekly Report",
		SpaceKey:   "DOC",
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(filler.got.Placeholders) != 1 || filler.got.Placeholders[0] != "{{SUMMARY}}" {
		t.Errorf("fill placeholders = %v", filler.got.Placeholders)
	}
	if client.created == nil {
		t.Fatal("CreatePage not called")
	}
	if client.created.Title != "Weekly Report" || client.created.SpaceKey != "DOC" {
		t.Errorf("create request = %+v", client.created)
	}
	if !strings.Contains(client.created.Document, `ac:name="drawio"`) {
		t.Errorf("created document not prepared: %q", client.created.Document)
	}
	if pub.pageID != "42" {
		t.Errorf("published to page %q, want 42", pub.pageID)
	}
	if len(pub.records) != 1 || pub.records[0].SourceCode != "graph TD" {
		t.Errorf("published records = %+v", pub.records)
	}
	if res.Page.ID != "42" || res.Batch.Total != 1 {
		t.Errorf("result = %+v", res)
	}

	if len(auditRec.recs) != 1 {
		t.Fatalf("audit recorded %d runs, want 1", len(auditRec.recs))
	}
	if auditRec.recs[0].PageID != "42" || auditRec.recs[0].Total != 1 {
		t.Errorf("audit record = %+v", auditRec.recs[0])
	}
}

func TestRunTitleDefaultsToTemplate(t *testing.T) {
	client := &fakeClient{
		template: &publish.Page{ID: "10", Title: "Report Template", Body: "<p>{{X}}</p>"},
		createID: "42",
	}
	p := New(Config{
		Client:    client,
		Filler:    &fakeFiller{doc: "<p>done</p>"},
		Publisher: &fakeBatchPublisher{},
		Logger:    discardLogger(),
	})

	if _, err := p.Run(context.Background(), RunRequest{TemplateID: "10", SpaceKey: "DOC"}); err != nil {
		t.Fatal(err)
	}
	if client.created.Title != "Report Template" {
		t.Errorf("title = %q, want template title", client.created.Title)
	}
}

func TestRunFetchErrorAborts(t *testing.T) {
	client := &fakeClient{fetchErr: errors.New("template gone")}
	p := New(Config{
		Client:    client,
		Filler:    &fakeFiller{},
		Publisher: &fakeBatchPublisher{},
		Logger:    discardLogger(),
	})

	if _, err := p.Run(context.Background(), RunRequest{TemplateID: "10"}); err == nil {
		t.Fatal("expected error")
	}
	if client.created != nil {
		t.Error("CreatePage called after failed fetch")
	}
}

func TestRunFillErrorAborts(t *testing.T) {
	client := &fakeClient{template: &publish.Page{ID: "10", Title: "T", Body: "<p>{{X}}</p>"}}
	p := New(Config{
		Client:    client,
		Filler:    &fakeFiller{err: errors.New("model down")},
		Publisher: &fakeBatchPublisher{},
		Logger:    discardLogger(),
	})

	_, err := p.Run(context.Background(), RunRequest{TemplateID: "10", SpaceKey: "DOC"})
	if err == nil || !strings.Contains(err.Error(), "model down") {
		t.Fatalf("err = %v", err)
	}
	if client.created != nil {
		t.Error("CreatePage called after failed fill")
	}
}

func TestRunAuditFailureDoesNotFailRun(t *testing.T) {
	client := &fakeClient{
		template: &publish.Page{ID: "10", Title: "T", Body: "<p>{{X}}</p>"},
		createID: "42",
	}
	p := New(Config{
		Client:    client,
		Filler:    &fakeFiller{doc: "<p>done</p>"},
		Publisher: &fakeBatchPublisher{},
		Audit:     &fakeAudit{err: errors.New("disk full")},
		Logger:    discardLogger(),
	})

	if _, err := p.Run(context.Background(), RunRequest{TemplateID: "10", SpaceKey: "DOC"}); err != nil {
		t.Fatalf("audit failure leaked into run error: %v", err)
	}
}

func TestRunRawSourceReachesFiller(t *testing.T) {
	client := &fakeClient{
		template: &publish.Page{ID: "10", Title: "T", Body: "<p>{{X}}</p>"},
		createID: "42",
	}
	filler := &fakeFiller{doc: "<p>done</p>"}
	p := New(Config{
		Client:    client,
		Filler:    filler,
		Publisher: &fakeBatchPublisher{},
		Logger:    discardLogger(),
	})

	req := RunRequest{
		TemplateID: "10",
		SpaceKey:   "DOC",
		RawSource:  "<h1>Q3</h1><p>Revenue grew.</p>",
	}
	if _, err := p.Run(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(filler.got.Source, "Revenue grew") {
		t.Errorf("fill source = %q", filler.got.Source)
	}
	if strings.Contains(filler.got.Source, "<p>") {
		t.Errorf("fill source still markup: %q", filler.got.Source)
	}
}
