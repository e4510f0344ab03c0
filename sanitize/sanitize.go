// Package sanitize reconciles possibly-malformed storage-format markup into
// strictly well-formed markup over a fixed tag vocabulary.
//
// The reconciler is a single-pass stack machine driven by the streaming
// tokenizer from golang.org/x/net/html. Tags outside the allow-list are
// discarded, text and attribute values are entity-encoded, and mismatched
// close tags trigger a lossy recovery that always yields well-formed output:
// every allowed non-void tag that is opened is closed before end of output.
// Sanitize is idempotent on its own output.
package sanitize

import (
	stdhtml "html"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/net/html"
)

// allowedTags is the accepted vocabulary. Everything else is dropped,
// including the tag's attributes (its children are still processed).
var allowedTags = map[string]bool{
	"p": true, "div": true, "span": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"ul": true, "ol": true, "li": true,
	"table": true, "thead": true, "tbody": true, "tr": true, "td": true, "th": true,
	"caption": true, "colgroup": true,
	"strong": true, "em": true, "b": true, "i": true, "u": true, "s": true,
	"code": true, "pre": true, "blockquote": true, "a": true,
	"sub": true, "sup": true,
	"br": true, "hr": true, "img": true, "input": true, "meta": true,
	"link": true, "area": true, "base": true, "col": true, "embed": true,
	"source": true, "track": true, "wbr": true,

	// Storage-format macro vocabulary. The macro rewriter runs after
	// sanitation, so these blocks must survive the pass intact.
	"ac:structured-macro": true,
	"ac:parameter":        true,
	"ac:plain-text-body":  true,
	"ac:rich-text-body":   true,
	"ri:attachment":       true,
	"ri:page":             true,
}

// voidTags never carry content and are emitted self-closed, never pushed.
var voidTags = map[string]bool{
	"br": true, "hr": true, "img": true, "input": true, "meta": true,
	"link": true, "area": true, "base": true, "col": true, "embed": true,
	"source": true, "track": true, "wbr": true,
}

// Config configures a Reconciler.
type Config struct {
	// Allow lists extra tag names to accept beyond the built-in vocabulary.
	Allow []string

	// Logger for recovery/parse diagnostics.
	Logger *slog.Logger
}

// Reconciler rewrites markup into well-formed output over the allow-list.
type Reconciler struct {
	allow  map[string]bool
	logger *slog.Logger
}

// New creates a Reconciler with the given configuration.
func New(cfg Config) *Reconciler {
	allow := make(map[string]bool, len(allowedTags)+len(cfg.Allow))
	for k := range allowedTags {
		allow[k] = true
	}
	for _, t := range cfg.Allow {
		allow[strings.ToLower(t)] = true
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{allow: allow, logger: logger}
}

// Sanitize runs the default Reconciler over text.
func Sanitize(text string) string {
	return New(Config{}).Sanitize(text)
}

// Sanitize reconciles text into well-formed markup. It never fails: parser
// errors are logged and recovery continues to end of input.
func (r *Reconciler) Sanitize(text string) string {
	if text == "" {
		return ""
	}

	m := &machine{allow: r.allow, logger: r.logger}
	z := html.NewTokenizer(strings.NewReader(text))

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if err := z.Err(); err != io.EOF {
				// Structural error mid-stream: log and recover by
				// closing whatever is still open. No abort path.
				r.logger.Warn("sanitize: tokenizer error, recovering", "error", err)
			}
			break
		}
		tok := z.Token()
		switch tt {
		case html.StartTagToken:
			m.openTag(tok)
		case html.SelfClosingTagToken:
			m.selfCloseTag(tok)
		case html.EndTagToken:
			m.closeTag(tok.Data)
		case html.TextToken:
			m.text(tok.Data)
		case html.CommentToken:
			m.comment(tok.Data)
		case html.DoctypeToken:
			// dropped: storage format carries no doctype
		}
	}
	m.closeAll()

	return postPass(m.out.String())
}

// encodeText entity-encodes a text node. Already-valid entity references are
// decoded first so that encoding is idempotent on pre-escaped content.
func encodeText(s string) string {
	return stdhtml.EscapeString(stdhtml.UnescapeString(s))
}
