package aifill

import (
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"

	"github.com/ktool/ktool/template"
)

// Builder assembles fill Requests. Raw source material arrives as untrusted
// HTML; it is scrubbed and converted to markdown before entering the payload
// so the collaborator sees text, not markup.
type Builder struct {
	policy *bluemonday.Policy
	conv   *converter.Converter
}

// NewBuilder creates a Builder with the UGC scrub policy and a
// commonmark+table markdown converter.
func NewBuilder() *Builder {
	return &Builder{
		policy: bluemonday.UGCPolicy(),
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Build assembles a Request from a template analysis, raw source HTML, and
// operator instructions. rawSource may be empty.
func (b *Builder) Build(analysis *template.Analysis, rawSource, instructions string) (Request, error) {
	if analysis == nil || strings.TrimSpace(analysis.Structure) == "" {
		return Request{}, ErrNoTemplate
	}

	req := Request{
		Template:     analysis.Structure,
		Placeholders: placeholderTexts(analysis),
		Instructions: instructions,
	}

	if strings.TrimSpace(rawSource) != "" {
		md, err := b.sourceMarkdown(rawSource)
		if err != nil {
			return Request{}, err
		}
		req.Source = md
	}
	return req, nil
}

// sourceMarkdown scrubs untrusted HTML and converts the survivor to
// markdown.
func (b *Builder) sourceMarkdown(rawHTML string) (string, error) {
	clean := b.policy.Sanitize(rawHTML)
	md, err := b.conv.ConvertString(clean)
	if err != nil {
		return "", fmt.Errorf("source markdown: %w", err)
	}
	return strings.TrimSpace(md), nil
}

func placeholderTexts(analysis *template.Analysis) []string {
	out := make([]string, 0, len(analysis.Sections))
	for _, s := range analysis.Sections {
		out = append(out, s.PlaceholderText)
	}
	return out
}
