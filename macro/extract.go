package macro

import (
	stdhtml "html"
	"regexp"
	"strings"
)

// DiagramKind is the macro name that carries diagram source code. Only this
// kind is extracted; the rewriter in this package replaces every kind.
const DiagramKind = "mermaid"

var (
	diagramMacro = regexp.MustCompile(`(?s)<ac:structured-macro\b[^>]*ac:name="` + DiagramKind + `"[^>]*>(.*?)</ac:structured-macro>`)
	codeParam    = regexp.MustCompile(`(?s)<ac:parameter[^>]*ac:name="code"[^>]*>(.*?)</ac:parameter>`)
	plainBody    = regexp.MustCompile(`(?s)<ac:plain-text-body>(.*?)</ac:plain-text-body>`)
	cdataWrapper = regexp.MustCompile(`(?s)^\s*<!\[CDATA\[(.*)\]\]>\s*$`)
)

// Extract scans a document for diagram-source macros and returns one Record
// per macro with non-empty source, in discovery order. Identity (filename,
// macro id) is assigned at discovery; macros whose code is empty after
// unwrapping still consume a number but yield no record, so numbering stays
// aligned with Rewrite over the same document.
func Extract(doc string) []*Record {
	var records []*Record
	n := 0
	for _, m := range diagramMacro.FindAllStringSubmatch(doc, -1) {
		n++
		code := sourceCode(m[1])
		if code == "" {
			continue
		}
		records = append(records, &Record{
			Filename:   Filename(n),
			MacroID:    ID(n),
			SourceCode: code,
		})
	}
	return records
}

// sourceCode pulls the diagram text out of a macro body: the code parameter
// if present, otherwise the literal-data body. CDATA wrappers are unwrapped
// and parameter text is entity-decoded.
func sourceCode(body string) string {
	if m := codeParam.FindStringSubmatch(body); m != nil {
		return strings.TrimSpace(stdhtml.UnescapeString(unwrapCDATA(m[1])))
	}
	if m := plainBody.FindStringSubmatch(body); m != nil {
		return strings.TrimSpace(unwrapCDATA(m[1]))
	}
	return ""
}

func unwrapCDATA(s string) string {
	if m := cdataWrapper.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}
