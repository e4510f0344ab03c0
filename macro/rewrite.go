package macro

import "regexp"

// structuredMacro matches one embedded structured macro block of any kind,
// self-closed or paired. Matches are non-overlapping and in document order.
var structuredMacro = regexp.MustCompile(`(?s)<ac:structured-macro\b(?:[^>]*?/>|.*?</ac:structured-macro>)`)

// Rewrite replaces every structured macro block with the canonical
// diagram-display macro and returns the rewritten document plus the number
// of macros replaced. The counter is threaded through the fold, not kept in
// package state, so concurrent rewrites never interfere.
//
// The rewrite is unconditional: any structured macro is replaced, diagram
// or not. Run Extract over the original document before calling Rewrite.
func Rewrite(doc string) (string, int) {
	n := 0
	out := structuredMacro.ReplaceAllStringFunc(doc, func(string) string {
		n++
		return Canonical(n)
	})
	return out, n
}

// Canonical builds the canonical diagram macro for the n-th (1-based)
// diagram: a drawio display block pointing at the rendered attachment.
func Canonical(n int) string {
	return `<ac:structured-macro ac:name="drawio" ac:schema-version="1" ac:macro-id="` + ID(n) + `">` +
		`<ac:parameter ac:name="toolbar">bottom</ac:parameter>` +
		`<ac:parameter ac:name="filename">` + Filename(n) + `</ac:parameter>` +
		`<ac:parameter ac:name="format">svg</ac:parameter>` +
		`<ac:parameter ac:name="zoom">fit</ac:parameter>` +
		`<ac:parameter ac:name="revision">1</ac:parameter>` +
		`</ac:structured-macro>`
}
