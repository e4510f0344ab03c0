// Package macro rewrites embedded structured macros into the canonical
// diagram-display macro and extracts diagram source code from
// diagram-bearing macros.
//
// The rewriter replaces every structured macro unconditionally, whether or
// not it was a diagram: callers extract diagram sources from the original,
// un-rewritten document first. Identity assignment is deterministic: the
// n-th macro in document order gets filename "k-tool-diagram-<n>" and macro
// id 110+n. The two numbering schemes share n but differ in base; they must
// not be conflated.
package macro

import (
	"strconv"
)

// MacroIDBase is the numeric base for canonical macro ids; the first macro
// gets 111.
const MacroIDBase = 110

// FilenamePrefix is the attachment name prefix for rendered diagrams.
const FilenamePrefix = "k-tool-diagram-"

// Filename returns the attachment filename for the n-th (1-based) diagram.
func Filename(n int) string {
	return FilenamePrefix + strconv.Itoa(n)
}

// ID returns the canonical macro id for the n-th (1-based) diagram.
func ID(n int) string {
	return strconv.Itoa(MacroIDBase + n)
}

// Record is one diagram flowing through the render/publish stages.
//
// Record is the one intentionally mutable entity in the pipeline: the
// extractor creates it, the renderer fills SVG and PNG in place, and the
// publisher reads and discards it.
type Record struct {
	Filename   string `json:"filename"`
	MacroID    string `json:"macro_id"`
	SourceCode string `json:"source_code"`
	SVG        string `json:"svg,omitempty"` // vector image text
	PNG        string `json:"png,omitempty"` // base64 bitmap, data-URI prefix stripped
}
