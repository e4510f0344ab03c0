// Package template analyzes a storage-format template document: it locates
// placeholder tokens, classifies each by its structural context, and counts
// the empty structural slots that indicate template completeness.
//
// Four placeholder spellings are recognized: <<NAME>>, {{NAME}}, the
// HTML-entity-escaped form and the \u-escaped form. The same logical token
// appearing in two different spellings is counted twice; deduplication
// happens only on exact token text. Callers that need one-per-id semantics
// must deduplicate downstream (a silent fix here would change fill payload
// counts).
package template

// Kind classifies the structural context surrounding a placeholder.
type Kind string

const (
	KindText  Kind = "text"
	KindTable Kind = "table"
	KindList  Kind = "list"
	KindMacro Kind = "macro"
)

// Section is one placeholder occurrence in document order.
type Section struct {
	ID                 string `json:"id"`                  // token name inside the delimiters
	Kind               Kind   `json:"kind"`                // surrounding structural context
	PlaceholderText    string `json:"placeholder_text"`    // the full token as matched
	SurroundingContext string `json:"surrounding_context"` // nearby document text
	Position           int    `json:"position"`            // byte offset of the token
}

// Analysis is the result of analyzing one template document. It is computed
// fresh on every call and never mutated.
type Analysis struct {
	Structure        string    `json:"structure"` // document with empty slots marked
	Sections         []Section `json:"sections"`
	EmptyParagraphs  int       `json:"empty_paragraphs"`
	EmptyTableCells  int       `json:"empty_table_cells"`
	PlaceholderCount int       `json:"placeholder_count"`
	TotalLength      int       `json:"total_length"`
}
