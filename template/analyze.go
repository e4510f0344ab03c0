package template

import (
	"regexp"
	"sort"
)

// The four placeholder spellings. Each pass runs independently and the
// matches are merged; counts are per raw match, not per logical token.
var placeholderRes = []*regexp.Regexp{
	regexp.MustCompile(`<<([A-Za-z0-9_]+)>>`),
	regexp.MustCompile(`\{\{([A-Za-z0-9_]+)\}\}`),
	regexp.MustCompile(`&lt;&lt;([A-Za-z0-9_]+)&gt;&gt;`),
	regexp.MustCompile(`\\u003[cC]\\u003[cC]([A-Za-z0-9_]+)\\u003[eE]\\u003[eE]`),
}

// Canonical markers substituted into the structure for empty slots. The
// substitution is the counting mechanism; the two regexes are disjoint, so
// their order does not matter.
const (
	ParagraphMarker = "{{PARAGRAPH_CONTENT}}"
	CellMarker      = "{{CELL_CONTENT}}"
)

var (
	emptyParagraph = regexp.MustCompile(`<p[^>]*>(?:\s|&nbsp;|<br\s*/?>)*</p>`)
	emptyCell      = regexp.MustCompile(`<(td|th)([^>]*)>(?:\s|&nbsp;)*</(?:td|th)>`)

	openCell  = regexp.MustCompile(`<t[dh][\s>]`)
	closeCell = regexp.MustCompile(`</t[dh]>`)
	openItem  = regexp.MustCompile(`<li[\s>]`)
	closeItem = regexp.MustCompile(`</li>`)
	openMacro = regexp.MustCompile(`<ac:structured-macro[\s>]`)
	endMacro  = regexp.MustCompile(`</ac:structured-macro>`)
)

// Analyze scans a template document. It never fails: an empty document
// yields an all-zero analysis whose structure equals the input.
func Analyze(doc string) *Analysis {
	a := &Analysis{Structure: doc, TotalLength: len(doc)}
	if doc == "" {
		return a
	}

	seen := make(map[string]bool)
	for _, re := range placeholderRes {
		for _, m := range re.FindAllStringSubmatchIndex(doc, -1) {
			token := doc[m[0]:m[1]]
			if seen[token] {
				continue
			}
			seen[token] = true
			a.Sections = append(a.Sections, Section{
				ID:                 doc[m[2]:m[3]],
				Kind:               contextKind(doc, m[0]),
				PlaceholderText:    token,
				SurroundingContext: surrounding(doc, m[0], m[1]),
				Position:           m[0],
			})
		}
	}
	sort.Slice(a.Sections, func(i, j int) bool {
		return a.Sections[i].Position < a.Sections[j].Position
	})
	a.PlaceholderCount = len(a.Sections)

	structure := emptyParagraph.ReplaceAllStringFunc(doc, func(string) string {
		a.EmptyParagraphs++
		return "<p>" + ParagraphMarker + "</p>"
	})
	structure = emptyCell.ReplaceAllStringFunc(structure, func(m string) string {
		a.EmptyTableCells++
		sub := emptyCell.FindStringSubmatch(m)
		return "<" + sub[1] + sub[2] + ">" + CellMarker + "</" + sub[1] + ">"
	})
	a.Structure = structure

	return a
}

// contextKind classifies the structural context at pos by counting the
// enclosing tags that are open but not yet closed before it. Macro bodies
// win over table cells, cells over list items.
func contextKind(doc string, pos int) Kind {
	before := doc[:pos]
	switch {
	case stillOpen(before, openMacro, endMacro):
		return KindMacro
	case stillOpen(before, openCell, closeCell):
		return KindTable
	case stillOpen(before, openItem, closeItem):
		return KindList
	default:
		return KindText
	}
}

func stillOpen(before string, open, closed *regexp.Regexp) bool {
	return len(open.FindAllString(before, -1)) > len(closed.FindAllString(before, -1))
}

// surrounding returns a short window of document text around a match.
func surrounding(doc string, start, end int) string {
	const window = 40
	lo := start - window
	if lo < 0 {
		lo = 0
	}
	hi := end + window
	if hi > len(doc) {
		hi = len(doc)
	}
	return doc[lo:hi]
}
