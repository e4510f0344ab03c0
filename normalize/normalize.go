// Package normalize repairs the encoding and whitespace of AI-filled
// storage-format text before it is sanitized.
//
// The substitutions run in a fixed order: BOM and C0 control removal,
// mojibake repair, line-separator normalization, C1 control removal,
// bare-ampersand escaping, whitespace discipline. Normalize is pure and
// idempotent: Normalize(Normalize(s)) == Normalize(s).
package normalize

import (
	"regexp"
	"strings"
)

// mojibake maps UTF-8 byte sequences that were mis-decoded as
// Windows-1252/Latin-1 back to the intended characters. Longer sequences
// come first so they win over their prefixes ("â€œ" before "â€").
// The Vietnamese block covers the letters that show up in practice when a
// Vietnamese document goes through a Latin-1 round trip.
var mojibake = strings.NewReplacer(
	"â€™", "’", // ’
	"â€œ", "“", // “
	"â€“", "–", // –
	"â€”", "—", // —
	"â€¦", "…", // …
	"â€", "”", // ” (third byte is C1 or dropped)
	"áº£", "ả",
	"áº¡", "ạ",
	"áº¿", "ế",
	"á»\u0081", "ề",
	"á»‡", "ệ",
	"á»‹", "ị",
	"á»‘", "ố",
	"á»“", "ồ",
	"á»›", "ớ",
	"á»£", "ợ",
	"á»§", "ủ",
	"á»©", "ứ",
	"á»¯", "ữ",
	"á»", "ề", // ề (third byte is C1, invisible here)
	"Ã¡", "á",
	"Ã ", "à",
	"Ã£", "ã",
	"Ã¢", "â",
	"Ã©", "é",
	"Ã¨", "è",
	"Ãª", "ê",
	"Ã­", "í",
	"Ã³", "ó",
	"Ã´", "ô",
	"Ãº", "ú",
	"Ã½", "ý",
	"Äƒ", "ă",
	"Ä‘", "đ",
	"Ä©", "ĩ",
	"Æ¡", "ơ",
	"Æ°", "ư",
)

var lineSeparators = strings.NewReplacer(
	"\r\n", "\n",
	"\r", "\n",
	"\u2028", "\n",
	"\u2029", "\n",
)

var (
	// C0 controls except tab, LF, CR; plus DEL and the BOM.
	c0Controls = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]|\x{FEFF}`)
	// C1 controls, stripped only after mojibake repair: several repair
	// sequences contain C1 code points the table must still see.
	c1Controls = regexp.MustCompile(`[\x{0080}-\x{009F}]`)

	// Known entity references and numeric character references; a lone &
	// is the final alternative, so it only matches when nothing else does.
	entityOrAmp = regexp.MustCompile(`&[a-zA-Z][a-zA-Z0-9]{1,31};|&#[0-9]{1,7};|&#[xX][0-9a-fA-F]{1,6};|&`)

	horizontalRuns = regexp.MustCompile(`[ \t]+`)
	lineEdges      = regexp.MustCompile(`(?m)^ +| +$`)
	blankLines     = regexp.MustCompile(`\n{3,}`)
	interTagSpace  = regexp.MustCompile(`>\s+<`)
)

// Normalize repairs mis-decoded byte sequences, strips control characters,
// escapes bare ampersands, and collapses whitespace.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	s := c0Controls.ReplaceAllString(text, "")
	s = repairMojibake(s)
	s = lineSeparators.Replace(s)
	s = c1Controls.ReplaceAllString(s, "")

	s = entityOrAmp.ReplaceAllStringFunc(s, func(m string) string {
		if m == "&" {
			return "&amp;"
		}
		return m
	})

	s = horizontalRuns.ReplaceAllString(s, " ")
	s = lineEdges.ReplaceAllString(s, "")
	s = blankLines.ReplaceAllString(s, "\n\n")
	s = interTagSpace.ReplaceAllString(s, "><")

	return s
}

// repairMojibake applies the repair table to a fixed point. A single pass is
// not enough: repairing one sequence can expose another ("Ã¡" followed by
// "»" repairs to "á»", itself a truncated sequence). Every table entry maps
// to a strictly shorter byte sequence, so the loop terminates.
func repairMojibake(s string) string {
	for {
		repaired := mojibake.Replace(s)
		if repaired == s {
			return repaired
		}
		s = repaired
	}
}
