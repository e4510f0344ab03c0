package sanitize

import (
	stdhtml "html"
	"log/slog"
	"strings"

	"golang.org/x/net/html"
)

// machine is the reconciliation state machine. State is the stack of open
// tag names; events (open/close/text/comment) must arrive in document order.
type machine struct {
	allow  map[string]bool
	stack  []string
	out    strings.Builder
	logger *slog.Logger
}

func (m *machine) push(name string) { m.stack = append(m.stack, name) }

func (m *machine) pop() string {
	name := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return name
}

// openTag emits an allowed open tag and pushes it; void tags are emitted
// self-closed without pushing; disallowed tags are dropped entirely.
func (m *machine) openTag(tok html.Token) {
	name := tok.Data
	if !m.allow[name] {
		return
	}
	if voidTags[name] {
		m.writeTag(tok, true)
		return
	}
	m.writeTag(tok, false)
	m.push(name)
}

// selfCloseTag emits an allowed self-closed tag; nothing is pushed.
func (m *machine) selfCloseTag(tok html.Token) {
	if !m.allow[tok.Data] {
		return
	}
	m.writeTag(tok, true)
}

// closeTag pops the stack for an allowed close tag. A mismatch triggers the
// recovery transition: the wrongly-nested top is closed as-is, then every
// tag down to and including the expected one is closed in LIFO order. The
// recovery is lossy: it favors well-formed output over the author's nesting.
func (m *machine) closeTag(name string) {
	if !m.allow[name] || voidTags[name] {
		return
	}
	if len(m.stack) == 0 {
		return
	}

	top := m.pop()
	m.out.WriteString("</")
	m.out.WriteString(top)
	m.out.WriteByte('>')
	if top == name {
		return
	}

	// Mismatch recovery: find the expected tag deeper in the stack and
	// close every intervening tag down to and including it. If it was
	// never opened, the close tag is consumed with no further effect.
	m.logger.Debug("sanitize: close tag mismatch", "expected", name, "got", top)
	idx := -1
	for i := len(m.stack) - 1; i >= 0; i-- {
		if m.stack[i] == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	for i := len(m.stack) - 1; i >= idx; i-- {
		m.out.WriteString("</")
		m.out.WriteString(m.stack[i])
		m.out.WriteByte('>')
	}
	m.stack = m.stack[:idx]
}

// text emits an entity-encoded text node.
func (m *machine) text(s string) {
	m.out.WriteString(encodeText(s))
}

// comment re-emits a comment with its payload encoded.
func (m *machine) comment(s string) {
	m.out.WriteString("<!--")
	m.out.WriteString(encodeText(s))
	m.out.WriteString("-->")
}

// closeAll closes every tag still open, in LIFO order. This is what makes
// the well-formedness guarantee unconditional.
func (m *machine) closeAll() {
	for len(m.stack) > 0 {
		name := m.pop()
		m.out.WriteString("</")
		m.out.WriteString(name)
		m.out.WriteByte('>')
	}
}

// writeTag emits an open (or self-closed) tag with attribute values
// entity-encoded.
func (m *machine) writeTag(tok html.Token, selfClose bool) {
	m.out.WriteByte('<')
	m.out.WriteString(tok.Data)
	for _, a := range tok.Attr {
		m.out.WriteByte(' ')
		m.out.WriteString(a.Key)
		m.out.WriteString(`="`)
		m.out.WriteString(stdhtml.EscapeString(a.Val))
		m.out.WriteByte('"')
	}
	if selfClose {
		m.out.WriteByte('/')
	}
	m.out.WriteByte('>')
}
