package macro

import (
	"fmt"
	"strings"
	"testing"
)

func mermaidMacro(code string) string {
	return `<ac:structured-macro ac:name="mermaid" ac:schema-version="1" ac:macro-id="abc">` +
		`<ac:parameter ac:name="code">` + code + `</ac:parameter>` +
		`</ac:structured-macro>`
}

func TestRewriteAssignsSequentialIdentity(t *testing.T) {
	doc := `<p>a</p>` + mermaidMacro("graph TD") +
		`<p>b</p>` + mermaidMacro("sequenceDiagram") +
		`<p>c</p>` + mermaidMacro("pie")

	out, n := Rewrite(doc)
	if n != 3 {
		t.Fatalf("rewrote %d macros, want 3", n)
	}

	for i := 1; i <= 3; i++ {
		if !strings.Contains(out, fmt.Sprintf(`ac:macro-id="%d"`, 110+i)) {
			t.Errorf("missing macro id %d in %q", 110+i, out)
		}
		if !strings.Contains(out, fmt.Sprintf(`<ac:parameter ac:name="filename">k-tool-diagram-%d</ac:parameter>`, i)) {
			t.Errorf("missing filename k-tool-diagram-%d", i)
		}
	}

	// The canonical shape carries the fixed five parameters.
	for _, p := range []string{
		`<ac:parameter ac:name="toolbar">bottom</ac:parameter>`,
		`<ac:parameter ac:name="format">svg</ac:parameter>`,
		`<ac:parameter ac:name="zoom">fit</ac:parameter>`,
		`<ac:parameter ac:name="revision">1</ac:parameter>`,
	} {
		if !strings.Contains(out, p) {
			t.Errorf("canonical macro missing %q", p)
		}
	}

	// Nothing of the original macros survives.
	if strings.Contains(out, "mermaid") {
		t.Errorf("original macro kind left in output: %q", out)
	}
	if !strings.Contains(out, "<p>a</p>") || !strings.Contains(out, "<p>c</p>") {
		t.Errorf("surrounding content damaged: %q", out)
	}
}

func TestRewriteReplacesAnyMacroKind(t *testing.T) {
	// The rewrite is unconditional: non-diagram macros are replaced too.
	doc := `<ac:structured-macro ac:name="toc"><ac:parameter ac:name="maxLevel">2</ac:parameter></ac:structured-macro>`
	out, n := Rewrite(doc)
	if n != 1 {
		t.Fatalf("rewrote %d macros, want 1", n)
	}
	if !strings.Contains(out, `ac:name="drawio"`) || strings.Contains(out, "toc") {
		t.Errorf("non-diagram macro not canonicalized: %q", out)
	}
}

func TestRewriteSelfClosedMacro(t *testing.T) {
	doc := `<p>x</p><ac:structured-macro ac:name="toc" ac:schema-version="1"/><p>y</p>`
	out, n := Rewrite(doc)
	if n != 1 {
		t.Fatalf("rewrote %d macros, want 1", n)
	}
	if !strings.Contains(out, `ac:macro-id="111"`) {
		t.Errorf("self-closed macro not rewritten: %q", out)
	}
}

func TestRewriteNoMacros(t *testing.T) {
	doc := `<p>plain</p>`
	out, n := Rewrite(doc)
	if n != 0 || out != doc {
		t.Errorf("Rewrite(%q) = %q, %d", doc, out, n)
	}
}

func TestExtractOrderMatchesDiscovery(t *testing.T) {
	doc := `<p>intro</p>` + mermaidMacro("graph TD; A--&gt;B") + mermaidMacro("pie title X")
	records := Extract(doc)
	if len(records) != 2 {
		t.Fatalf("extracted %d records, want 2", len(records))
	}
	if records[0].SourceCode != "graph TD; A-->B" {
		t.Errorf("record 0 source = %q", records[0].SourceCode)
	}
	if records[0].Filename != "k-tool-diagram-1" || records[0].MacroID != "111" {
		t.Errorf("record 0 identity = %s/%s", records[0].Filename, records[0].MacroID)
	}
	if records[1].Filename != "k-tool-diagram-2" || records[1].MacroID != "112" {
		t.Errorf("record 1 identity = %s/%s", records[1].Filename, records[1].MacroID)
	}
}

func TestExtractIndependentOfRewrite(t *testing.T) {
	doc := mermaidMacro("graph LR")
	rewritten, _ := Rewrite(doc)

	// Extraction must run against the original document; the rewritten one
	// no longer carries diagram source.
	if got := Extract(doc); len(got) != 1 {
		t.Errorf("original: extracted %d, want 1", len(got))
	}
	if got := Extract(rewritten); len(got) != 0 {
		t.Errorf("rewritten: extracted %d, want 0", len(got))
	}
}

func TestExtractSkipsEmptyCode(t *testing.T) {
	doc := mermaidMacro("   ") + mermaidMacro("graph TD")
	records := Extract(doc)
	if len(records) != 1 {
		t.Fatalf("extracted %d records, want 1", len(records))
	}
	// The empty macro still consumed a number, so the surviving record is
	// the second discovery.
	if records[0].Filename != "k-tool-diagram-2" {
		t.Errorf("filename = %q, want k-tool-diagram-2", records[0].Filename)
	}
}

func TestExtractCDATABody(t *testing.T) {
	doc := `<ac:structured-macro ac:name="mermaid">` +
		`<ac:plain-text-body><![CDATA[  graph TD; A-->B  ]]></ac:plain-text-body>` +
		`</ac:structured-macro>`
	records := Extract(doc)
	if len(records) != 1 {
		t.Fatalf("extracted %d records, want 1", len(records))
	}
	if records[0].SourceCode != "graph TD; A-->B" {
		t.Errorf("source = %q", records[0].SourceCode)
	}
}

func TestExtractIgnoresOtherKinds(t *testing.T) {
	doc := `<ac:structured-macro ac:name="code"><ac:parameter ac:name="code">not a diagram</ac:parameter></ac:structured-macro>`
	if got := Extract(doc); len(got) != 0 {
		t.Errorf("extracted %d records from non-diagram macro", len(got))
	}
}
