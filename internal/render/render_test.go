package render

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleReport = `# Quantum Radar

## Key Findings
- [Primary study](https://a.example/study) shows promise
- Detection range remains limited

## Conclusions
Further research <needed>.
`

func TestRender_WritesMarkdownAndHTML(t *testing.T) {
	dir := t.TempDir()
	r := &Renderer{Dir: dir}

	paths, err := r.Render("abc123", "Quantum Radar", sampleReport)
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	md, err := os.ReadFile(paths.Markdown)
	if err != nil {
		t.Fatalf("read markdown: %v", err)
	}
	if string(md) != sampleReport {
		t.Error("markdown output must be the report verbatim")
	}

	html, err := os.ReadFile(paths.HTML)
	if err != nil {
		t.Fatalf("read html: %v", err)
	}
	doc := string(html)
	if !strings.Contains(doc, "<h1>Quantum Radar</h1>") {
		t.Errorf("missing h1:\n%s", doc)
	}
	if !strings.Contains(doc, "<h2>Key Findings</h2>") {
		t.Errorf("missing h2:\n%s", doc)
	}
	if !strings.Contains(doc, `<a href="https://a.example/study">Primary study</a>`) {
		t.Errorf("link not rewritten:\n%s", doc)
	}
	if !strings.Contains(doc, "&lt;needed&gt;") {
		t.Errorf("raw text not escaped:\n%s", doc)
	}
	if paths.PDF != "" {
		t.Errorf("no converter configured, PDF path must be empty: %q", paths.PDF)
	}
}

func TestRender_PDFFailureKeepsEarlierOutputs(t *testing.T) {
	dir := t.TempDir()
	r := &Renderer{Dir: dir, PDFCommand: filepath.Join(dir, "no-such-converter")}

	paths, err := r.Render("abc123", "t", sampleReport)
	var perr *PersistError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *PersistError, got %v", err)
	}
	if paths.Markdown == "" || paths.HTML == "" {
		t.Errorf("markdown and html must survive a PDF failure: %+v", paths)
	}
	if _, statErr := os.Stat(paths.HTML); statErr != nil {
		t.Errorf("html file missing: %v", statErr)
	}
}

func TestBuildHTML_ListGrouping(t *testing.T) {
	doc, err := buildHTML("t", "- one\n- two\n\ntext\n")
	if err != nil {
		t.Fatalf("buildHTML: %v", err)
	}
	s := string(doc)
	if strings.Count(s, "<ul>") != 1 {
		t.Errorf("adjacent bullets must share one list:\n%s", s)
	}
	if !strings.Contains(s, "<p>text</p>") {
		t.Errorf("paragraph missing:\n%s", s)
	}
}
