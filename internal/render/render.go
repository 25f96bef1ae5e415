// Package render is the persist boundary: it writes a finished report to disk
// as Markdown and a styled HTML document, with optional PDF export through an
// external converter.
package render

import (
	"fmt"
	"html/template"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

// Paths names the files a render produced. PDF is empty when no converter is
// configured.
type Paths struct {
	Markdown string
	HTML     string
	PDF      string
}

// PersistError reports a failed export. The run has already succeeded when
// persistence happens, so this error is advisory, never terminal.
type PersistError struct {
	Path string
	Err  error
}

func (e *PersistError) Error() string { return fmt.Sprintf("persist %s: %v", e.Path, e.Err) }
func (e *PersistError) Unwrap() error { return e.Err }

// Renderer writes reports under Dir. PDFCommand, when non-empty, names an
// external HTML-to-PDF converter invoked as `cmd <html> <pdf>`
// (wkhtmltopdf-compatible).
type Renderer struct {
	Dir        string
	PDFCommand string
}

// Render writes report_<id>.md and report_<id>.html, plus report_<id>.pdf when
// a converter is configured. A Markdown write failure is fatal for the render;
// HTML and PDF failures are reported but leave earlier outputs in place.
func (r *Renderer) Render(id, topic, markdown string) (Paths, error) {
	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return Paths{}, &PersistError{Path: r.Dir, Err: err}
	}

	var paths Paths
	paths.Markdown = filepath.Join(r.Dir, fmt.Sprintf("report_%s.md", id))
	if err := os.WriteFile(paths.Markdown, []byte(markdown), 0o644); err != nil {
		return Paths{}, &PersistError{Path: paths.Markdown, Err: err}
	}

	htmlPath := filepath.Join(r.Dir, fmt.Sprintf("report_%s.html", id))
	doc, err := buildHTML(topic, markdown)
	if err != nil {
		return paths, &PersistError{Path: htmlPath, Err: err}
	}
	if err := os.WriteFile(htmlPath, doc, 0o644); err != nil {
		return paths, &PersistError{Path: htmlPath, Err: err}
	}
	paths.HTML = htmlPath

	if r.PDFCommand != "" {
		pdfPath := filepath.Join(r.Dir, fmt.Sprintf("report_%s.pdf", id))
		cmd := exec.Command(r.PDFCommand, htmlPath, pdfPath)
		if out, err := cmd.CombinedOutput(); err != nil {
			return paths, &PersistError{Path: pdfPath,
				Err: fmt.Errorf("%s: %v: %s", r.PDFCommand, err, strings.TrimSpace(string(out)))}
		}
		paths.PDF = pdfPath
	}

	return paths, nil
}

const htmlTmpl = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
  body { font-family: sans-serif; margin: 40px auto; max-width: 800px; color: #333; line-height: 1.5; }
  h1 { border-bottom: 2px solid #555; padding-bottom: 8px; }
  h2 { border-bottom: 1px solid #ddd; padding-bottom: 4px; margin-top: 32px; }
  a { color: #0a62a6; }
  li { margin: 4px 0; }
</style>
</head>
<body>
{{.Body}}
</body>
</html>
`

var linkRe = regexp.MustCompile(`\[([^\]]+)\]\(([^)\s]+)\)`)

// buildHTML converts the report's Markdown subset (headings, bullets, links,
// paragraphs) into a styled standalone document. Text is HTML-escaped before
// markup is applied.
func buildHTML(title string, markdown string) ([]byte, error) {
	var body strings.Builder
	inList := false
	closeList := func() {
		if inList {
			body.WriteString("</ul>\n")
			inList = false
		}
	}

	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			closeList()
		case strings.HasPrefix(trimmed, "### "):
			closeList()
			fmt.Fprintf(&body, "<h3>%s</h3>\n", inline(strings.TrimPrefix(trimmed, "### ")))
		case strings.HasPrefix(trimmed, "## "):
			closeList()
			fmt.Fprintf(&body, "<h2>%s</h2>\n", inline(strings.TrimPrefix(trimmed, "## ")))
		case strings.HasPrefix(trimmed, "# "):
			closeList()
			fmt.Fprintf(&body, "<h1>%s</h1>\n", inline(strings.TrimPrefix(trimmed, "# ")))
		case strings.HasPrefix(trimmed, "- "):
			if !inList {
				body.WriteString("<ul>\n")
				inList = true
			}
			fmt.Fprintf(&body, "<li>%s</li>\n", inline(strings.TrimPrefix(trimmed, "- ")))
		default:
			closeList()
			fmt.Fprintf(&body, "<p>%s</p>\n", inline(trimmed))
		}
	}
	closeList()

	t, err := template.New("report").Parse(htmlTmpl)
	if err != nil {
		return nil, fmt.Errorf("parse report template: %w", err)
	}

	var out strings.Builder
	err = t.Execute(&out, struct {
		Title string
		Body  template.HTML
	}{Title: title, Body: template.HTML(body.String())})
	if err != nil {
		return nil, fmt.Errorf("render report template: %w", err)
	}
	return []byte(out.String()), nil
}

// inline escapes a text span and rewrites [text](url) links.
func inline(s string) string {
	escaped := template.HTMLEscapeString(s)
	return linkRe.ReplaceAllString(escaped, `<a href="$2">$1</a>`)
}
