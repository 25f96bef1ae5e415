package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/FranksOps/scout/internal/fetch"
)

// BuildDraft produces the degraded-mode report used when no source content
// was acquired (or the model is configured off). It summarizes what discovery
// and fetching did find, flags the report as incomplete, and still reads like
// a deliverable rather than an error page.
func BuildDraft(topic string, corpus []fetch.Result) string {
	if topic == "" {
		topic = "Research Report"
	}

	okCount := fetch.CountOK(corpus)
	domains := map[string]int{}
	for _, r := range corpus {
		if d := r.Source.Domain; d != "" {
			domains[d]++
		}
	}
	domText := "no usable sources"
	if len(domains) > 0 {
		type dc struct {
			dom string
			n   int
		}
		sorted := make([]dc, 0, len(domains))
		for d, n := range domains {
			sorted = append(sorted, dc{d, n})
		}
		sort.Slice(sorted, func(i, j int) bool {
			if sorted[i].n != sorted[j].n {
				return sorted[i].n > sorted[j].n
			}
			return sorted[i].dom < sorted[j].dom
		})
		if len(sorted) > 8 {
			sorted = sorted[:8]
		}
		parts := make([]string, len(sorted))
		for i, s := range sorted {
			parts[i] = fmt.Sprintf("%s×%d", s.dom, s.n)
		}
		domText = strings.Join(parts, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", topic)

	b.WriteString("## Executive Summary\n")
	fmt.Fprintf(&b, "- Draft report: %d of %d candidate sources yielded readable content; findings below are limited to discovery metadata.\n", okCount, len(corpus))
	fmt.Fprintf(&b, "- Source distribution: %s.\n\n", domText)

	b.WriteString("## Source Overview\n")
	fmt.Fprintf(&b, "- Candidates discovered: %d\n", len(corpus))
	fmt.Fprintf(&b, "- Content extracted: %d\n", okCount)
	fmt.Fprintf(&b, "- Source distribution: %s\n\n", domText)

	if okCount > 0 {
		b.WriteString("## Key Findings\n")
		for _, r := range corpus {
			if !r.OK() {
				continue
			}
			title := r.Page.Title
			if title == "" {
				title = r.Source.Title
			}
			if title == "" {
				title = "Untitled"
			}
			snippet := strings.ReplaceAll(strings.TrimSpace(r.Page.Text), "\n", " ")
			if len(snippet) > 180 {
				snippet = truncate(snippet, 180) + "…"
			}
			fmt.Fprintf(&b, "- [%s](%s) — %s\n", title, r.Source.URL, r.Source.Domain)
			if snippet != "" {
				fmt.Fprintf(&b, "  Extract: %s\n", snippet)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("## Recommendations\n")
	b.WriteString("- Treat this draft as provisional; the evidence base is incomplete.\n")
	b.WriteString("- Re-run the analysis later or with adjusted topic wording to improve source coverage.\n")
	b.WriteString("- Verify any conclusion against primary sources before acting on it.\n\n")

	b.WriteString("## References\n")
	if len(corpus) == 0 {
		b.WriteString("- No candidate sources were discovered for this topic.\n")
	}
	for _, r := range corpus {
		title := r.Source.Title
		if r.OK() && r.Page.Title != "" {
			title = r.Page.Title
		}
		if title == "" {
			title = r.Source.Domain
		}
		if title == "" {
			title = "source"
		}
		fmt.Fprintf(&b, "- [%s](%s) — %s\n", title, r.Source.URL, r.Source.Domain)
	}
	b.WriteString("\n")

	return b.String()
}

// draftChunks splits a draft report into its section blocks so degraded mode
// uses the same chunked-emission contract as full generation.
func draftChunks(md string) []string {
	var chunks []string
	var current strings.Builder
	for _, line := range strings.SplitAfter(md, "\n") {
		if strings.HasPrefix(line, "## ") && current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}
