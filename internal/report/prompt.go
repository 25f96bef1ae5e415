// Package report turns a fetched corpus into a streamed Markdown report.
// Full mode asks the model to write from extracted evidence; draft mode is
// the first-class degraded path taken when no source content was acquired.
package report

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/FranksOps/scout/internal/fetch"
	"github.com/FranksOps/scout/internal/llm"
)

// snippetLimit caps how much article text goes into the evidence list per source.
const snippetLimit = 800

// truncate cuts s at no more than limit bytes without splitting a rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

// BuildPrompt constructs the chat messages for full-mode generation. Only
// sources with successfully extracted content appear as evidence; the model
// is told to judge from that evidence alone.
func BuildPrompt(topic string, corpus []fetch.Result) []llm.Message {
	var evidence []string
	for _, r := range corpus {
		if !r.OK() || strings.TrimSpace(r.Page.Text) == "" {
			continue
		}
		title := r.Page.Title
		if title == "" {
			title = r.Source.Title
		}
		snippet := truncate(r.Page.Text, snippetLimit)
		evidence = append(evidence, fmt.Sprintf("- Source: %s\n  URL: %s\n  Extract: %s",
			title, r.Source.URL, snippet))
	}

	system := llm.Message{
		Role: "system",
		Content: "You are a senior research analyst. Write a concise, structured " +
			"Markdown report. Base every statement only on the extracted article " +
			"evidence provided; do not invent facts and do not use unverified leads.",
	}
	user := llm.Message{
		Role: "user",
		Content: fmt.Sprintf(
			"Topic: %s\n\n"+
				"Write a structured Markdown report strictly from the evidence list below, with sections:\n"+
				"1) Overview 2) Key Findings 3) Risks and Controversies 4) Conclusions and Recommendations 5) References.\n"+
				"Cite each referenced source by its URL.\n\n"+
				"Evidence:\n%s\n",
			topic, strings.Join(evidence, "\n\n")),
	}
	return []llm.Message{system, user}
}
