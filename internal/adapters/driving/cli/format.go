package cli

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/suggest/internal/core/domain"
)

// collectSuggestions lists the suggestions of preds, restricted to one document
// when doc is set. Unless all is set only offered suggestions are returned.
func collectSuggestions(preds *domain.Predictions, doc string, all bool) []domain.Suggestion {
	docs := preds.Documents()
	if doc != "" {
		docs = []string{doc}
	}
	var out []domain.Suggestion
	for _, d := range docs {
		if all {
			out = append(out, preds.ForDocument(d)...)
		} else {
			out = append(out, preds.Offered(d)...)
		}
	}
	return out
}

func formatScore(score float64) string {
	if score == domain.NoScore {
		return "  -  "
	}
	return fmt.Sprintf("%.3f", score)
}

// formatTarget describes where a suggestion sits.
func formatTarget(s *domain.Suggestion) string {
	if s.Kind == domain.KindRelation {
		return fmt.Sprintf("%s -> %s", s.Source, s.Target)
	}
	if s.ExistingAnnotation != "" {
		return fmt.Sprintf("%s (%s)", s.Span, s.ExistingAnnotation)
	}
	return s.Span.String()
}

// printSuggestions prints a numbered suggestion table grouped by document.
func printSuggestions(cmd *cobra.Command, preds *domain.Predictions, list []domain.Suggestion) {
	if len(list) == 0 {
		cmd.Println(mutedStyle.Render("No suggestions."))
		return
	}

	current := ""
	for i := range list {
		s := &list[i]
		if s.Document != current {
			current = s.Document
			cmd.Println(titleStyle.Render(current))
		}
		line := fmt.Sprintf("  [%d] %-9s %-8s %s  %s=%s  %s",
			i+1, formatTarget(s), s.Kind, formatScore(s.Score),
			s.Feature, labelStyle.Render(s.Label), mutedStyle.Render(s.RecommenderName))
		state, reason := preds.State(s.ID)
		switch {
		case state != domain.StatePending:
			line += " " + mutedStyle.Render("("+state.String()+")")
			if reason != "" {
				line += " " + mutedStyle.Render(reason)
			}
		case !s.Visible:
			line += " " + warningStyle.Render("(hidden: "+s.HideReasons.String()+")")
		}
		cmd.Println(line)
	}
}

// contextSnippet returns about width bytes of text around span with the
// span itself highlighted. Offsets are byte offsets.
func contextSnippet(text string, span domain.Offset, width int) string {
	begin, end := clamp(span.Begin, 0, len(text)), clamp(span.End, 0, len(text))
	if end < begin {
		begin, end = end, begin
	}

	room := width - (end - begin)
	if room < 0 {
		room = 0
	}
	from := clamp(begin-room/2, 0, len(text))
	for from > 0 && !utf8.RuneStart(text[from]) {
		from--
	}
	to := clamp(end+room/2, 0, len(text))
	for to < len(text) && !utf8.RuneStart(text[to]) {
		to++
	}

	var b strings.Builder
	if from > 0 {
		b.WriteString("...")
	}
	b.WriteString(flatten(text[from:begin]))
	b.WriteString(markStyle.Render(flatten(text[begin:end])))
	b.WriteString(flatten(text[end:to]))
	if to < len(text) {
		b.WriteString("...")
	}
	return b.String()
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "\t", " ")

// flatten keeps a snippet on one line.
func flatten(s string) string {
	return lineBreaks.Replace(s)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
