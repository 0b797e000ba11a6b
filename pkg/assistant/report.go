package assistant

import (
	"fmt"
	"slices"
	"strings"

	"github.com/mikeboe/research-advisor/pkg/research"
)

// FormatReport renders a research state as markdown: summary, key points,
// plan and the sources per sub-query. Missing parts are left out; an error is
// reported at the end.
func FormatReport(state research.ResearchState) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# Research: %s\n", state.OriginalQuery))

	if state.Summary != nil {
		sb.WriteString("\n## Summary\n\n")
		sb.WriteString(state.Summary.SummaryText)
		sb.WriteString("\n")
		if len(state.Summary.KeyPoints) > 0 {
			sb.WriteString("\n### Key Points\n\n")
			for _, p := range state.Summary.KeyPoints {
				sb.WriteString("- " + p + "\n")
			}
		}
	}

	if state.Plan != nil {
		sb.WriteString("\n## Research Plan\n\n")
		for i, step := range state.Plan.Steps {
			sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, step))
		}
		if len(state.Plan.SynthesisQuestions) > 0 {
			sb.WriteString("\n### Synthesis Questions\n\n")
			for _, q := range state.Plan.SynthesisQuestions {
				sb.WriteString("- " + q + "\n")
			}
		}
	}

	if len(state.RetrievedInfo) > 0 {
		sb.WriteString("\n## Sources\n")
		// Sub-query order, then any keys not in SubQueries.
		keys := slices.Clone(state.SubQueries)
		var extra []string
		for k := range state.RetrievedInfo {
			if !slices.Contains(keys, k) {
				extra = append(extra, k)
			}
		}
		slices.Sort(extra)
		keys = append(keys, extra...)

		for _, q := range keys {
			results, ok := state.RetrievedInfo[q]
			if !ok {
				continue
			}
			sb.WriteString(fmt.Sprintf("\n### %s\n\n", q))
			if len(results) == 0 {
				sb.WriteString("No results.\n")
				continue
			}
			for _, r := range results {
				sb.WriteString(fmt.Sprintf("- [%s](%s)\n", r.Title, r.URL))
			}
		}
	}

	if state.Error != "" {
		sb.WriteString("\n## Errors\n\n")
		sb.WriteString(state.Error)
		sb.WriteString("\n")
	}

	return sb.String()
}
