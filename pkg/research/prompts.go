package research

import (
	"fmt"
	"slices"
	"strings"
)

const (
	deconstructSystemPrompt = `You are an expert query deconstructor.
Break down a complex user query into smaller, manageable and specific sub-queries that can be researched independently.
Generate at most %d sub-queries.`

	planSystemPrompt = `You are an expert research planner.
Given a main query, deconstructed sub-queries and retrieved information, create a plan to synthesize this information and answer the main query.`

	summarySystemPrompt = `You are an expert summarizer.
Create a concise and coherent summary of the provided text. Focus on the key information and present it clearly.`

	excerptSystemPrompt = `You condense research notes.
Rewrite the excerpt as short factual notes, keeping names, numbers and sources.`
)

// renderRetrieved formats retrieved results for a prompt, keeping the order
// of sub-queries.
func renderRetrieved(subQueries []string, info map[string][]RetrievalResult) string {
	var sb strings.Builder
	for _, q := range orderedKeys(subQueries, info) {
		results := info[q]
		sb.WriteString(fmt.Sprintf("## Information regarding '%s'\n", q))
		if len(results) == 0 {
			sb.WriteString("(no results)\n\n")
			continue
		}
		for _, r := range results {
			sb.WriteString(fmt.Sprintf("- %s (%s)\n  %s\n", r.Title, r.URL, r.Snippet))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// orderedKeys returns the sub-queries in decomposition order followed by any
// extra keys of info.
func orderedKeys(subQueries []string, info map[string][]RetrievalResult) []string {
	keys := make([]string, 0, len(info))
	seen := make(map[string]bool, len(info))
	for _, q := range subQueries {
		if _, ok := info[q]; ok && !seen[q] {
			keys = append(keys, q)
			seen[q] = true
		}
	}
	var extra []string
	for q := range info {
		if !seen[q] {
			extra = append(extra, q)
		}
	}
	slices.Sort(extra)
	return append(keys, extra...)
}
