package ragpipeline

import (
	"fmt"
	"strings"
	"unicode"

	"ragengine/internal/retrieve"
)

// systemRole is the fixed assistant description in every prompt.
const systemRole = "You are a construction-project document assistant. Answer " +
	"strictly from the numbered context passages below, cite the passage " +
	"numbers you used, and say so plainly when the context does not contain " +
	"the answer. Answer in the language of the question."

// assemblePrompt builds the single prompt string in the fixed order: graph
// preamble, numbered contexts with source labels and scores under the
// character budget, the user query, and any extra context. It returns the
// prompt and the graph preamble actually used (empty when none).
func assemblePrompt(query, extraContext string, result retrieve.Result, maxContextChars, preambleChars int) (string, string) {
	var sb strings.Builder

	preamble := graphPreamble(result, preambleChars)
	if preamble != "" {
		sb.WriteString("Knowledge graph context:\n")
		sb.WriteString(preamble)
		sb.WriteString("\n\n")
	}

	sb.WriteString("Context passages:\n")
	used := 0
	n := 0
	for _, c := range result.Candidates {
		if c.Text == "" {
			continue
		}
		text := c.Text
		if used+len(text) > maxContextChars {
			remaining := maxContextChars - used
			if remaining <= 0 {
				break
			}
			text = text[:remaining]
		}
		n++
		fmt.Fprintf(&sb, "[%d] (%s, score %.4f) %s\n", n, strings.Join(c.RetrievalSources, "+"), c.FusionScore, text)
		used += len(text)
		if used >= maxContextChars {
			break
		}
	}

	sb.WriteString("\nQuestion: ")
	sb.WriteString(query)
	if extraContext != "" {
		sb.WriteString("\n\nAdditional context:\n")
		sb.WriteString(extraContext)
	}
	return sb.String(), preamble
}

// graphPreamble renders the graph knowledge injected ahead of the passages:
// the global summary when the enhancement pass produced one, otherwise the
// per-hit rendered contexts, truncated to the preamble budget.
func graphPreamble(result retrieve.Result, budget int) string {
	var parts []string
	for _, c := range result.Candidates {
		if c.GlobalGraphContext != "" {
			parts = append(parts, c.GlobalGraphContext)
			break
		}
	}
	if len(parts) == 0 {
		for _, h := range result.Graph.Hits {
			if h.Text != "" {
				parts = append(parts, h.Text)
			}
		}
	}
	if len(parts) == 0 {
		return ""
	}
	out := strings.Join(parts, " ")
	if len(out) > budget {
		out = out[:budget]
	}
	return out
}

// hasHan reports whether the query contains CJK ideographs, which selects
// the Chinese fallback sentences.
func hasHan(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}

// noResultFallback is the fixed language-matched sentence for empty
// retrieval.
func noResultFallback(query string) string {
	if hasHan(query) {
		return "未找到相关内容，请尝试换一种方式提问。"
	}
	return "No relevant content was found. Please try rephrasing your question."
}

// unavailableFallback is the fixed sentence for an LLM that stayed down
// through every retry.
func unavailableFallback(query string) string {
	if hasHan(query) {
		return "系统暂时不可用，请稍后再试。"
	}
	return "The system is temporarily unavailable. Please try again later."
}
