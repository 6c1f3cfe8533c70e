package assembler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/akolanti/mirage/internal/config"
	"github.com/akolanti/mirage/internal/domain/commonModels"
)

// Rank orders hits by descending score, keeping input order for ties, and
// keeps at most topN. The input slice is not modified.
func Rank(hits []commonModels.SearchHit, topN int) []commonModels.SearchHit {
	if topN <= 0 {
		topN = config.DefaultTopN
	}
	ranked := make([]commonModels.SearchHit, len(hits))
	copy(ranked, hits)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	return ranked
}

// BuildContext renders ranked hits as "source: text" blocks separated by a
// blank line, and returns the sources cited in first-seen order.
func BuildContext(ranked []commonModels.SearchHit) (string, []string) {
	blocks := make([]string, 0, len(ranked))
	cited := make([]string, 0, len(ranked))
	seen := make(map[string]bool, len(ranked))
	for _, h := range ranked {
		blocks = append(blocks, fmt.Sprintf("%s: %s", h.Payload.Source, h.Payload.Data))
		if !seen[h.Payload.Source] {
			seen[h.Payload.Source] = true
			cited = append(cited, h.Payload.Source)
		}
	}
	return strings.Join(blocks, "\n\n"), cited
}

// Verbatim renders transient documents that were small enough to skip
// vector search.
func Verbatim(docs []commonModels.Document) (string, []string) {
	blocks := make([]string, 0, len(docs))
	cited := make([]string, 0, len(docs))
	seen := map[string]bool{}
	for _, d := range docs {
		blocks = append(blocks, fmt.Sprintf("%s: %s", d.SourceID, d.Text))
		if !seen[d.SourceID] {
			seen[d.SourceID] = true
			cited = append(cited, d.SourceID)
		}
	}
	return strings.Join(blocks, "\n\n"), cited
}

// Merge joins two rendered contexts and their citations, dropping repeats.
func Merge(aText string, aCited []string, bText string, bCited []string) (string, []string) {
	var text string
	switch {
	case aText == "":
		text = bText
	case bText == "":
		text = aText
	default:
		text = aText + "\n\n" + bText
	}
	cited := make([]string, 0, len(aCited)+len(bCited))
	seen := map[string]bool{}
	for _, s := range append(append([]string{}, aCited...), bCited...) {
		if !seen[s] {
			seen[s] = true
			cited = append(cited, s)
		}
	}
	return text, cited
}

const ragTemplate = `Use the following context to answer the question at the end.
If the context is relevant, answer only from it and cite the sources you used by name.
If the context is not relevant to the question, ignore it and answer normally without citing anything.

Sources: %s

Context:
%s

Question: %s`

const chatTemplate = `Here is some context that may help with the next message.
Use it when it is relevant and mention which source it came from; otherwise answer normally.

Context:
%s

Message: %s`

// RAGPrompt builds the user turn for a question over the given context.
func RAGPrompt(contextText string, cited []string, question string) string {
	if strings.TrimSpace(contextText) == "" {
		return question
	}
	return fmt.Sprintf(ragTemplate, strings.Join(cited, ", "), contextText, question)
}

// ChatPrompt is the lighter template used for follow-up turns.
func ChatPrompt(contextText, message string) string {
	if strings.TrimSpace(contextText) == "" {
		return message
	}
	return fmt.Sprintf(chatTemplate, contextText, message)
}
