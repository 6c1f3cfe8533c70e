package chunker

import (
	"strings"
	"unicode"

	"github.com/akolanti/mirage/internal/config"
	"github.com/akolanti/mirage/internal/domain/commonModels"
)

type Chunker struct {
	maxTokens int
	counter   TokenCounter
}

func New(maxTokens int, counter TokenCounter) *Chunker {
	if maxTokens <= 0 {
		maxTokens = config.DefaultMaxChunkTokens
	}
	if counter == nil {
		counter = DefaultCounter()
	}
	return &Chunker{maxTokens: maxTokens, counter: counter}
}

func (c *Chunker) Counter() TokenCounter {
	return c.counter
}

// Split cuts a document into chunks of at most maxTokens tokens, keeping
// sentences whole. A sentence longer than the budget is its own chunk.
func (c *Chunker) Split(doc commonModels.Document) []commonModels.Chunk {
	var chunks []commonModels.Chunk
	for _, text := range c.splitText(doc.Text) {
		chunks = append(chunks, commonModels.Chunk{
			Text:     text,
			SourceID: doc.SourceID,
		})
	}
	return chunks
}

// SplitAll chunks every document in order.
func (c *Chunker) SplitAll(docs []commonModels.Document) []commonModels.Chunk {
	var all []commonModels.Chunk
	for _, d := range docs {
		all = append(all, c.Split(d)...)
	}
	return all
}

func (c *Chunker) splitText(text string) []string {
	segments := splitSentences(text)
	if len(segments) == 0 {
		return nil
	}

	var chunks []string
	var current strings.Builder
	for _, seg := range segments {
		if current.Len() == 0 {
			current.WriteString(seg)
			continue
		}
		candidate := current.String() + " " + seg
		if c.counter.Count(candidate) > c.maxTokens {
			chunks = append(chunks, current.String())
			current.Reset()
			current.WriteString(seg)
			continue
		}
		current.WriteString(" ")
		current.WriteString(seg)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// splitSentences splits after '.', '!' or '?' when followed by whitespace.
// The whitespace itself is dropped, everything else is kept verbatim.
func splitSentences(text string) []string {
	runes := []rune(text)
	var segments []string
	start := 0
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 >= len(runes) || !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if seg := strings.TrimSpace(string(runes[start : i+1])); seg != "" {
			segments = append(segments, seg)
		}
		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		start = j
		i = j - 1
	}
	if start < len(runes) {
		if seg := strings.TrimSpace(string(runes[start:])); seg != "" {
			segments = append(segments, seg)
		}
	}
	return segments
}
