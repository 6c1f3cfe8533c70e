package chunker

import (
	"strings"
	"testing"

	"github.com/akolanti/mirage/internal/domain/commonModels"
)

func normalize(s string) string {
	return strings.Join(strings.Fields(s), "")
}

func TestSplit_SingleChunkWhenBudgetAllows(t *testing.T) {
	c := New(100, WordCounter{})
	doc := commonModels.Document{SourceID: "doc1", Text: "Sentence one. Sentence two. Sentence three."}

	chunks := c.Split(doc)

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d: %v", len(chunks), chunks)
	}
	if chunks[0].SourceID != "doc1" {
		t.Errorf("source = %s, want doc1", chunks[0].SourceID)
	}
	if chunks[0].Text != "Sentence one. Sentence two. Sentence three." {
		t.Errorf("unexpected chunk text %q", chunks[0].Text)
	}
}

func TestSplit_RespectsBudget(t *testing.T) {
	text := "Alpha beta gamma. Delta epsilon. Zeta eta theta iota! Kappa lambda? Mu nu xi omicron pi. Rho."
	tests := []struct {
		name      string
		maxTokens int
	}{
		{"tiny", 2},
		{"small", 4},
		{"medium", 7},
		{"large", 50},
	}
	counter := WordCounter{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := New(tt.maxTokens, counter).Split(commonModels.Document{SourceID: "s", Text: text})
			for _, ch := range chunks {
				n := counter.Count(ch.Text)
				if n > tt.maxTokens && len(splitSentences(ch.Text)) != 1 {
					t.Errorf("chunk %q has %d tokens over budget %d and is not a single sentence", ch.Text, n, tt.maxTokens)
				}
			}
		})
	}
}

func TestSplit_CoverageIsLossless(t *testing.T) {
	text := "First line here.\n\nSecond paragraph! Does it work?   Yes.\tTabs too. trailing words"
	for _, max := range []int{1, 3, 5, 1000} {
		chunks := New(max, WordCounter{}).Split(commonModels.Document{SourceID: "s", Text: text})
		var parts []string
		for _, ch := range chunks {
			parts = append(parts, ch.Text)
		}
		if normalize(strings.Join(parts, " ")) != normalize(text) {
			t.Errorf("max=%d: coverage lost\n got %q\nwant %q", max, strings.Join(parts, " "), text)
		}
	}
}

func TestSplit_OversizedSentenceIsOwnChunk(t *testing.T) {
	long := "one two three four five six seven eight nine ten."
	text := "Short. " + long + " Tail."
	chunks := New(3, WordCounter{}).Split(commonModels.Document{SourceID: "s", Text: text})

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d: %+v", len(chunks), chunks)
	}
	if chunks[1].Text != long {
		t.Errorf("oversized sentence split or merged: %q", chunks[1].Text)
	}
}

func TestSplit_EmptyText(t *testing.T) {
	if chunks := New(10, WordCounter{}).Split(commonModels.Document{SourceID: "s", Text: "  \n "}); len(chunks) != 0 {
		t.Errorf("expected no chunks, got %v", chunks)
	}
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"A. B.", []string{"A.", "B."}},
		{"v1.2 is out. Next", []string{"v1.2 is out.", "Next"}},
		{"Why? Because!\nDone", []string{"Why?", "Because!", "Done"}},
		{"no terminal punctuation", []string{"no terminal punctuation"}},
	}
	for _, tt := range tests {
		got := splitSentences(tt.in)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("splitSentences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestApproxCounter(t *testing.T) {
	if got := (ApproxCounter{}).Count("one two three"); got != 4 {
		t.Errorf("ApproxCounter = %d, want 4", got)
	}
	if got := (ApproxCounter{}).Count(""); got != 0 {
		t.Errorf("ApproxCounter empty = %d", got)
	}
}
