package chat

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var fencedBlock = regexp.MustCompile("(?s)```(.*?)```")

// ExtractCodeBlocks returns the fenced blocks of a markdown reply, with a
// language tag on the opening line removed.
func ExtractCodeBlocks(markdown string) []string {
	matches := fencedBlock.FindAllStringSubmatch(markdown, -1)
	blocks := make([]string, 0, len(matches))
	for _, m := range matches {
		block := m[1]
		if first, rest, found := strings.Cut(block, "\n"); found && isAlpha(first) {
			block = rest
		}
		blocks = append(blocks, strings.TrimSpace(block))
	}
	return blocks
}

func isAlpha(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// ParseIndices reads "1,3" or "1 3". An empty argument selects block 1.
func ParseIndices(arg string) ([]int, error) {
	fields := strings.FieldsFunc(arg, func(r rune) bool { return r == ',' || unicode.IsSpace(r) })
	if len(fields) == 0 {
		return []int{1}, nil
	}
	out := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("/copy expects block numbers like 1,2: %q", f)
		}
		out = append(out, n)
	}
	return out, nil
}

// SelectBlocks joins the 1-based blocks with a blank line, ignoring
// indices out of range.
func SelectBlocks(blocks []string, indices []int) string {
	var picked []string
	for _, i := range indices {
		if i >= 1 && i <= len(blocks) {
			picked = append(picked, blocks[i-1])
		}
	}
	return strings.Join(picked, "\n\n")
}
