package chat

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var (
	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	sourcesStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("12")).
			Padding(0, 1)
)

// TerminalRenderer streams answers as plain text and styles everything
// around them. With styling off it writes bare text, for pipes.
type TerminalRenderer struct {
	mu     sync.Mutex
	out    io.Writer
	styled bool
}

func NewTerminalRenderer(out io.Writer, styled bool) *TerminalRenderer {
	return &TerminalRenderer{out: out, styled: styled}
}

func (r *TerminalRenderer) style(s lipgloss.Style, text string) string {
	if !r.styled {
		return text
	}
	return s.Render(text)
}

func (r *TerminalRenderer) write(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = io.WriteString(r.out, s)
}

func (r *TerminalRenderer) Prompt() {
	r.write(r.style(promptStyle, "Chat with Mirage") + ": ")
}

func (r *TerminalRenderer) BeginAnswer() {
	r.write("\n" + r.style(titleStyle, "Assistant") + "\n")
}

func (r *TerminalRenderer) Fragment(text string) {
	r.write(text)
}

func (r *TerminalRenderer) EndAnswer(cited []string) {
	r.write("\n\n")
	if len(cited) == 0 {
		return
	}
	body := "Relevant sources:\n" + strings.Join(cited, "\n")
	if r.styled {
		body = sourcesStyle.Render(body)
	}
	r.write(body + "\n\n")
}

func (r *TerminalRenderer) Info(msg string) {
	r.write(r.style(infoStyle, msg) + "\n")
}

func (r *TerminalRenderer) Warn(msg string) {
	r.write(r.style(warnStyle, "warning: "+msg) + "\n")
}

func (r *TerminalRenderer) Error(err error) {
	r.write(ErrorLine(err, r.styled) + "\n")
}

// ErrorLine is the marked one-line form errors are shown in.
func ErrorLine(err error, styled bool) string {
	line := fmt.Sprintf("Error: %v", err)
	if !styled {
		return line
	}
	return errorStyle.Render(line)
}
