package present

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/charmbracelet/glamour"
)

const transcriptTabWidth = 4

// NewMarkdownRenderer returns the glamour renderer used for answers, styled
// from GLAMOUR_STYLE and wrapped at wordWrap columns.
func NewMarkdownRenderer(wordWrap int) (*glamour.TermRenderer, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithEnvironmentConfig(),
		glamour.WithWordWrap(wordWrap),
	)
	if err != nil {
		return nil, fmt.Errorf("new markdown renderer: %w", err)
	}
	return r, nil
}

// RenderTranscript formats the chat transcript printed after the chat
// program exits, matching how the chat view showed the answers.
func RenderTranscript(transcript string, wordWrap int) (string, error) {
	r, err := NewMarkdownRenderer(wordWrap)
	if err != nil {
		return "", err
	}
	out, err := r.Render(transcript)
	if err != nil {
		return "", fmt.Errorf("render transcript: %w", err)
	}
	out = strings.ReplaceAll(strings.TrimRightFunc(out, unicode.IsSpace), "\t", strings.Repeat(" ", transcriptTabWidth))
	return out + "\n", nil
}
