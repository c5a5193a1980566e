package menu

import (
	"fmt"
	"io"
	"strings"
)

// Display shows rendered rows.
type Display interface {
	Show(lines []string) error
}

// TextDisplay writes each frame to W framed like a character LCD.
type TextDisplay struct {
	W io.Writer
}

// Show writes lines to W.
func (d TextDisplay) Show(lines []string) error {
	width := 0
	for _, l := range lines {
		width = max(width, len([]rune(l)))
	}
	border := "+" + strings.Repeat("-", width) + "+"

	var b strings.Builder
	b.WriteString(border + "\n")
	for _, l := range lines {
		b.WriteString("|" + l + "|\n")
	}
	b.WriteString(border + "\n")
	if _, err := io.WriteString(d.W, b.String()); err != nil {
		return fmt.Errorf("display: %w", err)
	}
	return nil
}
