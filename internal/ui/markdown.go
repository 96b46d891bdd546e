package ui

import (
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"
)

// RenderMarkdown pretty-prints a card or inbox file to stderr. Card bodies
// mix CJK and emoji, so wrap narrower than pure-ASCII prose. When the
// renderer cannot be built or fails, the raw markdown is printed instead.
func RenderMarkdown(md string) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(88),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, md)
		return
	}
	out, err := renderer.Render(md)
	if err != nil {
		fmt.Fprintln(os.Stderr, md)
		return
	}
	fmt.Fprint(os.Stderr, out)
}
