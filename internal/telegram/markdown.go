package telegram

import (
	"html"
	"regexp"
)

var (
	reCodeBlock  = regexp.MustCompile("```([^`]+)```")
	reInlineCode = regexp.MustCompile("`([^`]+)`")
	reBold       = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	reItalic     = regexp.MustCompile(`\*([^*]+)\*`)
	reTag        = regexp.MustCompile(`<[^>]*>`)
)

// HTMLRenderer converts the model's basic markdown to Telegram HTML.
// It implements stream.Renderer.
type HTMLRenderer struct{}

func (HTMLRenderer) Render(text string) string {
	out := html.EscapeString(text)
	out = reCodeBlock.ReplaceAllString(out, "<pre>$1</pre>")
	out = reInlineCode.ReplaceAllString(out, "<code>$1</code>")
	out = reBold.ReplaceAllString(out, "<b>$1</b>")
	out = reItalic.ReplaceAllString(out, "<i>$1</i>")
	return out
}

// Strip removes HTML tags from rendered text for the plain-text retry.
func (HTMLRenderer) Strip(rendered string) string {
	return reTag.ReplaceAllString(rendered, "")
}
