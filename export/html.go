// ABOUTME: Renders the Markdown export as a standalone HTML document via goldmark.
// ABOUTME: Raw HTML in note content is omitted by goldmark's defaults, blocking markup injection.
package export

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/2389-research/huddle/core"
)

// ExportHTML renders the board's Markdown export into a minimal standalone
// HTML page.
func ExportHTML(snap core.Snapshot) (string, error) {
	md := goldmark.New()
	var body bytes.Buffer
	if err := md.Convert([]byte(ExportMarkdown(snap)), &body); err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}

	var out strings.Builder
	out.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&out, "<title>%s</title>\n", html.EscapeString(snap.Board.Title))
	out.WriteString("</head>\n<body>\n")
	out.Write(body.Bytes())
	out.WriteString("</body>\n</html>\n")
	return out.String(), nil
}
