// Package htmltext converts between the hub's HTML descriptions and the
// tracker's plain-text fields.
package htmltext

import (
	"strings"

	"golang.org/x/net/html"
)

// blockTags are elements that introduce a line break when flattening.
var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"blockquote": true, "pre": true,
}

// ToPlainText flattens an HTML fragment into plain text. Block elements
// become newlines; scripts and styles are dropped. Input that is not HTML
// passes through unchanged.
func ToPlainText(s string) string {
	if s == "" || !strings.ContainsRune(s, '<') {
		return s
	}

	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return s
	}

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockTags[n.Data] {
			b.WriteString("\n")
		}
	}
	walk(doc)

	return collapseBlankRuns(strings.TrimSpace(b.String()))
}

// FromPlainText wraps plain text as minimal HTML for the hub: entities
// escaped, newlines rendered as <br />.
func FromPlainText(s string) string {
	if s == "" {
		return ""
	}
	escaped := html.EscapeString(s)
	return strings.ReplaceAll(escaped, "\n", "<br />")
}

// collapseBlankRuns squeezes runs of blank lines down to one.
func collapseBlankRuns(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		trimmed := strings.TrimRight(line, " \t")
		if trimmed == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, trimmed)
	}
	return strings.Join(out, "\n")
}
