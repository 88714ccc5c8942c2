package highlight

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// markerAlpha is the fill opacity for highlight markers.
const markerAlpha = 0.4

const negativeStyle = "opacity: 0.3; text-decoration: line-through; color: #888;"

// ApplyMatches replaces textNode with an alternating sequence of plain text
// runs and marker spans, one marker per match. Matches must be
// non-overlapping and sorted by start offset (the matcher guarantees both).
// The concatenated text content of the replacement equals the original
// node's text exactly.
func ApplyMatches(textNode *html.Node, matches []MatchSpan) {
	parent := textNode.Parent
	if parent == nil || len(matches) == 0 {
		return
	}

	text := textNode.Data
	last := 0
	for _, m := range matches {
		if m.Start < last || m.End > len(text) {
			continue // defect in caller input; keep the rest intact
		}
		if m.Start > last {
			parent.InsertBefore(newText(text[last:m.Start]), textNode)
		}
		parent.InsertBefore(newMarker(m, text[m.Start:m.End]), textNode)
		last = m.End
	}
	if last < len(text) {
		parent.InsertBefore(newText(text[last:]), textNode)
	}
	parent.RemoveChild(textNode)
}

// RemoveAllMarkers unwinds every marker element under root back to a plain
// text node holding its current text content, then merges adjacent text
// nodes. Running it on a tree without markers is a no-op, and the rewrite
// pipeline calls it before every apply pass so repeated scans never
// accumulate wrapper depth.
func RemoveAllMarkers(root *html.Node) {
	if root == nil {
		return
	}
	for _, marker := range collectMarkers(root) {
		parent := marker.Parent
		if parent == nil {
			continue
		}
		parent.InsertBefore(newText(textContent(marker)), marker)
		parent.RemoveChild(marker)
		mergeTextChildren(parent)
	}
}

// collectMarkers snapshots all marker elements under root before any
// mutation begins.
func collectMarkers(root *html.Node) []*html.Node {
	var markers []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if IsMarker(n) {
			markers = append(markers, n)
			return // markers never nest
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return markers
}

// mergeTextChildren merges runs of adjacent text node children of parent
// into single nodes, the equivalent of DOM Node.normalize.
func mergeTextChildren(parent *html.Node) {
	c := parent.FirstChild
	for c != nil {
		next := c.NextSibling
		if c.Type == html.TextNode && next != nil && next.Type == html.TextNode {
			c.Data += next.Data
			parent.RemoveChild(next)
			continue // re-check c against its new sibling
		}
		c = next
	}
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(textContent(c))
	}
	return sb.String()
}

func newText(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

func newMarker(m MatchSpan, text string) *html.Node {
	class := MarkerClass
	style := fmt.Sprintf(
		"background-color: %s; border-radius: 2px; padding: 1px 2px; margin: 0 1px;",
		HexToRGBA(m.Color, markerAlpha))
	if m.Kind == KindNegative {
		class = NegativeClass
		style = negativeStyle
	}

	span := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Span,
		Data:     "span",
		Attr: []html.Attribute{
			{Key: "class", Val: class},
			{Key: "style", Val: style},
		},
	}
	span.AppendChild(newText(text))
	return span
}

// HexToRGBA converts a #rrggbb color (leading "#" optional) to an rgba()
// string at the given alpha. Anything that does not parse as six hex digits
// is passed through unchanged: an unrecognized color is a literal for the
// caller to use as-is, never an error.
func HexToRGBA(hex string, alpha float64) string {
	h := strings.TrimPrefix(hex, "#")
	if len(h) != 6 {
		return hex
	}
	r, err1 := strconv.ParseUint(h[0:2], 16, 8)
	g, err2 := strconv.ParseUint(h[2:4], 16, 8)
	b, err3 := strconv.ParseUint(h[4:6], 16, 8)
	if err1 != nil || err2 != nil || err3 != nil {
		return hex
	}
	return fmt.Sprintf("rgba(%d, %d, %d, %s)", r, g, b,
		strconv.FormatFloat(alpha, 'g', -1, 64))
}
