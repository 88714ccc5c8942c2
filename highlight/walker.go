package highlight

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Marker classes applied by the rewriter. Text inside either is skipped on
// subsequent passes so markers never nest.
const (
	MarkerClass   = "automarker-hl"
	NegativeClass = "automarker-neg"
)

// skipParents are element types whose text is not visible prose: scripts,
// styles and form controls.
var skipParents = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Iframe:   true,
	atom.Textarea: true,
	atom.Input:    true,
	atom.Select:   true,
}

// TextNodes walks the tree under root and returns every matchable text node.
// The result is a fully materialized snapshot: callers mutate the tree only
// after traversal has finished, so the walk can never be invalidated by its
// own rewrites.
func TextNodes(root *html.Node) []*html.Node {
	if root == nil {
		return nil
	}
	var nodes []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode && acceptText(n) {
			nodes = append(nodes, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return nodes
}

// acceptText applies the acceptance policy for one text node, in order:
// content-bearing parent, visible prose element, not already marked, not
// user-editable, non-blank content.
func acceptText(n *html.Node) bool {
	parent := n.Parent
	if parent == nil || parent.Type != html.ElementNode {
		return false
	}
	if skipParents[parent.DataAtom] {
		return false
	}
	if insideMarker(parent) {
		return false
	}
	if insideEditable(parent) {
		return false
	}
	return strings.TrimSpace(n.Data) != ""
}

// insideMarker reports whether n or any ancestor is a marker element.
func insideMarker(n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if IsMarker(n) {
			return true
		}
	}
	return false
}

// IsMarker reports whether n is a highlight or negative marker element.
func IsMarker(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	return hasClass(attr(n, "class"), MarkerClass) || hasClass(attr(n, "class"), NegativeClass)
}

// insideEditable reports whether n or any ancestor carries a contenteditable
// attribute that makes it live user input.
func insideEditable(n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		for _, a := range n.Attr {
			if a.Key == "contenteditable" && !strings.EqualFold(a.Val, "false") {
				return true
			}
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(classAttr, class string) bool {
	for _, c := range strings.Fields(classAttr) {
		if c == class {
			return true
		}
	}
	return false
}
