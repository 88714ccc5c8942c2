package highlight

import (
	"bytes"
	"strings"
	"testing"

	"golang.org/x/net/html"
)

func renderDoc(t *testing.T, doc *html.Node) string {
	t.Helper()
	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		t.Fatalf("render: %v", err)
	}
	return buf.String()
}

func firstTextNode(t *testing.T, doc *html.Node) *html.Node {
	t.Helper()
	nodes := TextNodes(doc)
	if len(nodes) == 0 {
		t.Fatal("no text nodes found")
	}
	return nodes[0]
}

func TestApplyMatchesContentPreservation(t *testing.T) {
	doc := parseDoc(t, "<html><body><p>the quick brown fox</p></body></html>")
	node := firstTextNode(t, doc)
	parent := node.Parent
	original := node.Data

	matches := FindMatches(original,
		[]KeywordSlot{{Keyword: "quick", Color: "#ffee58"}},
		[]string{"fox"})
	ApplyMatches(node, matches)

	if got := textContent(parent); got != original {
		t.Fatalf("text content changed:\n got %q\nwant %q", got, original)
	}
}

func TestApplyMatchesMarkerStyles(t *testing.T) {
	doc := parseDoc(t, "<html><body><p>alpha beta</p></body></html>")
	node := firstTextNode(t, doc)

	ApplyMatches(node, FindMatches(node.Data,
		[]KeywordSlot{{Keyword: "alpha", Color: "#ffee58"}},
		[]string{"beta"}))

	out := renderDoc(t, doc)
	if !strings.Contains(out, `class="automarker-hl"`) {
		t.Errorf("highlight marker missing: %s", out)
	}
	if !strings.Contains(out, "background-color: rgba(255, 238, 88, 0.4)") {
		t.Errorf("highlight fill missing: %s", out)
	}
	if !strings.Contains(out, `class="automarker-neg"`) {
		t.Errorf("negative marker missing: %s", out)
	}
	if !strings.Contains(out, "line-through") {
		t.Errorf("negative style missing: %s", out)
	}
}

func TestRemoveAllMarkersIdempotence(t *testing.T) {
	src := "<html><body><p>the quick brown fox jumps</p></body></html>"
	doc := parseDoc(t, src)
	node := firstTextNode(t, doc)
	parent := node.Parent
	original := node.Data

	ApplyMatches(node, FindMatches(original,
		[]KeywordSlot{{Keyword: "quick", Color: "#ffee58"}, {Keyword: "jumps", Color: "#a5d6a7"}},
		[]string{"brown"}))
	RemoveAllMarkers(doc)

	// All markers unwound, adjacent text merged back to one node.
	if parent.FirstChild == nil || parent.FirstChild != parent.LastChild {
		t.Fatalf("expected a single merged text node under parent")
	}
	if parent.FirstChild.Type != html.TextNode || parent.FirstChild.Data != original {
		t.Fatalf("restored text = %q, want %q", parent.FirstChild.Data, original)
	}

	// A second clear on a marker-free tree is a no-op.
	before := renderDoc(t, doc)
	RemoveAllMarkers(doc)
	if after := renderDoc(t, doc); after != before {
		t.Errorf("second RemoveAllMarkers changed the tree")
	}
}

func TestReapplyDoesNotNestMarkers(t *testing.T) {
	doc := parseDoc(t, "<html><body><p>cat and cat</p></body></html>")
	slots := []KeywordSlot{{Keyword: "cat", Color: "#ffee58"}}

	for i := 0; i < 3; i++ {
		RemoveAllMarkers(doc)
		for _, node := range TextNodes(doc) {
			if m := FindMatches(node.Data, slots, nil); len(m) > 0 {
				ApplyMatches(node, m)
			}
		}
	}

	out := renderDoc(t, doc)
	// Nesting or accumulation would multiply the marker count per pass.
	if n := strings.Count(out, "automarker-hl"); n != 2 {
		t.Fatalf("expected 2 markers after repeated passes, found %d:\n%s", n, out)
	}
}

func TestApplyMatchesNoMatches(t *testing.T) {
	doc := parseDoc(t, "<html><body><p>unchanged</p></body></html>")
	node := firstTextNode(t, doc)
	before := renderDoc(t, doc)

	ApplyMatches(node, nil)
	if after := renderDoc(t, doc); after != before {
		t.Errorf("tree changed with no matches")
	}
}

func TestHexToRGBA(t *testing.T) {
	tests := []struct {
		in    string
		alpha float64
		want  string
	}{
		{"#ffee58", 0.4, "rgba(255, 238, 88, 0.4)"},
		{"ffee58", 0.4, "rgba(255, 238, 88, 0.4)"},
		{"#000000", 1, "rgba(0, 0, 0, 1)"},
		{"#a5d6a7", 0.4, "rgba(165, 214, 167, 0.4)"},
		// Malformed input passes through unchanged.
		{"yellow", 0.4, "yellow"},
		{"#fff", 0.4, "#fff"},
		{"#zzzzzz", 0.4, "#zzzzzz"},
		{"", 0.4, ""},
	}
	for _, tt := range tests {
		if got := HexToRGBA(tt.in, tt.alpha); got != tt.want {
			t.Errorf("HexToRGBA(%q, %v) = %q, want %q", tt.in, tt.alpha, got, tt.want)
		}
	}
}
