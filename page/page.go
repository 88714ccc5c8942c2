// Package page wraps a parsed HTML document with the accessors the
// highlighting service needs: title, visible text, annotated rendering, and
// a markdown projection for prompt context.
package page

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Page is one parsed page document. The document tree is owned by the
// session's highlight engine; Page only reads it.
type Page struct {
	URL string
	doc *html.Node
}

// Parse reads and parses an HTML document.
func Parse(rawURL string, r io.Reader) (*Page, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("page: parse: %w", err)
	}
	return &Page{URL: rawURL, doc: doc}, nil
}

// Doc returns the document root.
func (p *Page) Doc() *html.Node { return p.doc }

// Title returns the <title> text, trimmed.
func (p *Page) Title() string {
	return findTitle(p.doc)
}

// Render serialises the document, markers included.
func (p *Page) Render() (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, p.doc); err != nil {
		return "", fmt.Errorf("page: render: %w", err)
	}
	return buf.String(), nil
}

// RenderSanitized serialises the document through a sanitizer policy that
// keeps marker spans, their classes and their inline styles but strips
// scripts and other active content. Use it when the annotated page is
// served to a browser.
func (p *Page) RenderSanitized() (string, error) {
	raw, err := p.Render()
	if err != nil {
		return "", err
	}
	return markerPolicy().Sanitize(raw), nil
}

// Text returns the visible text of the page, space-joined.
func (p *Page) Text() string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(t)
			}
		}
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(p.doc)
	return sb.String()
}

// Markdown converts the page to structured markdown. If conversion fails or
// produces empty output, the plain visible text is returned instead.
func (p *Page) Markdown() string {
	raw, err := p.Render()
	if err != nil {
		return p.Text()
	}
	out, err := mdConverter().ConvertString(raw, converter.WithDomain(p.URL))
	if err != nil || strings.TrimSpace(out) == "" {
		return p.Text()
	}
	return strings.TrimSpace(out)
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.Title {
		if n.FirstChild != nil {
			return strings.TrimSpace(n.FirstChild.Data)
		}
		return ""
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

var (
	mdOnce sync.Once
	mdConv *converter.Converter

	policyOnce sync.Once
	policy     *bluemonday.Policy
)

func mdConverter() *converter.Converter {
	mdOnce.Do(func() {
		mdConv = converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		)
	})
	return mdConv
}

func markerPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		policy = bluemonday.UGCPolicy()
		policy.AllowElements("span")
		policy.AllowAttrs("class").OnElements("span")
		policy.AllowStyles(
			"background-color", "border-radius", "padding", "margin",
			"opacity", "text-decoration", "color",
		).OnElements("span")
	})
	return policy
}
