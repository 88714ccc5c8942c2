package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/automarker/highlight"
)

// Tab is one live page: a stealth Rod page navigated to a URL.
type Tab struct {
	Page    *rod.Page
	PageURL string

	manager *Manager
}

// Open creates a stealth tab and navigates it. A load-wait timeout is not
// fatal: slow pages still yield a usable DOM.
func (m *Manager) Open(ctx context.Context, pageURL string) (*Tab, error) {
	b, err := m.browserHandle()
	if err != nil {
		return nil, err
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, m.cfg.NavigateTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		m.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}

	return &Tab{Page: page, PageURL: pageURL, manager: m}, nil
}

// HTML serialises the current DOM as outer HTML.
func (t *Tab) HTML(ctx context.Context) (string, error) {
	res, err := t.Page.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", fmt.Errorf("browser: get DOM: %w", err)
	}
	return res.Value.Str(), nil
}

// Mutations streams DOM change hints to fn until ctx is cancelled. Only
// insertions and text edits matter for re-highlighting; attribute churn
// is ignored.
func (t *Tab) Mutations(ctx context.Context, fn func(highlight.MutationHint)) error {
	if err := (proto.DOMEnable{}).Call(t.Page); err != nil {
		return fmt.Errorf("browser: enable DOM events: %w", err)
	}

	// DOM.getDocument with full depth makes deep nodes trackable;
	// without it mutations below the first level are silently dropped.
	depth := -1
	if _, err := (proto.DOMGetDocument{Depth: &depth, Pierce: true}).Call(t.Page); err != nil {
		return fmt.Errorf("browser: track DOM: %w", err)
	}

	wait := t.Page.Context(ctx).EachEvent(
		func(e *proto.DOMChildNodeInserted) {
			fn(highlight.MutationHint{
				Tag:   strings.ToLower(e.Node.NodeName),
				Class: nodeClass(e.Node),
			})
		},
		func(e *proto.DOMCharacterDataModified) {
			fn(highlight.MutationHint{})
		},
	)
	wait()
	return nil
}

// Close closes the tab.
func (t *Tab) Close() error {
	if t.Page != nil {
		return t.Page.Close()
	}
	return nil
}

// nodeClass pulls the class attribute out of the flat name/value pair
// list CDP uses.
func nodeClass(n *proto.DOMNode) string {
	for i := 0; i+1 < len(n.Attributes); i += 2 {
		if n.Attributes[i] == "class" {
			return n.Attributes[i+1]
		}
	}
	return ""
}
