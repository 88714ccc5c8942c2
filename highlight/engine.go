// Package highlight implements the text-highlighting engine: it scans the
// visible text of an HTML document for configured keywords and negative
// terms, resolves overlapping matches deterministically, and rewrites text
// nodes into marked spans without corrupting document structure.
//
// One Engine owns one document and the State it currently scans for. Scans
// are synchronous clear → walk → match → apply passes; mutation-triggered
// re-scans are coalesced by a trailing-edge debounce window rather than
// queued.
package highlight

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/html"
)

// DefaultDebounce is the quiet period after the last qualifying mutation
// before a re-scan fires.
const DefaultDebounce = 150 * time.Millisecond

// Config configures an Engine.
type Config struct {
	// Debounce is the mutation quiet period. Default: DefaultDebounce.
	Debounce time.Duration

	// Logger for scan diagnostics.
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// MutationHint describes one node added to the document by an external
// mutation, as reported by a page observer.
type MutationHint struct {
	Tag   string
	Class string
}

// Engine orchestrates highlighting for a single document. It is the sole
// writer of its State and the sole mutator of its document; all methods are
// safe for concurrent use.
type Engine struct {
	cfg Config

	mu    sync.Mutex
	doc   *html.Node
	state State
	timer *time.Timer

	scans atomic.Int64
}

// New creates an Engine over doc. The document may be nil until SetDocument
// is called; scans over a nil document report zero matches.
func New(doc *html.Node, cfg Config) *Engine {
	cfg.defaults()
	return &Engine{cfg: cfg, doc: doc}
}

// SetState replaces the engine state wholesale and runs a full scan.
// A disabled or empty state clears all markers and reports zero matches.
// Returns the number of highlight matches applied (negative matches are
// marked but not counted).
func (e *Engine) SetState(st State) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = st
	return e.scanLocked()
}

// State returns a snapshot of the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.state
	st.Slots = append([]KeywordSlot(nil), e.state.Slots...)
	st.Negatives = append([]string(nil), e.state.Negatives...)
	return st
}

// SetDocument swaps the document, e.g. after a navigation or a full
// refetch, and re-scans it with the current state.
func (e *Engine) SetDocument(doc *html.Node) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.doc = doc
	return e.scanLocked()
}

// SwapDocument replaces the document without scanning it, for callers that
// immediately follow with SetState or Rescan. SetDocument remains the
// swap-and-scan entry point.
func (e *Engine) SwapDocument(doc *html.Node) {
	e.mu.Lock()
	e.doc = doc
	e.mu.Unlock()
}

// Rescan runs a full scan with the current state.
func (e *Engine) Rescan() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scanLocked()
}

// OnContentMutated is invoked by a page observer when nodes are added to
// the document. Mutations are ignored while the state has nothing to scan
// for, and mutations whose added nodes are all marker elements are ignored
// entirely: they are the engine's own writes echoing back. A qualifying
// mutation resets the debounce timer; when the quiet period elapses one
// re-scan runs.
func (e *Engine) OnContentMutated(hints []MutationHint) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.state.Enabled || e.state.Empty() {
		return
	}

	genuine := false
	for _, h := range hints {
		if !hasClass(h.Class, MarkerClass) && !hasClass(h.Class, NegativeClass) {
			genuine = true
			break
		}
	}
	if !genuine {
		return
	}

	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(e.cfg.Debounce, func() {
		n := e.Rescan()
		e.cfg.Logger.Debug("highlight: mutation rescan", "matches", n)
	})
}

// Stop cancels any pending debounced re-scan.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// Scans returns the number of scan passes completed.
func (e *Engine) Scans() int64 { return e.scans.Load() }

// scanLocked runs one full clear → walk → match → apply pass. The text node
// set is materialized before any rewrite so the walk is never invalidated
// by its own mutations.
func (e *Engine) scanLocked() int {
	if e.doc == nil {
		return 0
	}

	RemoveAllMarkers(e.doc)

	if !e.state.Enabled || e.state.Empty() {
		return 0
	}

	start := time.Now()
	count := 0
	for _, node := range TextNodes(e.doc) {
		matches := FindMatches(node.Data, e.state.Slots, e.state.Negatives)
		if len(matches) == 0 {
			continue
		}
		for _, m := range matches {
			if m.Kind == KindHighlight {
				count++
			}
		}
		ApplyMatches(node, matches)
	}

	e.scans.Add(1)
	e.cfg.Logger.Debug("highlight: scan complete",
		"matches", count, "duration", time.Since(start))
	return count
}
