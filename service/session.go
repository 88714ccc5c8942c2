package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/automarker/browser"
	"github.com/hazyhaar/automarker/highlight"
	"github.com/hazyhaar/automarker/page"
)

// Mode selects how a session obtains its document.
type Mode string

const (
	// ModeFetch downloads the page once over plain HTTP.
	ModeFetch Mode = "fetch"
	// ModeLive renders the page in a Chrome tab and follows its mutations.
	ModeLive Mode = "live"
)

// ParseMode validates a mode string. Empty means fetch.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeFetch:
		return ModeFetch, nil
	case ModeLive:
		return ModeLive, nil
	}
	return "", fmt.Errorf("service: unknown mode %q", s)
}

// Session is one open page under highlight management.
type Session struct {
	ID        string
	URL       string
	Mode      Mode
	CreatedAt time.Time

	mu      sync.Mutex
	pg      *page.Page
	engine  *highlight.Engine
	tab     *browser.Tab
	cancel  context.CancelFunc
	matches int
}

// tabHandle reads the tab pointer under the session lock. Callers keep the
// returned handle across the CDP call; a concurrent reopen swaps the field,
// never the handle.
func (sess *Session) tabHandle() *browser.Tab {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.tab
}

type registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func newRegistry() *registry {
	return &registry{sessions: make(map[string]*Session)}
}

func (r *registry) add(s *Session) {
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
}

func (r *registry) get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *registry) remove(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	return s, ok
}

// list returns sessions sorted by ID. UUIDv7 IDs sort in open order.
func (r *registry) list() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Open creates a session for rawURL, runs the new-search reset when the URL
// is a search results page, applies the effective state and schedules the
// post-open fallback re-scans. Returns the session and its initial
// highlight count.
func (s *Service) Open(ctx context.Context, rawURL string, mode Mode) (*Session, int, error) {
	s.detectSearch(ctx, rawURL)

	sess := &Session{
		ID:        s.newID(),
		URL:       rawURL,
		Mode:      mode,
		CreatedAt: time.Now(),
	}

	switch mode {
	case ModeFetch:
		pg, err := s.fetchPage(ctx, rawURL)
		if err != nil {
			return nil, 0, err
		}
		sess.pg = pg

	case ModeLive:
		if s.browser == nil {
			return nil, 0, fmt.Errorf("service: live mode requires a browser")
		}
		tab, err := s.browser.Open(ctx, rawURL)
		if err != nil {
			return nil, 0, err
		}
		sess.tab = tab
		pg, err := livePage(ctx, tab, rawURL)
		if err != nil {
			tab.Close()
			return nil, 0, err
		}
		sess.pg = pg

	default:
		return nil, 0, fmt.Errorf("service: unknown mode %q", mode)
	}

	sess.engine = highlight.New(sess.pg.Doc(), highlight.Config{
		Debounce: s.cfg.Debounce,
		Logger:   s.cfg.Logger,
	})

	feedCtx, cancel := context.WithCancel(context.Background())
	sess.cancel = cancel
	if mode == ModeLive {
		go s.followMutations(feedCtx, sess)
	}
	for _, d := range s.cfg.RescanDelays {
		d := d
		go func() {
			select {
			case <-feedCtx.Done():
			case <-time.After(d):
				s.rescan(feedCtx, sess)
			}
		}()
	}

	state, err := s.effectiveState(ctx)
	if err != nil {
		s.cfg.Logger.Warn("service: open without stored state", "error", err)
		state = highlight.State{Enabled: true}
	}
	n := s.applyState(ctx, sess, state)

	s.sessions.add(sess)
	s.cfg.Logger.Info("service: session opened",
		"session", sess.ID, "url", rawURL, "mode", mode, "matches", n)
	return sess, n, nil
}

// Highlight replaces the session state wholesale and returns the highlight
// match count.
func (s *Service) Highlight(ctx context.Context, sessionID string, state highlight.State) (int, error) {
	sess, ok := s.sessions.get(sessionID)
	if !ok {
		return 0, fmt.Errorf("service: no session %s", sessionID)
	}
	return s.applyState(ctx, sess, state), nil
}

// Info describes a session for the page-info message.
type Info struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	Title   string `json:"title"`
	Query   string `json:"query,omitempty"`
	Mode    Mode   `json:"mode"`
	Matches int    `json:"matches"`
}

// PageInfo reports the session's URL, title, detected search query and
// last highlight count.
func (s *Service) PageInfo(sessionID string) (Info, error) {
	sess, ok := s.sessions.get(sessionID)
	if !ok {
		return Info{}, fmt.Errorf("service: no session %s", sessionID)
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return Info{
		ID:      sess.ID,
		URL:     sess.URL,
		Title:   sess.pg.Title(),
		Query:   page.QueryFromURL(sess.URL),
		Mode:    sess.Mode,
		Matches: sess.matches,
	}, nil
}

// Sessions lists open sessions.
func (s *Service) Sessions() []Info {
	out := make([]Info, 0)
	for _, sess := range s.sessions.list() {
		if info, err := s.PageInfo(sess.ID); err == nil {
			out = append(out, info)
		}
	}
	return out
}

// HTML renders the session document with markers in place, optionally
// through the sanitizer policy.
func (s *Service) HTML(sessionID string, sanitized bool) (string, error) {
	sess, ok := s.sessions.get(sessionID)
	if !ok {
		return "", fmt.Errorf("service: no session %s", sessionID)
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sanitized {
		return sess.pg.RenderSanitized()
	}
	return sess.pg.Render()
}

// Markdown renders the session document as markdown.
func (s *Service) Markdown(sessionID string) (string, error) {
	sess, ok := s.sessions.get(sessionID)
	if !ok {
		return "", fmt.Errorf("service: no session %s", sessionID)
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.pg.Markdown(), nil
}

// CloseSession tears a session down.
func (s *Service) CloseSession(sessionID string) error {
	sess, ok := s.sessions.remove(sessionID)
	if !ok {
		return fmt.Errorf("service: no session %s", sessionID)
	}
	sess.cancel()
	sess.engine.Stop()
	sess.mu.Lock()
	tab := sess.tab
	sess.tab = nil
	sess.mu.Unlock()
	if tab != nil {
		tab.Close()
	}
	s.cfg.Logger.Info("service: session closed", "session", sessionID)
	return nil
}

// detectSearch runs the new-search reset: when rawURL is a search results
// page whose query differs from the stored one, keyword slots with auto
// provenance are dropped, negatives cleared, and fresh auto keywords are
// derived from the query. Manually entered slots survive. Best-effort
// throughout; failures only log.
func (s *Service) detectSearch(ctx context.Context, rawURL string) {
	if !page.IsSearchURL(rawURL) {
		return
	}
	query := page.QueryFromURL(rawURL)
	if query == "" {
		return
	}
	last, err := s.store.LastQuery(ctx)
	if err != nil {
		s.cfg.Logger.Warn("service: last query read failed", "error", err)
		return
	}
	if query == last {
		return
	}

	settings, err := s.store.Settings(ctx)
	if err == nil {
		manual := settings.Slots[:0]
		for _, slot := range settings.Slots {
			if slot.Origin == highlight.OriginManual {
				manual = append(manual, slot)
			}
		}
		settings.Slots = manual
		settings.Negatives = nil
		if err := s.store.SetSettings(ctx, settings); err != nil {
			s.cfg.Logger.Warn("service: search reset failed", "error", err)
		}
	}

	words := highlight.QueryWords(query)
	if err := s.store.SetLastQuery(ctx, query); err != nil {
		s.cfg.Logger.Warn("service: query persist failed", "error", err)
	}
	if err := s.store.SetAutoKeywords(ctx, words); err != nil {
		s.cfg.Logger.Warn("service: auto keywords persist failed", "error", err)
	}
	s.cfg.Logger.Info("service: new search detected",
		"query", query, "keywords", len(words))
}

// applyState pushes state into the session engine. For live sessions the
// document snapshot is refreshed first; when the tab turns out dead, the
// page is reopened once and the same state retried once after a short
// delay. A second failure is swallowed and the previous snapshot kept.
func (s *Service) applyState(ctx context.Context, sess *Session, state highlight.State) int {
	if sess.Mode == ModeLive {
		if err := s.refreshLive(ctx, sess); err != nil {
			s.cfg.Logger.Warn("service: live refresh failed, reopening",
				"session", sess.ID, "error", err)
			if err := s.reopenLive(ctx, sess); err != nil {
				s.cfg.Logger.Warn("service: reopen failed",
					"session", sess.ID, "error", err)
			} else {
				time.Sleep(500 * time.Millisecond)
				if err := s.refreshLive(ctx, sess); err != nil {
					s.cfg.Logger.Warn("service: retry refresh failed",
						"session", sess.ID, "error", err)
				}
			}
		}
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	n := sess.engine.SetState(state)
	sess.matches = n
	return n
}

// rescan re-runs the current state: live sessions refetch their snapshot
// first so late-arriving content is seen.
func (s *Service) rescan(ctx context.Context, sess *Session) {
	if sess.Mode == ModeLive {
		if err := s.refreshLive(ctx, sess); err != nil {
			s.cfg.Logger.Debug("service: fallback refresh failed",
				"session", sess.ID, "error", err)
			return
		}
	}
	sess.mu.Lock()
	n := sess.engine.Rescan()
	sess.matches = n
	sess.mu.Unlock()
	s.cfg.Logger.Debug("service: fallback rescan", "session", sess.ID, "matches", n)
}

// followMutations consumes the tab's mutation feed. Marker-class inserts
// are our own writes echoing back and are dropped; the rest reset a
// trailing-edge debounce whose settled callback refetches the snapshot
// and re-scans.
func (s *Service) followMutations(ctx context.Context, sess *Session) {
	var mu sync.Mutex
	var timer *time.Timer

	tab := sess.tabHandle()
	if tab == nil {
		return
	}
	err := tab.Mutations(ctx, func(h highlight.MutationHint) {
		if markerClass(h.Class) {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(s.cfg.Debounce, func() {
			s.rescan(ctx, sess)
		})
	})
	if err != nil && ctx.Err() == nil {
		s.cfg.Logger.Warn("service: mutation feed ended",
			"session", sess.ID, "error", err)
	}
}

// refreshLive refetches the tab DOM and swaps it into the engine without
// scanning; the caller runs the scan, so a refresh-and-apply costs one pass.
func (s *Service) refreshLive(ctx context.Context, sess *Session) error {
	tab := sess.tabHandle()
	if tab == nil {
		return fmt.Errorf("service: session %s has no tab", sess.ID)
	}
	raw, err := tab.HTML(ctx)
	if err != nil {
		return err
	}
	pg, err := page.Parse(sess.URL, strings.NewReader(raw))
	if err != nil {
		return err
	}
	sess.mu.Lock()
	sess.pg = pg
	sess.engine.SwapDocument(pg.Doc())
	sess.mu.Unlock()
	return nil
}

// reopenLive opens a fresh tab on the session URL and swaps it in. The
// displaced tab is closed after the swap, so concurrent reopens never leak
// one.
func (s *Service) reopenLive(ctx context.Context, sess *Session) error {
	if s.browser == nil {
		return fmt.Errorf("service: live mode requires a browser")
	}
	tab, err := s.browser.Open(ctx, sess.URL)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	old := sess.tab
	sess.tab = tab
	sess.mu.Unlock()
	if old != nil {
		old.Close()
	}
	return nil
}

func (s *Service) fetchPage(ctx context.Context, rawURL string) (*page.Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("service: fetch %s: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", "automarker/1.0")

	resp, err := s.fetch.Do(req)
	if err != nil {
		return nil, fmt.Errorf("service: fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("service: fetch %s: status %d", rawURL, resp.StatusCode)
	}
	return page.Parse(rawURL, io.LimitReader(resp.Body, 16<<20))
}

func livePage(ctx context.Context, tab *browser.Tab, rawURL string) (*page.Page, error) {
	raw, err := tab.HTML(ctx)
	if err != nil {
		return nil, err
	}
	return page.Parse(rawURL, strings.NewReader(raw))
}

// markerClass reports whether the class list carries one of our marker
// classes; such inserts are our own spans echoing back.
func markerClass(class string) bool {
	if class == "" {
		return false
	}
	for _, c := range strings.Fields(class) {
		if c == highlight.MarkerClass || c == highlight.NegativeClass {
			return true
		}
	}
	return false
}
