// Package service hosts the highlighting engine behind page sessions: it
// opens pages (plain fetch or live Chrome tab), applies the stored keyword
// configuration, reacts to settings changes and DOM mutations, and exposes
// the whole thing over HTTP and MCP.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hazyhaar/automarker/browser"
	"github.com/hazyhaar/automarker/highlight"
	"github.com/hazyhaar/automarker/idgen"
	"github.com/hazyhaar/automarker/store"
	"github.com/hazyhaar/automarker/strategy"
)

// Config configures the Service.
type Config struct {
	// FetchTimeout bounds plain-HTTP page fetches. Default: 20s.
	FetchTimeout time.Duration

	// Debounce is the quiet period for mutation-triggered re-scans.
	// Default: highlight.DefaultDebounce.
	Debounce time.Duration

	// RescanDelays schedules full re-scans after a session opens, for
	// content that arrives without an observable mutation. The mutation
	// feed stays the canonical trigger. Default: 800ms and 2s.
	RescanDelays []time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 20 * time.Second
	}
	if c.Debounce <= 0 {
		c.Debounce = highlight.DefaultDebounce
	}
	if len(c.RescanDelays) == 0 {
		c.RescanDelays = []time.Duration{800 * time.Millisecond, 2 * time.Second}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Service owns the session registry and the stored configuration.
type Service struct {
	cfg      Config
	store    *store.Store
	browser  *browser.Manager
	strategy *strategy.Client
	fetch    *http.Client
	newID    idgen.Generator

	sessions *registry
}

// New creates a Service. The browser manager may be nil when live sessions
// are not needed; opening one then fails cleanly.
func New(st *store.Store, mgr *browser.Manager, cfg Config) *Service {
	cfg.defaults()
	return &Service{
		cfg:      cfg,
		store:    st,
		browser:  mgr,
		strategy: strategy.NewClient(cfg.Logger),
		fetch:    &http.Client{Timeout: cfg.FetchTimeout},
		newID:    idgen.Prefixed("pg_", idgen.UUIDv7()),
		sessions: newRegistry(),
	}
}

// Close shuts every session down.
func (s *Service) Close() {
	for _, sess := range s.sessions.list() {
		s.CloseSession(sess.ID)
	}
}

// Settings reads the stored configuration.
func (s *Service) Settings(ctx context.Context) (store.Settings, error) {
	return s.store.Settings(ctx)
}

// UpdateSettings replaces the stored configuration and re-highlights every
// open session with it.
func (s *Service) UpdateSettings(ctx context.Context, st store.Settings) error {
	if err := s.store.SetSettings(ctx, st); err != nil {
		return err
	}
	s.reapplyAll(ctx)
	return nil
}

// Watch blocks until ctx is cancelled, re-highlighting every session when
// the stored configuration changes underneath us.
func (s *Service) Watch(ctx context.Context) {
	s.store.OnChange(ctx, store.NotifyOptions{}, func() {
		s.cfg.Logger.Debug("service: settings changed, reapplying")
		s.reapplyAll(ctx)
	})
}

// BuildStrategy asks the configured text-generation provider for a keyword
// strategy on theme, stores the result as the active configuration and
// returns it. The keyword slots it writes carry auto provenance, so the
// next search reset may replace them.
func (s *Service) BuildStrategy(ctx context.Context, theme string) (strategy.Strategy, error) {
	creds, err := s.store.Credentials(ctx)
	if err != nil {
		return strategy.Strategy{}, fmt.Errorf("service: credentials: %w", err)
	}
	if creds.APIKey == "" && creds.BaseURL == "" {
		return strategy.Strategy{}, fmt.Errorf("service: no provider configured")
	}
	prompt, err := s.store.Prompt(ctx)
	if err != nil {
		return strategy.Strategy{}, err
	}

	st, err := s.strategy.Build(ctx, strategy.BuildRequest{
		Theme:   theme,
		Prompt:  prompt,
		BaseURL: creds.BaseURL,
		APIKey:  creds.APIKey,
		Model:   creds.Model,
	})
	if err != nil {
		return strategy.Strategy{}, err
	}

	settings, err := s.store.Settings(ctx)
	if err != nil {
		s.cfg.Logger.Warn("service: settings read failed", "error", err)
		settings = store.DefaultSettings()
	}
	settings.Slots = highlight.AutoSlots(st.Keywords)
	settings.Negatives = st.Negatives
	if err := s.store.SetSettings(ctx, settings); err != nil {
		s.cfg.Logger.Warn("service: strategy persist failed", "error", err)
	}
	s.reapplyAll(ctx)

	return st, nil
}

// reapplyAll pushes the current effective state to every open session.
// Store failures degrade to keeping each session's in-memory state.
func (s *Service) reapplyAll(ctx context.Context) {
	state, err := s.effectiveState(ctx)
	if err != nil {
		s.cfg.Logger.Warn("service: effective state unavailable", "error", err)
		return
	}
	for _, sess := range s.sessions.list() {
		n := s.applyState(ctx, sess, state)
		s.cfg.Logger.Debug("service: reapplied",
			"session", sess.ID, "matches", n)
	}
}

// effectiveState merges the settings blob with the auto-keyword cache:
// manual slots win; with none, auto keywords fill the palette when
// auto-highlight is on.
func (s *Service) effectiveState(ctx context.Context) (highlight.State, error) {
	settings, err := s.store.Settings(ctx)
	if err != nil {
		return highlight.State{}, err
	}
	slots := settings.Slots
	if len(slots) == 0 && settings.AutoHighlight {
		words, err := s.store.AutoKeywords(ctx)
		if err != nil {
			s.cfg.Logger.Warn("service: auto keywords read failed", "error", err)
		}
		slots = highlight.AutoSlots(words)
	}
	return highlight.State{
		Slots:     slots,
		Negatives: settings.Negatives,
		Enabled:   settings.Enabled,
	}, nil
}
