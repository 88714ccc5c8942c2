package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/automarker/highlight"
)

// Storage keys. Carried unchanged so existing databases keep working.
const (
	keySettings     = "automarker_settings"
	keyLastQuery    = "automarker_last_query"
	keyAutoKeywords = "automarker_auto_keywords"
	keyPrompt       = "automarker_prompt"
	keyCredentials  = "automarker_api"
)

// Settings is the user-facing configuration blob.
type Settings struct {
	Slots                []highlight.KeywordSlot `json:"slots"`
	Negatives            []string                `json:"negatives"`
	Enabled              bool                    `json:"enabled"`
	AutoHighlight        bool                    `json:"auto_highlight"`
	UseNegativesInSearch bool                    `json:"use_negatives_in_search"`
	Preset               string                  `json:"preset,omitempty"`
}

// DefaultSettings returns the settings used before anything is stored:
// highlighting and auto-highlight on, no slots, negatives used in search.
func DefaultSettings() Settings {
	return Settings{
		Enabled:              true,
		AutoHighlight:        true,
		UseNegativesInSearch: true,
	}
}

// Settings reads the settings blob, falling back to defaults when absent or
// unreadable.
func (s *Store) Settings(ctx context.Context) (Settings, error) {
	raw, err := s.get(ctx, keySettings)
	if err != nil {
		return DefaultSettings(), err
	}
	if raw == "" {
		return DefaultSettings(), nil
	}
	var st Settings
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return DefaultSettings(), fmt.Errorf("store: settings blob: %w", err)
	}
	return st, nil
}

// SetSettings replaces the settings blob wholesale.
func (s *Store) SetSettings(ctx context.Context, st Settings) error {
	return s.setJSON(ctx, keySettings, st)
}

// ClearSlots writes the settings back with empty slot and negative lists,
// keeping the remaining fields. Used when a new search supersedes the
// previous keyword strategy.
func (s *Store) ClearSlots(ctx context.Context) error {
	st, err := s.Settings(ctx)
	if err != nil {
		return err
	}
	st.Slots = nil
	st.Negatives = nil
	return s.SetSettings(ctx, st)
}

// LastQuery returns the cached most recent search query.
func (s *Store) LastQuery(ctx context.Context) (string, error) {
	return s.get(ctx, keyLastQuery)
}

// SetLastQuery caches the most recent search query.
func (s *Store) SetLastQuery(ctx context.Context, query string) error {
	return s.set(ctx, keyLastQuery, query)
}

// AutoKeywords returns the cached auto-derived keyword list.
func (s *Store) AutoKeywords(ctx context.Context) ([]string, error) {
	raw, err := s.get(ctx, keyAutoKeywords)
	if err != nil || raw == "" {
		return nil, err
	}
	var words []string
	if err := json.Unmarshal([]byte(raw), &words); err != nil {
		return nil, fmt.Errorf("store: auto keywords: %w", err)
	}
	return words, nil
}

// SetAutoKeywords caches the auto-derived keyword list so pages visited
// after a search reuse it.
func (s *Store) SetAutoKeywords(ctx context.Context, words []string) error {
	return s.setJSON(ctx, keyAutoKeywords, words)
}

// Prompt returns the stored strategy prompt template, or "" when the caller
// should use the built-in default.
func (s *Store) Prompt(ctx context.Context) (string, error) {
	return s.get(ctx, keyPrompt)
}

// SetPrompt stores a custom strategy prompt template.
func (s *Store) SetPrompt(ctx context.Context, prompt string) error {
	return s.set(ctx, keyPrompt, prompt)
}

// get returns "" without error for a missing key.
func (s *Store) get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.DB.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: get %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) set(ctx context.Context, key, value string) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("store: set %s: %w", key, err)
	}
	return nil
}

func (s *Store) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: marshal %s: %w", key, err)
	}
	return s.set(ctx, key, string(data))
}
