package service

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/automarker/highlight"
	"github.com/hazyhaar/automarker/store"
)

// RegisterHTTP mounts the service API on r.
func (s *Service) RegisterHTTP(r chi.Router) {
	r.Get("/v1/pages", s.handleListPages)
	r.Post("/v1/pages", s.handleOpenPage)
	r.Delete("/v1/pages/{id}", s.handleClosePage)
	r.Post("/v1/pages/{id}/highlight", s.handleHighlight)
	r.Get("/v1/pages/{id}/info", s.handlePageInfo)
	r.Get("/v1/pages/{id}/html", s.handlePageHTML)
	r.Get("/v1/pages/{id}/markdown", s.handlePageMarkdown)
	r.Get("/v1/settings", s.handleGetSettings)
	r.Put("/v1/settings", s.handlePutSettings)
	r.Post("/v1/strategy", s.handleStrategy)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type openPageRequest struct {
	URL  string `json:"url"`
	Mode string `json:"mode,omitempty"`
}

func (s *Service) handleOpenPage(w http.ResponseWriter, r *http.Request) {
	var req openPageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://") {
		http.Error(w, "url must be http(s)", http.StatusBadRequest)
		return
	}
	mode, err := ParseMode(req.Mode)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sess, _, err := s.Open(r.Context(), req.URL, mode)
	if err != nil {
		s.cfg.Logger.Error("open page failed", "url", req.URL, "error", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	info, err := s.PageInfo(sess.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (s *Service) handleListPages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"pages": s.Sessions()})
}

func (s *Service) handleClosePage(w http.ResponseWriter, r *http.Request) {
	if err := s.CloseSession(chi.URLParam(r, "id")); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type highlightRequest struct {
	Slots     []highlight.KeywordSlot `json:"slots"`
	Negatives []string                `json:"negatives"`
	Enabled   bool                    `json:"enabled"`
}

func (s *Service) handleHighlight(w http.ResponseWriter, r *http.Request) {
	var req highlightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	n, err := s.Highlight(r.Context(), chi.URLParam(r, "id"), highlight.State{
		Slots:     req.Slots,
		Negatives: req.Negatives,
		Enabled:   req.Enabled,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"matches": n})
}

func (s *Service) handlePageInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.PageInfo(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Service) handlePageHTML(w http.ResponseWriter, r *http.Request) {
	sanitized := r.URL.Query().Get("sanitized") == "true"
	out, err := s.HTML(chi.URLParam(r, "id"), sanitized)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(out))
}

func (s *Service) handlePageMarkdown(w http.ResponseWriter, r *http.Request) {
	out, err := s.Markdown(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Write([]byte(out))
}

func (s *Service) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	st, err := s.Settings(r.Context())
	if err != nil {
		s.cfg.Logger.Error("settings read failed", "error", err)
		http.Error(w, "settings unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Service) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var st store.Settings
	if err := json.NewDecoder(r.Body).Decode(&st); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.UpdateSettings(r.Context(), st); err != nil {
		s.cfg.Logger.Error("settings write failed", "error", err)
		http.Error(w, "settings write failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type strategyRequest struct {
	Theme string `json:"theme"`
}

func (s *Service) handleStrategy(w http.ResponseWriter, r *http.Request) {
	var req strategyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	st, err := s.BuildStrategy(r.Context(), req.Theme)
	if err != nil {
		s.cfg.Logger.Error("strategy build failed", "theme", req.Theme, "error", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
