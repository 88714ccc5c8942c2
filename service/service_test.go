package service

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/automarker/highlight"
	"github.com/hazyhaar/automarker/page"
	"github.com/hazyhaar/automarker/store"
)

const testPage = `<!DOCTYPE html>
<html><head><title>Gopher News</title></head>
<body>
<h1>Go concurrency patterns</h1>
<p>Concurrency in Go is built on goroutines. A goroutine is cheap.</p>
<p>Sponsored: buy our online course today.</p>
</body></html>`

func pageServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(testPage))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestService(t *testing.T, opts ...store.Option) (*Service, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "automarker.db"), opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	svc := New(st, nil, Config{
		// Far enough out that tests never race the fallback scans.
		RescanDelays: []time.Duration{time.Hour},
		Logger:       slog.Default(),
	})
	t.Cleanup(svc.Close)
	return svc, st
}

func manualSlots(words ...string) []highlight.KeywordSlot {
	slots := make([]highlight.KeywordSlot, len(words))
	for i, w := range words {
		slots[i] = highlight.KeywordSlot{
			Keyword: w,
			Color:   highlight.AutoColors[i%len(highlight.AutoColors)],
			Origin:  highlight.OriginManual,
		}
	}
	return slots
}

func TestOpenFetchAppliesStoredState(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	srv := pageServer(t)

	settings := store.DefaultSettings()
	settings.Slots = manualSlots("goroutine")
	settings.Negatives = []string{"sponsored"}
	if err := st.SetSettings(ctx, settings); err != nil {
		t.Fatal(err)
	}

	sess, n, err := svc.Open(ctx, srv.URL, ModeFetch)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("initial matches = %d, want 2 goroutine hits", n)
	}

	html, err := svc.HTML(sess.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Count(html, highlight.MarkerClass) != 2 {
		t.Errorf("marker count = %d in %q", strings.Count(html, highlight.MarkerClass), html)
	}
	if !strings.Contains(html, highlight.NegativeClass) {
		t.Error("negative term not marked")
	}
}

func TestPageInfo(t *testing.T) {
	svc, _ := newTestService(t)
	srv := pageServer(t)

	sess, _, err := svc.Open(context.Background(), srv.URL, ModeFetch)
	if err != nil {
		t.Fatal(err)
	}
	info, err := svc.PageInfo(sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if info.Title != "Gopher News" {
		t.Errorf("title = %q", info.Title)
	}
	if info.URL != srv.URL || info.Mode != ModeFetch {
		t.Errorf("info = %+v", info)
	}
	if !strings.HasPrefix(info.ID, "pg_") {
		t.Errorf("id = %q", info.ID)
	}
}

func TestHighlightReplacesStateWholesale(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	srv := pageServer(t)

	settings := store.DefaultSettings()
	settings.Slots = manualSlots("goroutine")
	st.SetSettings(ctx, settings)

	sess, _, err := svc.Open(ctx, srv.URL, ModeFetch)
	if err != nil {
		t.Fatal(err)
	}

	n, err := svc.Highlight(ctx, sess.ID, highlight.State{
		Slots:   manualSlots("concurrency"),
		Enabled: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("matches = %d, want 2 concurrency hits", n)
	}

	html, _ := svc.HTML(sess.ID, false)
	if strings.Contains(html, `>goroutine</span>`) {
		t.Error("old state markers survived replacement")
	}
}

func TestHighlightUnknownSession(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Highlight(context.Background(), "pg_missing", highlight.State{Enabled: true}); err == nil {
		t.Error("expected error")
	}
}

func TestUpdateSettingsReappliesToSessions(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	srv := pageServer(t)

	sess, n, err := svc.Open(ctx, srv.URL, ModeFetch)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("matches before configuration = %d", n)
	}

	settings := store.DefaultSettings()
	settings.Slots = manualSlots("cheap")
	if err := svc.UpdateSettings(ctx, settings); err != nil {
		t.Fatal(err)
	}

	info, _ := svc.PageInfo(sess.ID)
	if info.Matches != 1 {
		t.Errorf("matches after update = %d, want 1", info.Matches)
	}
}

func TestCloseSession(t *testing.T) {
	svc, _ := newTestService(t)
	srv := pageServer(t)

	sess, _, err := svc.Open(context.Background(), srv.URL, ModeFetch)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.CloseSession(sess.ID); err != nil {
		t.Fatal(err)
	}
	if err := svc.CloseSession(sess.ID); err == nil {
		t.Error("double close should fail")
	}
	if len(svc.Sessions()) != 0 {
		t.Error("session still listed")
	}
}

func TestDetectSearchResetsAutoSlots(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	settings := store.DefaultSettings()
	settings.Slots = []highlight.KeywordSlot{
		{Keyword: "manual pick", Color: "#ffee58", Origin: highlight.OriginManual},
		{Keyword: "stale auto", Color: "#f48fb1", Origin: highlight.OriginAuto},
	}
	settings.Negatives = []string{"old noise"}
	st.SetSettings(ctx, settings)
	st.SetLastQuery(ctx, "previous query")

	svc.detectSearch(ctx, "https://www.google.com/search?q=machine+learning+-tutorial")

	got, _ := st.Settings(ctx)
	if len(got.Slots) != 1 || got.Slots[0].Keyword != "manual pick" {
		t.Errorf("slots after reset = %+v", got.Slots)
	}
	if len(got.Negatives) != 0 {
		t.Errorf("negatives survived reset: %v", got.Negatives)
	}

	q, _ := st.LastQuery(ctx)
	if q != "machine learning -tutorial" {
		t.Errorf("last query = %q", q)
	}
	words, _ := st.AutoKeywords(ctx)
	if len(words) != 2 || words[0] != "machine" || words[1] != "learning" {
		t.Errorf("auto keywords = %v", words)
	}
}

func TestDetectSearchSameQueryNoReset(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	settings := store.DefaultSettings()
	settings.Slots = []highlight.KeywordSlot{
		{Keyword: "kept", Color: "#ffee58", Origin: highlight.OriginAuto},
	}
	st.SetSettings(ctx, settings)
	st.SetLastQuery(ctx, "golang generics")

	svc.detectSearch(ctx, "https://duckduckgo.com/?q=golang+generics")

	got, _ := st.Settings(ctx)
	if len(got.Slots) != 1 {
		t.Errorf("repeat visit of the same search reset the slots: %+v", got.Slots)
	}
}

func TestDetectSearchIgnoresOrdinaryPages(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	st.SetLastQuery(ctx, "untouched")

	svc.detectSearch(ctx, "https://example.com/article?s=looks+like+a+query")

	q, _ := st.LastQuery(ctx)
	if q != "untouched" {
		t.Errorf("last query = %q", q)
	}
}

func TestEffectiveStateAutoKeywordFallback(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	st.SetAutoKeywords(ctx, []string{"rust", "borrow"})

	state, err := svc.effectiveState(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(state.Slots) != 2 || state.Slots[0].Origin != highlight.OriginAuto {
		t.Errorf("state = %+v", state)
	}

	// Manual slots win over the auto cache.
	settings := store.DefaultSettings()
	settings.Slots = manualSlots("zig")
	st.SetSettings(ctx, settings)

	state, _ = svc.effectiveState(ctx)
	if len(state.Slots) != 1 || state.Slots[0].Keyword != "zig" {
		t.Errorf("state = %+v", state)
	}
}

func TestOpenFetchBadStatus(t *testing.T) {
	svc, _ := newTestService(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	if _, _, err := svc.Open(context.Background(), srv.URL, ModeFetch); err == nil {
		t.Error("expected error for non-200 page")
	}
}

// newLiveSession registers a live-mode session with no tab behind it, the
// state a session is in once its Chrome tab has died.
func newLiveSession(t *testing.T, svc *Service) *Session {
	t.Helper()
	pg, err := page.Parse("https://example.com", strings.NewReader(testPage))
	if err != nil {
		t.Fatal(err)
	}
	sess := &Session{
		ID:        svc.newID(),
		URL:       "https://example.com",
		Mode:      ModeLive,
		CreatedAt: time.Now(),
		pg:        pg,
		engine:    highlight.New(pg.Doc(), highlight.Config{}),
		cancel:    func() {},
	}
	svc.sessions.add(sess)
	return sess
}

func TestRefreshLiveWithoutTab(t *testing.T) {
	svc, _ := newTestService(t)
	sess := newLiveSession(t, svc)

	if err := svc.refreshLive(context.Background(), sess); err == nil {
		t.Error("expected error for a session with no tab")
	}
}

func TestLiveSessionConcurrentApplyAndClose(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	sess := newLiveSession(t, svc)

	state := highlight.State{Slots: manualSlots("goroutine"), Enabled: true}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			svc.applyState(ctx, sess, state)
		}()
		go func() {
			defer wg.Done()
			svc.rescan(ctx, sess)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		svc.CloseSession(sess.ID)
	}()
	wg.Wait()

	if _, ok := svc.sessions.get(sess.ID); ok {
		t.Error("session still registered after close")
	}
}

func TestOpenLiveWithoutBrowser(t *testing.T) {
	svc, _ := newTestService(t)
	if _, _, err := svc.Open(context.Background(), "https://example.com", ModeLive); err == nil {
		t.Error("expected error without a browser manager")
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeFetch, false},
		{"fetch", ModeFetch, false},
		{"live", ModeLive, false},
		{"headful", "", true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseMode(%q) = %v, %v", tt.in, got, err)
		}
	}
}
