package highlight

// Origin records how a keyword slot came to exist. Slots typed by a user
// and slots derived from a search query behave differently when a new
// search is detected, so provenance is tagged at creation time instead of
// being inferred later.
type Origin string

const (
	OriginManual Origin = "manual"
	OriginAuto   Origin = "auto"
)

// KeywordSlot is one configured positive keyword with its display color.
// A slot whose keyword trims to the empty string is inert and never matches.
// Slot order is significant: earlier slots win tie-breaks.
type KeywordSlot struct {
	Keyword string `json:"keyword"`
	Color   string `json:"color"`
	Origin  Origin `json:"origin,omitempty"`
}

// Kind distinguishes highlight matches from negative (de-emphasis) matches.
type Kind int

const (
	KindHighlight Kind = iota
	KindNegative
)

// MatchSpan is one resolved occurrence inside a single text segment.
// Invariant: 0 <= Start < End <= len(segment). Spans are produced by the
// matcher, consumed immediately by the rewriter, and never persisted.
type MatchSpan struct {
	Start int
	End   int
	Text  string
	Kind  Kind
	Color string
}

// State is the full keyword/negative configuration the engine scans for.
// It is replaced wholesale on every update, never patched incrementally,
// so a scan can never observe stale partial state.
type State struct {
	Slots     []KeywordSlot `json:"slots"`
	Negatives []string      `json:"negatives"`
	Enabled   bool          `json:"enabled"`
}

// Empty reports whether the state has no active slots and no negatives.
func (s State) Empty() bool {
	for _, slot := range s.Slots {
		if !isBlank(slot.Keyword) {
			return false
		}
	}
	for _, n := range s.Negatives {
		if !isBlank(n) {
			return false
		}
	}
	return true
}
