package highlight

import (
	"regexp"
	"sort"
	"strings"
)

// FindMatches locates every case-insensitive literal occurrence of the slot
// keywords and negative terms in text, resolves overlaps, and returns the
// surviving spans sorted by start offset.
//
// Matching is literal substring matching: regex metacharacters in a keyword
// are escaped before compilation, so "C++" matches the text "C++" and
// nothing else. Slots are processed before negatives, which gives highlight
// spans priority over negative spans that start at the same offset.
func FindMatches(text string, slots []KeywordSlot, negatives []string) []MatchSpan {
	if text == "" {
		return nil
	}
	if len(slots) == 0 && len(negatives) == 0 {
		return nil
	}

	var spans []MatchSpan
	for _, slot := range slots {
		for _, loc := range findLiteral(text, slot.Keyword) {
			spans = append(spans, MatchSpan{
				Start: loc[0],
				End:   loc[1],
				Text:  text[loc[0]:loc[1]],
				Kind:  KindHighlight,
				Color: slot.Color,
			})
		}
	}
	for _, term := range negatives {
		for _, loc := range findLiteral(text, term) {
			spans = append(spans, MatchSpan{
				Start: loc[0],
				End:   loc[1],
				Text:  text[loc[0]:loc[1]],
				Kind:  KindNegative,
			})
		}
	}

	// Stable sort keeps emission order (slot order, then negatives) for
	// spans starting at the same offset.
	sort.SliceStable(spans, func(i, j int) bool {
		return spans[i].Start < spans[j].Start
	})

	return resolveOverlaps(spans)
}

// findLiteral returns the byte-offset ranges of every case-insensitive
// occurrence of the literal keyword in text. Blank keywords are inert.
func findLiteral(text, keyword string) [][]int {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil
	}
	re, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(keyword))
	if err != nil {
		// Unreachable after QuoteMeta; treat as no match rather than fail.
		return nil
	}
	return re.FindAllStringIndex(text, -1)
}

// resolveOverlaps applies the greedy leftmost-wins rule to spans sorted by
// start offset: a span survives only if it begins at or after the end of the
// previously accepted span. Overlapping spans are dropped in full, never
// split or truncated.
func resolveOverlaps(spans []MatchSpan) []MatchSpan {
	if len(spans) == 0 {
		return nil
	}
	kept := spans[:0]
	lastEnd := -1
	for _, sp := range spans {
		if sp.Start >= lastEnd {
			kept = append(kept, sp)
			lastEnd = sp.End
		}
	}
	return kept
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
