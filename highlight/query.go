package highlight

import "strings"

// maxAutoSlots caps how many query words become auto-derived slots.
const maxAutoSlots = 8

// QueryWords extracts the individual highlightable words from a search
// query: whitespace-delimited, negated terms (leading "-") excluded,
// duplicates removed with first occurrence order preserved, capped at
// maxAutoSlots.
func QueryWords(query string) []string {
	if strings.TrimSpace(query) == "" {
		return nil
	}

	seen := make(map[string]bool)
	var words []string
	for _, w := range strings.Fields(query) {
		if strings.HasPrefix(w, "-") {
			continue
		}
		if seen[w] {
			continue
		}
		seen[w] = true
		words = append(words, w)
		if len(words) == maxAutoSlots {
			break
		}
	}
	return words
}

// AutoSlots builds OriginAuto keyword slots for the given words, assigning
// each a palette color by position.
func AutoSlots(words []string) []KeywordSlot {
	if len(words) > maxAutoSlots {
		words = words[:maxAutoSlots]
	}
	slots := make([]KeywordSlot, 0, len(words))
	for i, w := range words {
		slots = append(slots, KeywordSlot{
			Keyword: w,
			Color:   autoColor(i),
			Origin:  OriginAuto,
		})
	}
	return slots
}
