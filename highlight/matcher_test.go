package highlight

import (
	"reflect"
	"testing"
)

func TestFindMatchesCaseInsensitive(t *testing.T) {
	text := "The cat sat on a CAT mat"
	slots := []KeywordSlot{{Keyword: "Cat", Color: "#ffee58"}}

	spans := FindMatches(text, slots, nil)
	if len(spans) != 2 {
		t.Fatalf("expected 2 matches, got %d: %+v", len(spans), spans)
	}
	if spans[0].Text != "cat" || spans[1].Text != "CAT" {
		t.Errorf("matched text = %q, %q; want cat, CAT", spans[0].Text, spans[1].Text)
	}
	for _, sp := range spans {
		if text[sp.Start:sp.End] != sp.Text {
			t.Errorf("span offsets [%d,%d) do not cover %q", sp.Start, sp.End, sp.Text)
		}
	}
}

func TestFindMatchesLiteralMetacharacters(t *testing.T) {
	spans := FindMatches("C++ is fast", []KeywordSlot{{Keyword: "C++", Color: "#ffee58"}}, nil)
	if len(spans) != 1 {
		t.Fatalf("expected exactly 1 match, got %d", len(spans))
	}
	if spans[0].Start != 0 || spans[0].End != 3 {
		t.Errorf("span = [%d,%d), want [0,3)", spans[0].Start, spans[0].End)
	}

	// "a.c" must not behave as a pattern: "abc" contains no literal "a.c".
	if got := FindMatches("abc", []KeywordSlot{{Keyword: "a.c"}}, nil); len(got) != 0 {
		t.Errorf("expected no matches for escaped metacharacter, got %+v", got)
	}
}

func TestFindMatchesGreedyLeftmostWins(t *testing.T) {
	// Highlight [0,5) overlaps negative [3,8): the earlier span survives,
	// the later one is dropped in full.
	spans := FindMatches("abcdefgh",
		[]KeywordSlot{{Keyword: "abcde", Color: "#ffee58"}},
		[]string{"defgh"})

	if len(spans) != 1 {
		t.Fatalf("expected 1 surviving span, got %d: %+v", len(spans), spans)
	}
	if spans[0].Kind != KindHighlight || spans[0].Start != 0 || spans[0].End != 5 {
		t.Errorf("surviving span = %+v, want highlight [0,5)", spans[0])
	}
}

func TestFindMatchesSameStartSlotWins(t *testing.T) {
	// Slots are emitted before negatives, so at identical start offsets the
	// highlight span is accepted and the negative dropped.
	spans := FindMatches("golang",
		[]KeywordSlot{{Keyword: "go", Color: "#a5d6a7"}},
		[]string{"golang"})

	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d: %+v", len(spans), spans)
	}
	if spans[0].Kind != KindHighlight || spans[0].Text != "go" {
		t.Errorf("got %+v, want the highlight span for 'go'", spans[0])
	}
}

func TestFindMatchesNonOverlapInvariant(t *testing.T) {
	text := "aaa aaaa aa aaa"
	spans := FindMatches(text,
		[]KeywordSlot{{Keyword: "aa"}, {Keyword: "aaa"}},
		[]string{"a"})

	for i := 1; i < len(spans); i++ {
		if spans[i-1].End > spans[i].Start {
			t.Fatalf("spans overlap: %+v then %+v", spans[i-1], spans[i])
		}
	}
}

func TestFindMatchesBlankAndEmptyInputs(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		slots     []KeywordSlot
		negatives []string
	}{
		{"empty text", "", []KeywordSlot{{Keyword: "x"}}, nil},
		{"no terms", "some text", nil, nil},
		{"blank keyword", "some text", []KeywordSlot{{Keyword: "   "}}, nil},
		{"blank negative", "some text", nil, []string{"\t"}},
	}
	for _, tt := range tests {
		if got := FindMatches(tt.text, tt.slots, tt.negatives); len(got) != 0 {
			t.Errorf("%s: expected no matches, got %+v", tt.name, got)
		}
	}
}

func TestFindMatchesSlotOrderPreserved(t *testing.T) {
	// Two slots matching disjoint words keep ascending start order.
	spans := FindMatches("alpha beta",
		[]KeywordSlot{{Keyword: "beta", Color: "#f48fb1"}, {Keyword: "alpha", Color: "#ffee58"}},
		nil)

	want := []string{"alpha", "beta"}
	var got []string
	for _, sp := range spans {
		got = append(got, sp.Text)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("match order = %v, want %v", got, want)
	}
}
