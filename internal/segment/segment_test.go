package segment

import (
	"strings"
	"testing"
)

func testPlanner() Planner {
	return Planner{TitleDuration: 3, FactDuration: 5, MinFacts: 1}
}

func TestBuildSegmentCountAndOrder(t *testing.T) {
	facts := []string{
		"The ocean covers 71 percent of the planet.",
		"The Mariana Trench is deeper than Everest is tall.",
		"Most of Earth's oxygen comes from the sea.",
	}
	plan, err := testPlanner().Build(facts, "ocean")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if got, want := len(plan.Segments), len(facts)+1; got != want {
		t.Fatalf("segment count = %d, want %d", got, want)
	}
	if plan.Segments[0].Kind != KindTitle {
		t.Error("first segment must be the title")
	}
	for i, f := range facts {
		seg := plan.Segments[i+1]
		if seg.Kind != KindFact {
			t.Errorf("segment %d kind = %s, want fact", i+1, seg.Kind)
		}
		if seg.DisplayText != f {
			t.Errorf("segment %d text = %q, want %q (input order must be preserved)", i+1, seg.DisplayText, f)
		}
		if seg.SequenceIndex != i+1 {
			t.Errorf("segment %d sequence index = %d", i+1, seg.SequenceIndex)
		}
	}
}

func TestBuildTotalDuration(t *testing.T) {
	facts := []string{"a fact", "another fact", "a third fact", "a fourth", "a fifth"}
	plan, err := testPlanner().Build(facts, "ocean")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got, want := plan.TotalSeconds(), 3+5.0*5; got != want {
		t.Errorf("TotalSeconds = %v, want %v", got, want)
	}
}

func TestBuildTitleText(t *testing.T) {
	plan, err := testPlanner().Build([]string{"one", "two"}, "ocean")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got, want := plan.Title, "2 Amazing Ocean Facts"; got != want {
		t.Errorf("title = %q, want %q", got, want)
	}
	if plan.Segments[0].DisplayText != plan.Title {
		t.Error("title segment must carry the synthesized title")
	}
}

func TestBuildEmptyInputUsesFallbackSet(t *testing.T) {
	p := Planner{TitleDuration: 3, FactDuration: 5, MinFacts: 5}
	plan, err := p.Build(nil, "science")
	if err != nil {
		t.Fatalf("Build with empty input must not fail: %v", err)
	}
	if got := len(plan.Facts()); got != 5 {
		t.Errorf("fallback plan has %d facts, want 5", got)
	}
	for _, f := range plan.Facts() {
		if strings.TrimSpace(f) == "" {
			t.Error("fallback facts must be non-empty")
		}
	}
}

func TestBuildBlankFactsDropped(t *testing.T) {
	plan, err := testPlanner().Build([]string{"  ", "real fact", ""}, "space")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := plan.Facts(); len(got) != 1 || got[0] != "real fact" {
		t.Errorf("blank facts should be dropped, got %v", got)
	}
}

func TestBuildFailsWhenFallbackInsufficient(t *testing.T) {
	p := Planner{TitleDuration: 3, FactDuration: 5, MinFacts: len(fallbackFacts) + 10}
	if _, err := p.Build(nil, "ocean"); err == nil {
		t.Fatal("expected error when even the fallback set cannot satisfy the minimum")
	}
}

func TestCapitalize(t *testing.T) {
	cases := []struct{ in, want string }{
		{"ocean", "Ocean"},
		{"  space ", "Space"},
		{"History", "History"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := Capitalize(tc.in); got != tc.want {
			t.Errorf("Capitalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
