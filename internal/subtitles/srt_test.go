package subtitles

import (
	"testing"

	"factmill/manager-go/internal/segment"
)

func TestFormatTimestamp(t *testing.T) {
	cases := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00:00,000"},
		{3, "00:00:03,000"},
		{28, "00:00:28,000"},
		{63.5, "00:01:03,500"},
		{3600.25, "01:00:00,250"},
	}
	for _, tc := range cases {
		if got := FormatTimestamp(tc.seconds); got != tc.want {
			t.Errorf("FormatTimestamp(%v) = %q, want %q", tc.seconds, got, tc.want)
		}
	}
}

func TestFromPlanContinuousTimeline(t *testing.T) {
	plan, err := segment.Planner{TitleDuration: 3, FactDuration: 5, MinFacts: 1}.
		Build([]string{"fact one", "fact two"}, "ocean")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	captions := FromPlan(plan)
	if len(captions) != 3 {
		t.Fatalf("got %d captions, want 3", len(captions))
	}
	if captions[0].StartTime != "00:00:00,000" || captions[0].EndTime != "00:00:03,000" {
		t.Errorf("title caption timing wrong: %+v", captions[0])
	}
	for i := 1; i < len(captions); i++ {
		if captions[i].StartTime != captions[i-1].EndTime {
			t.Errorf("caption %d starts at %s but previous ends at %s; timeline must be gapless",
				i, captions[i].StartTime, captions[i-1].EndTime)
		}
	}
	if captions[2].EndTime != "00:00:13,000" {
		t.Errorf("last caption ends at %s, want 00:00:13,000", captions[2].EndTime)
	}
	if captions[1].Text != "fact one" {
		t.Errorf("caption text = %q", captions[1].Text)
	}
}

func TestSerializeParseRoundTrip(t *testing.T) {
	captions := []Caption{
		{StartTime: "00:00:00,000", EndTime: "00:00:03,000", Text: "3 Amazing Ocean Facts"},
		{StartTime: "00:00:03,000", EndTime: "00:00:08,000", Text: "Fact line\nsecond line"},
	}
	parsed := ParseSRT(SerializeSRT(captions))
	if len(parsed) != len(captions) {
		t.Fatalf("round trip lost captions: %d != %d", len(parsed), len(captions))
	}
	for i := range captions {
		if parsed[i] != captions[i] {
			t.Errorf("caption %d = %+v, want %+v", i, parsed[i], captions[i])
		}
	}
}

func TestParseSRTSkipsMalformedBlocks(t *testing.T) {
	input := "1\n00:00:00,000 --> 00:00:03,000\nok\n\ngarbage block\n\n2\nnot a time range\ntext\n"
	captions := ParseSRT(input)
	if len(captions) != 1 || captions[0].Text != "ok" {
		t.Errorf("expected only the valid block, got %+v", captions)
	}
}
