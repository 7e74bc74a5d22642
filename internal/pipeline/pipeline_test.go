package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"factmill/manager-go/internal/config"
	"factmill/manager-go/internal/render"
	"factmill/manager-go/internal/segment"
	"factmill/manager-go/internal/subtitles"
)

type fakeRenderer struct{}

func (fakeRenderer) Frame(_ context.Context, _ string, _ render.Style, outPath string) (render.Result, error) {
	if err := os.WriteFile(outPath, []byte("png"), 0o644); err != nil {
		return render.Result{}, err
	}
	return render.Result{Path: outPath, Tier: "styled-text"}, nil
}

func lastQuoted(command string) string {
	end := strings.LastIndex(command, "'")
	if end < 0 {
		return ""
	}
	start := strings.LastIndex(command[:end], "'")
	return command[start+1 : end]
}

func ffmpegStub(ctx context.Context, command string, timeout time.Duration) (string, error) {
	path := lastQuoted(command)
	if path == "" {
		return "", errors.New("no output path")
	}
	return "", os.WriteFile(path, bytes.Repeat([]byte("v"), 20_000), 0o644)
}

func testGenerator(t *testing.T) *Generator {
	t.Helper()
	cfg := config.Config{
		BaseOutputFolder:     t.TempDir(),
		VideoWidth:           640,
		VideoHeight:          360,
		FrameRate:            2,
		TitleDurationSeconds: 3,
		FactDurationSeconds:  5,
		MinVideoBytes:        1024,
		MinFacts:             5,
		BackgroundColor:      "#1a1a2e",
		TextColor:            "white",
		RenderWorkers:        2,
		NarrationEnabled:     false,
	}
	g := New(cfg)
	g.Sequencer.Renderer = fakeRenderer{}
	g.Assembler.Run = ffmpegStub
	return g
}

func oceanFacts() []string {
	return []string{
		"The Pacific Ocean covers about 30% of Earth's surface.",
		"Over 80% of the ocean remains unexplored.",
		"The deepest point is nearly 11 kilometers down.",
		"Most of Earth's oxygen comes from ocean plankton.",
		"The longest mountain range on Earth is underwater.",
	}
}

func TestRunProducesArtifactAndSidecars(t *testing.T) {
	g := testGenerator(t)
	facts := oceanFacts()

	artifact, err := g.Run(context.Background(), facts, "ocean")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if artifact.Title != "5 Amazing Ocean Facts" {
		t.Errorf("title = %q", artifact.Title)
	}
	if _, err := os.Stat(artifact.VideoPath); err != nil {
		t.Errorf("video missing: %v", err)
	}
	if artifact.Degraded {
		t.Error("healthy run must not be degraded")
	}

	desc, err := os.ReadFile(artifact.DescriptionPath)
	if err != nil {
		t.Fatalf("description missing: %v", err)
	}
	text := string(desc)
	if !strings.HasPrefix(text, "5 Amazing Ocean Facts\n") {
		t.Errorf("description must lead with the title: %q", text)
	}
	for i, fact := range facts {
		line := fmt.Sprintf("Fact %d: %s", i+1, fact)
		if strings.Count(text, line) != 1 {
			t.Errorf("description must contain %q exactly once", line)
		}
	}
	for i := 1; i < len(facts); i++ {
		prev := strings.Index(text, fmt.Sprintf("Fact %d:", i))
		next := strings.Index(text, fmt.Sprintf("Fact %d:", i+1))
		if prev < 0 || next < 0 || prev > next {
			t.Errorf("facts out of input order around Fact %d", i)
		}
	}

	srtData, err := os.ReadFile(artifact.SubtitlesPath)
	if err != nil {
		t.Fatalf("subtitles missing: %v", err)
	}
	captions := subtitles.ParseSRT(string(srtData))
	if len(captions) != 6 {
		t.Errorf("expected 6 captions (title + 5 facts), got %d", len(captions))
	}

	workRoot := filepath.Join(g.Config.BaseOutputFolder, "work")
	entries, _ := os.ReadDir(workRoot)
	if len(entries) != 0 {
		t.Errorf("workdir not cleaned up: %v", entries)
	}
}

func TestRunDurationMatchesPlan(t *testing.T) {
	g := testGenerator(t)
	artifact, err := g.Run(context.Background(), oceanFacts(), "ocean")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := 3 + 5*5.0
	if artifact.Video.DurationSeconds != want {
		t.Errorf("duration = %v, want %v", artifact.Video.DurationSeconds, want)
	}
}

func TestRunPadsShortFactList(t *testing.T) {
	g := testGenerator(t)
	artifact, err := g.Run(context.Background(), []string{"Only one real fact about space here."}, "space")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if artifact.Title != "5 Amazing Space Facts" {
		t.Errorf("padded run title = %q", artifact.Title)
	}
}

func TestRunFailureWritesErrorLogAndCleansUp(t *testing.T) {
	g := testGenerator(t)
	g.Assembler.Run = func(_ context.Context, _ string, _ time.Duration) (string, error) {
		return "", errors.New("encoder exploded")
	}

	_, err := g.Run(context.Background(), oceanFacts(), "ocean")
	if err == nil {
		t.Fatal("expected run failure")
	}

	entries, readErr := os.ReadDir(g.OutputDir)
	if readErr != nil {
		t.Fatalf("output dir: %v", readErr)
	}
	found := false
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".error.json") {
			found = true
			data, _ := os.ReadFile(filepath.Join(g.OutputDir, e.Name()))
			if !strings.Contains(string(data), "encoder exploded") {
				t.Errorf("error log missing cause: %s", data)
			}
		}
	}
	if !found {
		t.Error("no error log artifact written")
	}

	workRoot := filepath.Join(g.Config.BaseOutputFolder, "work")
	workEntries, _ := os.ReadDir(workRoot)
	if len(workEntries) != 0 {
		t.Errorf("workdir must be cleaned up after failure: %v", workEntries)
	}
}

func TestRunUniqueRunIDs(t *testing.T) {
	g := testGenerator(t)
	a, err := g.Run(context.Background(), oceanFacts(), "ocean")
	if err != nil {
		t.Fatal(err)
	}
	b, err := g.Run(context.Background(), oceanFacts(), "ocean")
	if err != nil {
		t.Fatal(err)
	}
	if a.RunID == b.RunID {
		t.Errorf("run IDs must be unique, both %q", a.RunID)
	}
	if a.VideoPath == b.VideoPath {
		t.Errorf("video paths must be unique, both %q", a.VideoPath)
	}
}

func TestNewWiresRenderWorkers(t *testing.T) {
	g := testGenerator(t)
	if g.Sequencer.Workers != 2 {
		t.Errorf("sequencer workers = %d, want the configured 2", g.Sequencer.Workers)
	}
}

func TestDescription(t *testing.T) {
	plan, err := segment.Planner{TitleDuration: 3, FactDuration: 5, MinFacts: 1}.
		Build([]string{"first fact", "second fact"}, "ocean")
	if err != nil {
		t.Fatal(err)
	}
	got := Description(plan)
	want := "2 Amazing Ocean Facts\n\nFact 1: first fact\nFact 2: second fact\n"
	if got != want {
		t.Errorf("Description = %q, want %q", got, want)
	}
}

func TestTags(t *testing.T) {
	got := Tags("Ocean")
	want := []string{"facts", "trivia", "ocean", "ocean facts"}
	if len(got) != len(want) {
		t.Fatalf("Tags = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Tags[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
