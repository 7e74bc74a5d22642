package assemble

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

	"factmill/manager-go/internal/frames"
	"factmill/manager-go/internal/narrate"
	"factmill/manager-go/internal/segment"
)

func testAssembler(run CommandRunner) Assembler {
	return Assembler{
		FFmpegBinary:    "ffmpeg",
		Width:           1280,
		Height:          720,
		FrameRate:       30,
		MinVideoBytes:   64,
		BackgroundColor: "#1a1a2e",
		EncodeTimeout:   time.Second,
		Run:             run,
	}
}

func testPlan(t *testing.T) segment.Plan {
	t.Helper()
	plan, err := segment.Planner{TitleDuration: 3, FactDuration: 5, MinFacts: 1}.
		Build([]string{"fact one", "fact two"}, "ocean")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return plan
}

func testSequence(t *testing.T, dir string, plan segment.Plan) frames.SequenceResult {
	t.Helper()
	seq := frames.Sequencer{FrameRate: 30}
	descriptors := seq.Plan(plan, dir)
	for _, d := range descriptors {
		if err := os.WriteFile(d.Path, []byte("png"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return frames.SequenceResult{Frames: descriptors}
}

func lastQuoted(command string) string {
	end := strings.LastIndex(command, "'")
	if end < 0 {
		return ""
	}
	start := strings.LastIndex(command[:end], "'")
	return command[start+1 : end]
}

// ffmpegStub writes a fat output file for every command, recording them.
func ffmpegStub(commands *[]string) CommandRunner {
	return func(ctx context.Context, command string, timeout time.Duration) (string, error) {
		*commands = append(*commands, command)
		path := lastQuoted(command)
		if path == "" {
			return "", errors.New("no output path")
		}
		return "", os.WriteFile(path, bytes.Repeat([]byte("v"), 4096), 0o644)
	}
}

func TestAssembleImageSequencePreferred(t *testing.T) {
	dir := t.TempDir()
	plan := testPlan(t)
	seq := testSequence(t, dir, plan)
	outPath := filepath.Join(dir, "final.mp4")

	var commands []string
	artifact, err := testAssembler(ffmpegStub(&commands)).Assemble(context.Background(), plan, seq, nil, dir, outPath)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if artifact.Strategy != "image-sequence" {
		t.Errorf("strategy = %q, want image-sequence", artifact.Strategy)
	}
	if artifact.Degraded {
		t.Error("artifact should not be degraded")
	}
	if artifact.VideoPath != outPath {
		t.Errorf("video path = %q, want %q", artifact.VideoPath, outPath)
	}
	if artifact.DurationSeconds != 13 {
		t.Errorf("planned duration = %v, want 13", artifact.DurationSeconds)
	}
	if artifact.SizeBytes < 64 {
		t.Errorf("artifact size = %d", artifact.SizeBytes)
	}
	if len(commands) != 1 {
		t.Fatalf("expected a single encode, got %d commands", len(commands))
	}
	cmd := commands[0]
	if !strings.Contains(cmd, "frame_%06d.png") {
		t.Errorf("encode must consume the numbered sequence: %q", cmd)
	}
	if !strings.Contains(cmd, "-framerate 30") || !strings.Contains(cmd, "-pix_fmt yuv420p") {
		t.Errorf("encode missing rate or pixel format pin: %q", cmd)
	}
}

func TestAssembleFallsBackToSegmentConcat(t *testing.T) {
	dir := t.TempDir()
	plan := testPlan(t)
	seq := testSequence(t, dir, plan)
	outPath := filepath.Join(dir, "final.mp4")

	var commands []string
	run := func(ctx context.Context, command string, timeout time.Duration) (string, error) {
		commands = append(commands, command)
		if strings.Contains(command, "frame_%06d.png") {
			return "", errors.New("inconsistent frame dimensions")
		}
		return "", os.WriteFile(lastQuoted(command), bytes.Repeat([]byte("v"), 4096), 0o644)
	}

	artifact, err := testAssembler(run).Assemble(context.Background(), plan, seq, nil, dir, outPath)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if artifact.Strategy != "segment-concat" {
		t.Errorf("strategy = %q, want segment-concat", artifact.Strategy)
	}
	if artifact.Degraded {
		t.Error("segment-concat output is real, not degraded")
	}

	// 1 failed sequence encode + 3 mini clips + 1 concat.
	if len(commands) != 5 {
		t.Fatalf("got %d commands: %v", len(commands), commands)
	}
	listData, err := os.ReadFile(filepath.Join(dir, "segments.txt"))
	if err != nil {
		t.Fatalf("concat list not written: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(listData)), "\n")
	if len(lines) != 3 {
		t.Errorf("concat list has %d entries, want 3", len(lines))
	}
	for i, line := range lines {
		want := fmt.Sprintf("file '%s'", filepath.Join(dir, fmt.Sprintf("part_%03d.mp4", i)))
		if line != want {
			t.Errorf("list line %d = %q, want %q", i, line, want)
		}
	}
}

func TestAssemblePlaceholderWhenAllElseFails(t *testing.T) {
	dir := t.TempDir()
	plan := testPlan(t)
	seq := testSequence(t, dir, plan)
	outPath := filepath.Join(dir, "final.mp4")

	run := func(ctx context.Context, command string, timeout time.Duration) (string, error) {
		if !strings.Contains(command, "lavfi") {
			return "", errors.New("encoder crashed")
		}
		return "", os.WriteFile(lastQuoted(command), bytes.Repeat([]byte("v"), 4096), 0o644)
	}

	artifact, err := testAssembler(run).Assemble(context.Background(), plan, seq, nil, dir, outPath)
	if err != nil {
		t.Fatalf("pipeline must never end without an artifact: %v", err)
	}
	if artifact.Strategy != "placeholder" || !artifact.Degraded {
		t.Errorf("expected degraded placeholder, got %+v", artifact)
	}
	if _, err := os.Stat(outPath); err != nil {
		t.Errorf("placeholder artifact missing: %v", err)
	}
}

func TestAssembleUndersizedPlaceholderStillDelivered(t *testing.T) {
	dir := t.TempDir()
	plan := testPlan(t)
	seq := testSequence(t, dir, plan)
	outPath := filepath.Join(dir, "final.mp4")

	run := func(ctx context.Context, command string, timeout time.Duration) (string, error) {
		if !strings.Contains(command, "lavfi") {
			return "", errors.New("encoder crashed")
		}
		// Placeholder comes out below MinVideoBytes.
		return "", os.WriteFile(lastQuoted(command), []byte("v"), 0o644)
	}

	artifact, err := testAssembler(run).Assemble(context.Background(), plan, seq, nil, dir, outPath)
	if err != nil {
		t.Fatalf("a tiny placeholder must still end the chain with an artifact: %v", err)
	}
	if artifact.Strategy != "placeholder" || !artifact.Degraded {
		t.Errorf("expected degraded placeholder, got %+v", artifact)
	}
	if _, err := os.Stat(outPath); err != nil {
		t.Errorf("placeholder artifact missing: %v", err)
	}
}

func TestAssembleUndersizedOutputEscalates(t *testing.T) {
	dir := t.TempDir()
	plan := testPlan(t)
	seq := testSequence(t, dir, plan)
	outPath := filepath.Join(dir, "final.mp4")

	var commands []string
	run := func(ctx context.Context, command string, timeout time.Duration) (string, error) {
		commands = append(commands, command)
		size := 4096
		if strings.Contains(command, "frame_%06d.png") {
			size = 8 // truncated stub, below MinVideoBytes
		}
		return "", os.WriteFile(lastQuoted(command), bytes.Repeat([]byte("v"), size), 0o644)
	}

	artifact, err := testAssembler(run).Assemble(context.Background(), plan, seq, nil, dir, outPath)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if artifact.Strategy != "segment-concat" {
		t.Errorf("undersized output must escalate to the next tier, got %q", artifact.Strategy)
	}
}

func TestAssembleMuxesNarration(t *testing.T) {
	dir := t.TempDir()
	plan := testPlan(t)
	seq := testSequence(t, dir, plan)
	outPath := filepath.Join(dir, "final.mp4")

	clips := make([]narrate.Clip, 0, 3)
	for i := 0; i < 3; i++ {
		clipPath := filepath.Join(dir, fmt.Sprintf("clip_%03d.wav", i))
		if err := os.WriteFile(clipPath, []byte("wav"), 0o644); err != nil {
			t.Fatal(err)
		}
		clips = append(clips, narrate.Clip{Path: clipPath, SegmentIndex: i, DurationSeconds: 5})
	}

	var commands []string
	artifact, err := testAssembler(ffmpegStub(&commands)).Assemble(context.Background(), plan, seq, clips, dir, outPath)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if !artifact.AudioMuxed {
		t.Error("narration clips present, audio should be muxed")
	}

	var muxCmd string
	for _, c := range commands {
		if strings.Contains(c, "-c:v copy") {
			muxCmd = c
		}
	}
	if muxCmd == "" {
		t.Fatal("no mux command issued")
	}
	if !strings.Contains(muxCmd, "-shortest") {
		t.Error("mux must trim to the shorter stream")
	}
	if !strings.Contains(muxCmd, "-c:a aac") {
		t.Error("mux should encode narration as aac")
	}
}

func TestAssembleMuxFailureKeepsSilentVideo(t *testing.T) {
	dir := t.TempDir()
	plan := testPlan(t)
	seq := testSequence(t, dir, plan)
	outPath := filepath.Join(dir, "final.mp4")

	clipPath := filepath.Join(dir, "clip_000.wav")
	if err := os.WriteFile(clipPath, []byte("wav"), 0o644); err != nil {
		t.Fatal(err)
	}
	clips := []narrate.Clip{{Path: clipPath, SegmentIndex: 0, DurationSeconds: 3}}

	run := func(ctx context.Context, command string, timeout time.Duration) (string, error) {
		if strings.Contains(command, "-c:v copy") {
			return "", errors.New("mux crashed")
		}
		return "", os.WriteFile(lastQuoted(command), bytes.Repeat([]byte("v"), 4096), 0o644)
	}

	artifact, err := testAssembler(run).Assemble(context.Background(), plan, seq, clips, dir, outPath)
	if err != nil {
		t.Fatalf("mux failure must not sink the pipeline: %v", err)
	}
	if artifact.AudioMuxed {
		t.Error("audio cannot be marked muxed after a mux failure")
	}
	if _, err := os.Stat(outPath); err != nil {
		t.Errorf("silent video should still be delivered: %v", err)
	}
}
