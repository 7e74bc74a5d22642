package render

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWrapText(t *testing.T) {
	cases := []struct {
		name     string
		in       string
		maxChars int
		want     string
	}{
		{"short line untouched", "hello world", 45, "hello world"},
		{"wraps at limit", "aaaa bbbb cccc", 9, "aaaa bbbb\ncccc"},
		{"single long word split", "abcdefghij", 4, "abcd\nefgh\nij"},
		{"collapses whitespace", "  a   b \n c  ", 45, "a b c"},
		{"empty", "   ", 45, ""},
		{"zero max is passthrough", "a b", 0, "a b"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := WrapText(tc.in, tc.maxChars); got != tc.want {
				t.Errorf("WrapText(%q, %d) = %q, want %q", tc.in, tc.maxChars, got, tc.want)
			}
		})
	}
}

func TestWrapTextNeverExceedsLimit(t *testing.T) {
	text := "The quick brown fox jumps over the lazy dog repeatedly until wrapped"
	for _, max := range []int{10, 20, 45, 50} {
		for _, line := range strings.Split(WrapText(text, max), "\n") {
			if len(line) > max {
				t.Errorf("line %q exceeds %d chars", line, max)
			}
		}
	}
}

func testRenderer(run CommandRunner) Renderer {
	return Renderer{
		ConvertBinary:   "convert",
		Width:           1280,
		Height:          720,
		MaxCharsPerLine: 45,
		Timeout:         time.Second,
		Run:             run,
	}
}

// writingRunner pretends to be convert: it writes the last shell-quoted
// argument of the command as a non-empty file.
func writingRunner(t *testing.T) CommandRunner {
	t.Helper()
	return func(ctx context.Context, command string, timeout time.Duration) (string, error) {
		start := strings.LastIndex(command, "'")
		if start < 0 {
			t.Fatalf("no quoted output path in command %q", command)
		}
		rest := command[:start]
		open := strings.LastIndex(rest, "'")
		path := command[open+1 : start]
		if err := os.WriteFile(path, []byte("png"), 0o644); err != nil {
			return "", err
		}
		return "", nil
	}
}

func TestFrameWritesAtomically(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "frame_000001.png")

	var commands []string
	run := func(ctx context.Context, command string, timeout time.Duration) (string, error) {
		commands = append(commands, command)
		return writingRunner(t)(ctx, command, timeout)
	}

	res, err := testRenderer(run).Frame(context.Background(), "hello world", Style{
		BackgroundColor: "#1a1a2e", TextColor: "white", FontName: "DejaVu-Sans", FontSizePt: 40,
	}, out)
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	if res.Path != out {
		t.Errorf("result path = %q, want %q", res.Path, out)
	}
	if res.Degraded || res.Tier != "styled-text" {
		t.Errorf("expected styled tier, got %+v", res)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("frame not written: %v", err)
	}
	if len(commands) != 1 {
		t.Fatalf("expected 1 convert call, got %d", len(commands))
	}
	if !strings.Contains(commands[0], ".part") {
		t.Error("render must go through a temp file before the final path")
	}
	if !strings.Contains(commands[0], "-gravity 'center'") {
		t.Error("default gravity should be center")
	}
}

func TestFrameTempPathKeepsImageExtension(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "frame_000004.png")

	// convert resolves the output encoder from the target extension and
	// errors on anything it doesn't recognize, like a bare ".part" suffix.
	run := func(ctx context.Context, command string, timeout time.Duration) (string, error) {
		end := strings.LastIndex(command, "'")
		open := strings.LastIndex(command[:end], "'")
		path := command[open+1 : end]
		if !strings.HasSuffix(path, ".png") {
			return "", errors.New("convert: no encode delegate for this image format")
		}
		return "", os.WriteFile(path, []byte("png"), 0o644)
	}

	res, err := testRenderer(run).Frame(context.Background(), "hello", Style{
		BackgroundColor: "#1a1a2e", TextColor: "white", FontName: "DejaVu-Sans", FontSizePt: 40,
	}, out)
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	if res.Degraded || res.Tier != "styled-text" {
		t.Errorf("temp path broke the primary tier: %+v", res)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("frame not written: %v", err)
	}
}

func TestFrameFallsBackToPlainThenSolid(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "frame_000002.png")

	calls := 0
	run := func(ctx context.Context, command string, timeout time.Duration) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("convert: unable to read font")
		}
		return writingRunner(t)(ctx, command, timeout)
	}

	res, err := testRenderer(run).Frame(context.Background(), "unrenderable \x00 text", Style{
		BackgroundColor: "blue", TextColor: "white", FontName: "Missing-Font", FontSizePt: 40,
	}, out)
	if err != nil {
		t.Fatalf("Frame must not fail while the solid tier works: %v", err)
	}
	if !res.Degraded || res.Tier != "solid-background" {
		t.Errorf("expected degraded solid-background tier, got %+v", res)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("even the degraded tier must leave a frame on disk: %v", err)
	}
}

func TestFrameAllTiersFail(t *testing.T) {
	run := func(ctx context.Context, command string, timeout time.Duration) (string, error) {
		return "", errors.New("convert missing")
	}
	_, err := testRenderer(run).Frame(context.Background(), "text", Style{BackgroundColor: "blue"}, filepath.Join(t.TempDir(), "f.png"))
	if err == nil {
		t.Fatal("expected error when every render tier fails")
	}
}

func TestFrameRejectsEmptyOutput(t *testing.T) {
	// convert "succeeds" but writes a zero-byte file; the tier must fail and
	// escalate instead of accepting the stub.
	run := func(ctx context.Context, command string, timeout time.Duration) (string, error) {
		start := strings.LastIndex(command, "'")
		rest := command[:start]
		open := strings.LastIndex(rest, "'")
		return "", os.WriteFile(command[open+1:start], nil, 0o644)
	}
	_, err := testRenderer(run).Frame(context.Background(), "text", Style{BackgroundColor: "blue"}, filepath.Join(t.TempDir(), "f.png"))
	if err == nil {
		t.Fatal("zero-byte render output must be treated as a failure")
	}
}

func TestWrappedTextReachesConvert(t *testing.T) {
	dir := t.TempDir()
	long := strings.Repeat("word ", 30)
	var captured string
	run := func(ctx context.Context, command string, timeout time.Duration) (string, error) {
		captured = command
		return writingRunner(t)(ctx, command, timeout)
	}
	if _, err := testRenderer(run).Frame(context.Background(), long, Style{BackgroundColor: "blue", TextColor: "white", FontName: "X", FontSizePt: 40}, filepath.Join(dir, "f.png")); err != nil {
		t.Fatalf("Frame: %v", err)
	}
	if !strings.Contains(captured, "\n") {
		t.Error("long text should be wrapped before it is handed to convert")
	}
}
