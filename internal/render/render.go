// Package render turns a text string plus style parameters into a still
// frame image via ImageMagick. Rendering never dead-ends the pipeline: a
// failed styled render degrades to a plain render, then to a bare
// background-color frame.
package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"factmill/manager-go/internal/fallback"
	"factmill/manager-go/internal/utils"
)

// CommandRunner matches utils.RunCommand and is injectable for tests.
type CommandRunner func(ctx context.Context, command string, timeout time.Duration) (string, error)

type Style struct {
	BackgroundColor string
	TextColor       string
	FontName        string
	FontSizePt      int
	// Gravity is the ImageMagick anchor for the text block, "center" when empty.
	Gravity string
}

type Renderer struct {
	ConvertBinary   string
	Width           int
	Height          int
	MaxCharsPerLine int
	Timeout         time.Duration
	Run             CommandRunner
}

// Result reports where the frame landed and whether a degraded tier was used.
type Result struct {
	Path     string
	Tier     string
	Degraded bool
}

func (r Renderer) runner() CommandRunner {
	if r.Run != nil {
		return r.Run
	}
	return utils.RunCommand
}

// Frame renders text to outPath. It writes through a temp file in the same
// directory and renames into place so a crashed convert never leaves a
// truncated frame in the sequence.
func (r Renderer) Frame(ctx context.Context, text string, style Style, outPath string) (Result, error) {
	wrapped := WrapText(text, r.MaxCharsPerLine)
	gravity := style.Gravity
	if gravity == "" {
		gravity = "center"
	}

	strategies := []fallback.Strategy[string]{
		{
			Name: "styled-text",
			Attempt: func(ctx context.Context) (string, error) {
				return r.renderToTmp(ctx, outPath, r.styledArgs(wrapped, style, gravity))
			},
		},
		{
			Name: "plain-text",
			Attempt: func(ctx context.Context) (string, error) {
				return r.renderToTmp(ctx, outPath, r.plainArgs(wrapped, style, gravity))
			},
		},
		{
			Name:     "solid-background",
			Degraded: true,
			Attempt: func(ctx context.Context) (string, error) {
				return r.renderToTmp(ctx, outPath, r.solidArgs(style))
			},
		},
	}

	out, err := fallback.Run(ctx, strategies)
	if err != nil {
		return Result{}, fmt.Errorf("render frame: %w", err)
	}
	return Result{Path: out.Value, Tier: out.Tier, Degraded: out.Degraded}, nil
}

// Solid renders a bare background frame directly, skipping the text tiers.
// The sequencer uses it when it needs a guaranteed frame.
func (r Renderer) Solid(ctx context.Context, style Style, outPath string) error {
	_, err := r.renderToTmp(ctx, outPath, r.solidArgs(style))
	return err
}

func (r Renderer) renderToTmp(ctx context.Context, outPath, args string) (string, error) {
	// convert picks its encoder from the output extension, so the temp name
	// must keep it: frame_000001.png writes through .frame_000001.part.png.
	base := filepath.Base(outPath)
	ext := filepath.Ext(base)
	tmpPath := filepath.Join(filepath.Dir(outPath), "."+strings.TrimSuffix(base, ext)+".part"+ext)
	cmd := fmt.Sprintf("%s %s %s", r.ConvertBinary, args, utils.ShellEscape(tmpPath))
	if _, err := r.runner()(ctx, cmd, r.Timeout); err != nil {
		_ = os.Remove(tmpPath)
		return "", err
	}
	if utils.FileSize(tmpPath) == 0 {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("convert produced an empty frame at %s", tmpPath)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", err
	}
	return outPath, nil
}

func (r Renderer) styledArgs(wrapped string, style Style, gravity string) string {
	return fmt.Sprintf(
		"-size %dx%d xc:%s -gravity %s -font %s -pointsize %d -fill %s -annotate +0+0 %s",
		r.Width, r.Height,
		utils.ShellEscape(style.BackgroundColor),
		utils.ShellEscape(gravity),
		utils.ShellEscape(style.FontName),
		style.FontSizePt,
		utils.ShellEscape(style.TextColor),
		utils.ShellEscape(wrapped),
	)
}

// plainArgs drops the font selection, the usual culprit when convert crashes
// on a host with a different font inventory.
func (r Renderer) plainArgs(wrapped string, style Style, gravity string) string {
	return fmt.Sprintf(
		"-size %dx%d xc:%s -gravity %s -pointsize %d -fill %s -annotate +0+0 %s",
		r.Width, r.Height,
		utils.ShellEscape(style.BackgroundColor),
		utils.ShellEscape(gravity),
		style.FontSizePt,
		utils.ShellEscape(style.TextColor),
		utils.ShellEscape(wrapped),
	)
}

func (r Renderer) solidArgs(style Style) string {
	return fmt.Sprintf("-size %dx%d xc:%s", r.Width, r.Height, utils.ShellEscape(style.BackgroundColor))
}
