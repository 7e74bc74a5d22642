// Package frames expands planned segments into the globally ordered frame
// sequence the assembler encodes from. The ordering lives in an explicit
// in-memory descriptor list; filenames are zero-padded so that glob-style
// assembly also sorts correctly, but nothing depends on filesystem order.
package frames

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"factmill/manager-go/internal/render"
	"factmill/manager-go/internal/segment"
	"factmill/manager-go/internal/utils"
	"factmill/manager-go/internal/worker"
)

// FrameRenderer is the slice of render.Renderer the sequencer needs.
type FrameRenderer interface {
	Frame(ctx context.Context, text string, style render.Style, outPath string) (render.Result, error)
}

type Descriptor struct {
	Index          int
	SegmentIndex   int
	FrameInSegment int
	Path           string
}

type Sequencer struct {
	Renderer  FrameRenderer
	FrameRate int
	Style     render.Style
	// Animated renders every frame with a simulated text fade-in instead of
	// repeating one still per segment. Falls back to static per segment.
	Animated bool
	Workers  int
}

// SequenceResult carries the materialized descriptors plus whether any
// segment had to degrade below the requested content mode.
type SequenceResult struct {
	Frames   []Descriptor
	Degraded bool
}

// FramesForDuration is the per-segment frame count invariant.
func FramesForDuration(seconds float64, fps int) int {
	n := int(math.Round(seconds * float64(fps)))
	if n < 1 {
		n = 1
	}
	return n
}

// Plan builds the full descriptor list for a segment plan without touching
// the filesystem. Frame indices are global across all segments.
func (s Sequencer) Plan(plan segment.Plan, dir string) []Descriptor {
	var descriptors []Descriptor
	next := 0
	for _, seg := range plan.Segments {
		count := FramesForDuration(seg.DurationSeconds, s.FrameRate)
		for i := 0; i < count; i++ {
			descriptors = append(descriptors, Descriptor{
				Index:          next,
				SegmentIndex:   seg.SequenceIndex,
				FrameInSegment: i,
				Path:           filepath.Join(dir, fmt.Sprintf("frame_%06d.png", next)),
			})
			next++
		}
	}
	return descriptors
}

// Materialize renders the descriptor list to disk. Segments render through a
// bounded worker pool; each segment owns a disjoint slice of descriptors so
// no coordination beyond the pool is needed.
func (s Sequencer) Materialize(ctx context.Context, plan segment.Plan, dir string) (SequenceResult, error) {
	if err := utils.EnsureDir(dir); err != nil {
		return SequenceResult{}, err
	}

	descriptors := s.Plan(plan, dir)
	bySegment := make(map[int][]Descriptor)
	for _, d := range descriptors {
		bySegment[d.SegmentIndex] = append(bySegment[d.SegmentIndex], d)
	}

	workers := s.Workers
	if workers <= 0 {
		workers = 1
	}
	pool := worker.NewPool(ctx, workers)
	pool.Start()

	degraded := make([]bool, len(plan.Segments))
	for i, seg := range plan.Segments {
		i, seg := i, seg
		run := bySegment[seg.SequenceIndex]
		pool.Submit(func(ctx context.Context) error {
			d, err := s.materializeSegment(ctx, seg, run)
			degraded[i] = d
			return err
		})
	}
	if errs := pool.Wait(); len(errs) > 0 {
		return SequenceResult{}, fmt.Errorf("frames: %d segment(s) failed: %w", len(errs), errs[0])
	}

	anyDegraded := false
	for _, d := range degraded {
		anyDegraded = anyDegraded || d
	}

	sort.Slice(descriptors, func(a, b int) bool { return descriptors[a].Index < descriptors[b].Index })
	return SequenceResult{Frames: descriptors, Degraded: anyDegraded}, nil
}

func (s Sequencer) materializeSegment(ctx context.Context, seg segment.Segment, run []Descriptor) (bool, error) {
	if len(run) == 0 {
		return false, nil
	}

	if s.Animated {
		if err := s.renderAnimated(ctx, seg, run); err == nil {
			return false, nil
		} else {
			utils.Warn("animated render failed partway, falling back to static",
				"segment", seg.SequenceIndex, "err", err)
		}
	}

	return s.renderStatic(ctx, seg, run)
}

// renderStatic renders one still and repeats it for the whole segment run.
// Hard links keep the repeat cheap; copy is the fallback across filesystems.
func (s Sequencer) renderStatic(ctx context.Context, seg segment.Segment, run []Descriptor) (bool, error) {
	first := run[0]
	res, err := s.Renderer.Frame(ctx, seg.DisplayText, s.Style, first.Path)
	if err != nil {
		return false, fmt.Errorf("segment %d frame 0: %w", seg.SequenceIndex, err)
	}
	for _, d := range run[1:] {
		_ = os.Remove(d.Path)
		if err := os.Link(first.Path, d.Path); err != nil {
			if err := utils.CopyFile(first.Path, d.Path); err != nil {
				return res.Degraded, fmt.Errorf("segment %d frame %d: %w", seg.SequenceIndex, d.FrameInSegment, err)
			}
		}
	}
	return res.Degraded, nil
}

// renderAnimated renders each frame individually with the text fading in over
// the first half second. Any failure aborts and the caller re-renders the
// whole segment statically, so a partial animated run never leaks into the
// sequence.
func (s Sequencer) renderAnimated(ctx context.Context, seg segment.Segment, run []Descriptor) error {
	fadeFrames := s.FrameRate / 2
	if fadeFrames < 1 {
		fadeFrames = 1
	}
	for _, d := range run {
		style := s.Style
		alpha := float64(d.FrameInSegment+1) / float64(fadeFrames)
		if alpha > 1 {
			alpha = 1
		}
		style.TextColor = FadeColor(s.Style.TextColor, alpha)
		if _, err := s.Renderer.Frame(ctx, seg.DisplayText, style, d.Path); err != nil {
			return fmt.Errorf("frame %d: %w", d.FrameInSegment, err)
		}
	}
	return nil
}
