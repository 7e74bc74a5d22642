// Package assemble encodes the materialized frame sequence into the final
// MP4. Assembly strategies form an explicit fallback chain: image-sequence
// encode, per-segment clip concatenation, then a solid-color placeholder so
// a run never ends without some valid artifact.
package assemble

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"factmill/manager-go/internal/fallback"
	"factmill/manager-go/internal/frames"
	"factmill/manager-go/internal/narrate"
	"factmill/manager-go/internal/segment"
	"factmill/manager-go/internal/utils"
)

type CommandRunner func(ctx context.Context, command string, timeout time.Duration) (string, error)

type Assembler struct {
	FFmpegBinary    string
	Width           int
	Height          int
	FrameRate       int
	MinVideoBytes   int64
	BackgroundColor string
	EncodeTimeout   time.Duration
	Run             CommandRunner
}

// Artifact is the terminal output of the assembly stage. Ownership passes to
// the upload boundary once produced.
type Artifact struct {
	VideoPath       string
	Strategy        string
	Degraded        bool
	DurationSeconds float64
	SizeBytes       int64
	AudioMuxed      bool
}

func (a Assembler) runner() CommandRunner {
	if a.Run != nil {
		return a.Run
	}
	return utils.RunCommand
}

// Assemble encodes the sequence (plus narration clips when present) to
// outPath. workDir holds intermediates and must be run-unique.
func (a Assembler) Assemble(ctx context.Context, plan segment.Plan, seq frames.SequenceResult, clips []narrate.Clip, workDir, outPath string) (Artifact, error) {
	silentPath := filepath.Join(workDir, "video_silent.mp4")

	strategies := []fallback.Strategy[string]{
		{
			Name: "image-sequence",
			Attempt: func(ctx context.Context) (string, error) {
				return a.encodeImageSequence(ctx, seq, silentPath)
			},
		},
		{
			Name: "segment-concat",
			Attempt: func(ctx context.Context) (string, error) {
				return a.encodeSegmentConcat(ctx, plan, seq, workDir, silentPath)
			},
		},
		{
			Name:     "placeholder",
			Degraded: true,
			Attempt: func(ctx context.Context) (string, error) {
				return a.encodePlaceholder(ctx, plan.TotalSeconds(), silentPath)
			},
		},
	}

	out, err := fallback.Run(ctx, strategies)
	if err != nil {
		return Artifact{}, fmt.Errorf("assemble: %w", err)
	}

	artifact := Artifact{
		VideoPath:       out.Value,
		Strategy:        out.Tier,
		Degraded:        out.Degraded || seq.Degraded,
		DurationSeconds: plan.TotalSeconds(),
	}

	finalPath := out.Value
	if len(clips) > 0 && !out.Degraded {
		muxed, err := a.muxNarration(ctx, out.Value, clips, workDir, outPath)
		if err != nil {
			utils.Warn("audio mux failed, keeping silent video", "err", err)
		} else {
			finalPath = muxed
			artifact.AudioMuxed = true
		}
	}
	if finalPath != outPath {
		if err := utils.CopyFile(finalPath, outPath); err != nil {
			return Artifact{}, fmt.Errorf("assemble: move artifact: %w", err)
		}
		finalPath = outPath
	}
	// The placeholder tier is exempt from the size threshold: a short run's
	// placeholder can legitimately be tiny, and the upload boundary refuses
	// degraded artifacts regardless.
	if out.Degraded {
		if utils.FileSize(finalPath) == 0 {
			return Artifact{}, fmt.Errorf("assemble: final artifact missing: %s", finalPath)
		}
	} else if err := a.validate(finalPath); err != nil {
		return Artifact{}, fmt.Errorf("assemble: final artifact: %w", err)
	}

	artifact.VideoPath = finalPath
	artifact.SizeBytes = utils.FileSize(finalPath)
	return artifact, nil
}

// encodeImageSequence is the preferred strategy: encode straight from the
// numbered frame files at the target rate.
func (a Assembler) encodeImageSequence(ctx context.Context, seq frames.SequenceResult, outPath string) (string, error) {
	if len(seq.Frames) == 0 {
		return "", fmt.Errorf("no frames to encode")
	}
	pattern := filepath.Join(filepath.Dir(seq.Frames[0].Path), "frame_%06d.png")
	cmd := fmt.Sprintf("%s -y -framerate %d -i %s -c:v libx264 -preset medium -crf 23 -pix_fmt yuv420p %s",
		a.FFmpegBinary,
		a.FrameRate,
		utils.ShellEscape(pattern),
		utils.ShellEscape(outPath),
	)
	if _, err := a.runner()(ctx, cmd, a.EncodeTimeout); err != nil {
		return "", err
	}
	if err := a.validate(outPath); err != nil {
		return "", err
	}
	return outPath, nil
}

// encodeSegmentConcat encodes one fixed-duration mini-clip per segment from
// its representative frame and concatenates them with the concat demuxer.
// Scaling every clip to the target geometry sidesteps the inconsistent
// frame dimension failures that break the image-sequence strategy.
func (a Assembler) encodeSegmentConcat(ctx context.Context, plan segment.Plan, seq frames.SequenceResult, workDir, outPath string) (string, error) {
	stills := make(map[int]string, len(plan.Segments))
	for _, d := range seq.Frames {
		if _, ok := stills[d.SegmentIndex]; !ok {
			stills[d.SegmentIndex] = d.Path
		}
	}

	var list strings.Builder
	for _, seg := range plan.Segments {
		still, ok := stills[seg.SequenceIndex]
		if !ok {
			return "", fmt.Errorf("segment %d has no rendered frame", seg.SequenceIndex)
		}
		partPath := filepath.Join(workDir, fmt.Sprintf("part_%03d.mp4", seg.SequenceIndex))
		cmd := fmt.Sprintf("%s -y -loop 1 -i %s -t %.3f -vf scale=%d:%d -c:v libx264 -preset medium -crf 23 -pix_fmt yuv420p -r %d %s",
			a.FFmpegBinary,
			utils.ShellEscape(still),
			seg.DurationSeconds,
			a.Width, a.Height,
			a.FrameRate,
			utils.ShellEscape(partPath),
		)
		if _, err := a.runner()(ctx, cmd, a.EncodeTimeout); err != nil {
			return "", fmt.Errorf("segment %d clip: %w", seg.SequenceIndex, err)
		}
		fmt.Fprintf(&list, "file '%s'\n", partPath)
	}

	listPath := filepath.Join(workDir, "segments.txt")
	if err := os.WriteFile(listPath, []byte(list.String()), 0o644); err != nil {
		return "", err
	}

	cmd := fmt.Sprintf("%s -y -f concat -safe 0 -i %s -c copy %s",
		a.FFmpegBinary,
		utils.ShellEscape(listPath),
		utils.ShellEscape(outPath),
	)
	if _, err := a.runner()(ctx, cmd, a.EncodeTimeout); err != nil {
		return "", err
	}
	if err := a.validate(outPath); err != nil {
		return "", err
	}
	return outPath, nil
}

// encodePlaceholder emits a solid-color video of the planned duration. The
// caller sees Degraded=true and the upload boundary refuses to publish it.
func (a Assembler) encodePlaceholder(ctx context.Context, seconds float64, outPath string) (string, error) {
	color := a.BackgroundColor
	if color == "" {
		color = "blue"
	}
	cmd := fmt.Sprintf("%s -y -f lavfi -i color=c=%s:s=%dx%d:d=%.3f -c:v libx264 -pix_fmt yuv420p %s",
		a.FFmpegBinary,
		utils.ShellEscape(color),
		a.Width, a.Height,
		seconds,
		utils.ShellEscape(outPath),
	)
	if _, err := a.runner()(ctx, cmd, a.EncodeTimeout); err != nil {
		return "", err
	}
	if utils.FileSize(outPath) == 0 {
		return "", fmt.Errorf("placeholder encode produced nothing")
	}
	return outPath, nil
}

// muxNarration concatenates the clips and muxes them under the video stream.
// Video is stream-copied, never re-encoded, and the result is trimmed to the
// shorter stream.
func (a Assembler) muxNarration(ctx context.Context, videoPath string, clips []narrate.Clip, workDir, outPath string) (string, error) {
	var list strings.Builder
	for _, clip := range clips {
		fmt.Fprintf(&list, "file '%s'\n", clip.Path)
	}
	listPath := filepath.Join(workDir, "narration.txt")
	if err := os.WriteFile(listPath, []byte(list.String()), 0o644); err != nil {
		return "", err
	}

	narrationPath := filepath.Join(workDir, "narration.wav")
	cmd := fmt.Sprintf("%s -y -f concat -safe 0 -i %s -c copy %s",
		a.FFmpegBinary,
		utils.ShellEscape(listPath),
		utils.ShellEscape(narrationPath),
	)
	if _, err := a.runner()(ctx, cmd, a.EncodeTimeout); err != nil {
		return "", fmt.Errorf("concat narration: %w", err)
	}

	cmd = fmt.Sprintf("%s -y -i %s -i %s -c:v copy -c:a aac -shortest %s",
		a.FFmpegBinary,
		utils.ShellEscape(videoPath),
		utils.ShellEscape(narrationPath),
		utils.ShellEscape(outPath),
	)
	if _, err := a.runner()(ctx, cmd, a.EncodeTimeout); err != nil {
		return "", fmt.Errorf("mux narration: %w", err)
	}
	if err := a.validate(outPath); err != nil {
		return "", err
	}
	return outPath, nil
}

// validate is the "is this a real encoded video" proxy: the file must exist
// and exceed the minimum byte threshold, else the tier fails and the chain
// escalates.
func (a Assembler) validate(path string) error {
	size := utils.FileSize(path)
	if size == 0 {
		return fmt.Errorf("output missing or empty: %s", path)
	}
	if size < a.MinVideoBytes {
		return fmt.Errorf("output %s is %d bytes, below minimum %d", path, size, a.MinVideoBytes)
	}
	return nil
}
