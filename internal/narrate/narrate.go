// Package narrate synthesizes per-segment speech with espeak. A failed
// synthesis is replaced by a silent clip of the segment's planned duration so
// the audio clip list always stays one-to-one with the segment list. Every
// clip is normalized to the same codec/sample layout before concatenation;
// mixed formats corrupt the concatenated stream.
package narrate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"factmill/manager-go/internal/segment"
	"factmill/manager-go/internal/utils"
)

type CommandRunner func(ctx context.Context, command string, timeout time.Duration) (string, error)

type Clip struct {
	Path            string
	SegmentIndex    int
	DurationSeconds float64
	Silent          bool
}

type Narrator struct {
	EspeakBinary string
	Voice        string
	Speed        int
	MaxChars     int
	FFmpegBinary string
	TTSTimeout   time.Duration
	Run          CommandRunner
}

type NarrationResult struct {
	Clips []Clip
	// Degraded is set when at least one segment got silence instead of speech.
	Degraded bool
}

func (n Narrator) runner() CommandRunner {
	if n.Run != nil {
		return n.Run
	}
	return utils.RunCommand
}

// Narrate produces one normalized WAV clip per segment, in segment order.
func (n Narrator) Narrate(ctx context.Context, plan segment.Plan, dir string) (NarrationResult, error) {
	if err := utils.EnsureDir(dir); err != nil {
		return NarrationResult{}, err
	}

	result := NarrationResult{Clips: make([]Clip, 0, len(plan.Segments))}
	for _, seg := range plan.Segments {
		clipPath := filepath.Join(dir, fmt.Sprintf("clip_%03d.wav", seg.SequenceIndex))
		if err := n.speak(ctx, seg.DisplayText, clipPath); err != nil {
			utils.Warn("tts failed, substituting silence",
				"segment", seg.SequenceIndex, "err", err)
			if err := n.silence(ctx, seg.DurationSeconds, clipPath); err != nil {
				return NarrationResult{}, fmt.Errorf("narrate segment %d: silence fallback: %w", seg.SequenceIndex, err)
			}
			result.Degraded = true
			result.Clips = append(result.Clips, Clip{
				Path:            clipPath,
				SegmentIndex:    seg.SequenceIndex,
				DurationSeconds: seg.DurationSeconds,
				Silent:          true,
			})
			continue
		}
		result.Clips = append(result.Clips, Clip{
			Path:            clipPath,
			SegmentIndex:    seg.SequenceIndex,
			DurationSeconds: seg.DurationSeconds,
		})
	}
	return result, nil
}

// speak synthesizes to a raw wav and normalizes it to pcm_s16le/22050/mono.
func (n Narrator) speak(ctx context.Context, text, clipPath string) error {
	text = TruncateForTTS(text, n.MaxChars)
	if text == "" {
		return fmt.Errorf("no speakable text")
	}

	rawPath := filepath.Join(filepath.Dir(clipPath), "raw-"+filepath.Base(clipPath))
	defer func() {
		_ = os.Remove(rawPath)
	}()

	cmd := fmt.Sprintf("%s -v %s -s %d -w %s %s",
		n.EspeakBinary,
		utils.ShellEscape(n.Voice),
		n.Speed,
		utils.ShellEscape(rawPath),
		utils.ShellEscape(text),
	)
	if _, err := n.runner()(ctx, cmd, n.TTSTimeout); err != nil {
		return err
	}
	if utils.FileSize(rawPath) == 0 {
		return fmt.Errorf("espeak produced no audio at %s", rawPath)
	}

	cmd = fmt.Sprintf("%s -y -i %s -ar 22050 -ac 1 -acodec pcm_s16le %s",
		n.FFmpegBinary,
		utils.ShellEscape(rawPath),
		utils.ShellEscape(clipPath),
	)
	if _, err := n.runner()(ctx, cmd, n.TTSTimeout); err != nil {
		return err
	}
	if utils.FileSize(clipPath) == 0 {
		return fmt.Errorf("normalization produced no audio at %s", clipPath)
	}
	return nil
}

func (n Narrator) silence(ctx context.Context, seconds float64, clipPath string) error {
	cmd := fmt.Sprintf("%s -y -f lavfi -i anullsrc=r=22050:cl=mono -t %.3f -acodec pcm_s16le %s",
		n.FFmpegBinary,
		seconds,
		utils.ShellEscape(clipPath),
	)
	_, err := n.runner()(ctx, cmd, n.TTSTimeout)
	return err
}

// TruncateForTTS clips text to maxChars at a word boundary. Pathologically
// long inputs otherwise produce synthesis runs measured in minutes.
func TruncateForTTS(text string, maxChars int) string {
	text = strings.TrimSpace(text)
	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}
	cut := text[:maxChars]
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut)
}
