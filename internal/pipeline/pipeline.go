// Package pipeline drives one video run end to end: plan segments, render
// and sequence frames, narrate, assemble, and write the sidecar artifacts.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"factmill/manager-go/internal/assemble"
	"factmill/manager-go/internal/config"
	"factmill/manager-go/internal/frames"
	"factmill/manager-go/internal/narrate"
	"factmill/manager-go/internal/render"
	"factmill/manager-go/internal/segment"
	"factmill/manager-go/internal/subtitles"
	"factmill/manager-go/internal/utils"
)

// VideoArtifact is the complete output of one run: the video plus its
// sidecars, all in the run's output directory.
type VideoArtifact struct {
	RunID           string
	Title           string
	Category        string
	Tags            []string
	VideoPath       string
	DescriptionPath string
	SubtitlesPath   string
	Video           assemble.Artifact
	Narrated        bool
	Degraded        bool
}

// Generator owns the stage components for a run. Build one with New;
// tests swap individual stages.
type Generator struct {
	Config    config.Config
	Planner   segment.Planner
	Sequencer frames.Sequencer
	Narrator  narrate.Narrator
	Assembler assemble.Assembler
	OutputDir string
}

func New(cfg config.Config) *Generator {
	renderer := render.Renderer{
		ConvertBinary:   cfg.ConvertBinary,
		Width:           cfg.VideoWidth,
		Height:          cfg.VideoHeight,
		MaxCharsPerLine: cfg.MaxCharsPerLine,
		Timeout:         cfg.RenderTimeout,
	}
	return &Generator{
		Config: cfg,
		Planner: segment.Planner{
			TitleDuration: cfg.TitleDurationSeconds,
			FactDuration:  cfg.FactDurationSeconds,
			MinFacts:      cfg.MinFacts,
		},
		Sequencer: frames.Sequencer{
			Renderer:  renderer,
			FrameRate: cfg.FrameRate,
			Style: render.Style{
				BackgroundColor: cfg.BackgroundColor,
				TextColor:       cfg.TextColor,
				FontName:        cfg.FontName,
				FontSizePt:      cfg.FontSizePt,
			},
			Animated: cfg.AnimatedFrames,
			Workers:  cfg.RenderWorkers,
		},
		Narrator: narrate.Narrator{
			EspeakBinary: cfg.EspeakBinary,
			Voice:        cfg.EspeakVoice,
			Speed:        cfg.EspeakSpeed,
			MaxChars:     cfg.MaxTTSChars,
			FFmpegBinary: cfg.FFmpegBinary,
			TTSTimeout:   cfg.TTSTimeout,
		},
		Assembler: assemble.Assembler{
			FFmpegBinary:    cfg.FFmpegBinary,
			Width:           cfg.VideoWidth,
			Height:          cfg.VideoHeight,
			FrameRate:       cfg.FrameRate,
			MinVideoBytes:   cfg.MinVideoBytes,
			BackgroundColor: cfg.BackgroundColor,
			EncodeTimeout:   cfg.EncodeTimeout,
		},
		OutputDir: filepath.Join(cfg.BaseOutputFolder, "videos"),
	}
}

// Preflight verifies the external binaries the run will shell out to.
// Narration tools are only required when narration is enabled.
func (g *Generator) Preflight() error {
	required := []string{g.Config.ConvertBinary, g.Config.FFmpegBinary}
	if g.Config.NarrationEnabled {
		required = append(required, g.Config.EspeakBinary)
	}
	var missing []string
	for _, bin := range required {
		if !utils.CommandExists(bin) {
			missing = append(missing, bin)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("pipeline: missing binaries: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Run produces one video from the given facts. The working directory is
// unique per run so overlapping scheduled runs never collide, and it is
// removed whether the run succeeds or fails; only the artifact files under
// OutputDir survive. On failure an error log lands next to the artifacts.
func (g *Generator) Run(ctx context.Context, facts []string, category string) (VideoArtifact, error) {
	runID := uuid.NewString()
	workDir := filepath.Join(g.Config.BaseOutputFolder, "work", runID)

	artifact, err := g.run(ctx, runID, workDir, facts, category)
	if rmErr := os.RemoveAll(workDir); rmErr != nil {
		utils.Warn("workdir cleanup failed", "dir", workDir, "error", rmErr)
	}
	if err != nil {
		g.writeErrorLog(runID, category, err)
		return VideoArtifact{}, err
	}
	return artifact, nil
}

func (g *Generator) run(ctx context.Context, runID, workDir string, facts []string, category string) (VideoArtifact, error) {
	start := time.Now()
	utils.Info("video run starting", "run_id", runID, "category", category, "facts", len(facts))

	plan, err := g.Planner.Build(facts, category)
	if err != nil {
		return VideoArtifact{}, fmt.Errorf("plan segments: %w", err)
	}

	framesDir := filepath.Join(workDir, "frames")
	audioDir := filepath.Join(workDir, "audio")
	for _, dir := range []string{framesDir, audioDir, g.OutputDir} {
		if err := utils.EnsureDir(dir); err != nil {
			return VideoArtifact{}, err
		}
	}

	seq, err := g.Sequencer.Materialize(ctx, plan, framesDir)
	if err != nil {
		return VideoArtifact{}, fmt.Errorf("materialize frames: %w", err)
	}

	var clips []narrate.Clip
	narrated := false
	if g.Config.NarrationEnabled {
		narration, err := g.Narrator.Narrate(ctx, plan, audioDir)
		if err != nil {
			return VideoArtifact{}, fmt.Errorf("narrate: %w", err)
		}
		clips = narration.Clips
		narrated = !narration.Degraded
	}

	videoPath := filepath.Join(g.OutputDir, runID+".mp4")
	video, err := g.Assembler.Assemble(ctx, plan, seq, clips, workDir, videoPath)
	if err != nil {
		return VideoArtifact{}, fmt.Errorf("assemble video: %w", err)
	}

	descPath := filepath.Join(g.OutputDir, runID+".txt")
	if err := utils.WriteFileAtomic(descPath, []byte(Description(plan)), 0o644); err != nil {
		return VideoArtifact{}, fmt.Errorf("write description: %w", err)
	}

	srtPath := filepath.Join(g.OutputDir, runID+".srt")
	srt := subtitles.SerializeSRT(subtitles.FromPlan(plan))
	if err := utils.WriteFileAtomic(srtPath, []byte(srt), 0o644); err != nil {
		return VideoArtifact{}, fmt.Errorf("write subtitles: %w", err)
	}

	artifact := VideoArtifact{
		RunID:           runID,
		Title:           plan.Title,
		Category:        plan.Category,
		Tags:            Tags(plan.Category),
		VideoPath:       video.VideoPath,
		DescriptionPath: descPath,
		SubtitlesPath:   srtPath,
		Video:           video,
		Narrated:        narrated,
		Degraded:        video.Degraded,
	}
	utils.Info("video run complete",
		"run_id", runID,
		"video", video.VideoPath,
		"strategy", video.Strategy,
		"degraded", artifact.Degraded,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return artifact, nil
}

// Tags derives the upload keyword list from the category.
func Tags(category string) []string {
	tags := []string{"facts", "trivia"}
	category = strings.ToLower(strings.TrimSpace(category))
	if category != "" {
		tags = append(tags, category, category+" facts")
	}
	return tags
}

// Description builds the sidecar text: the title, then each fact on its own
// numbered line.
func Description(plan segment.Plan) string {
	var b strings.Builder
	b.WriteString(plan.Title)
	b.WriteString("\n")
	for i, fact := range plan.Facts() {
		fmt.Fprintf(&b, "\nFact %d: %s", i+1, fact)
	}
	b.WriteString("\n")
	return b.String()
}

type errorLog struct {
	RunID     string    `json:"run_id"`
	Category  string    `json:"category"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

func (g *Generator) writeErrorLog(runID, category string, runErr error) {
	if err := utils.EnsureDir(g.OutputDir); err != nil {
		utils.Warn("error log dir", "error", err)
		return
	}
	entry := errorLog{
		RunID:     runID,
		Category:  category,
		Error:     runErr.Error(),
		Timestamp: time.Now().UTC(),
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return
	}
	path := filepath.Join(g.OutputDir, runID+".error.json")
	if err := utils.WriteFileAtomic(path, data, 0o644); err != nil {
		utils.Warn("error log write failed", "path", path, "error", err)
		return
	}
	utils.Error("video run failed", "run_id", runID, "error", runErr, "log", path)
}
