package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"factmill/manager-go/internal/db"
	"factmill/manager-go/internal/pipeline"
	"factmill/manager-go/internal/utils"
)

// GenerateVideoJob renders the video for a reserved fact batch.
type GenerateVideoJob struct {
	BaseJob
}

func NewGenerateVideoJob() GenerateVideoJob {
	return GenerateVideoJob{
		BaseJob: BaseJob{
			QueueInput:  "video.generate",
			QueueOutput: "upload.youtube",
		},
	}
}

func (j GenerateVideoJob) Run(ctx context.Context, jctx JobContext, opts JobOptions) error {
	if opts.Queue {
		return j.RunQueue(ctx, jctx, opts, func(ctx context.Context, videoID int64, hostname string) error {
			return j.processVideo(ctx, jctx, videoID)
		})
	}

	videoID := opts.VideoID
	if videoID == 0 {
		video, err := j.selectNext(ctx, jctx)
		if err != nil {
			return err
		}
		videoID = video.ID
	}
	return j.processVideo(ctx, jctx, videoID)
}

func (j GenerateVideoJob) selectNext(ctx context.Context, jctx JobContext) (db.Video, error) {
	where := "WHERE " + db.StatusTrueCondition([]string{"facts_ready"})
	if notTrue := db.StatusNotTrueCondition([]string{"video_ready"}); notTrue != "" {
		where += " AND " + notTrue
	}
	video, err := jctx.Store.FindFirstVideo(ctx, where)
	if err != nil {
		return db.Video{}, err
	}
	if video.ID == 0 {
		return db.Video{}, errors.New("no video to process")
	}
	return video, nil
}

func (j GenerateVideoJob) processVideo(ctx context.Context, jctx JobContext, videoID int64) error {
	utils.Info("GenerateVideo: process", "video_id", videoID)
	video, err := jctx.Store.GetVideoByID(ctx, videoID)
	if err != nil {
		return err
	}
	meta, err := utils.DecodeMeta(video.Meta)
	if err != nil {
		return err
	}

	category, _ := utils.GetString(meta, "category")
	if category == "" {
		category = video.Category
	}
	factTexts, err := metaFacts(meta)
	if err != nil {
		return err
	}

	gen := pipeline.New(jctx.Config)
	if err := gen.Preflight(); err != nil {
		return err
	}

	start := time.Now()
	artifact, err := gen.Run(ctx, factTexts, category)
	if err != nil {
		return fmt.Errorf("video run for %d: %w", videoID, err)
	}

	meta["video"] = videoMeta(artifact, time.Since(start))
	utils.SetStatus(meta, "video_ready", true)

	if err := jctx.Store.UpdateVideoRunID(ctx, videoID, artifact.RunID); err != nil {
		return err
	}
	if video.Title != artifact.Title {
		if err := jctx.Store.UpdateVideoTitle(ctx, videoID, artifact.Title); err != nil {
			return err
		}
	}
	if err := jctx.Store.UpdateVideoMetaStatus(ctx, videoID, "video_ready", meta); err != nil {
		return err
	}

	if artifact.Degraded {
		utils.Warn("degraded artifact, not queueing for upload", "video_id", videoID, "strategy", artifact.Video.Strategy)
		return nil
	}
	return j.publishNext(ctx, jctx, videoID)
}

// videoMeta is the ledger record of one render, keyed under meta["video"].
func videoMeta(artifact pipeline.VideoArtifact, elapsed time.Duration) map[string]any {
	return map[string]any{
		"run_id":      artifact.RunID,
		"path":        artifact.VideoPath,
		"description": artifact.DescriptionPath,
		"subtitles":   artifact.SubtitlesPath,
		"strategy":    artifact.Video.Strategy,
		"degraded":    artifact.Degraded,
		"narrated":    artifact.Narrated,
		"size_bytes":  artifact.Video.SizeBytes,
		"duration_s":  artifact.Video.DurationSeconds,
		"render_ms":   elapsed.Milliseconds(),
		"sha256":      fileChecksum(artifact.VideoPath),
	}
}

func metaFacts(meta map[string]any) ([]string, error) {
	raw, ok := utils.GetValue(meta, "facts")
	if !ok {
		return nil, errors.New("facts missing from metadata")
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, errors.New("facts metadata is not a list")
	}
	texts := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok && s != "" {
			texts = append(texts, s)
		}
	}
	if len(texts) == 0 {
		return nil, errors.New("facts metadata is empty")
	}
	return texts, nil
}

func fileChecksum(path string) string {
	sum, err := utils.SHA256File(path)
	if err != nil {
		return ""
	}
	return sum
}
