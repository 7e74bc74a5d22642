package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"factmill/manager-go/internal/assemble"
	"factmill/manager-go/internal/db"
	"factmill/manager-go/internal/pipeline"
	"factmill/manager-go/internal/upload"
	"factmill/manager-go/internal/utils"
)

type UploadYouTubeJob struct {
	BaseJob
	MaxWaiting int
}

func NewUploadYouTubeJob() UploadYouTubeJob {
	return UploadYouTubeJob{
		BaseJob: BaseJob{
			QueueInput:  "upload.youtube",
			QueueOutput: "post.linkedin",
		},
		MaxWaiting: 100,
	}
}

func (j UploadYouTubeJob) Run(ctx context.Context, jctx JobContext, opts JobOptions) error {
	if opts.Queue {
		return j.RunQueue(ctx, jctx, opts, func(ctx context.Context, videoID int64, hostname string) error {
			return j.processVideo(ctx, jctx, videoID, opts.Info)
		})
	}

	videoID := opts.VideoID
	if videoID == 0 {
		count, err := j.countWaiting(ctx, jctx)
		if err != nil {
			return err
		}
		utils.Info("UploadYouTube: backlog", "waiting", count, "max", j.MaxWaiting)
		if count >= j.MaxWaiting {
			utils.Warn("UploadYouTube: too many waiting, sleeping 60s")
			time.Sleep(60 * time.Second)
			return nil
		}

		video, err := j.selectNext(ctx, jctx)
		if err != nil {
			return err
		}
		videoID = video.ID
	}

	return j.processVideo(ctx, jctx, videoID, opts.Info)
}

func (j UploadYouTubeJob) pendingWhere() string {
	where := "WHERE " + db.StatusTrueCondition([]string{"facts_ready", "video_ready"})
	if notTrue := db.StatusNotTrueCondition([]string{"youtube_uploaded", "upload_rejected"}); notTrue != "" {
		where += " AND " + notTrue
	}
	if missing := db.MetaKeyMissingCondition([]string{"video_id.v1"}); missing != "" {
		where += " AND " + missing
	}
	return where
}

func (j UploadYouTubeJob) countWaiting(ctx context.Context, jctx JobContext) (int, error) {
	return jctx.Store.CountVideos(ctx, j.pendingWhere())
}

func (j UploadYouTubeJob) selectNext(ctx context.Context, jctx JobContext) (db.Video, error) {
	video, err := jctx.Store.FindFirstVideo(ctx, j.pendingWhere())
	if err != nil {
		return db.Video{}, err
	}
	if video.ID == 0 {
		return db.Video{}, errors.New("no video to upload")
	}
	return video, nil
}

func (j UploadYouTubeJob) processVideo(ctx context.Context, jctx JobContext, videoID int64, info bool) error {
	utils.Info("UploadYouTube: process", "video_id", videoID, "info", info)
	video, err := jctx.Store.GetVideoByID(ctx, videoID)
	if err != nil {
		return err
	}
	meta, err := utils.DecodeMeta(video.Meta)
	if err != nil {
		return err
	}

	videoPath, _ := utils.GetString(meta, "video", "path")
	if videoPath == "" {
		return errors.New("video path missing from metadata")
	}
	description := j.description(meta, video.Title)

	if info {
		fmt.Printf("Title: %s\nFile: %s\nDescription:\n%s\n", video.Title, videoPath, description)
		input, err := utils.Prompt("Enter video ID or URL")
		if err != nil {
			return err
		}
		uploadedID := upload.ExtractVideoID(input)
		if uploadedID == "" {
			return errors.New("invalid YouTube video ID or URL")
		}
		return j.recordUpload(ctx, jctx, videoID, meta, uploadedID)
	}

	cfg := jctx.Config
	uploader := upload.NewYouTube(cfg.YoutubeUploadScript, cfg.YoutubeCategory, cfg.YoutubePrivacy, cfg.MinVideoBytes, cfg.UploadTimeout)

	uploadedID, err := uploader.Upload(ctx, upload.Request{
		Artifact:    j.artifact(meta, videoPath),
		Title:       video.Title,
		Description: description,
		Tags:        pipeline.Tags(video.Category),
	})
	if err != nil {
		var uerr *upload.Error
		if errors.As(err, &uerr) {
			if !uerr.Retryable() {
				// A rejected artifact never becomes uploadable, so record the
				// outcome instead of requeueing forever.
				utils.Warn("upload rejected", "video_id", videoID, "kind", uerr.Kind)
				meta["upload_error"] = map[string]any{
					"platform": uerr.Platform,
					"kind":     string(uerr.Kind),
					"detail":   uerr.Err.Error(),
				}
				utils.SetStatus(meta, "upload_rejected", true)
				return jctx.Store.UpdateVideoMetaStatus(ctx, videoID, "upload_rejected", meta)
			}
			// Transient failure: keep the attempt on the ledger, then let the
			// queue retry.
			meta["last_upload_error"] = map[string]any{
				"platform": uerr.Platform,
				"kind":     string(uerr.Kind),
				"detail":   uerr.Err.Error(),
			}
			if metaErr := jctx.Store.UpdateVideoMeta(ctx, videoID, meta); metaErr != nil {
				utils.Warn("upload error bookkeeping failed", "video_id", videoID, "err", metaErr)
			}
		}
		return err
	}

	return j.recordUpload(ctx, jctx, videoID, meta, uploadedID)
}

// artifact reconstructs the assembly result from ledger metadata, falling
// back to a stat of the file when meta is sparse.
func (j UploadYouTubeJob) artifact(meta map[string]any, videoPath string) assemble.Artifact {
	a := assemble.Artifact{VideoPath: videoPath, SizeBytes: utils.FileSize(videoPath)}
	if vm, ok := utils.GetMap(meta, "video"); ok {
		if strategy, ok := vm["strategy"].(string); ok {
			a.Strategy = strategy
		}
		if degraded, ok := vm["degraded"].(bool); ok {
			a.Degraded = degraded
		}
	}
	return a
}

func (j UploadYouTubeJob) description(meta map[string]any, title string) string {
	path, _ := utils.GetString(meta, "video", "description")
	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			return string(data)
		}
	}
	return title
}

func (j UploadYouTubeJob) recordUpload(ctx context.Context, jctx JobContext, videoID int64, meta map[string]any, uploadedID string) error {
	meta["video_id.v1"] = uploadedID
	utils.SetStatus(meta, "youtube_uploaded", true)
	if err := jctx.Store.UpdateVideoMetaStatus(ctx, videoID, "youtube_uploaded", meta); err != nil {
		return err
	}
	return j.publishNext(ctx, jctx, videoID)
}
