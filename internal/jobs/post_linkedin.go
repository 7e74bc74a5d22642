package jobs

import (
	"context"
	"errors"
	"fmt"

	"factmill/manager-go/internal/db"
	"factmill/manager-go/internal/upload"
	"factmill/manager-go/internal/utils"
)

// PostLinkedInJob announces an uploaded video with a LinkedIn text share.
type PostLinkedInJob struct {
	BaseJob
}

func NewPostLinkedInJob() PostLinkedInJob {
	return PostLinkedInJob{
		BaseJob: BaseJob{
			QueueInput: "post.linkedin",
		},
	}
}

func (j PostLinkedInJob) Run(ctx context.Context, jctx JobContext, opts JobOptions) error {
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

func (j PostLinkedInJob) selectNext(ctx context.Context, jctx JobContext) (db.Video, error) {
	where := "WHERE " + db.StatusTrueCondition([]string{"youtube_uploaded"})
	if notTrue := db.StatusNotTrueCondition([]string{"linkedin_posted"}); notTrue != "" {
		where += " AND " + notTrue
	}
	video, err := jctx.Store.FindFirstVideo(ctx, where)
	if err != nil {
		return db.Video{}, err
	}
	if video.ID == 0 {
		return db.Video{}, errors.New("no video to post")
	}
	return video, nil
}

func (j PostLinkedInJob) processVideo(ctx context.Context, jctx JobContext, videoID int64) error {
	utils.Info("PostLinkedIn: process", "video_id", videoID)
	video, err := jctx.Store.GetVideoByID(ctx, videoID)
	if err != nil {
		return err
	}
	meta, err := utils.DecodeMeta(video.Meta)
	if err != nil {
		return err
	}

	youtubeID, ok := meta["video_id.v1"].(string)
	if !ok || youtubeID == "" {
		return errors.New("youtube video ID missing from metadata")
	}

	cfg := jctx.Config
	client := upload.NewLinkedIn(cfg.LinkedInAccessToken, cfg.LinkedInOrgID, cfg.UploadTimeout)

	text := fmt.Sprintf("%s\n\nWatch: https://youtu.be/%s", video.Title, youtubeID)
	postID, err := client.PostText(ctx, text)
	if err != nil {
		return err
	}

	meta["linkedin_post_id"] = postID
	utils.SetStatus(meta, "linkedin_posted", true)
	return jctx.Store.UpdateVideoMetaStatus(ctx, videoID, "linkedin_posted", meta)
}
