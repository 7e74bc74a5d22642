package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"factmill/manager-go/internal/config"
	"factmill/manager-go/internal/db"
	"factmill/manager-go/internal/queue"
	"factmill/manager-go/internal/utils"
)

type JobContext struct {
	Config config.Config
	Store  *db.Store
	Queue  *queue.Client
}

type JobOptions struct {
	VideoID   int64
	Category  string
	Count     int
	Sleep     int
	Queue     bool
	QueueOnce bool
	Info      bool
}

type BaseJob struct {
	QueueInput      string
	QueueOutput     string
	IgnoreHostCheck bool
}

type QueuePayload struct {
	VideoID  int64  `json:"video_id"`
	Hostname string `json:"hostname"`
}

type QueueHandler func(ctx context.Context, videoID int64, hostname string) error

func (b BaseJob) RunQueue(ctx context.Context, jctx JobContext, opts JobOptions, handler QueueHandler) error {
	if jctx.Queue == nil {
		return fmt.Errorf("queue client is not configured")
	}

	sleep := opts.Sleep
	if sleep <= 0 {
		sleep = 30
	}

	for {
		msg, err := jctx.Queue.Pop(b.QueueInput)
		if err != nil {
			return err
		}
		if msg == nil {
			utils.Debug("queue empty", "queue", b.QueueInput, "sleep_s", sleep)
			time.Sleep(time.Duration(sleep) * time.Second)
			if opts.QueueOnce {
				return nil
			}
			continue
		}

		var payload QueuePayload
		if err := json.Unmarshal(msg.Body, &payload); err != nil {
			utils.Warn("queue payload json decode failed", "queue", b.QueueInput, "err", err)
			_ = msg.Ack()
			continue
		}
		if payload.VideoID == 0 {
			utils.Warn("queue payload invalid (missing video_id)", "queue", b.QueueInput)
			_ = msg.Ack()
			continue
		}

		if !b.IgnoreHostCheck && payload.Hostname != "" && payload.Hostname != jctx.Config.Hostname {
			utils.Warn("queue host mismatch", "queue", b.QueueInput, "message_host", payload.Hostname, "local_host", jctx.Config.Hostname)
			_ = msg.Nack(true)
			time.Sleep(time.Duration(sleep) * time.Second)
			continue
		}

		if err := handler(ctx, payload.VideoID, payload.Hostname); err != nil {
			utils.Error("queue handler error", "queue", b.QueueInput, "video_id", payload.VideoID, "err", err)
			_ = msg.Nack(true)
			continue
		}
		_ = msg.Ack()
	}
}

// publishNext pushes a video onto the job's output queue.
func (b BaseJob) publishNext(ctx context.Context, jctx JobContext, videoID int64) error {
	if b.QueueOutput == "" || jctx.Queue == nil {
		return nil
	}
	return jctx.Queue.PublishJSON(ctx, b.QueueOutput, QueuePayload{
		VideoID:  videoID,
		Hostname: jctx.Config.Hostname,
	})
}
