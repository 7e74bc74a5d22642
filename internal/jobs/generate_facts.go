package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"factmill/manager-go/internal/db"
	"factmill/manager-go/internal/facts"
	"factmill/manager-go/internal/segment"
	"factmill/manager-go/internal/utils"
)

// GenerateFactsJob tops up the fact store for a category and reserves a batch
// as a new video run. It is the front of the pipeline, so it has no input
// queue; cron or the CLI kicks it off.
type GenerateFactsJob struct {
	BaseJob
}

func NewGenerateFactsJob() GenerateFactsJob {
	return GenerateFactsJob{
		BaseJob: BaseJob{
			QueueOutput: "video.generate",
		},
	}
}

func (j GenerateFactsJob) Run(ctx context.Context, jctx JobContext, opts JobOptions) error {
	category := opts.Category
	if category == "" {
		return errors.New("category is required")
	}
	count := opts.Count
	if count <= 0 {
		count = jctx.Config.MinFacts
	}

	store := facts.NewStore(jctx.Config.FactStorePath)

	unused, err := store.Unused(category, count)
	if err != nil {
		return err
	}

	if len(unused) < count {
		generated, err := j.generate(ctx, jctx, store, category, count-len(unused))
		if err != nil {
			// An exhausted store plus a failed generation still leaves the
			// planner's built-in padding downstream, so only a fully empty
			// batch is fatal.
			if len(unused) == 0 {
				return err
			}
			utils.Warn("fact generation failed, continuing with stored facts",
				"category", category, "have", len(unused), "err", err)
		} else {
			unused = append(unused, generated...)
		}
	}
	if len(unused) > count {
		unused = unused[:count]
	}

	texts := facts.Texts(unused)
	factsJSON, err := json.Marshal(texts)
	if err != nil {
		return err
	}

	meta := map[string]any{
		"category": category,
		"facts":    json.RawMessage(factsJSON),
	}
	utils.SetStatus(meta, "facts_ready", true)
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	videoID, err := jctx.Store.CreateVideo(ctx, db.Video{
		Title:    segment.TitleFor(len(texts), category),
		Category: category,
		Meta:     metaJSON,
	})
	if err != nil {
		return err
	}

	if err := store.MarkUsed(category, texts); err != nil {
		utils.Warn("fact usage bookkeeping failed", "category", category, "err", err)
	}

	utils.Info("facts reserved for video", "video_id", videoID, "category", category, "facts", len(texts))
	return j.publishNext(ctx, jctx, videoID)
}

func (j GenerateFactsJob) generate(ctx context.Context, jctx JobContext, store *facts.Store, category string, need int) ([]facts.Fact, error) {
	cfg := jctx.Config
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("openai api key not configured")
	}

	clientConfig := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		clientConfig.BaseURL = cfg.OpenAIBaseURL
	}
	client := openai.NewClientWithConfig(clientConfig)

	catalog, err := store.Load()
	if err != nil {
		return nil, err
	}
	existing := facts.Texts(catalog[category])

	gen := facts.NewGenerator(client, cfg.OpenAIModel, cfg.FactAttempts, cfg.MinFactLength, cfg.MaxFactLength)
	generated, err := gen.Generate(ctx, category, need, existing)
	if err != nil {
		return nil, err
	}
	if err := store.Add(category, generated); err != nil {
		return nil, err
	}
	return generated, nil
}
