package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"factmill/manager-go/internal/config"
	"factmill/manager-go/internal/db"
	"factmill/manager-go/internal/facts"
	"factmill/manager-go/internal/jobs"
	"factmill/manager-go/internal/pipeline"
	"factmill/manager-go/internal/queue"
	"factmill/manager-go/internal/utils"
)

func Run(args []string) int {
	// Support a global --verbose flag anywhere in the argv (before or after the command).
	// This is helpful because the stdlib flag parser stops at the first non-flag argument.
	args, globalVerbose := extractGlobalVerbose(args)
	if globalVerbose {
		utils.Verbose = true
	}

	if len(args) < 2 {
		printUsage()
		return 1
	}
	if args[1] == "-h" || args[1] == "--help" || args[1] == "help" {
		printUsage()
		return 0
	}

	ctx := context.Background()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return 1
	}
	utils.Logf("factmill: config loaded env=%s hostname=%s", cfg.AppEnv, cfg.Hostname)

	cmd := args[1]
	cmdArgs := args[2:]
	utils.Logf("factmill: cmd=%s args=%v", cmd, cmdArgs)

	// run and migrate work without the queue; run also skips the database.
	switch cmd {
	case "run":
		if err := runPipelineOnce(ctx, cfg, cmdArgs); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		return 0
	case "migrate":
		if err := runMigrate(ctx, cfg, cmdArgs); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		return 0
	}

	store, err := db.NewStore(ctx, cfg.DBConnString())
	if err != nil {
		fmt.Fprintf(os.Stderr, "db error: %v\n", err)
		return 1
	}
	defer store.Close()
	utils.Logf("factmill: db connected")

	queueClient, err := queue.New(cfg.RabbitMQURL())
	if err != nil {
		fmt.Fprintf(os.Stderr, "queue error: %v\n", err)
		return 1
	}
	defer queueClient.Close()
	utils.Logf("factmill: queue connected")

	jctx := jobs.JobContext{
		Config: cfg,
		Store:  store,
		Queue:  queueClient,
	}

	var runErr error
	switch cmd {
	case "job:GenerateFacts":
		runErr = runGenerateFacts(ctx, jctx, cmdArgs)
	case "job:GenerateVideo":
		runErr = runGenerateVideo(ctx, jctx, cmdArgs)
	case "job:UploadYouTube":
		runErr = runUploadYouTube(ctx, jctx, cmdArgs)
	case "job:PostLinkedIn":
		runErr = runPostLinkedIn(ctx, jctx, cmdArgs)
	case "videos:requeue":
		runErr = runVideosRequeue(ctx, jctx, cmdArgs)
	case "videos:show":
		runErr = runVideosShow(ctx, jctx, cmdArgs)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		return 1
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", runErr)
		return 1
	}

	return 0
}

func extractGlobalVerbose(args []string) ([]string, bool) {
	if len(args) == 0 {
		return args, false
	}
	verbose := false
	out := make([]string, 0, len(args))
	for _, arg := range args {
		switch {
		case arg == "--verbose" || arg == "-verbose":
			verbose = true
			continue
		case strings.HasPrefix(arg, "--verbose="):
			raw := strings.TrimPrefix(arg, "--verbose=")
			if parsed, err := strconv.ParseBool(raw); err == nil {
				verbose = parsed
			}
			continue
		case strings.HasPrefix(arg, "-verbose="):
			raw := strings.TrimPrefix(arg, "-verbose=")
			if parsed, err := strconv.ParseBool(raw); err == nil {
				verbose = parsed
			}
			continue
		default:
			out = append(out, arg)
		}
	}
	return out, verbose
}

func parseVideoID(args []string) (int64, error) {
	if len(args) == 0 {
		return 0, nil
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid video_id: %s", args[0])
	}
	return id, nil
}

func runGenerateFacts(ctx context.Context, jctx jobs.JobContext, args []string) error {
	fs := flag.NewFlagSet("job:GenerateFacts", flag.ContinueOnError)
	category := fs.String("category", "", "Fact category to generate")
	count := fs.Int("count", 0, "Facts per video (default from config)")
	verbose := fs.Bool("verbose", utils.Verbose, "Verbose logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	utils.Verbose = *verbose
	opts := jobs.JobOptions{Category: *category, Count: *count}
	logJobStart("job:GenerateFacts", opts)

	job := jobs.NewGenerateFactsJob()
	return job.Run(ctx, jctx, opts)
}

func runGenerateVideo(ctx context.Context, jctx jobs.JobContext, args []string) error {
	fs := flag.NewFlagSet("job:GenerateVideo", flag.ContinueOnError)
	sleep := fs.Int("sleep", 30, "Sleep time in seconds")
	queueFlag := fs.Bool("queue", false, "Process queue messages")
	queueOnce := fs.Bool("queue-once", false, "Stop when the queue drains instead of polling")
	verbose := fs.Bool("verbose", utils.Verbose, "Verbose logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	utils.Verbose = *verbose
	videoID, err := parseVideoID(fs.Args())
	if err != nil {
		return err
	}
	opts := jobs.JobOptions{VideoID: videoID, Sleep: *sleep, Queue: *queueFlag, QueueOnce: *queueOnce}
	logJobStart("job:GenerateVideo", opts)

	job := jobs.NewGenerateVideoJob()
	return job.Run(ctx, jctx, opts)
}

func runUploadYouTube(ctx context.Context, jctx jobs.JobContext, args []string) error {
	fs := flag.NewFlagSet("job:UploadYouTube", flag.ContinueOnError)
	sleep := fs.Int("sleep", 30, "Sleep time in seconds")
	queueFlag := fs.Bool("queue", false, "Process queue messages")
	queueOnce := fs.Bool("queue-once", false, "Stop when the queue drains instead of polling")
	info := fs.Bool("info", false, "Just show info, record a manually uploaded ID")
	verbose := fs.Bool("verbose", utils.Verbose, "Verbose logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	utils.Verbose = *verbose
	videoID, err := parseVideoID(fs.Args())
	if err != nil {
		return err
	}
	opts := jobs.JobOptions{VideoID: videoID, Sleep: *sleep, Queue: *queueFlag, QueueOnce: *queueOnce, Info: *info}
	logJobStart("job:UploadYouTube", opts)

	job := jobs.NewUploadYouTubeJob()
	return job.Run(ctx, jctx, opts)
}

func runPostLinkedIn(ctx context.Context, jctx jobs.JobContext, args []string) error {
	fs := flag.NewFlagSet("job:PostLinkedIn", flag.ContinueOnError)
	sleep := fs.Int("sleep", 30, "Sleep time in seconds")
	queueFlag := fs.Bool("queue", false, "Process queue messages")
	queueOnce := fs.Bool("queue-once", false, "Stop when the queue drains instead of polling")
	verbose := fs.Bool("verbose", utils.Verbose, "Verbose logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	utils.Verbose = *verbose
	videoID, err := parseVideoID(fs.Args())
	if err != nil {
		return err
	}
	opts := jobs.JobOptions{VideoID: videoID, Sleep: *sleep, Queue: *queueFlag, QueueOnce: *queueOnce}
	logJobStart("job:PostLinkedIn", opts)

	job := jobs.NewPostLinkedInJob()
	return job.Run(ctx, jctx, opts)
}

// runPipelineOnce renders a single video without touching the database or
// the queue. Facts come from a file or from the local fact store.
func runPipelineOnce(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	category := fs.String("category", "", "Fact category")
	factsFile := fs.String("facts-file", "", "File with one fact per line (default: unused facts from the store)")
	verbose := fs.Bool("verbose", utils.Verbose, "Verbose logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	utils.ConfigureLogging(*verbose)

	if *category == "" {
		return fmt.Errorf("--category is required")
	}

	var factTexts []string
	if *factsFile != "" {
		if !utils.FileExists(*factsFile) {
			return fmt.Errorf("facts file not found: %s", *factsFile)
		}
		data, err := os.ReadFile(*factsFile)
		if err != nil {
			return err
		}
		for _, line := range strings.Split(string(data), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				factTexts = append(factTexts, line)
			}
		}
	} else {
		store := facts.NewStore(cfg.FactStorePath)
		unused, err := store.Unused(*category, cfg.MinFacts)
		if err != nil {
			return err
		}
		factTexts = facts.Texts(unused)
	}

	gen := pipeline.New(cfg)
	if err := gen.Preflight(); err != nil {
		return err
	}
	artifact, err := gen.Run(ctx, factTexts, *category)
	if err != nil {
		return err
	}
	fmt.Printf("Video: %s\nDescription: %s\nSubtitles: %s\nStrategy: %s\nDegraded: %t\n",
		artifact.VideoPath, artifact.DescriptionPath, artifact.SubtitlesPath,
		artifact.Video.Strategy, artifact.Degraded)
	return nil
}

// runVideosRequeue republishes ledger rows that are ready for their next
// stage but fell off the queue (worker crash, manual intervention).
func runVideosRequeue(ctx context.Context, jctx jobs.JobContext, args []string) error {
	fs := flag.NewFlagSet("videos:requeue", flag.ContinueOnError)
	stage := fs.String("stage", "video.generate", "Queue to republish to (video.generate, upload.youtube, post.linkedin)")
	verbose := fs.Bool("verbose", utils.Verbose, "Verbose logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	utils.ConfigureLogging(*verbose)

	var ready, notYet string
	switch *stage {
	case "video.generate":
		ready = db.StatusTrueCondition([]string{"facts_ready"})
		notYet = db.StatusNotTrueCondition([]string{"video_ready"})
	case "upload.youtube":
		ready = db.StatusTrueCondition([]string{"video_ready"})
		notYet = db.StatusNotTrueCondition([]string{"youtube_uploaded", "upload_rejected"})
	case "post.linkedin":
		ready = db.StatusTrueCondition([]string{"youtube_uploaded"})
		notYet = db.StatusNotTrueCondition([]string{"linkedin_posted"})
	default:
		return fmt.Errorf("unknown stage %q", *stage)
	}

	lastID := int64(0)
	requeued := 0
	for {
		query := `
			SELECT id, run_id, title, category, status, meta, created_at, updated_at
			FROM videos
			WHERE ` + ready + ` AND ` + notYet + ` AND id > $1
			ORDER BY id LIMIT 10
		`
		videos, err := jctx.Store.QueryVideos(ctx, query, lastID)
		if err != nil {
			return err
		}
		if len(videos) == 0 {
			break
		}
		for _, video := range videos {
			payload := jobs.QueuePayload{VideoID: video.ID, Hostname: jctx.Config.Hostname}
			if err := jctx.Queue.PublishJSON(ctx, *stage, payload); err != nil {
				return err
			}
			lastID = video.ID
			requeued++
		}
	}
	fmt.Printf("Requeued %d video(s) to %s\n", requeued, *stage)
	return nil
}

// runVideosShow prints one ledger row, looked up by ledger ID or by the
// pipeline run ID recorded on the videos.run_id column.
func runVideosShow(ctx context.Context, jctx jobs.JobContext, args []string) error {
	fs := flag.NewFlagSet("videos:show", flag.ContinueOnError)
	runID := fs.String("run-id", "", "Look up by pipeline run ID instead of ledger ID")
	verbose := fs.Bool("verbose", utils.Verbose, "Verbose logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	utils.ConfigureLogging(*verbose)

	var video db.Video
	var err error
	if *runID != "" {
		video, err = jctx.Store.GetVideoByRunID(ctx, *runID)
	} else {
		var id int64
		if id, err = parseVideoID(fs.Args()); err != nil {
			return err
		}
		if id == 0 {
			return fmt.Errorf("a video_id or --run-id is required")
		}
		video, err = jctx.Store.GetVideoByID(ctx, id)
	}
	if err != nil {
		return err
	}
	if video.ID == 0 {
		return fmt.Errorf("no video found")
	}

	status := ""
	if video.Status != nil {
		status = *video.Status
	}
	run := ""
	if video.RunID != nil {
		run = *video.RunID
	}
	fmt.Printf("ID: %d\nRunID: %s\nTitle: %s\nCategory: %s\nStatus: %s\nCreated: %s\nUpdated: %s\n",
		video.ID, run, video.Title, video.Category, status,
		video.CreatedAt.Format(time.RFC3339), video.UpdatedAt.Format(time.RFC3339))

	meta, err := utils.DecodeMeta(video.Meta)
	if err != nil {
		return err
	}
	pretty, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	fmt.Printf("Meta:\n%s\n", pretty)
	return nil
}

func logJobStart(name string, opts jobs.JobOptions) {
	utils.Logf("start %s video_id=%d category=%s count=%d queue=%t sleep=%d info=%t",
		name, opts.VideoID, opts.Category, opts.Count, opts.Queue, opts.Sleep, opts.Info)
}

func printUsage() {
	fmt.Println("Usage: factmill <command> [args]")
	fmt.Println("Global flags:")
	fmt.Println("  --verbose   Enable diagnostic logging (can appear before or after the command).")
	fmt.Println("Commands:")
	fmt.Println("  job:GenerateFacts --category=NAME [--count=N] [--verbose]")
	fmt.Println("  job:GenerateVideo [video_id] [--sleep=N] [--queue] [--queue-once] [--verbose]")
	fmt.Println("  job:UploadYouTube [video_id] [--sleep=N] [--queue] [--queue-once] [--info] [--verbose]")
	fmt.Println("  job:PostLinkedIn [video_id] [--sleep=N] [--queue] [--queue-once] [--verbose]")
	fmt.Println("  run --category=NAME [--facts-file=PATH] [--verbose]")
	fmt.Println("  videos:requeue [--stage=video.generate|upload.youtube|post.linkedin] [--verbose]")
	fmt.Println("  videos:show <video_id> | --run-id=UUID [--verbose]")
	fmt.Println("  migrate [up] [--dir=PATH] [--dry-run] [--verbose]")
}
