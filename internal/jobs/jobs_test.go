package jobs

import (
	"strings"
	"testing"
	"time"

	"factmill/manager-go/internal/assemble"
	"factmill/manager-go/internal/pipeline"
)

func TestMetaFacts(t *testing.T) {
	meta := map[string]any{
		"facts": []any{"one fact", "", "another fact", 42},
	}
	got, err := metaFacts(meta)
	if err != nil {
		t.Fatalf("metaFacts: %v", err)
	}
	if len(got) != 2 || got[0] != "one fact" || got[1] != "another fact" {
		t.Errorf("metaFacts = %v", got)
	}
}

func TestMetaFactsMissing(t *testing.T) {
	if _, err := metaFacts(map[string]any{}); err == nil {
		t.Error("expected error for missing facts")
	}
	if _, err := metaFacts(map[string]any{"facts": "not a list"}); err == nil {
		t.Error("expected error for non-list facts")
	}
	if _, err := metaFacts(map[string]any{"facts": []any{}}); err == nil {
		t.Error("expected error for empty facts")
	}
}

func TestVideoMetaRecordsRun(t *testing.T) {
	artifact := pipeline.VideoArtifact{
		RunID:           "run-123",
		VideoPath:       "/out/videos/run-123.mp4",
		DescriptionPath: "/out/videos/run-123.txt",
		SubtitlesPath:   "/out/videos/run-123.srt",
		Video:           assemble.Artifact{Strategy: "image-sequence", SizeBytes: 20000, DurationSeconds: 28},
		Narrated:        true,
	}
	meta := videoMeta(artifact, 1500*time.Millisecond)
	if meta["run_id"] != "run-123" {
		t.Errorf("run_id = %v", meta["run_id"])
	}
	if meta["strategy"] != "image-sequence" {
		t.Errorf("strategy = %v", meta["strategy"])
	}
	if meta["render_ms"] != int64(1500) {
		t.Errorf("render_ms = %v", meta["render_ms"])
	}
	if meta["degraded"] != false || meta["narrated"] != true {
		t.Errorf("flags: degraded=%v narrated=%v", meta["degraded"], meta["narrated"])
	}
}

func TestUploadArtifactFromMeta(t *testing.T) {
	meta := map[string]any{
		"video": map[string]any{"strategy": "placeholder", "degraded": true},
	}
	a := NewUploadYouTubeJob().artifact(meta, "/nonexistent/video.mp4")
	if a.Strategy != "placeholder" || !a.Degraded {
		t.Errorf("artifact from meta = %+v", a)
	}
	if a.SizeBytes != 0 {
		t.Errorf("missing file should stat to zero, got %d", a.SizeBytes)
	}

	sparse := NewUploadYouTubeJob().artifact(map[string]any{}, "/nonexistent/video.mp4")
	if sparse.Strategy != "" || sparse.Degraded {
		t.Errorf("sparse meta should leave defaults, got %+v", sparse)
	}
}

func TestUploadPendingWhereExcludesDoneAndRejected(t *testing.T) {
	where := NewUploadYouTubeJob().pendingWhere()
	for _, want := range []string{
		"facts_ready", "video_ready", "youtube_uploaded", "upload_rejected", "video_id.v1",
	} {
		if !strings.Contains(where, want) {
			t.Errorf("pending clause missing %q: %s", want, where)
		}
	}
}
