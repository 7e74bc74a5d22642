package upload

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"factmill/manager-go/internal/utils"
)

var videoIDPattern = regexp.MustCompile(`Video id '([^']+)' was successfully uploaded`)

// CommandRunner matches utils.RunCommand and is injectable for tests.
type CommandRunner func(ctx context.Context, command string, timeout time.Duration) (string, error)

// YouTube uploads videos through the upload script configured on the host.
// The script prints "Video id '<id>' was successfully uploaded" on success.
type YouTube struct {
	Script        string
	Category      string
	PrivacyStatus string
	MinVideoBytes int64
	Timeout       time.Duration
	Run           CommandRunner
}

func NewYouTube(script, category, privacy string, minBytes int64, timeout time.Duration) *YouTube {
	return &YouTube{
		Script:        script,
		Category:      category,
		PrivacyStatus: privacy,
		MinVideoBytes: minBytes,
		Timeout:       timeout,
		Run:           utils.RunCommand,
	}
}

func (y *YouTube) Upload(ctx context.Context, req Request) (string, error) {
	if err := checkArtifact("youtube", req.Artifact, y.MinVideoBytes); err != nil {
		return "", err
	}
	if y.Script == "" {
		return "", newError("youtube", KindAuth, fmt.Errorf("upload script not configured"))
	}

	keywords := strings.Join(req.Tags, ",")
	command := fmt.Sprintf(
		"%s --file=%s --title=%s --description=%s --category=%s --keywords=%s --privacyStatus=%s",
		y.Script,
		utils.ShellEscape(req.Artifact.VideoPath),
		utils.ShellEscape(req.Title),
		utils.ShellEscape(req.Description),
		utils.ShellEscape(y.Category),
		utils.ShellEscape(keywords),
		utils.ShellEscape(y.PrivacyStatus),
	)

	utils.Info("uploading to youtube", "file", req.Artifact.VideoPath, "title", req.Title)
	output, err := y.Run(ctx, command, y.Timeout)
	if err != nil {
		return "", newError("youtube", KindTransport, err)
	}

	matches := videoIDPattern.FindStringSubmatch(output)
	if len(matches) < 2 {
		return "", newError("youtube", KindResponse,
			fmt.Errorf("video ID not found in upload output"))
	}
	utils.Info("youtube upload complete", "video_id", matches[1])
	return matches[1], nil
}

// ExtractVideoID accepts a bare 11-character video ID or any common
// YouTube URL form and returns the ID, or "" when unrecognizable.
func ExtractVideoID(input string) string {
	input = strings.TrimSpace(input)
	if regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`).MatchString(input) {
		return input
	}

	parsed, err := url.Parse(input)
	if err != nil {
		return ""
	}

	switch parsed.Host {
	case "youtu.be":
		return strings.TrimPrefix(parsed.Path, "/")
	case "www.youtube.com", "youtube.com":
		if strings.HasPrefix(parsed.Path, "/watch") {
			return parsed.Query().Get("v")
		}
		if strings.HasPrefix(parsed.Path, "/embed/") {
			return strings.TrimPrefix(parsed.Path, "/embed/")
		}
		if strings.HasPrefix(parsed.Path, "/shorts/") {
			return strings.TrimPrefix(parsed.Path, "/shorts/")
		}
	}

	return ""
}
