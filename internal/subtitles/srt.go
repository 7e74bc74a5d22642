package subtitles

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"factmill/manager-go/internal/segment"
)

type Caption struct {
	StartTime string
	EndTime   string
	Text      string
}

var timeRegex = regexp.MustCompile(`(\d\d:\d\d:\d\d,\d\d\d)\s-->\s(\d\d:\d\d:\d\d,\d\d\d)`)

// FromPlan builds a caption per segment from the planned durations, so the
// sidecar subtitle track lines up with the frame sequence exactly.
func FromPlan(plan segment.Plan) []Caption {
	captions := make([]Caption, 0, len(plan.Segments))
	var cursor float64
	for _, seg := range plan.Segments {
		start := cursor
		cursor += seg.DurationSeconds
		captions = append(captions, Caption{
			StartTime: FormatTimestamp(start),
			EndTime:   FormatTimestamp(cursor),
			Text:      seg.DisplayText,
		})
	}
	return captions
}

// FormatTimestamp renders seconds as an SRT timestamp (HH:MM:SS,mmm).
func FormatTimestamp(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second))
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	ms := int(d.Milliseconds()) % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

func ParseSRT(input string) []Caption {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil
	}
	blocks := splitBlocks(trimmed)
	captions := make([]Caption, 0, len(blocks))
	for _, block := range blocks {
		lines := splitLines(block)
		if len(lines) < 2 {
			continue
		}
		// First line is index; second line is time range.
		matches := timeRegex.FindStringSubmatch(lines[1])
		if len(matches) < 3 {
			continue
		}
		text := ""
		if len(lines) > 2 {
			text = strings.Join(lines[2:], "\n")
		}
		captions = append(captions, Caption{
			StartTime: matches[1],
			EndTime:   matches[2],
			Text:      strings.TrimRight(text, "\n"),
		})
	}
	return captions
}

func SerializeSRT(captions []Caption) string {
	var builder strings.Builder
	for idx, caption := range captions {
		builder.WriteString(strconv.Itoa(idx + 1))
		builder.WriteString("\n")
		builder.WriteString(caption.StartTime)
		builder.WriteString(" --> ")
		builder.WriteString(caption.EndTime)
		builder.WriteString("\n")
		builder.WriteString(caption.Text)
		builder.WriteString("\n\n")
	}
	return builder.String()
}

func NormalizeText(input string) string {
	text := strings.ReplaceAll(input, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.TrimRight(text, "\n")
}

func splitBlocks(input string) []string {
	re := regexp.MustCompile(`\r?\n\r?\n+`)
	return re.Split(input, -1)
}

func splitLines(input string) []string {
	return strings.Split(NormalizeText(input), "\n")
}
