package facts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"factmill/manager-go/internal/utils"
)

// Completer is the slice of the OpenAI client the generator needs.
type Completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Generator produces new facts for a category via chat completions,
// filtering out invalid and near-duplicate candidates.
type Generator struct {
	Client    Completer
	Model     string
	Attempts  int
	Validator *Validator
	Threshold float64
	Timeout   time.Duration
}

func NewGenerator(client Completer, model string, attempts, minLength, maxLength int) *Generator {
	if model == "" {
		model = openai.GPT4oMini
	}
	if attempts <= 0 {
		attempts = 3
	}
	return &Generator{
		Client:    client,
		Model:     model,
		Attempts:  attempts,
		Validator: NewValidator(minLength, maxLength),
		Threshold: DefaultSimilarityThreshold,
		Timeout:   30 * time.Second,
	}
}

// Generate requests count new facts about the category, retrying until it
// has enough that pass validation and are not near-duplicates of existing
// texts. It returns what it collected even when short, with an error only
// when nothing usable came back.
func (g *Generator) Generate(ctx context.Context, category string, count int, existing []string) ([]Fact, error) {
	seen := append([]string(nil), existing...)
	var collected []Fact
	var lastErr error

	for attempt := 1; attempt <= g.Attempts && len(collected) < count; attempt++ {
		lines, err := g.request(ctx, category, count-len(collected))
		if err != nil {
			lastErr = err
			utils.Warn("fact generation attempt failed", "category", category, "attempt", attempt, "error", err)
			continue
		}
		for _, line := range lines {
			text := cleanFactLine(line)
			if text == "" {
				continue
			}
			if !g.Validator.IsValid(text) {
				utils.Debug("fact rejected by validator", "score", g.Validator.Score(text), "text", text)
				continue
			}
			if TooSimilar(text, seen, g.Threshold) {
				utils.Debug("fact rejected as duplicate", "text", text)
				continue
			}
			seen = append(seen, text)
			collected = append(collected, Fact{
				Text:              text,
				Category:          category,
				VerificationScore: g.Validator.Score(text),
				DateAdded:         time.Now().UTC(),
			})
			if len(collected) == count {
				break
			}
		}
	}

	if len(collected) == 0 {
		if lastErr != nil {
			return nil, fmt.Errorf("facts: generate %s: %w", category, lastErr)
		}
		return nil, fmt.Errorf("facts: generate %s: no usable facts after %d attempts", category, g.Attempts)
	}
	return collected, nil
}

func (g *Generator) request(ctx context.Context, category string, count int) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.Timeout)
	defer cancel()

	prompt := fmt.Sprintf(
		"Give me %d surprising, verifiable facts about %s. "+
			"One fact per line, numbered. Each fact must be a single complete sentence "+
			"with a concrete detail (a number, a name, or a place). No preamble.",
		count, category)

	resp, err := g.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.Model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You write short, accurate trivia facts for a general audience.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		MaxTokens:   800,
		Temperature: 0.8,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty completion response")
	}
	return strings.Split(resp.Choices[0].Message.Content, "\n"), nil
}

// cleanFactLine strips list numbering, bullets and markdown emphasis from a
// model output line.
func cleanFactLine(line string) string {
	text := strings.TrimSpace(line)
	text = strings.TrimLeft(text, "-*• \t")
	// "1. ", "12) "
	for i, r := range text {
		if r >= '0' && r <= '9' {
			continue
		}
		if (r == '.' || r == ')') && i > 0 {
			text = strings.TrimSpace(text[i+1:])
		}
		break
	}
	text = strings.ReplaceAll(text, "**", "")
	text = strings.ReplaceAll(text, "*", "")
	return strings.TrimSpace(text)
}
