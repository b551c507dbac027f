package planner

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"screenpilot/internal/domain"
)

// Client talks to an OpenAI-compatible reasoning model. A custom base URL
// covers OpenRouter, Groq and local gateways.
type Client struct {
	client *openai.Client
	model  string
}

func New(apiKey, model, baseURL string) *Client {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &Client{client: &client, model: model}
}

// Plan asks the model to decompose a goal into atomic steps. A reply without
// a parseable JSON object is an error: a plan with no structure is not safe
// to default.
func (c *Client) Plan(ctx context.Context, goal string, screenshot []byte) (domain.PlanDraft, error) {
	text := fmt.Sprintf("%s\n\nGOAL: %s", planPrompt, goal)
	reply, err := c.complete(ctx, text, screenshot)
	if err != nil {
		return domain.PlanDraft{}, err
	}
	var draft domain.PlanDraft
	if err := Decode(reply, &draft); err != nil {
		return domain.PlanDraft{}, err
	}
	return draft, nil
}

// Analyze describes a captured screen. Analysis is advisory, so a reply that
// cannot be decoded degrades to an empty analysis instead of an error.
func (c *Client) Analyze(ctx context.Context, screenshot []byte) (domain.ScreenAnalysis, error) {
	reply, err := c.complete(ctx, analyzePrompt, screenshot)
	if err != nil {
		return domain.ScreenAnalysis{}, err
	}
	var analysis domain.ScreenAnalysis
	if err := Decode(reply, &analysis); err != nil {
		return emptyAnalysis(), nil
	}
	if analysis.Elements == nil {
		analysis.Elements = []domain.ScreenElement{}
	}
	if analysis.SuggestedActions == nil {
		analysis.SuggestedActions = []string{}
	}
	return analysis, nil
}

func emptyAnalysis() domain.ScreenAnalysis {
	return domain.ScreenAnalysis{
		Elements:         []domain.ScreenElement{},
		SuggestedActions: []string{},
	}
}

func (c *Client) complete(ctx context.Context, text string, screenshot []byte) (string, error) {
	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(text),
	}
	if len(screenshot) > 0 {
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(screenshot),
		}))
	}
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       c.model,
		Messages:    []openai.ChatCompletionMessageParamUnion{openai.UserMessage(parts)},
		Temperature: openai.Opt[float64](0.1),
	})
	if err != nil {
		return "", fmt.Errorf("model request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("model returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
