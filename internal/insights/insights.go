package insights

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"meetscribe/internal/logger"
)

// DefaultModel is the chat model used for transcript post-processing.
const DefaultModel = "gpt-4o-mini"

// System prompts for each derived artifact. Each endpoint is the same
// send-text-get-text call with a different instruction.
const (
	summarizePrompt    = "Summarize the following transcription. Keep the summary faithful and concise."
	keyPointsPrompt    = "Extract the key points from the following transcription as a bulleted list."
	actionItemsPrompt  = "Extract the action items from the following transcription, with owners where mentioned."
	participantsPrompt = "Extract the participants and their details from the following transcription."
)

// Generator derives text artifacts from a finished transcript.
type Generator interface {
	Summarize(ctx context.Context, transcript string) (string, error)
	KeyPoints(ctx context.Context, transcript string) (string, error)
	ActionItems(ctx context.Context, transcript string) (string, error)
	Participants(ctx context.Context, transcript string) (string, error)
}

// Service implements Generator over an OpenAI-compatible chat completion
// endpoint.
type Service struct {
	client *openai.Client
	model  string
	logger logger.Logger
}

// NewService creates an insights service. An empty baseURL targets the
// OpenAI API; an empty model selects DefaultModel.
func NewService(log logger.Logger, apiKey, baseURL, model string) *Service {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = DefaultModel
	}

	return &Service{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		logger: log,
	}
}

// Summarize produces a summary of the transcript.
func (s *Service) Summarize(ctx context.Context, transcript string) (string, error) {
	return s.complete(ctx, summarizePrompt, transcript)
}

// KeyPoints extracts the key points of the transcript.
func (s *Service) KeyPoints(ctx context.Context, transcript string) (string, error) {
	return s.complete(ctx, keyPointsPrompt, transcript)
}

// ActionItems extracts action items from the transcript.
func (s *Service) ActionItems(ctx context.Context, transcript string) (string, error) {
	return s.complete(ctx, actionItemsPrompt, transcript)
}

// Participants extracts the participants mentioned in the transcript.
func (s *Service) Participants(ctx context.Context, transcript string) (string, error) {
	return s.complete(ctx, participantsPrompt, transcript)
}

func (s *Service) complete(ctx context.Context, systemPrompt, text string) (string, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	s.logger.Debugf("Chat completion produced %d characters", len(resp.Choices[0].Message.Content))
	return resp.Choices[0].Message.Content, nil
}
