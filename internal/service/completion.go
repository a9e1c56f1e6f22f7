package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	openaigo "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/set-night/solace/internal/config"
	"github.com/set-night/solace/internal/domain"
)

const systemPrompt = "You are a warm, supportive mental-health companion. " +
	"Listen carefully, validate feelings, and respond with empathy. " +
	"You are not a therapist and must not claim to be one; encourage " +
	"professional help when the conversation calls for it. Keep replies " +
	"concise and conversational."

// OpenAICompletion implements domain.CompletionService against an
// OpenAI-compatible API. Crisis risk is derived from the moderation
// endpoint's self-harm scores; a moderation failure degrades to risk 0
// rather than failing the reply.
type OpenAICompletion struct {
	client openaigo.Client
	model  string
}

func NewOpenAICompletion(apiKey, baseURL, model string) *OpenAICompletion {
	client := openaigo.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(&http.Client{Timeout: config.CompletionTimeout}),
	)
	return &OpenAICompletion{client: client, model: model}
}

func (s *OpenAICompletion) Complete(ctx context.Context, turns []domain.ChatTurn, latest string, moodTag string) (*domain.Completion, error) {
	system := systemPrompt
	if moodTag != "" {
		system += fmt.Sprintf(" The user has indicated they are currently feeling: %s.", moodTag)
	}

	messages := make([]openaigo.ChatCompletionMessageParamUnion, 0, len(turns)+2)
	messages = append(messages, openaigo.SystemMessage(system))
	for _, t := range turns {
		switch t.Role {
		case domain.RoleAssistant:
			messages = append(messages, openaigo.AssistantMessage(t.Content))
		default:
			messages = append(messages, openaigo.UserMessage(t.Content))
		}
	}
	messages = append(messages, openaigo.UserMessage(latest))

	resp, err := s.client.Chat.Completions.New(ctx, openaigo.ChatCompletionNewParams{
		Model:    openaigo.ChatModel(s.model),
		Messages: messages,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion: empty response")
	}

	return &domain.Completion{
		ReplyText:  resp.Choices[0].Message.Content,
		CrisisRisk: s.crisisRisk(ctx, latest),
	}, nil
}

func (s *OpenAICompletion) crisisRisk(ctx context.Context, text string) float64 {
	mod, err := s.client.Moderations.New(ctx, openaigo.ModerationNewParams{
		Input: openaigo.ModerationNewParamsInputUnion{
			OfString: openaigo.String(text),
		},
	})
	if err != nil {
		slog.Error("moderation request failed", "error", err)
		return 0
	}
	if len(mod.Results) == 0 {
		return 0
	}

	scores := mod.Results[0].CategoryScores
	risk := scores.SelfHarm
	if scores.SelfHarmIntent > risk {
		risk = scores.SelfHarmIntent
	}
	if scores.SelfHarmInstructions > risk {
		risk = scores.SelfHarmInstructions
	}
	return risk
}
