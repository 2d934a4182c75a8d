package llm

import (
	"context"
	"fmt"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
)

// OpenAIGenerator implements Generator using the OpenAI chat
// completions streaming API.
type OpenAIGenerator struct {
	client      oai.Client
	model       string
	temperature float64
	maxTokens   int
}

// NewOpenAIGenerator constructs an OpenAI-backed generator.
func NewOpenAIGenerator(apiKey, model string, temperature float64, maxTokens int) (*OpenAIGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}
	return &OpenAIGenerator{
		client:      oai.NewClient(option.WithAPIKey(apiKey)),
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
	}, nil
}

// Generate implements Generator.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt []Message) (<-chan Token, error) {
	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(g.model),
		Messages: convertMessages(prompt),
	}
	if g.temperature != 0 {
		params.Temperature = param.NewOpt(g.temperature)
	}
	if g.maxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(g.maxTokens))
	}

	stream := g.client.Chat.Completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, &Error{RateLimited: isRateLimited(err), Err: fmt.Errorf("start stream: %w", err)}
	}

	tokens := make(chan Token, 32)
	go func() {
		defer close(tokens)
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			text := chunk.Choices[0].Delta.Content
			if text == "" {
				continue
			}
			select {
			case tokens <- Token{Text: text}:
			case <-ctx.Done():
				return
			}
		}
		// A stream that stops with an error truncated the response;
		// the consumer must not treat the fragment as complete.
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			terminal := Token{Err: &Error{RateLimited: isRateLimited(err), Err: fmt.Errorf("stream: %w", err)}}
			select {
			case tokens <- terminal:
			case <-ctx.Done():
			}
		}
	}()

	return tokens, nil
}

// convertMessages converts prompt messages to OpenAI SDK params.
func convertMessages(prompt []Message) []oai.ChatCompletionMessageParamUnion {
	messages := make([]oai.ChatCompletionMessageParamUnion, 0, len(prompt))
	for _, m := range prompt {
		switch m.Role {
		case RoleSystem:
			messages = append(messages, oai.SystemMessage(m.Content))
		case RoleAssistant:
			messages = append(messages, oai.AssistantMessage(m.Content))
		default:
			messages = append(messages, oai.UserMessage(m.Content))
		}
	}
	return messages
}

func isRateLimited(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "429") ||
		strings.Contains(msg, "too many requests")
}
