package ai

import (
	"context"
	"fmt"

	"chatrelay/internal/config"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

// defaultGeminiModel is used when the provider config leaves the model blank.
const defaultGeminiModel = "gemini-2.0-flash"

// Service is the completion backend: it accepts a single text context and
// returns generated text. The model's behavior is opaque to the rest of
// the system.
type Service struct {
	chatModel model.BaseChatModel
	provider  string
}

// NewService builds the chat model for the configured provider.
func NewService(ctx context.Context, provider string, provCfg config.ProviderConfig) (*Service, error) {
	var (
		chatModel model.BaseChatModel
		err       error
	)

	switch provider {
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   provCfg.Model,
			APIKey:  provCfg.APIKey,
		})
	case "gemini":
		modelName := provCfg.Model
		if modelName == "" {
			modelName = defaultGeminiModel
		}
		var client *genai.Client
		client, err = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey: provCfg.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  modelName,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     provCfg.Model,
			BaseURL:   baseURLPtr,
			MaxTokens: 3000,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", provider, err)
	}

	return &Service{chatModel: chatModel, provider: provider}, nil
}

// Complete sends the assembled context as a single user message and
// returns the generated text.
func (s *Service) Complete(ctx context.Context, prompt string) (string, error) {
	msg, err := s.chatModel.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return "", fmt.Errorf("generate completion (%s): %w", s.provider, err)
	}
	return msg.Content, nil
}
