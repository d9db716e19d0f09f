package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

const (
	defaultTitleModelName = "gemini-1.5-flash-latest"

	titleSystemInstruction = "You are a helpful assistant that generates concise titles for chat conversations. " +
		"The title should be 3-5 words maximum. Just return the title itself, nothing else."

	maxTitleBasisRunes = 2000
)

// LLMService generates chat titles with Gemini.
type LLMService struct {
	client *genai.Client
	logger zerolog.Logger
}

var _ TitleGenerator = (*LLMService)(nil)

func NewLLMService(ctx context.Context, apiKey string, logger zerolog.Logger) (*LLMService, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Wrap(err, "creating GenAI client")
	}
	return &LLMService{
		client: client,
		logger: logger.With().Str("component", "llm").Logger(),
	}, nil
}

func (s *LLMService) Close() {
	if s.client == nil {
		return
	}
	if err := s.client.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("error closing GenAI client")
		return
	}
	s.logger.Debug().Msg("GenAI client closed")
}

func (s *LLMService) GenerateTitleForChat(ctx context.Context, chatSummary string) (string, error) {
	model := s.client.GenerativeModel(defaultTitleModelName)

	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(titleSystemInstruction)},
	}

	temp := float32(0.3)
	maxTokens := int32(20)

	model.GenerationConfig = genai.GenerationConfig{
		MaxOutputTokens: &maxTokens,
		Temperature:     &temp,
	}

	resp, err := model.GenerateContent(ctx, genai.Text(titlePrompt(chatSummary)))
	if err != nil {
		return "", errors.Wrap(err, "gemini title generation request failed")
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("LLM did not generate a title (empty response)")
	}

	var titleText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			titleText.WriteString(string(txt))
		}
	}

	title := strings.Trim(titleText.String(), "\"'\n\r\t .")
	if title == "" {
		return "", errors.New("LLM generated an empty title string")
	}
	return title, nil
}

func titlePrompt(basis string) string {
	if r := []rune(basis); len(r) > maxTitleBasisRunes {
		basis = string(r[:maxTitleBasisRunes])
	}
	return fmt.Sprintf("Generate a very concise title (3-5 words maximum) for a conversation that starts with or is about: %q.", basis)
}
