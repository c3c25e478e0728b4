package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GeminiProvider streams through the Gemini API.
type GeminiProvider struct {
	client  *genai.Client
	modelID string
}

func NewGeminiProvider(ctx context.Context, apiKey, modelID string) (*GeminiProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("assistant: gemini api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("assistant: create gemini client: %w", err)
	}
	return &GeminiProvider{client: client, modelID: modelID}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) Stream(ctx context.Context, req CompletionRequest, emit EmitFunc) error {
	if len(req.Messages) == 0 {
		return ErrEmptyConversation
	}
	model := p.client.GenerativeModel(p.modelID)
	if strings.TrimSpace(req.System) != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(req.System))
	}
	cs := model.StartChat()
	history, last := geminiHistory(req.Messages)
	cs.History = history

	return emitGeminiStream(cs.SendMessageStream(ctx, genai.Text(last)), emit)
}

type geminiIterator interface {
	Next() (*genai.GenerateContentResponse, error)
}

// emitGeminiStream forwards text parts until the iterator is done.
func emitGeminiStream(it geminiIterator, emit EmitFunc) error {
	for {
		resp, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("assistant: gemini stream: %w", err)
		}
		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				text, ok := part.(genai.Text)
				if !ok || text == "" {
					continue
				}
				if err := emit(string(text)); err != nil {
					return err
				}
			}
		}
	}
}

// geminiHistory splits the conversation into prior turns and the final user
// text. Gemini names the assistant role "model".
func geminiHistory(messages []ChatMessage) ([]*genai.Content, string) {
	if len(messages) == 0 {
		return nil, ""
	}
	history := make([]*genai.Content, 0, len(messages)-1)
	for _, m := range messages[:len(messages)-1] {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}
	return history, messages[len(messages)-1].Content
}

// Close releases the Gemini client.
func (p *GeminiProvider) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}
