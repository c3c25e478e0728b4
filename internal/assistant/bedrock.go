package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

type bedrockStreamAPI interface {
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

// BedrockProvider streams through the Bedrock ConverseStream API.
type BedrockProvider struct {
	api       bedrockStreamAPI
	modelID   string
	maxTokens int32
}

func NewBedrockProvider(api bedrockStreamAPI, modelID string, maxTokens int32) *BedrockProvider {
	if api == nil {
		panic("assistant: bedrock client cannot be nil")
	}
	return &BedrockProvider{api: api, modelID: modelID, maxTokens: maxTokens}
}

func (p *BedrockProvider) Name() string { return "bedrock" }

func (p *BedrockProvider) Stream(ctx context.Context, req CompletionRequest, emit EmitFunc) error {
	if strings.TrimSpace(p.modelID) == "" {
		return errors.New("assistant: bedrock model id is required")
	}
	input := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(p.modelID),
		Messages: bedrockMessages(req.Messages),
	}
	if strings.TrimSpace(req.System) != "" {
		input.System = []brtypes.SystemContentBlock{&brtypes.SystemContentBlockMemberText{Value: req.System}}
	}
	if p.maxTokens > 0 {
		input.InferenceConfig = &brtypes.InferenceConfiguration{MaxTokens: aws.Int32(p.maxTokens)}
	}

	out, err := p.api.ConverseStream(ctx, input)
	if err != nil {
		return fmt.Errorf("assistant: bedrock converse stream: %w", err)
	}
	stream := out.GetStream()
	if stream == nil {
		return errors.New("assistant: bedrock stream is nil")
	}
	return emitBedrockEvents(stream, emit)
}

// bedrockEvents is the read side of a ConverseStream event stream.
type bedrockEvents interface {
	Events() <-chan brtypes.ConverseStreamOutput
	Close() error
	Err() error
}

// emitBedrockEvents forwards text deltas until the stream ends or emit fails.
func emitBedrockEvents(stream bedrockEvents, emit EmitFunc) error {
	defer stream.Close()

	for event := range stream.Events() {
		delta, ok := event.(*brtypes.ConverseStreamOutputMemberContentBlockDelta)
		if !ok {
			continue
		}
		text, ok := delta.Value.Delta.(*brtypes.ContentBlockDeltaMemberText)
		if !ok || text.Value == "" {
			continue
		}
		if err := emit(text.Value); err != nil {
			return err
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("assistant: bedrock stream: %w", err)
	}
	return nil
}

func bedrockMessages(messages []ChatMessage) []brtypes.Message {
	out := make([]brtypes.Message, 0, len(messages))
	for _, m := range messages {
		role := brtypes.ConversationRoleUser
		if m.Role == RoleAssistant {
			role = brtypes.ConversationRoleAssistant
		}
		out = append(out, brtypes.Message{
			Role:    role,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: m.Content}},
		})
	}
	return out
}
