package llm

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubConverse struct {
	input *bedrockruntime.ConverseInput
	out   *bedrockruntime.ConverseOutput
}

func (s *stubConverse) Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	s.input = params
	return s.out, nil
}

func TestBedrockClient_Complete(t *testing.T) {
	stub := &stubConverse{out: &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
			Role:    brtypes.ConversationRoleAssistant,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: "Sure thing"}},
		}},
		StopReason: brtypes.StopReasonEndTurn,
		Usage:      &brtypes.TokenUsage{InputTokens: aws.Int32(5), OutputTokens: aws.Int32(2), TotalTokens: aws.Int32(7)},
	}}
	client := NewBedrockClient(stub, "anthropic.claude-3-haiku")

	resp, err := client.Complete(context.Background(), Request{
		System:    []string{"be brief"},
		Messages:  []Message{{Role: RoleSystem, Content: "extra"}, {Role: RoleUser, Content: "hello"}},
		MaxTokens: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, "Sure thing", resp.Text)
	assert.Equal(t, int32(7), resp.Usage.TotalTokens)

	require.NotNil(t, stub.input)
	assert.Equal(t, "anthropic.claude-3-haiku", aws.ToString(stub.input.ModelId))
	assert.Len(t, stub.input.System, 2)
	require.Len(t, stub.input.Messages, 1)
	assert.Equal(t, brtypes.ConversationRoleUser, stub.input.Messages[0].Role)
	require.NotNil(t, stub.input.InferenceConfig)
	assert.Equal(t, int32(100), aws.ToInt32(stub.input.InferenceConfig.MaxTokens))
	assert.Nil(t, stub.input.InferenceConfig.Temperature)
}

func TestBedrockClient_RequiresModel(t *testing.T) {
	client := NewBedrockClient(&stubConverse{}, "")
	_, err := client.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	assert.ErrorContains(t, err, "model id is required")
}

func TestBedrockClient_EmptyOutput(t *testing.T) {
	stub := &stubConverse{out: &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{}},
	}}
	_, err := NewBedrockClient(stub, "m").Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}
