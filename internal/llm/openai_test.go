package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChatClient struct {
	response openai.ChatCompletionResponse
	err      error
	last     openai.ChatCompletionRequest
	deadline bool
}

func (s *stubChatClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.last = req
	_, s.deadline = ctx.Deadline()
	return s.response, s.err
}

func TestOpenAIClient_CompleteMapsMessages(t *testing.T) {
	stub := &stubChatClient{response: openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message:      openai.ChatCompletionMessage{Content: "  Hi Ana!  "},
			FinishReason: openai.FinishReasonStop,
		}},
		Usage: openai.Usage{PromptTokens: 10, CompletionTokens: 3, TotalTokens: 13},
	}}
	client := newOpenAIClient(stub, "", time.Second)

	resp, err := client.Complete(context.Background(), Request{
		System: []string{"be brief", " "},
		Messages: []Message{
			{Role: RoleUser, Content: "hello"},
			{Role: RoleAssistant, Content: "hi"},
			{Role: RoleUser, Content: ""},
			{Role: RoleUser, Content: "who am I?"},
		},
		MaxTokens:   64,
		Temperature: 0.3,
	})
	require.NoError(t, err)
	assert.Equal(t, "Hi Ana!", resp.Text)
	assert.Equal(t, "stop", resp.StopReason)
	assert.Equal(t, int32(13), resp.Usage.TotalTokens)

	assert.Equal(t, "llama3.2", stub.last.Model)
	assert.Equal(t, 64, stub.last.MaxTokens)
	assert.True(t, stub.deadline, "expected call timeout on context")
	require.Len(t, stub.last.Messages, 4)
	assert.Equal(t, openai.ChatMessageRoleSystem, stub.last.Messages[0].Role)
	assert.Equal(t, openai.ChatMessageRoleAssistant, stub.last.Messages[2].Role)
	assert.Equal(t, "who am I?", stub.last.Messages[3].Content)
}

func TestOpenAIClient_Errors(t *testing.T) {
	client := newOpenAIClient(&stubChatClient{err: errors.New("boom")}, "m", time.Second)
	_, err := client.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "x"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	client = newOpenAIClient(&stubChatClient{}, "m", time.Second)
	_, err = client.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "x"}}})
	assert.ErrorIs(t, err, ErrEmptyCompletion)

	_, err = client.Complete(context.Background(), Request{Messages: []Message{{Role: "tool", Content: "x"}}})
	assert.ErrorContains(t, err, "unsupported role")
}
