package llm

import (
	"context"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiHistory(t *testing.T) {
	history, last, err := geminiHistory([]Message{
		{Role: RoleSystem, Content: "ignored"},
		{Role: RoleUser, Content: " hi "},
		{Role: RoleAssistant, Content: "hello"},
		{Role: RoleUser, Content: ""},
		{Role: RoleUser, Content: "what time is it?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "what time is it?", last)
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, []genai.Part{genai.Text("hi")}, history[0].Parts)
	assert.Equal(t, "model", history[1].Role)
}

func TestGeminiHistoryRequiresMessage(t *testing.T) {
	_, _, err := geminiHistory([]Message{{Role: RoleSystem, Content: "only system"}})
	assert.Error(t, err)
}

func TestNewGeminiClientRequiresKey(t *testing.T) {
	_, err := NewGeminiClient(context.Background(), " ", "")
	assert.Error(t, err)
}
