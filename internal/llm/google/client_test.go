package google

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"google.golang.org/genai"

	"ragengine/internal/llm"
)

func TestAdaptMessagesSystemInstruction(t *testing.T) {
	contents, cfg := adaptMessages([]llm.Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "q"},
		{Role: "assistant", Content: "a"},
	})
	require.NotNil(t, cfg.SystemInstruction)
	require.Len(t, contents, 2)
	assert.Equal(t, string(genai.RoleUser), string(contents[0].Role))
	assert.Equal(t, string(genai.RoleModel), string(contents[1].Role))
}

func TestResponseTextConcatenatesParts(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "hello "},
				{Text: "ignored", Thought: true},
				{Text: "world"},
			}},
		}},
	}
	text, err := responseText(resp)
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
}

func TestResponseTextNilResponse(t *testing.T) {
	_, err := responseText(nil)
	assert.Error(t, err)
}

func TestResponseTextNoCandidates(t *testing.T) {
	text, err := responseText(&genai.GenerateContentResponse{})
	require.NoError(t, err)
	assert.Empty(t, text)
}
