package anthropic

import (
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToSDKMessages_Count(t *testing.T) {
	msgs := toSDKMessages([]Message{
		{Role: "user", Content: "question"},
		{Role: "assistant", Content: "answer"},
		{Role: "", Content: "defaults to user"},
	})
	assert.Len(t, msgs, 3)
}

func TestFromSDKMessage_PicksFirstTextBlock(t *testing.T) {
	msg := &sdk.Message{
		ID:         "msg_1",
		Model:      "claude-sonnet-4-5-20250929",
		StopReason: "end_turn",
		Content: []sdk.ContentBlockUnion{
			{Type: "thinking"},
			{Type: "text", Text: "the answer"},
			{Type: "text", Text: "ignored second block"},
		},
		Usage: sdk.Usage{
			InputTokens:  10,
			OutputTokens: 5,
		},
	}

	resp := fromSDKMessage(msg)
	require.NotNil(t, resp)
	assert.Equal(t, "msg_1", resp.ID)
	assert.Equal(t, "the answer", resp.Text)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, int64(10), resp.Usage.InputTokens)
	assert.Equal(t, int64(5), resp.Usage.OutputTokens)
}

func TestFromSDKMessage_NoTextBlocks(t *testing.T) {
	msg := &sdk.Message{
		ID:         "msg_empty",
		StopReason: "max_tokens",
	}

	resp := fromSDKMessage(msg)
	require.NotNil(t, resp)
	assert.Empty(t, resp.Text)
	assert.Equal(t, "max_tokens", resp.StopReason)
}
