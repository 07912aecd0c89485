package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentkernel/core"
	"github.com/hupe1980/agentkernel/model"
)

func TestModel_Complete(t *testing.T) {
	var body map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-test",
			"content": [{"type": "text", "text": "hello"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 12, "output_tokens": 3}
		}`))
	}))
	defer srv.Close()

	client := anthropic.NewClient(option.WithBaseURL(srv.URL), option.WithAPIKey("test"), option.WithMaxRetries(0))
	m := NewModelFromClient(&client, func(o *Options) { o.Model = "claude-test" })

	resp, err := m.Complete(context.Background(), model.Request{
		Instructions: "be brief",
		Messages:     []core.Message{{Role: "assistant", Text: "earlier"}},
		Prompt:       "hi",
	})
	require.NoError(t, err)

	assert.Equal(t, "msg_1", resp.ID)
	assert.Equal(t, "hello", resp.Text)
	assert.Equal(t, "end_turn", resp.FinishReason)
	assert.Equal(t, model.Usage{InputTokens: 12, OutputTokens: 3, TotalTokens: 15}, resp.Usage)

	assert.Equal(t, "claude-test", body["model"])
	assert.Len(t, body["messages"], 2)
	assert.NotEmpty(t, body["system"])
	assert.Equal(t, model.Info{Name: "claude-test", Provider: "anthropic"}, m.Info())
}

func TestModel_CompleteRequiresContent(t *testing.T) {
	client := anthropic.NewClient(option.WithAPIKey("test"))
	m := NewModelFromClient(&client)

	_, err := m.Complete(context.Background(), model.Request{Instructions: "only system"})
	assert.Error(t, err)
}
