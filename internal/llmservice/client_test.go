package llmservice

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"ecoopen-extract/internal/models"
)

type fakeModel struct {
	reply    string
	err      error
	messages []llms.MessageContent
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestComplete(t *testing.T) {
	fake := &fakeModel{reply: "<think>the DOI is on page one</think>\n10.1111/ele.13735"}
	c := NewClientWithModel(fake, "test-model", 0)

	got, err := c.Complete(context.Background(), "system prompt", "user prompt")
	require.NoError(t, err)
	assert.Equal(t, "10.1111/ele.13735", got)

	require.Len(t, fake.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, fake.messages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, fake.messages[1].Role)
}

func TestComplete_TransportError(t *testing.T) {
	c := NewClientWithModel(&fakeModel{err: errors.New("connection refused")}, "m", 0)

	_, err := c.Complete(context.Background(), "s", "p")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrAgentUnavailable)
}

func TestComplete_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewClientWithModel(&fakeModel{err: errors.New("request aborted")}, "m", 0)

	_, err := c.Complete(ctx, "s", "p")
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, models.ErrAgentUnavailable)
}

func TestStripThink(t *testing.T) {
	assert.Equal(t, "None", StripThink("<think>\nno statement\n</think> None "))
	assert.Equal(t, "plain", StripThink("plain"))
}
