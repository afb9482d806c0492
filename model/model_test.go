package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/refinery/core"
)

func userRequest(text string) Request {
	return Request{Contents: []core.Content{core.NewTextContent(core.RoleUser, text)}}
}

func TestMockModel_ResolutionOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMockModel("mock")
	m.AddResponse("exact prompt", "exact")
	m.AddRule("keyword", TextResponse("rule"))
	m.Enqueue(TextResponse("first"), TextResponse("second"))

	tests := []struct {
		prompt string
		want   string
	}{
		{"exact prompt", "exact"},
		{"has keyword inside", "rule"},
		{"anything", "first"},
		{"anything", "second"},
		{"anything", "Mock response to: anything"},
	}
	for _, tt := range tests {
		resp, err := Collect(ctx, m, userRequest(tt.prompt))
		require.NoError(t, err)
		assert.Equal(t, tt.want, resp.Content.Text())
	}
	assert.Len(t, m.Requests(), len(tests))
}

func TestMockModel_Streaming(t *testing.T) {
	m := NewMockModel("mock")
	m.AddResponse("hi", "abc")

	req := userRequest("hi")
	req.Stream = true
	respCh, errCh := m.Generate(context.Background(), req)

	var partials []string
	var final Response
	for r := range respCh {
		if r.Partial {
			partials = append(partials, r.Content.Text())
			continue
		}
		final = r
	}
	assert.NoError(t, <-errCh)
	assert.Equal(t, []string{"a", "b", "c"}, partials)
	assert.Equal(t, "abc", final.Content.Text())
}

func TestMockModel_ToolCallAndError(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("unavailable")
	m := NewMockModel("mock")
	m.Enqueue(ToolCallResponse("call-1", "exit_loop", "{}"))
	m.EnqueueError(boom)

	resp, err := Collect(ctx, m, userRequest("x"))
	require.NoError(t, err)
	calls := resp.Content.FunctionCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "exit_loop", calls[0].Name)

	_, err = Collect(ctx, m, userRequest("x"))
	assert.ErrorIs(t, err, boom)
}

func TestMockModel_EmptyContents(t *testing.T) {
	_, err := Collect(context.Background(), NewMockModel("mock"), Request{})
	assert.Error(t, err)
}

func TestCollect_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Collect(ctx, blockingModel{}, userRequest("x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCollect_NoFinalResponse(t *testing.T) {
	_, err := Collect(context.Background(), closedModel{}, userRequest("x"))
	assert.ErrorIs(t, err, ErrNoResponse)
}

func TestLastUserText(t *testing.T) {
	req := Request{Contents: []core.Content{
		core.NewTextContent(core.RoleUser, "first"),
		core.NewTextContent(core.RoleAssistant, "reply"),
		core.NewTextContent(core.RoleUser, "second"),
		core.NewTextContent(core.RoleAssistant, "reply"),
	}}
	assert.Equal(t, "second", LastUserText(req))
	assert.Empty(t, LastUserText(Request{}))
}

type blockingModel struct{}

func (blockingModel) Generate(context.Context, Request) (<-chan Response, <-chan error) {
	return make(chan Response), make(chan error)
}

func (blockingModel) Info() Info { return Info{Name: "blocking"} }

type closedModel struct{}

func (closedModel) Generate(context.Context, Request) (<-chan Response, <-chan error) {
	r, e := make(chan Response), make(chan error)
	close(r)
	close(e)
	return r, e
}

func (closedModel) Info() Info { return Info{Name: "closed"} }
