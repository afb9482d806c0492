package nats

import (
	"context"
	"errors"
	"sync"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/refinery/events"
)

type message struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []message
	err  error
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, message{subject: subject, data: data})
	return nil
}

func TestSink_Publish(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewSink(pub, "docs.refine.")

	ev := events.New("run-1", events.KindStepCompleted)
	ev.Iteration = 2
	ev.Step = "refine"
	ev.Document = "Once upon a time. The end."
	require.NoError(t, sink.Publish(context.Background(), ev))

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "docs.refine.run-1.step_completed", pub.msgs[0].subject)

	var decoded events.Event
	require.NoError(t, json.Unmarshal(pub.msgs[0].data, &decoded))
	assert.Equal(t, ev.ID, decoded.ID)
	assert.Equal(t, "refine", decoded.Step)
	assert.Equal(t, 2, decoded.Iteration)
	assert.True(t, ev.Timestamp.Equal(decoded.Timestamp))
}

func TestSink_Subject(t *testing.T) {
	sink := NewSink(&fakePublisher{}, "")
	assert.Equal(t, "refinery.runs._.run_started", sink.Subject(events.Event{Kind: events.KindRunStarted}))
	assert.Equal(t, "refinery.runs.a_b_c.run_failed", sink.Subject(events.Event{RunID: "a.b*c", Kind: events.KindRunFailed}))
}

func TestSink_Errors(t *testing.T) {
	boom := errors.New("no responders")
	sink := NewSink(&fakePublisher{err: boom}, "")
	err := sink.Publish(context.Background(), events.New("r", events.KindRunStarted))
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, NewSink(&fakePublisher{}, "").Publish(ctx, events.Event{}), context.Canceled)
}
