package steps

import (
	"context"
	"strings"

	"github.com/hupe1980/refinery/model"
)

// Writer produces the initial draft for a topic.
type Writer struct {
	base
	defaultTopic string
}

// NewWriter creates a Writer backed by m.
func NewWriter(m model.Model, opts ...Option) *Writer {
	return &Writer{
		base:         newBase("InitialWriter", m, DefaultWriterInstruction, writerDescription, opts),
		defaultTopic: DefaultTopic,
	}
}

// Write returns a first draft about topic. An empty topic falls back to
// DefaultTopic.
func (w *Writer) Write(ctx context.Context, topic string) (string, error) {
	if strings.TrimSpace(topic) == "" {
		topic = w.defaultTopic
	}
	return w.textOnly(ctx, map[string]any{KeyInitialTopic: topic})
}
