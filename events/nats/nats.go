// Package nats publishes refinement events to a NATS server.
package nats

import (
	"context"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"

	"github.com/hupe1980/refinery/events"
)

// DefaultPrefix is the subject prefix used when none is configured.
const DefaultPrefix = "refinery.runs"

// Publisher is the subset of *nats.Conn used by Sink.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Connect opens a connection to url. With no options the client is named
// "refinery" and uses compression.
func Connect(url string, opts ...natsgo.Option) (*natsgo.Conn, error) {
	if len(opts) == 0 {
		opts = append(opts, natsgo.Name("refinery"), natsgo.Compression(true))
	}
	if url == "" {
		url = natsgo.DefaultURL
	}
	return natsgo.Connect(url, opts...)
}

// Sink publishes events as JSON to <prefix>.<run_id>.<kind>.
type Sink struct {
	pub    Publisher
	prefix string
}

var _ events.Sink = (*Sink)(nil)

// NewSink creates a Sink. An empty prefix selects DefaultPrefix.
func NewSink(pub Publisher, prefix string) *Sink {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Sink{pub: pub, prefix: strings.TrimSuffix(prefix, ".")}
}

// Subject returns the subject an event is published on.
func (s *Sink) Subject(ev events.Event) string {
	return fmt.Sprintf("%s.%s.%s", s.prefix, token(ev.RunID), ev.Kind)
}

// Publish implements events.Sink.
func (s *Sink) Publish(ctx context.Context, ev events.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", ev.ID, err)
	}
	if err := s.pub.Publish(s.Subject(ev), data); err != nil {
		return fmt.Errorf("publish event %s: %w", ev.ID, err)
	}
	return nil
}

// token makes s safe for use as a single subject token.
func token(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
}
