package steps

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/refinery/core"
	"github.com/hupe1980/refinery/internal/util"
	"github.com/hupe1980/refinery/logging"
	"github.com/hupe1980/refinery/loop"
	"github.com/hupe1980/refinery/model"
	"github.com/hupe1980/refinery/tool"
)

// ErrEmptyOutput is returned when a model produced neither text nor a
// recognised tool call.
var ErrEmptyOutput = errors.New("model returned empty output")

// DefaultMaxToolRounds bounds tool call round trips inside one step.
const DefaultMaxToolRounds = 3

// Option configures a model backed step.
type Option func(*base)

// WithInstruction replaces the instruction template.
func WithInstruction(tmpl string) Option {
	return func(b *base) { b.instruction = tmpl }
}

// WithDescription replaces the system description sent with every request.
func WithDescription(d string) Option {
	return func(b *base) { b.description = d }
}

// WithSentinel sets the approval phrase used in prompts and by the refiner
// short circuit.
func WithSentinel(s string) Option {
	return func(b *base) { b.sentinel = s }
}

// WithLimiter shares a call limiter with the step.
func WithLimiter(l *core.CallLimiter) Option {
	return func(b *base) { b.limiter = l }
}

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(l *logging.RunLogger) Option {
	return func(b *base) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithStreaming requests streamed generation from the model.
func WithStreaming(enabled bool) Option {
	return func(b *base) { b.stream = enabled }
}

// WithTools exposes additional tools to the step's model.
func WithTools(tools ...tool.Tool) Option {
	return func(b *base) { b.tools = append(b.tools, tools...) }
}

// WithMaxToolRounds bounds tool round trips per step call.
func WithMaxToolRounds(n int) Option {
	return func(b *base) { b.maxToolRounds = n }
}

// WithToolParallelism limits how many tool calls of one model turn run
// concurrently. Values below 1 run every call of the turn at once.
func WithToolParallelism(n int) Option {
	return func(b *base) { b.toolParallelism = n }
}

type base struct {
	name          string
	model         model.Model
	instruction   string
	description   string
	sentinel      string
	limiter       *core.CallLimiter
	logger        *logging.RunLogger
	stream        bool
	tools         []tool.Tool
	maxToolRounds int

	toolParallelism int
}

func newBase(name string, m model.Model, instruction, description string, opts []Option) base {
	b := base{
		name:          name,
		model:         m,
		instruction:   instruction,
		description:   description,
		sentinel:      loop.DefaultSentinel,
		logger:        logging.Discard(),
		maxToolRounds: DefaultMaxToolRounds,
	}
	for _, o := range opts {
		o(&b)
	}
	b.logger = b.logger.WithComponent(name)
	return b
}

// prompt renders the instruction template over state.
func (b *base) prompt(state map[string]any) (string, error) {
	state[KeyCompletionPhrase] = b.sentinel
	text, err := util.RenderTemplate(b.instruction, state)
	if err != nil {
		return "", fmt.Errorf("%s: %w", b.name, err)
	}
	return text, nil
}

// call performs one model round trip. Transport failures are marked
// retryable; limiter exhaustion is not.
func (b *base) call(ctx context.Context, contents []core.Content, tools *tool.Set) (model.Response, error) {
	if err := b.limiter.Increment(); err != nil {
		return model.Response{}, fmt.Errorf("%s: %w", b.name, err)
	}

	req := model.Request{
		Instructions: b.description,
		Contents:     contents,
		Tools:        tools.Definitions(),
		Stream:       b.stream,
	}

	start := time.Now()
	resp, err := model.Collect(ctx, b.model, req)
	b.logger.LogModelCall(b.model.Info().Name, time.Since(start), err)
	if err != nil {
		return model.Response{}, loop.Retryable(fmt.Errorf("%s: model call: %w", b.name, err))
	}
	return resp, nil
}

// textOnly runs a single prompt without tools and returns the trimmed text.
func (b *base) textOnly(ctx context.Context, state map[string]any) (string, error) {
	prompt, err := b.prompt(state)
	if err != nil {
		return "", err
	}
	resp, err := b.call(ctx, []core.Content{core.NewTextContent(core.RoleUser, prompt)}, nil)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Content.Text())
	if text == "" {
		return "", fmt.Errorf("%s: %w", b.name, ErrEmptyOutput)
	}
	return text, nil
}
