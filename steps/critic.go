package steps

import (
	"context"

	"github.com/hupe1980/refinery/loop"
	"github.com/hupe1980/refinery/model"
)

// ModelCritic reviews a document with a model. It returns the trimmed model
// text, which is either actionable feedback or the sentinel.
type ModelCritic struct {
	base
}

var _ loop.Critic = (*ModelCritic)(nil)

// NewCritic creates a ModelCritic backed by m.
func NewCritic(m model.Model, opts ...Option) *ModelCritic {
	return &ModelCritic{base: newBase("Critic", m, DefaultCriticInstruction, criticDescription, opts)}
}

// Critique implements loop.Critic.
func (c *ModelCritic) Critique(ctx context.Context, document string) (string, error) {
	return c.textOnly(ctx, map[string]any{KeyCurrentDocument: document})
}
