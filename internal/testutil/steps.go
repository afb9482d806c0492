package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/hupe1980/refinery/loop"
)

// ErrScriptExhausted is returned by a ScriptedCritic called more often than scripted.
var ErrScriptExhausted = errors.New("testutil: script exhausted")

// CriticReply is one scripted critic response.
type CriticReply struct {
	Feedback string
	Err      error
}

// ScriptedCritic replays a fixed sequence of replies and records the
// documents it was shown. Once the script runs out it keeps repeating the
// Fallback reply when one is set.
type ScriptedCritic struct {
	mu       sync.Mutex
	replies  []CriticReply
	Fallback *CriticReply
	seen     []string
}

// NewScriptedCritic returns a critic answering with the given feedback in order.
func NewScriptedCritic(feedback ...string) *ScriptedCritic {
	c := &ScriptedCritic{}
	for _, f := range feedback {
		c.replies = append(c.replies, CriticReply{Feedback: f})
	}
	return c
}

// Then appends a reply (chainable).
func (c *ScriptedCritic) Then(r CriticReply) *ScriptedCritic {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies = append(c.replies, r)
	return c
}

// Always sets the reply used once the script is exhausted (chainable).
func (c *ScriptedCritic) Always(feedback string) *ScriptedCritic {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Fallback = &CriticReply{Feedback: feedback}
	return c
}

// Critique implements loop.Critic.
func (c *ScriptedCritic) Critique(_ context.Context, document string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := len(c.seen)
	c.seen = append(c.seen, document)
	if idx < len(c.replies) {
		r := c.replies[idx]
		return r.Feedback, r.Err
	}
	if c.Fallback != nil {
		return c.Fallback.Feedback, c.Fallback.Err
	}
	return "", ErrScriptExhausted
}

// Calls returns the number of Critique invocations.
func (c *ScriptedCritic) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// Seen returns a copy of the documents passed to Critique.
func (c *ScriptedCritic) Seen() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.seen...)
}

// AppendRefiner appends Suffix on every non-sentinel feedback and exits,
// unchanged, on the sentinel.
type AppendRefiner struct {
	mu       sync.Mutex
	Suffix   string
	Sentinel string
	// FailOn makes the given (1-based) call return Err.
	FailOn int
	Err    error
	calls  int
}

// NewAppendRefiner returns a refiner appending suffix and honouring loop.DefaultSentinel.
func NewAppendRefiner(suffix string) *AppendRefiner {
	return &AppendRefiner{Suffix: suffix, Sentinel: loop.DefaultSentinel}
}

// Refine implements loop.Refiner.
func (r *AppendRefiner) Refine(_ context.Context, document, feedback string) (loop.Refinement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.FailOn > 0 && r.calls == r.FailOn {
		return loop.Refinement{}, r.Err
	}
	if loop.IsApproved(feedback, r.Sentinel) {
		return loop.Refinement{Document: document, Exit: true}, nil
	}
	return loop.Refinement{Document: document + r.Suffix}, nil
}

// Calls returns the number of Refine invocations.
func (r *AppendRefiner) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}
