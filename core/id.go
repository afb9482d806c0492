package core

import "github.com/google/uuid"

// NewID returns a random (v4) identifier used for runs and events.
func NewID() string { return uuid.NewString() }
