// Package testutil contains deterministic step implementations used across
// tests to drive refinement loops without a model backend. They are not
// intended for production usage.
package testutil
