// Package runner executes refinement pipelines as tracked runs.
//
// The Runner is the orchestration layer above pipeline.Pipeline. For every
// run it:
//   - Assigns a run id and registers a cancel function
//   - Persists a store.RunRecord when the run starts and when it ends
//   - Publishes lifecycle events to the configured events.Sink values
//   - Records OpenTelemetry metrics
//   - Captures a per-iteration revision history
//
// RunBatch executes several topics concurrently with a configurable limit.
// A failing run never cancels its siblings.
package runner
