// Package model defines the provider‑agnostic abstractions for talking to
// language models from refinement steps.
//
// Core goals:
//   - Unify streaming + non‑streaming generation behind a single interface
//   - Normalize tool / function call representation (ToolDefinition)
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Providers (OpenAI, Anthropic) implement the Model interface in sub
// packages so the steps package stays decoupled from vendor SDKs.
package model
