// Package core provides the small set of domain types shared by the model
// adapters and step implementations: role-based Content made of text,
// function call and function response Parts, identifier generation and a
// call limiter for capping model usage per run.
package core
