// Package local provides an in-process identity backend for go-identity.
//
// It keeps credentials in memory and mints HS256 access tokens, which makes
// it suitable for local consoles, demos, and tests. Production deployments
// should point the orchestrator at a hosted backend instead.
package local
