// Package integrations provides the shared HTTP client for registry APIs.
//
// Registry-specific clients live in subpackages ([crates] for crates.io) and
// embed [Client], which handles:
//   - default headers (crates.io requires a User-Agent)
//   - retry of transient failures via [httputil.Policy]
//   - status classification into [ErrNotFound] and [ErrNetwork]
//   - request hooks from [observability.HTTP]
//
// Responses are never cached here; callers cache at a higher level.
package integrations
