// Package observability provides structured logging and Prometheus metrics
// for the bridge.
//
// Logging is JSON via stdlib slog with chainable field helpers; metrics cover
// login outcomes, registrations, role evaluation and the local-login gate.
package observability
