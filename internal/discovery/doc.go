// Package discovery implements the budgeted, block-aware pagination engine
// that walks a platform's paginated search results. It owns the per-search
// stop conditions (page/job budgets, duplicate-page detection, block circuit
// breaker), the block classifier, and the adaptive date-window policy.
//
// The package is deliberately free of persistence and transport concerns:
// fetching, identifier extraction and row writes are supplied through the
// Fetcher, Extractor and Sink interfaces.
package discovery
