// Package collector defines the collaborator that fetches search-engine
// results for a query, and client implementations for the platform's
// collector service.
package collector

import (
	"context"
	"time"
)

// Request asks for one query's results across a set of engines.
type Request struct {
	Query      string   `json:"query"`
	Engines    []string `json:"engines"`
	MaxResults int      `json:"max_results"`
}

// SearchResult is one ranked result from one engine.
type SearchResult struct {
	Engine  string `json:"engine"`
	Rank    int    `json:"rank"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
	Domain  string `json:"domain,omitempty"`
}

// Metadata describes how a collection went per engine.
type Metadata struct {
	SuccessfulEngines []string      `json:"successful_engines"`
	FailedEngines     []string      `json:"failed_engines"`
	Duration          time.Duration `json:"-"`
}

// Result is the outcome of collecting one request.
type Result struct {
	Results  []SearchResult `json:"results"`
	Metadata Metadata       `json:"metadata"`
}

// Collector collects search results. Implementations may fail with network,
// timeout, or engine-blocking errors; callers decide retry policy.
type Collector interface {
	Collect(ctx context.Context, req Request) (*Result, error)

	// CollectBatch collects several requests, preserving partial results:
	// the returned slice matches the request order with nil entries for
	// failures, and the error aggregates every failure.
	CollectBatch(ctx context.Context, reqs []Request) ([]*Result, error)
}
