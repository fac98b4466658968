// Package queries provides the query-management collaborator: named query
// sets and rotation strategies that pick which queries a collection cycle
// runs.
package queries

import "context"

// Query is one collectable search query.
type Query struct {
	ID       string `json:"id"       yaml:"id"`
	Text     string `json:"text"     yaml:"text"`
	Category string `json:"category" yaml:"category,omitempty"`
}

// Rotation strategies.
const (
	// RotationRoundRobin walks the set in order with a persistent cursor.
	RotationRoundRobin = "round_robin"
	// RotationRandom samples the set without replacement.
	RotationRandom = "random"
	// RotationCategoryBalanced interleaves categories in first-appearance order.
	RotationCategoryBalanced = "category_balanced"
)

// Provider supplies queries for cycle executions.
type Provider interface {
	// Initialize loads the provider's backing data.
	Initialize(ctx context.Context) error

	// GetQueriesForExecution returns up to count queries from the named set,
	// chosen by the rotation strategy. An empty rotation means round robin.
	GetQueriesForExecution(ctx context.Context, querySetID string, count int, rotation string) ([]Query, error)
}
