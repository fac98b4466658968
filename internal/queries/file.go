package queries

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cicconel11/TruthLayer-sub001/internal/logger"
)

var (
	// ErrNotInitialized indicates the provider was used before Initialize.
	ErrNotInitialized = errors.New("query provider not initialized")
	// ErrNoQuerySets indicates no usable query sets were found in the file.
	ErrNoQuerySets = errors.New("no query sets found in file")
	// ErrUnknownQuerySet indicates the requested query set does not exist.
	ErrUnknownQuerySet = errors.New("query set not found")
	// ErrUnknownRotation indicates an unsupported rotation strategy.
	ErrUnknownRotation = errors.New("unknown rotation strategy")
)

// querySetsFile is the YAML layout of a query sets file.
type querySetsFile struct {
	QuerySets []querySet `yaml:"query_sets"`
}

type querySet struct {
	ID      string  `yaml:"id"`
	Name    string  `yaml:"name"`
	Queries []Query `yaml:"queries"`
}

// FileProvider serves query sets from a YAML file. Round-robin cursors
// persist per set for the provider's lifetime, so consecutive executions walk
// the whole set instead of re-running its head.
type FileProvider struct {
	path   string
	logger logger.Logger

	mu      sync.Mutex
	sets    map[string]querySet
	cursors map[string]int
	rng     *rand.Rand
	loaded  bool
}

// NewFileProvider creates a provider backed by the YAML file at path.
func NewFileProvider(path string, log logger.Logger) *FileProvider {
	if log == nil {
		log = logger.NewNop()
	}
	return &FileProvider{
		path:    path,
		logger:  log,
		sets:    make(map[string]querySet),
		cursors: make(map[string]int),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Initialize loads and validates the query sets file. Entries missing an id
// or usable queries are skipped, not fatal.
func (p *FileProvider) Initialize(_ context.Context) error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("failed to read query sets file: %w", err)
	}

	var file querySetsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse query sets file: %w", err)
	}

	sets := make(map[string]querySet, len(file.QuerySets))
	for _, set := range file.QuerySets {
		if set.ID == "" {
			p.logger.Warn("skipping query set without id",
				logger.String("name", set.Name))
			continue
		}

		queries := make([]Query, 0, len(set.Queries))
		for _, q := range set.Queries {
			if q.Text == "" {
				p.logger.Warn("skipping query without text",
					logger.String("query_set", set.ID),
					logger.String("query_id", q.ID))
				continue
			}
			queries = append(queries, q)
		}
		if len(queries) == 0 {
			p.logger.Warn("skipping query set without usable queries",
				logger.String("query_set", set.ID))
			continue
		}

		set.Queries = queries
		sets[set.ID] = set
	}

	if len(sets) == 0 {
		return ErrNoQuerySets
	}

	p.mu.Lock()
	p.sets = sets
	p.cursors = make(map[string]int)
	p.loaded = true
	p.mu.Unlock()

	p.logger.Info("query sets loaded",
		logger.String("path", p.path),
		logger.Int("sets", len(sets)))
	return nil
}

// SetInfo summarizes one loaded query set.
type SetInfo struct {
	ID         string
	Name       string
	QueryCount int
	Categories []string
}

// Sets returns a summary of every loaded query set, sorted by id. Categories
// keep their first-appearance order within each set.
func (p *FileProvider) Sets() []SetInfo {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]SetInfo, 0, len(p.sets))
	for _, set := range p.sets {
		info := SetInfo{ID: set.ID, Name: set.Name, QueryCount: len(set.Queries)}
		seen := make(map[string]bool)
		for _, q := range set.Queries {
			if q.Category == "" || seen[q.Category] {
				continue
			}
			seen[q.Category] = true
			info.Categories = append(info.Categories, q.Category)
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetQueriesForExecution returns up to count queries from the named set.
func (p *FileProvider) GetQueriesForExecution(_ context.Context, querySetID string, count int, rotation string) ([]Query, error) {
	if count <= 0 {
		return nil, fmt.Errorf("query count must be positive, got %d", count)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.loaded {
		return nil, ErrNotInitialized
	}

	set, exists := p.sets[querySetID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownQuerySet, querySetID)
	}

	if count > len(set.Queries) {
		count = len(set.Queries)
	}

	switch rotation {
	case RotationRoundRobin, "":
		return p.roundRobin(set, count), nil
	case RotationRandom:
		return p.random(set, count), nil
	case RotationCategoryBalanced:
		return categoryBalanced(set.Queries, count), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownRotation, rotation)
	}
}

// roundRobin takes count queries starting at the set's cursor, wrapping, and
// advances the cursor. Callers hold p.mu.
func (p *FileProvider) roundRobin(set querySet, count int) []Query {
	cursor := p.cursors[set.ID]
	out := make([]Query, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, set.Queries[(cursor+i)%len(set.Queries)])
	}
	p.cursors[set.ID] = (cursor + count) % len(set.Queries)
	return out
}

// random samples count queries without replacement. Callers hold p.mu.
func (p *FileProvider) random(set querySet, count int) []Query {
	perm := p.rng.Perm(len(set.Queries))
	out := make([]Query, 0, count)
	for _, idx := range perm[:count] {
		out = append(out, set.Queries[idx])
	}
	return out
}

// categoryBalanced interleaves categories in first-appearance order, taking
// one query per category per round until count is reached.
func categoryBalanced(queries []Query, count int) []Query {
	var order []string
	grouped := make(map[string][]Query)
	for _, q := range queries {
		if _, seen := grouped[q.Category]; !seen {
			order = append(order, q.Category)
		}
		grouped[q.Category] = append(grouped[q.Category], q)
	}

	out := make([]Query, 0, count)
	for round := 0; len(out) < count; round++ {
		took := false
		for _, cat := range order {
			if round >= len(grouped[cat]) {
				continue
			}
			out = append(out, grouped[cat][round])
			took = true
			if len(out) == count {
				break
			}
		}
		if !took {
			break
		}
	}
	return out
}
