package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/cache"
)

// KnowledgeGraph is the RDF store collaborator. Query failures are treated
// as "no enrichment available" by the advisor, never as fatal errors.
type KnowledgeGraph interface {
	Query(ctx context.Context, query string) ([]map[string]string, error)
	AddTriple(ctx context.Context, subject, predicate, object string) error
	Serialize(ctx context.Context, format string) (string, error)
}

// MemoryGraph is a minimal in-process triple store, used in tests and when
// no external RDF store is configured.
type MemoryGraph struct {
	mu      sync.RWMutex
	triples []triple
}

type triple struct {
	subject   string
	predicate string
	object    string
}

// NewMemoryGraph creates an empty in-memory graph.
func NewMemoryGraph() *MemoryGraph {
	return &MemoryGraph{}
}

// AddTriple stores one triple.
func (g *MemoryGraph) AddTriple(ctx context.Context, subject, predicate, object string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.triples = append(g.triples, triple{subject, predicate, object})
	return nil
}

// Query supports the simple "subject predicate ?" pattern the advisor
// issues: both terms matched case-insensitively, bindings returned under
// "object". The subject may span several words ("neuropixels 2.0"), so the
// pattern is read from the right.
func (g *MemoryGraph) Query(ctx context.Context, query string) ([]map[string]string, error) {
	parts := strings.Fields(query)
	if len(parts) < 3 || parts[len(parts)-1] != "?" {
		return nil, fmt.Errorf("malformed query: %q", query)
	}
	predicate := strings.ToLower(parts[len(parts)-2])
	subject := strings.ToLower(strings.Join(parts[:len(parts)-2], " "))

	g.mu.RLock()
	defer g.mu.RUnlock()

	var results []map[string]string
	for _, t := range g.triples {
		if strings.ToLower(t.subject) == subject && strings.ToLower(t.predicate) == predicate {
			results = append(results, map[string]string{"object": t.object})
		}
	}
	return results, nil
}

// Serialize renders the graph as N-Triples-style lines.
func (g *MemoryGraph) Serialize(ctx context.Context, format string) (string, error) {
	if format != "ntriples" {
		return "", fmt.Errorf("unsupported format: %s", format)
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	var b strings.Builder
	for _, t := range g.triples {
		fmt.Fprintf(&b, "<%s> <%s> <%s> .\n", t.subject, t.predicate, t.object)
	}
	return b.String(), nil
}

// BuiltinGraph returns a graph preloaded with capability triples for common
// recording devices. It stands in when no external RDF store is configured.
func BuiltinGraph() *MemoryGraph {
	g := NewMemoryGraph()
	ctx := context.Background()
	for _, t := range []struct{ s, p, o string }{
		{"neuropixels", "capability", "384-channel extracellular recording"},
		{"neuropixels 2.0", "capability", "dual-bank extracellular recording"},
		{"open ephys", "capability", "multichannel extracellular acquisition"},
		{"intan rhd2000", "capability", "amplified extracellular acquisition"},
		{"scientifica 2p", "capability", "two-photon calcium imaging"},
		{"miniscope", "capability", "head-mounted single-photon calcium imaging"},
	} {
		_ = g.AddTriple(ctx, t.s, t.p, t.o)
	}
	return g
}

// CachedGraph wraps a KnowledgeGraph with a read-through query cache, so
// repeated device lookups within a session hit the store once.
type CachedGraph struct {
	inner KnowledgeGraph
	cache cache.Cache
	ttl   time.Duration
}

// NewCachedGraph wraps a graph with the given cache.
func NewCachedGraph(inner KnowledgeGraph, c cache.Cache, ttl time.Duration) *CachedGraph {
	return &CachedGraph{inner: inner, cache: c, ttl: ttl}
}

// Query serves from cache when possible. Only successful results are cached;
// failures stay failures so a recovered store is retried.
func (g *CachedGraph) Query(ctx context.Context, query string) ([]map[string]string, error) {
	key := cache.QueryKey(query)
	if data, ok := g.cache.Get(key); ok {
		var results []map[string]string
		if err := json.Unmarshal(data, &results); err == nil {
			return results, nil
		}
	}

	results, err := g.inner.Query(ctx, query)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(results); err == nil {
		_ = g.cache.Set(key, data, g.ttl)
	}
	return results, nil
}

// AddTriple delegates to the wrapped graph.
func (g *CachedGraph) AddTriple(ctx context.Context, subject, predicate, object string) error {
	return g.inner.AddTriple(ctx, subject, predicate, object)
}

// Serialize delegates to the wrapped graph.
func (g *CachedGraph) Serialize(ctx context.Context, format string) (string, error) {
	return g.inner.Serialize(ctx, format)
}
