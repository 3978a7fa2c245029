// Package statestore provides the default in-memory history and memory
// store implementations used when no external stores are injected.
package statestore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/flexigpt/agentengine-go/spec"
)

// InMemory implements spec.HistoryStore and spec.MemoryStore. Recall is a
// lexical-overlap lookup over remembered snippets, good enough for tests
// and examples; production deployments inject real stores.
type InMemory struct {
	mu       sync.RWMutex
	history  map[spec.SessionID][]spec.Message
	snippets []string
}

var (
	_ spec.HistoryStore = (*InMemory)(nil)
	_ spec.MemoryStore  = (*InMemory)(nil)
)

func NewInMemory() *InMemory {
	return &InMemory{history: map[spec.SessionID][]spec.Message{}}
}

func (s *InMemory) AppendHistory(ctx context.Context, sessionID spec.SessionID, msg spec.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.history[sessionID] = append(s.history[sessionID], msg)
	s.mu.Unlock()
	return nil
}

func (s *InMemory) LoadHistory(ctx context.Context, sessionID spec.SessionID) ([]spec.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]spec.Message(nil), s.history[sessionID]...), nil
}

// Remember adds a snippet to the recall corpus.
func (s *InMemory) Remember(snippet string) {
	snippet = strings.TrimSpace(snippet)
	if snippet == "" {
		return
	}
	s.mu.Lock()
	s.snippets = append(s.snippets, snippet)
	s.mu.Unlock()
}

func (s *InMemory) Recall(ctx context.Context, query string) ([]spec.MemorySnippet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []spec.MemorySnippet
	for _, sn := range s.snippets {
		lower := strings.ToLower(sn)
		hits := 0
		for _, t := range terms {
			if strings.Contains(lower, t) {
				hits++
			}
		}
		if hits > 0 {
			out = append(out, spec.MemorySnippet{
				Content: sn,
				Score:   float64(hits) / float64(len(terms)),
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}
