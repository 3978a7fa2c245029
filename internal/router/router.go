// Package router selects the skill descriptor for an incoming request.
// Routing is deterministic: identical request text and catalog state
// always resolve to the same descriptor.
package router

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/flexigpt/agentengine-go/internal/catalog"
	"github.com/flexigpt/agentengine-go/spec"
)

const (
	DefaultMinConfidence = 0.1
	DefaultTieEpsilon    = 0.01
)

type Router struct {
	catalog       *catalog.Catalog
	minConfidence float64
	tieEpsilon    float64
}

type Config struct {
	// MinConfidence is the similarity a description must clear when no
	// explicit hint matches. Zero means DefaultMinConfidence.
	MinConfidence float64

	// TieEpsilon is the score band within which candidates count as
	// tied. Zero means DefaultTieEpsilon.
	TieEpsilon float64
}

func New(cat *catalog.Catalog, cfg Config) *Router {
	minConf := cfg.MinConfidence
	if minConf <= 0 {
		minConf = DefaultMinConfidence
	}
	eps := cfg.TieEpsilon
	if eps <= 0 {
		eps = DefaultTieEpsilon
	}
	return &Router{catalog: cat, minConfidence: minConf, tieEpsilon: eps}
}

// Route resolves exactly one descriptor. An explicit hint present in the
// catalog always wins over description similarity.
func (r *Router) Route(hint, text string) (spec.SkillDescriptor, error) {
	if h := strings.TrimSpace(hint); h != "" {
		if desc, ok := r.catalog.Get(h); ok {
			return desc, nil
		}
	}

	query := termFrequencies(text)
	if len(query) == 0 {
		return spec.SkillDescriptor{}, fmt.Errorf("%w: empty request text", spec.ErrSkillNotFound)
	}

	type scored struct {
		desc  spec.SkillDescriptor
		score float64
	}
	var candidates []scored
	for _, desc := range r.catalog.List() {
		s := cosine(query, termFrequencies(desc.Description))
		if s >= r.minConfidence {
			candidates = append(candidates, scored{desc: desc, score: s})
		}
	}
	if len(candidates) == 0 {
		return spec.SkillDescriptor{}, fmt.Errorf("%w: no description cleared confidence %.2f", spec.ErrSkillNotFound, r.minConfidence)
	}

	// Highest score first; within the tie band prefer the more specific
	// inputs schema (more required fields, then more fields), then the
	// lexicographically smaller name.
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if math.Abs(a.score-b.score) > r.tieEpsilon {
			return a.score > b.score
		}
		ra, rb := requiredInputs(a.desc), requiredInputs(b.desc)
		if ra != rb {
			return ra > rb
		}
		if len(a.desc.Inputs) != len(b.desc.Inputs) {
			return len(a.desc.Inputs) > len(b.desc.Inputs)
		}
		return a.desc.Name < b.desc.Name
	})
	return candidates[0].desc, nil
}

func requiredInputs(d spec.SkillDescriptor) int {
	n := 0
	for _, f := range d.Inputs {
		if f.Required {
			n++
		}
	}
	return n
}

// termFrequencies tokenizes on non-letter/digit boundaries, lowercased.
func termFrequencies(text string) map[string]float64 {
	tf := map[string]float64{}
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(tok) < 2 {
			continue
		}
		tf[tok]++
	}
	return tf
}

func cosine(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dot, na, nb float64
	for t, w := range a {
		na += w * w
		if bw, ok := b[t]; ok {
			dot += w * bw
		}
	}
	for _, w := range b {
		nb += w * w
	}
	if dot == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
