// Package catalog holds the process-wide registry of skill descriptors.
// The catalog is built at startup, read-only thereafter, and rebuildable
// only through an explicit wholesale Reload.
package catalog

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/flexigpt/agentengine-go/spec"
)

type Catalog struct {
	mu     sync.RWMutex
	byName map[string]spec.SkillDescriptor
}

func New() *Catalog {
	return &Catalog{byName: map[string]spec.SkillDescriptor{}}
}

// Add registers a validated descriptor. Names are unique keys.
func (c *Catalog) Add(desc spec.SkillDescriptor) error {
	if err := Validate(desc); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.byName[desc.Name]; exists {
		return fmt.Errorf("%w: %q", spec.ErrSkillAlreadyExists, desc.Name)
	}
	c.byName[desc.Name] = desc
	return nil
}

// Remove deletes a descriptor by name and returns it.
func (c *Catalog) Remove(name string) (spec.SkillDescriptor, error) {
	n := strings.TrimSpace(name)
	if n == "" {
		return spec.SkillDescriptor{}, spec.ErrSkillNotFound
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	desc, ok := c.byName[n]
	if !ok {
		return spec.SkillDescriptor{}, fmt.Errorf("%w: %q", spec.ErrSkillNotFound, n)
	}
	delete(c.byName, n)
	return desc, nil
}

// Get returns the descriptor for an exact name match.
func (c *Catalog) Get(name string) (spec.SkillDescriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	desc, ok := c.byName[strings.TrimSpace(name)]
	return desc, ok
}

// List returns all descriptors sorted by name.
func (c *Catalog) List() []spec.SkillDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]spec.SkillDescriptor, 0, len(c.byName))
	for _, d := range c.byName {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Reload swaps the whole registry for a new descriptor set. Every
// descriptor is validated before any mutation happens; on error the
// current registry is untouched.
func (c *Catalog) Reload(descs []spec.SkillDescriptor) error {
	next := make(map[string]spec.SkillDescriptor, len(descs))
	for _, d := range descs {
		if err := Validate(d); err != nil {
			return err
		}
		if _, dup := next[d.Name]; dup {
			return fmt.Errorf("%w: %q", spec.ErrSkillAlreadyExists, d.Name)
		}
		next[d.Name] = d
	}

	c.mu.Lock()
	c.byName = next
	c.mu.Unlock()
	return nil
}

// Validate rejects malformed descriptors at load time rather than at use
// time.
func Validate(desc spec.SkillDescriptor) error {
	if strings.TrimSpace(desc.Name) == "" {
		return fmt.Errorf("%w: descriptor name is required", spec.ErrInvalidArgument)
	}
	if strings.TrimSpace(desc.Description) == "" {
		return fmt.Errorf("%w: descriptor %q has no description", spec.ErrInvalidArgument, desc.Name)
	}
	if desc.Permission != spec.PermissionRead && desc.Permission != spec.PermissionWrite {
		return fmt.Errorf("%w: descriptor %q permission must be read or write", spec.ErrInvalidArgument, desc.Name)
	}
	if desc.MaxTurns <= 0 {
		return fmt.Errorf("%w: descriptor %q max_turns must be positive", spec.ErrInvalidArgument, desc.Name)
	}
	seen := map[string]struct{}{}
	for _, f := range desc.Inputs {
		n := strings.TrimSpace(f.Name)
		if n == "" {
			return fmt.Errorf("%w: descriptor %q has an unnamed input", spec.ErrInvalidArgument, desc.Name)
		}
		if _, dup := seen[n]; dup {
			return fmt.Errorf("%w: descriptor %q duplicates input %q", spec.ErrInvalidArgument, desc.Name, n)
		}
		seen[n] = struct{}{}
	}
	return nil
}
