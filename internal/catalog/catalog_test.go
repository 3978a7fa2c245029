package catalog

import (
	"errors"
	"testing"

	"github.com/flexigpt/agentengine-go/spec"
)

func desc(name string) spec.SkillDescriptor {
	return spec.SkillDescriptor{
		Name:        name,
		Description: "descriptor " + name,
		Permission:  spec.PermissionRead,
		MaxTurns:    4,
	}
}

func TestCatalog_AddGetListRemove(t *testing.T) {
	t.Parallel()

	c := New()
	if err := c.Add(desc("search")); err != nil {
		t.Fatalf("add search: %v", err)
	}
	if err := c.Add(desc("home")); err != nil {
		t.Fatalf("add home: %v", err)
	}
	if err := c.Add(desc("search")); !errors.Is(err, spec.ErrSkillAlreadyExists) {
		t.Fatalf("expected ErrSkillAlreadyExists, got %v", err)
	}

	if _, ok := c.Get("search"); !ok {
		t.Fatal("search not found")
	}
	if _, ok := c.Get("nope"); ok {
		t.Fatal("unexpected hit for unknown name")
	}

	list := c.List()
	if len(list) != 2 || list[0].Name != "home" || list[1].Name != "search" {
		t.Fatalf("unexpected list order: %+v", list)
	}

	if _, err := c.Remove("home"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := c.Remove("home"); !errors.Is(err, spec.ErrSkillNotFound) {
		t.Fatalf("expected ErrSkillNotFound, got %v", err)
	}
}

func TestCatalog_ValidateRejectsMalformed(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		d    spec.SkillDescriptor
	}{
		{"empty name", spec.SkillDescriptor{Description: "d", Permission: spec.PermissionRead, MaxTurns: 1}},
		{"empty description", spec.SkillDescriptor{Name: "a", Permission: spec.PermissionRead, MaxTurns: 1}},
		{"bad permission", spec.SkillDescriptor{Name: "a", Description: "d", Permission: "admin", MaxTurns: 1}},
		{"zero max turns", spec.SkillDescriptor{Name: "a", Description: "d", Permission: spec.PermissionRead}},
		{"unnamed input", spec.SkillDescriptor{
			Name: "a", Description: "d", Permission: spec.PermissionRead, MaxTurns: 1,
			Inputs: []spec.InputField{{}},
		}},
		{"duplicate input", spec.SkillDescriptor{
			Name: "a", Description: "d", Permission: spec.PermissionRead, MaxTurns: 1,
			Inputs: []spec.InputField{{Name: "q"}, {Name: "q"}},
		}},
	}
	for _, tc := range cases {
		if err := Validate(tc.d); !errors.Is(err, spec.ErrInvalidArgument) {
			t.Fatalf("%s: expected ErrInvalidArgument, got %v", tc.name, err)
		}
	}
}

func TestCatalog_ReloadSwapsWholesale(t *testing.T) {
	t.Parallel()

	c := New()
	_ = c.Add(desc("old"))

	if err := c.Reload([]spec.SkillDescriptor{desc("a"), desc("b")}); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if _, ok := c.Get("old"); ok {
		t.Fatal("reload kept stale entry")
	}
	if len(c.List()) != 2 {
		t.Fatalf("unexpected catalog size after reload: %d", len(c.List()))
	}

	// A failing reload must leave the registry untouched.
	err := c.Reload([]spec.SkillDescriptor{desc("x"), {Name: "bad"}})
	if err == nil {
		t.Fatal("expected reload validation failure")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatal("failed reload mutated the registry")
	}
}
