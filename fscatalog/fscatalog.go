// Package fscatalog loads skill descriptors from SKILL.md files on disk.
//
// A skill directory holds one SKILL.md whose YAML header declares the
// descriptor (name, description, tools, inputs, permission, model,
// max_turns) and whose body is the instruction text handed to the
// planner. Descriptors are parsed and validated once at load time.
package fscatalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/flexigpt/agentengine-go/spec"
)

const (
	// SkillFileName is the descriptor file looked up inside a skill dir.
	SkillFileName = "SKILL.md"

	// DefaultMaxTurns applies when the header omits max_turns.
	DefaultMaxTurns = 8
)

// header is the YAML block between the leading "---" markers.
type header struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Tools       []string `yaml:"tools"`
	Permission  string   `yaml:"permission"`
	Model       string   `yaml:"model"`
	MaxTurns    int      `yaml:"max_turns"`
	Inputs      []struct {
		Name        string `yaml:"name"`
		Required    bool   `yaml:"required"`
		Description string `yaml:"description"`
	} `yaml:"inputs"`
}

// Load reads the skill directory's SKILL.md and returns the validated
// descriptor. Location is set to the canonical SKILL.md path and Digest
// to "sha256:<hex>" over the raw file bytes.
func Load(ctx context.Context, dir string) (spec.SkillDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return spec.SkillDescriptor{}, err
	}
	root, err := canonicalRoot(dir)
	if err != nil {
		return spec.SkillDescriptor{}, err
	}

	path := filepath.Join(root, SkillFileName)
	if err := refuseIrregular(path); err != nil {
		return spec.SkillDescriptor{}, fmt.Errorf("%w: %w", spec.ErrInvalidSkillDir, err)
	}

	raw, sha, err := readAllLimitedAndDigest(path)
	if err != nil {
		return spec.SkillDescriptor{}, fmt.Errorf("%w: %w", spec.ErrInvalidSkillDir, err)
	}

	fm, body, hasFM, err := splitHeader(string(raw))
	if err != nil {
		return spec.SkillDescriptor{}, fmt.Errorf("%w: %w", spec.ErrInvalidSkillDir, err)
	}
	if !hasFM {
		return spec.SkillDescriptor{}, fmt.Errorf("%w: SKILL.md must start with a YAML header", spec.ErrInvalidSkillDir)
	}

	var h header
	if err := yaml.Unmarshal([]byte(fm), &h); err != nil {
		return spec.SkillDescriptor{}, fmt.Errorf("%w: invalid header YAML: %w", spec.ErrInvalidSkillDir, err)
	}

	desc, err := descriptorFromHeader(h, root)
	if err != nil {
		return spec.SkillDescriptor{}, fmt.Errorf("%w: %w", spec.ErrInvalidSkillDir, err)
	}
	desc.Instructions = strings.TrimLeft(body, "\r\n")
	desc.Location = path
	desc.Digest = "sha256:" + sha
	return desc, nil
}

// LoadAll loads every immediate subdirectory of root that contains a
// SKILL.md, sorted by skill name. A directory that fails to load aborts
// the whole scan so a partial catalog is never returned.
func LoadAll(ctx context.Context, root string) ([]spec.SkillDescriptor, error) {
	canonical, err := canonicalRoot(root)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(canonical)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", spec.ErrInvalidSkillDir, err)
	}

	var out []spec.SkillDescriptor
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(canonical, e.Name())
		if _, serr := os.Lstat(filepath.Join(dir, SkillFileName)); serr != nil {
			continue
		}
		desc, lerr := Load(ctx, dir)
		if lerr != nil {
			return nil, fmt.Errorf("skill dir %q: %w", e.Name(), lerr)
		}
		out = append(out, desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func descriptorFromHeader(h header, root string) (spec.SkillDescriptor, error) {
	name := strings.TrimSpace(h.Name)
	if err := validateName(name); err != nil {
		return spec.SkillDescriptor{}, err
	}
	// Directory name and header name must agree so catalog entries stay
	// traceable to their source tree.
	if base := filepath.Base(root); base != "" && name != base {
		return spec.SkillDescriptor{}, fmt.Errorf("header name %q must match directory name %q", name, base)
	}

	description := strings.TrimSpace(h.Description)
	if err := validateDescription(description); err != nil {
		return spec.SkillDescriptor{}, err
	}

	perm := spec.Permission(strings.TrimSpace(strings.ToLower(h.Permission)))
	switch perm {
	case "":
		perm = spec.PermissionRead
	case spec.PermissionRead, spec.PermissionWrite:
	default:
		return spec.SkillDescriptor{}, fmt.Errorf("unknown permission %q", h.Permission)
	}

	maxTurns := h.MaxTurns
	if maxTurns == 0 {
		maxTurns = DefaultMaxTurns
	}
	if maxTurns < 0 {
		return spec.SkillDescriptor{}, fmt.Errorf("max_turns must be positive, got %d", h.MaxTurns)
	}

	tools := make([]string, 0, len(h.Tools))
	seenTools := map[string]struct{}{}
	for _, t := range h.Tools {
		t = strings.TrimSpace(t)
		if t == "" {
			return spec.SkillDescriptor{}, errors.New("tools entries must be non-empty")
		}
		if _, dup := seenTools[t]; dup {
			return spec.SkillDescriptor{}, fmt.Errorf("duplicate tool %q", t)
		}
		seenTools[t] = struct{}{}
		tools = append(tools, t)
	}

	inputs := make([]spec.InputField, 0, len(h.Inputs))
	seenInputs := map[string]struct{}{}
	for _, in := range h.Inputs {
		n := strings.TrimSpace(in.Name)
		if n == "" {
			return spec.SkillDescriptor{}, errors.New("inputs entries require a name")
		}
		if _, dup := seenInputs[n]; dup {
			return spec.SkillDescriptor{}, fmt.Errorf("duplicate input %q", n)
		}
		seenInputs[n] = struct{}{}
		inputs = append(inputs, spec.InputField{
			Name:        n,
			Required:    in.Required,
			Description: strings.TrimSpace(in.Description),
		})
	}

	return spec.SkillDescriptor{
		Name:         name,
		Description:  description,
		AllowedTools: tools,
		Permission:   perm,
		Model:        strings.TrimSpace(h.Model),
		MaxTurns:     maxTurns,
		Inputs:       inputs,
	}, nil
}

func validateName(name string) error {
	if name == "" {
		return errors.New("header name is required")
	}
	if len(name) > 64 {
		return errors.New("header name too long (max 64)")
	}
	if strings.HasPrefix(name, "-") || strings.HasSuffix(name, "-") {
		return errors.New("header name must not start or end with '-'")
	}
	if strings.Contains(name, "--") {
		return errors.New("header name must not contain consecutive '--'")
	}
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			continue
		}
		return fmt.Errorf("header name contains invalid character %q", string(r))
	}
	return nil
}

func validateDescription(desc string) error {
	if desc == "" {
		return errors.New("header description is required")
	}
	if len(desc) > 1024 {
		return errors.New("header description too long (max 1024)")
	}
	return nil
}

func canonicalRoot(p string) (string, error) {
	root := strings.TrimSpace(p)
	if root == "" {
		return "", fmt.Errorf("%w: empty path", spec.ErrInvalidArgument)
	}
	if strings.ContainsRune(root, '\x00') {
		return "", fmt.Errorf("%w: path contains NUL byte", spec.ErrInvalidArgument)
	}

	clean := filepath.Clean(filepath.FromSlash(root))
	if isWindows() {
		// Drive-relative paths like "C:foo" are ambiguous.
		if vol := filepath.VolumeName(clean); vol != "" && !filepath.IsAbs(clean) {
			return "", fmt.Errorf("%w: windows drive-relative path %q", spec.ErrInvalidArgument, root)
		}
	}

	abs, err := filepath.Abs(clean)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", spec.ErrInvalidArgument, p, err)
	}
	if resolved, rerr := filepath.EvalSymlinks(abs); rerr == nil && strings.TrimSpace(resolved) != "" {
		abs = resolved
	}

	st, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", spec.ErrInvalidSkillDir, p, err)
	}
	if !st.IsDir() {
		return "", fmt.Errorf("%w: not a directory: %q", spec.ErrInvalidSkillDir, p)
	}
	return abs, nil
}

func isWindows() bool { return runtime.GOOS == "windows" }
