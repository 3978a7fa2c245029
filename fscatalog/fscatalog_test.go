package fscatalog

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/flexigpt/agentengine-go/spec"
)

func writeSkillDir(t *testing.T, parent, name, contents string) string {
	t.Helper()
	dir := filepath.Join(parent, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, SkillFileName), []byte(contents), 0o644); err != nil {
		t.Fatalf("write SKILL.md: %v", err)
	}
	return dir
}

const sampleSkillMD = `---
name: release-notes
description: Draft release notes from merged pull requests.
permission: read
model: fast
max_turns: 6
tools:
  - list_merged_prs
  - read_changelog
inputs:
  - name: repo
    required: true
    description: Repository slug.
  - name: since_tag
---

Collect the merged pull requests and draft grouped release notes.
`

func TestLoad_FullHeader(t *testing.T) {
	t.Parallel()

	dir := writeSkillDir(t, t.TempDir(), "release-notes", sampleSkillMD)
	desc, err := Load(t.Context(), dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if desc.Name != "release-notes" {
		t.Fatalf("name = %q", desc.Name)
	}
	if desc.Permission != spec.PermissionRead {
		t.Fatalf("permission = %q", desc.Permission)
	}
	if desc.MaxTurns != 6 {
		t.Fatalf("max_turns = %d", desc.MaxTurns)
	}
	if len(desc.AllowedTools) != 2 || desc.AllowedTools[0] != "list_merged_prs" {
		t.Fatalf("tools = %v", desc.AllowedTools)
	}
	if len(desc.Inputs) != 2 || !desc.Inputs[0].Required || desc.Inputs[1].Name != "since_tag" {
		t.Fatalf("inputs = %#v", desc.Inputs)
	}
	if !strings.Contains(desc.Instructions, "grouped release notes") {
		t.Fatalf("instructions = %q", desc.Instructions)
	}
	if !strings.HasPrefix(desc.Digest, "sha256:") {
		t.Fatalf("digest = %q", desc.Digest)
	}
	if filepath.Base(desc.Location) != SkillFileName {
		t.Fatalf("location = %q", desc.Location)
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()

	dir := writeSkillDir(t, t.TempDir(), "triage", "---\nname: triage\ndescription: Triage bug reports.\n---\nBody.\n")
	desc, err := Load(t.Context(), dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if desc.Permission != spec.PermissionRead {
		t.Fatalf("default permission = %q", desc.Permission)
	}
	if desc.MaxTurns != DefaultMaxTurns {
		t.Fatalf("default max_turns = %d", desc.MaxTurns)
	}
}

func TestLoad_InvalidDirs(t *testing.T) {
	t.Parallel()

	parent := t.TempDir()

	tests := []struct {
		name     string
		contents string
	}{
		{"no-header", "just a body\n"},
		{"unterminated", "---\nname: unterminated\n"},
		{"bad-yaml", "---\nname: [\n---\nbody\n"},
		{"bad-permission", "---\nname: bad-permission\ndescription: d\npermission: root\n---\nb\n"},
		{"missing-description", "---\nname: missing-description\n---\nb\n"},
		{"dup-input", "---\nname: dup-input\ndescription: d\ninputs:\n  - name: a\n  - name: a\n---\nb\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dir := writeSkillDir(t, parent, tt.name, tt.contents)
			_, err := Load(t.Context(), dir)
			if !errors.Is(err, spec.ErrInvalidSkillDir) {
				t.Fatalf("err = %v, want ErrInvalidSkillDir", err)
			}
		})
	}
}

func TestLoad_NameMustMatchDirectory(t *testing.T) {
	t.Parallel()

	dir := writeSkillDir(t, t.TempDir(), "other-name", "---\nname: triage\ndescription: d\n---\nb\n")
	_, err := Load(t.Context(), dir)
	if !errors.Is(err, spec.ErrInvalidSkillDir) {
		t.Fatalf("err = %v, want ErrInvalidSkillDir", err)
	}
}

func TestLoad_RefusesSymlinkSkillMD(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}

	parent := t.TempDir()
	real := filepath.Join(parent, "real.md")
	if err := os.WriteFile(real, []byte("---\nname: linked\ndescription: d\n---\nb\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	dir := filepath.Join(parent, "linked")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.Symlink(real, filepath.Join(dir, SkillFileName)); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	_, err := Load(t.Context(), dir)
	if !errors.Is(err, spec.ErrInvalidSkillDir) {
		t.Fatalf("err = %v, want ErrInvalidSkillDir", err)
	}
}

func TestLoadAll(t *testing.T) {
	t.Parallel()

	parent := t.TempDir()
	writeSkillDir(t, parent, "zeta", "---\nname: zeta\ndescription: d\n---\nb\n")
	writeSkillDir(t, parent, "alpha", "---\nname: alpha\ndescription: d\n---\nb\n")
	// Non-skill clutter is skipped.
	if err := os.MkdirAll(filepath.Join(parent, "not-a-skill"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(parent, "README.md"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	descs, err := LoadAll(t.Context(), parent)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(descs) != 2 || descs[0].Name != "alpha" || descs[1].Name != "zeta" {
		t.Fatalf("descs = %#v", descs)
	}
}

func TestLoadAll_FailsClosedOnBrokenSkill(t *testing.T) {
	t.Parallel()

	parent := t.TempDir()
	writeSkillDir(t, parent, "good", "---\nname: good\ndescription: d\n---\nb\n")
	writeSkillDir(t, parent, "broken", "---\nname: broken\n")

	_, err := LoadAll(t.Context(), parent)
	if err == nil {
		t.Fatal("expected error from broken skill dir")
	}
}

func TestSplitHeader(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		in       string
		wantHas  bool
		wantErr  bool
		wantBody string
	}{
		{
			name:     "no header",
			in:       "hello\nworld\n",
			wantHas:  false,
			wantBody: "hello\nworld\n",
		},
		{
			name:    "unterminated header",
			in:      "---\nname: x\n",
			wantErr: true,
		},
		{
			name:     "header with body",
			in:       "---\nname: x\ndescription: y\n---\n\n# Title\n",
			wantHas:  true,
			wantBody: "\n# Title\n",
		},
		{
			name:     "windows newlines",
			in:       "---\r\nname: x\r\ndescription: y\r\n---\r\nBody\r\n",
			wantHas:  true,
			wantBody: "Body\r\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			head, body, has, err := splitHeader(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if has != tt.wantHas {
				t.Fatalf("has=%v want=%v head=%q body=%q", has, tt.wantHas, head, body)
			}
			if body != tt.wantBody {
				t.Fatalf("body mismatch: got=%q want=%q", body, tt.wantBody)
			}
		})
	}
}

func TestValidateName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		wantErr bool
	}{
		{"", true},
		{"a", false},
		{"A", true},
		{"-a", true},
		{"a-", true},
		{"a--b", true},
		{"a_b", true},
		{strings.Repeat("a", 64), false},
		{strings.Repeat("a", 65), true},
	}
	for _, tt := range tests {
		t.Run("name_"+tt.in, func(t *testing.T) {
			t.Parallel()
			err := validateName(tt.in)
			if tt.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
		})
	}
}
