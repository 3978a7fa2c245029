// Package fingerprint derives deterministic keys over tool calls for
// duplicate-call suppression within a session.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Key is "sha256:<hex>" over the tool name and canonicalized arguments.
type Key string

// Compute returns the fingerprint for a tool call. Two calls with the
// same tool name and semantically equal arguments (regardless of map key
// order or nesting) produce the same key.
func Compute(toolName string, arguments map[string]any) (Key, error) {
	canon, err := canonicalize(arguments)
	if err != nil {
		return "", fmt.Errorf("fingerprint arguments: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(strings.TrimSpace(toolName)))
	h.Write([]byte{0})
	h.Write([]byte(canon))
	return Key("sha256:" + hex.EncodeToString(h.Sum(nil))), nil
}

// canonicalize renders the value as JSON with all object keys sorted at
// every depth. encoding/json already sorts map keys; round-tripping
// through json first normalizes struct/number representations too.
func canonicalize(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return "", err
	}
	var sb strings.Builder
	if err := writeCanonical(&sb, generic); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func writeCanonical(sb *strings.Builder, v any) error {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			sb.Write(kb)
			sb.WriteByte(':')
			if err := writeCanonical(sb, t[k]); err != nil {
				return err
			}
		}
		sb.WriteByte('}')
		return nil
	case []any:
		sb.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				sb.WriteByte(',')
			}
			if err := writeCanonical(sb, e); err != nil {
				return err
			}
		}
		sb.WriteByte(']')
		return nil
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return err
		}
		sb.Write(b)
		return nil
	}
}

// Set records fingerprints for the lifetime of a session. It is owned by
// a single session's control flow; no locking here.
type Set struct {
	seen map[Key]struct{}
}

func NewSet() *Set {
	return &Set{seen: map[Key]struct{}{}}
}

// Register records the key and reports whether it was already present.
func (s *Set) Register(k Key) (duplicate bool) {
	if _, ok := s.seen[k]; ok {
		return true
	}
	s.seen[k] = struct{}{}
	return false
}

func (s *Set) Has(k Key) bool {
	_, ok := s.seen[k]
	return ok
}

func (s *Set) Len() int { return len(s.seen) }
