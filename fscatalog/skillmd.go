package fscatalog

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// maxSkillMDBytes caps the descriptor file size.
const maxSkillMDBytes = 2 << 20 // 2 MiB

// refuseIrregular rejects SKILL.md paths that are symlinks or otherwise
// not regular files. A missing file is reported by the subsequent open.
func refuseIrregular(path string) error {
	lst, err := os.Lstat(path)
	if err != nil {
		return nil
	}
	if lst.Mode()&os.ModeSymlink != 0 {
		return errors.New("SKILL.md must not be a symlink")
	}
	if !lst.Mode().IsRegular() {
		return errors.New("SKILL.md must be a regular file")
	}
	return nil
}

func readAllLimitedAndDigest(path string) (data []byte, dataSHA string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	data, err = io.ReadAll(io.LimitReader(f, int64(maxSkillMDBytes)+1))
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) > maxSkillMDBytes {
		return nil, "", fmt.Errorf("SKILL.md too large (max %d bytes)", maxSkillMDBytes)
	}

	sum := sha256.Sum256(data)
	return data, hex.EncodeToString(sum[:]), nil
}

// splitHeader separates the leading "---"-delimited YAML block from the
// instruction body.
func splitHeader(s string) (head, body string, has bool, err error) {
	br := bufio.NewReader(strings.NewReader(s))

	first, ferr := br.ReadString('\n')
	if ferr != nil && !errors.Is(ferr, io.EOF) {
		return "", "", false, fmt.Errorf("read first line: %w", ferr)
	}
	if strings.TrimSpace(strings.TrimRight(first, "\r\n")) != "---" {
		return "", s, false, nil
	}

	var headLines []string
	foundEnd := false
	for {
		line, lerr := br.ReadString('\n')
		if lerr != nil && !errors.Is(lerr, io.EOF) {
			return "", "", false, fmt.Errorf("read header line: %w", lerr)
		}
		lineTrim := strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(lineTrim) == "---" {
			foundEnd = true
			break
		}
		headLines = append(headLines, lineTrim)
		if errors.Is(lerr, io.EOF) {
			break
		}
	}
	if !foundEnd {
		return "", "", false, errors.New("unterminated header (missing closing ---)")
	}

	rest, err := io.ReadAll(br)
	if err != nil {
		return "", "", false, fmt.Errorf("read body: %w", err)
	}
	return strings.Join(headLines, "\n"), string(rest), true, nil
}
