package sandbox

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrValidation marks caller mistakes in file access: bad line ranges or
// paths escaping the workspace. Terminal, never retried.
var ErrValidation = errors.New("sandbox: validation error")

// ReadFileLines returns lines start..end (1-based, inclusive) of a file under
// root, without line terminators. The path may be relative to root or
// absolute; either way it must resolve inside root.
func ReadFileLines(root, path string, start, end int) ([]string, error) {
	if start < 1 {
		return nil, fmt.Errorf("%w: start line %d must be >= 1", ErrValidation, start)
	}
	if end < start {
		return nil, fmt.Errorf("%w: end line %d is before start line %d", ErrValidation, end, start)
	}

	resolved, err := resolveUnder(root, path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(resolved)
	if err != nil {
		return nil, fmt.Errorf("sandbox: opening %q: %w", resolved, err)
	}
	defer f.Close() //nolint:errcheck

	var lines []string
	lineNum := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lineNum++
		if lineNum > end {
			break
		}
		if lineNum >= start {
			lines = append(lines, scanner.Text())
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("sandbox: reading %q: %w", resolved, err)
	}

	if lineNum < start {
		return nil, fmt.Errorf("%w: file has fewer than %d lines", ErrValidation, start)
	}
	return lines, nil
}

// resolveUnder joins path with root when relative and verifies the cleaned
// absolute result stays inside root.
func resolveUnder(root, path string) (string, error) {
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("sandbox: resolving workspace root: %w", err)
	}
	rootAbs = filepath.Clean(rootAbs)

	candidate := path
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(rootAbs, candidate)
	}
	candidate, err = filepath.Abs(candidate)
	if err != nil {
		return "", fmt.Errorf("sandbox: resolving path %q: %w", path, err)
	}
	candidate = filepath.Clean(candidate)

	if candidate != rootAbs && !strings.HasPrefix(candidate, rootAbs+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path %q escapes the workspace", ErrValidation, path)
	}
	return candidate, nil
}
