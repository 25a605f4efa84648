// Package security holds path checks for file names that come from
// dataset manifests and run labels rather than from the operator.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ResolveWithin joins rel onto baseDir and verifies that the result,
// after cleaning and symlink resolution, does not escape baseDir. Paths
// that do not exist yet are checked through their nearest existing parent.
func ResolveWithin(baseDir, rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("path %q must be relative to %s", rel, baseDir)
	}
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base directory: %w", err)
	}
	joined := filepath.Join(absBase, rel)

	canonBase, err := filepath.EvalSymlinks(absBase)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base directory symlinks: %w", err)
	}
	if !within(canonBase, canonical(joined)) {
		return "", fmt.Errorf("path traversal detected: %s escapes %s", rel, baseDir)
	}
	return joined, nil
}

// canonical resolves symlinks in p, or in its deepest existing ancestor
// when p itself does not exist.
func canonical(p string) string {
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		return resolved
	}
	for dir := filepath.Dir(p); ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			rest, _ := filepath.Rel(dir, p)
			return filepath.Join(resolved, rest)
		}
		if filepath.Dir(dir) == dir {
			return p
		}
	}
}

func within(base, p string) bool {
	rel, err := filepath.Rel(base, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// SanitizeFilename makes a safe file name stem from an arbitrary label.
// Characters other than ASCII letters, digits, dot, underscore and dash
// become a single underscore; the result is capped at 64 bytes.
func SanitizeFilename(s string) string {
	const maxLen = 64
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteRune('_')
			lastUnderscore = true
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "run"
	}
	return out
}
