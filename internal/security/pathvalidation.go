// Package security confines the file paths the tool writes to. Snapshot and
// export destinations come from flags and config, so they are validated
// against their configured directories before anything touches the disk.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// EnsureWithinDir checks that path stays below dir once . and .. components
// and symlinks are resolved. dir must exist; path may not exist yet, in which
// case its closest existing ancestor is resolved instead.
func EnsureWithinDir(path, dir string) error {
	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve directory: %w", err)
	}

	canonicalDir, err := filepath.EvalSymlinks(absDir)
	if err != nil {
		return fmt.Errorf("failed to resolve directory symlinks: %w", err)
	}

	canonicalPath := resolveExistingPrefix(absPath)

	rel, err := filepath.Rel(canonicalDir, canonicalPath)
	if err != nil {
		return fmt.Errorf("path is outside %s: %w", dir, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path %s escapes directory %s", path, dir)
	}
	return nil
}

// resolveExistingPrefix resolves symlinks in the longest existing prefix of
// path and rejoins the remainder. A symlinked parent of a not yet created
// file would otherwise slip past the containment check.
func resolveExistingPrefix(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}

	probe := path
	for {
		parent := filepath.Dir(probe)
		if parent == probe {
			return path
		}
		if resolved, err := filepath.EvalSymlinks(parent); err == nil {
			rel, relErr := filepath.Rel(parent, path)
			if relErr != nil {
				return path
			}
			return filepath.Join(resolved, rel)
		}
		probe = parent
	}
}

// EnsureWithinAny checks path against each directory and accepts the first
// match.
func EnsureWithinAny(path string, dirs []string) error {
	if len(dirs) == 0 {
		return fmt.Errorf("no allowed directories configured")
	}
	for _, dir := range dirs {
		if err := EnsureWithinDir(path, dir); err == nil {
			return nil
		}
	}
	return fmt.Errorf("path %s must be within one of: %v", path, dirs)
}

// SafeLabel turns a version label like "V3.0" into a filename fragment.
// Anything outside ASCII letters, digits, dot, underscore and dash becomes an
// underscore; runs collapse and the edges are trimmed.
func SafeLabel(label string) string {
	const maxLen = 64

	var b strings.Builder
	lastUnderscore := false
	for _, r := range label {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}

	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unlabeled"
	}
	return out
}
