// Package security validates host paths and names that come from API
// callers.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// LogExtensions are the file extensions a server-side log path may have.
var LogExtensions = []string{".blf"}

// ValidatePathWithinDirectory checks that filePath resolves inside safeDir.
// Symlinks are resolved on both sides, including symlinked parents of paths
// that do not exist yet, so a link inside safeDir cannot point outside it.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	absPath, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	absSafeDir, err := filepath.Abs(safeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory path: %w", err)
	}

	canonicalPath := absPath
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		canonicalPath = resolved
	} else {
		// Walk up to the nearest existing parent and resolve that instead.
		for check := absPath; ; {
			parent := filepath.Dir(check)
			if parent == check {
				break
			}
			if resolved, err := filepath.EvalSymlinks(parent); err == nil {
				rel, _ := filepath.Rel(parent, absPath)
				canonicalPath = filepath.Join(resolved, rel)
				break
			}
			check = parent
		}
	}

	canonicalSafeDir, err := filepath.EvalSymlinks(absSafeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory symlinks: %w", err)
	}

	rel, err := filepath.Rel(canonicalSafeDir, canonicalPath)
	if err != nil {
		return fmt.Errorf("path is outside safe directory: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path traversal detected: %s attempts to escape %s", filePath, safeDir)
	}
	return nil
}

// ResolveLogPath maps a caller-supplied log name to a path inside dataDir.
// The name must stay inside dataDir and carry one of LogExtensions.
func ResolveLogPath(dataDir, name string) (string, error) {
	if dataDir == "" {
		return "", fmt.Errorf("server-side logs are disabled")
	}
	if name == "" {
		return "", fmt.Errorf("empty log path")
	}
	ext := strings.ToLower(filepath.Ext(name))
	ok := false
	for _, e := range LogExtensions {
		if ext == e {
			ok = true
			break
		}
	}
	if !ok {
		return "", fmt.Errorf("log path must end in one of %v, got %q", LogExtensions, ext)
	}

	p := name
	if !filepath.IsAbs(p) {
		p = filepath.Join(dataDir, name)
	}
	if err := ValidatePathWithinDirectory(p, dataDir); err != nil {
		return "", err
	}
	return p, nil
}

// SanitizeFilename makes a safe file name from an arbitrary string, such as
// a log's source name used in a download. Characters other than ASCII
// letters, digits, dot, underscore and dash become a single underscore and
// the result is capped at 128 bytes.
func SanitizeFilename(s string) string {
	const maxLen = 128
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteRune('_')
			lastUnderscore = true
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
