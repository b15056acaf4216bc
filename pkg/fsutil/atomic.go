// Package fsutil holds the small file helpers shared by every on-disk writer.
package fsutil

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// WriteFileAtomic writes data to a temporary file next to path and renames it
// over path, so readers observe either the old or the new content, never a mix.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	// Removing after a successful rename is a no-op error we ignore
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// WriteJSONAtomic marshals v with two-space indentation and writes it atomically
func WriteJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	return WriteFileAtomic(path, data, 0o644)
}

const (
	maxNameLen = 120
	hashLen    = 12
)

var (
	unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
	hashedTail      = regexp.MustCompile(`-[0-9a-f]{12}$`)
)

// SafeName turns caller-controlled text (identifiers, addresses) into a single
// path component. Text that is already a clean name comes back unchanged;
// anything that had to be altered gets a hash of the original appended, so
// distinct inputs never share a name.
func SafeName(s string) string {
	name := sanitize(s)
	if name == s && name != "" && len(name) <= maxNameLen && !hashedTail.MatchString(name) {
		return name
	}
	return HashedName(s)
}

// HashedName is SafeName with the hash suffix always applied. Its result never
// ends in anything but the hex digest.
func HashedName(s string) string {
	name := sanitize(s)
	if len(name) > maxNameLen {
		name = strings.TrimRight(name[:maxNameLen], ".")
	}
	if name == "" {
		name = "unknown"
	}
	sum := sha256.Sum256([]byte(s))
	return name + "-" + hex.EncodeToString(sum[:])[:hashLen]
}

func sanitize(s string) string {
	name := unsafeNameChars.ReplaceAllString(strings.TrimSpace(s), "_")
	return strings.Trim(name, ".")
}
