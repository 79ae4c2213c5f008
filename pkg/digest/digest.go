// Package digest computes the short content fingerprints and mtime
// timestamps the sync core uses to decide whether a tracked file changed
// without re-reading or re-hashing unrelated content.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"
)

// Length is the number of hex characters kept from the underlying SHA-256
// sum. Sixteen hex characters (64 bits) is far more than enough to detect
// accidental collisions across a single target's tracked file set while
// keeping the projected settings/log documents small.
const Length = 16

// OfBytes returns the truncated digest of an in-memory buffer.
func OfBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:Length]
}

// OfString returns the truncated digest of a string.
func OfString(s string) string {
	return OfBytes([]byte(s))
}

// OfReader streams r through SHA-256 without buffering the whole content,
// used for regular files that may be large.
func OfReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("digest: read: %w", err)
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum)[:Length], nil
}

// OfFile digests the content at path. Symlinks are digested by their target
// string rather than followed, so a changed link target is detected without
// reading through to whatever it points at.
func OfFile(path string) (string, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return "", fmt.Errorf("digest: stat %s: %w", path, err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(path)
		if err != nil {
			return "", fmt.Errorf("digest: readlink %s: %w", path, err)
		}
		return OfString(target), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("digest: open %s: %w", path, err)
	}
	defer f.Close()
	return OfReader(f)
}

// ModTime returns the file's modification time truncated to whole seconds
// and expressed in UTC, matching the granularity stored in projected
// settings and the sync log.
func ModTime(path string) (time.Time, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return time.Time{}, fmt.Errorf("digest: stat %s: %w", path, err)
	}
	return info.ModTime().UTC().Truncate(time.Second), nil
}

// FormatModTime renders a mtime the way it is persisted on disk: RFC 3339 in
// UTC, e.g. "2026-07-31T12:00:00Z".
func FormatModTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}

// ParseModTime parses a persisted RFC 3339 mtime string back into a time.Time.
func ParseModTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("digest: parse mtime %q: %w", s, err)
	}
	return t.UTC(), nil
}
