// Filename and destination path resolution for a download.
package engine

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/kagedl/fetchengine/internal/coordinator"
	"github.com/kagedl/fetchengine/internal/fetcherr"
)

const maxNameRunes = 80

// illegalFilenameChars covers the superset of characters Windows and
// POSIX filesystems disallow, so a derived name is portable regardless of
// where the engine runs.
const illegalFilenameChars = `<>:"/\|?*`

// MimeLookup maps a content type to a file extension (without the dot).
// Callers supply their own table; the engine never hard-codes one.
type MimeLookup func(contentType string) (ext string, ok bool)

// DeriveName implements step 1: pick a candidate filename from, in
// priority order, the Content-Disposition filename, a ".filename" hint,
// the last URI path segment, or a host-based fallback.
func DeriveName(contentDispositionName, dotFilenameHint, rawURL string) string {
	candidate := contentDispositionName
	if candidate == "" {
		candidate = dotFilenameHint
	}
	if candidate == "" {
		candidate = lastURISegment(rawURL)
	}
	if candidate == "" {
		candidate = "requested_download_" + hostOf(rawURL)
	}
	return truncateRunes(sanitizeFilename(candidate), maxNameRunes)
}

func lastURISegment(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	seg := lastSlashSegment(u.Path)
	if seg == "" || seg == "/" || seg == "." {
		return ""
	}
	return seg
}

func lastSlashSegment(p string) string {
	p = strings.TrimRight(p, "/")
	if idx := strings.LastIndex(p, "/"); idx >= 0 {
		return p[idx+1:]
	}
	return p
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "file"
	}
	return u.Hostname()
}

func sanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		if strings.ContainsRune(illegalFilenameChars, r) || r < 0x20 {
			b.WriteRune('_')
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// DeriveExtension implements step 2: look up an extension for contentType
// via lookup, falling back to whatever extension the URI itself carries.
func DeriveExtension(contentType, rawURL string, lookup MimeLookup) string {
	if lookup != nil && contentType != "" {
		if ext, ok := lookup(contentType); ok && ext != "" {
			return strings.TrimPrefix(ext, ".")
		}
	}
	if u, err := url.Parse(rawURL); err == nil {
		ext := filepath.Ext(u.Path)
		if ext != "" {
			return strings.TrimPrefix(ext, ".")
		}
	}
	return ""
}

// ApplyTemplate implements step 3's four template forms: "*" (full
// derived name), "*.ext" (derived stem + literal extension), "stem.*"
// (literal stem + derived extension), and a literal template with no '*'.
func ApplyTemplate(template, derivedStem, derivedExt string) string {
	if template == "" || template == "*" {
		if derivedExt == "" {
			return derivedStem
		}
		return derivedStem + "." + derivedExt
	}
	if !strings.Contains(template, "*") {
		return template
	}
	if strings.HasPrefix(template, "*.") {
		return derivedStem + template[1:]
	}
	if strings.HasSuffix(template, ".*") {
		stem := strings.TrimSuffix(template, ".*")
		if derivedExt == "" {
			return stem
		}
		return stem + "." + derivedExt
	}
	return strings.ReplaceAll(template, "*", derivedStem)
}

// ResolvedPaths carries the final destination path and the scratch
// "final-temp" path used while chunks are merging.
type ResolvedPaths struct {
	Destination string
	TempDest    string
	Resume      bool // true when an existing file is being resumed rather than started fresh
}

// ResolvePath implements step 4 (write-mode semantics) and step 5
// (directory creation).
func ResolvePath(dstDir, tempDir, name string, mode coordinator.WriteMode, expectedTotal int64) (ResolvedPaths, error) {
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return ResolvedPaths{}, fetcherr.Wrap(fetcherr.LocalIOError, "create destination directory", err)
	}
	if tempDir == "" {
		tempDir = dstDir
	}
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return ResolvedPaths{}, fetcherr.Wrap(fetcherr.LocalIOError, "create temp directory", err)
	}

	dest := filepath.Join(dstDir, name)
	temp := filepath.Join(tempDir, name+".tmp")

	switch mode {
	case coordinator.Overwrite:
		_ = os.Remove(dest)
		return ResolvedPaths{Destination: dest, TempDest: temp}, nil

	case coordinator.CreateNew:
		ext := filepath.Ext(name)
		stem := strings.TrimSuffix(name, ext)
		candidate := dest
		for i := 1; fileExists(candidate); i++ {
			candidate = filepath.Join(dstDir, fmt.Sprintf("%s (%d)%s", stem, i, ext))
		}
		return ResolvedPaths{Destination: candidate, TempDest: temp}, nil

	case coordinator.AppendOrTruncate:
		if info, err := os.Stat(temp); err == nil {
			if expectedTotal > 0 && info.Size() > expectedTotal {
				_ = os.Truncate(temp, 0)
				return ResolvedPaths{Destination: dest, TempDest: temp}, nil
			}
			return ResolvedPaths{Destination: dest, TempDest: temp, Resume: true}, nil
		}
		return ResolvedPaths{Destination: dest, TempDest: temp}, nil

	case coordinator.AppendStrict:
		if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
			return ResolvedPaths{}, fetcherr.New(fetcherr.InputError, "destination exists")
		}
		return ResolvedPaths{Destination: dest, TempDest: temp}, nil

	default:
		return ResolvedPaths{}, fetcherr.New(fetcherr.InputError, "unknown write mode")
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsExcluded reports whether ext (without its leading dot) appears in the
// exclusion list, case-insensitively.
func IsExcluded(ext string, excluded []string) bool {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, e := range excluded {
		if strings.ToLower(strings.TrimPrefix(e, ".")) == ext {
			return true
		}
	}
	return false
}
