package source

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// skipDirs are never descended into, whatever the patterns say.
var skipDirs = map[string]bool{
	".git":         true,
	".distill":     true,
	".obsidian":    true,
	".trash":       true,
	"node_modules": true,
}

// extensions maps supported file extensions to source types.
var extensions = map[string]string{
	".md":       "markdown",
	".markdown": "markdown",
	".txt":      "text",
}

func skipDir(name string) bool {
	return skipDirs[name] || (strings.HasPrefix(name, ".") && name != "." && name != "..")
}

// sourceType returns the document type for a file name, or "" when the
// extension is not supported.
func sourceType(name string) string {
	return extensions[strings.ToLower(path.Ext(name))]
}

// included reports whether relPath passes the include and exclude
// patterns. An empty include list admits everything.
func included(relPath string, include, exclude []string) bool {
	if len(include) > 0 && !matchesAny(relPath, include) {
		return false
	}
	return !matchesAny(relPath, exclude)
}

// matchesAny matches a slash-separated relative path against doublestar
// patterns, trying the base name too so "*.txt" works at any depth.
func matchesAny(relPath string, patterns []string) bool {
	base := path.Base(relPath)
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, relPath); err == nil && ok {
			return true
		}
		if !strings.Contains(pattern, "/") {
			if ok, err := doublestar.Match(pattern, base); err == nil && ok {
				return true
			}
		}
	}
	return false
}
