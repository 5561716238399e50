package facts

import (
	"path"
	"strings"
)

// Root is the normalized filesystem root.
const Root = "/"

// NormalizePath converts separators to '/', cleans dot segments and strips a
// trailing slash except for the root itself.
func NormalizePath(p string) string {
	if p == "" {
		return ""
	}
	p = strings.ReplaceAll(p, "\\", "/")
	cleaned := path.Clean(p)
	if len(cleaned) > 1 {
		cleaned = strings.TrimSuffix(cleaned, "/")
	}
	return cleaned
}

// GetParentPath returns the parent of p. The root has no parent; a path with a
// single segment has the root as its parent.
func GetParentPath(p string) (string, bool) {
	p = NormalizePath(p)
	if p == "" || p == Root || p == "." {
		return "", false
	}

	idx := strings.LastIndex(p, "/")
	if idx <= 0 {
		return Root, true
	}
	return p[:idx], true
}

// GetBaseName returns the last path segment.
func GetBaseName(p string) string {
	p = NormalizePath(p)
	if p == Root {
		return Root
	}
	if idx := strings.LastIndex(p, "/"); idx >= 0 {
		return p[idx+1:]
	}
	return p
}

// GetExtension returns the extension of the base name without its dot. There
// is none when the name has no dot, when the only dot leads the name, or when
// the name ends with a dot.
func GetExtension(p string) (string, bool) {
	name := GetBaseName(p)
	idx := strings.LastIndex(name, ".")
	if idx <= 0 || idx == len(name)-1 {
		return "", false
	}
	return name[idx+1:], true
}

// IsHidden reports whether the base name starts with a dot.
func IsHidden(p string) bool {
	name := GetBaseName(p)
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}

// IsWithin reports whether child equals parent or sits somewhere below it.
func IsWithin(parent, child string) bool {
	parent = NormalizePath(parent)
	child = NormalizePath(child)
	if parent == child {
		return true
	}
	if parent == Root {
		return strings.HasPrefix(child, Root)
	}
	return strings.HasPrefix(child, parent+"/")
}

// Rebase moves p from under oldPrefix to under newPrefix. p must be within oldPrefix.
func Rebase(p, oldPrefix, newPrefix string) string {
	p = NormalizePath(p)
	oldPrefix = NormalizePath(oldPrefix)
	newPrefix = NormalizePath(newPrefix)
	if p == oldPrefix {
		return newPrefix
	}
	rest := strings.TrimPrefix(p, oldPrefix)
	rest = strings.TrimPrefix(rest, "/")
	if newPrefix == Root {
		return Root + rest
	}
	return newPrefix + "/" + rest
}
