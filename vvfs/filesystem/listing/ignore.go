package listing

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/ZanzyTHEbar/vvfs-sync/vvfs/facts"

	"github.com/cockroachdb/errors"
	ignore "github.com/sabhiram/go-gitignore"
)

// Matcher decides which paths under a root are invisible to the engine:
// anything with a hidden segment below the root, plus anything matched by the
// root's ignore file.
type Matcher struct {
	root    string
	ignored *ignore.GitIgnore
}

// LoadMatcher reads fileName (gitignore syntax) from root. A missing file
// leaves only the hidden-entry rule in place.
func LoadMatcher(root, fileName string) (*Matcher, error) {
	m := &Matcher{root: facts.NormalizePath(root)}
	if fileName == "" {
		return m, nil
	}

	ignorePath := filepath.Join(filepath.FromSlash(m.root), fileName)
	if _, err := os.Stat(ignorePath); err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, errors.Wrapf(err, "error checking for %s", ignorePath)
	}

	ignored, err := ignore.CompileIgnoreFile(ignorePath)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading %s", ignorePath)
	}
	m.ignored = ignored
	return m, nil
}

// NewMatcher builds a matcher from in-memory ignore lines.
func NewMatcher(root string, lines ...string) *Matcher {
	m := &Matcher{root: facts.NormalizePath(root)}
	if len(lines) > 0 {
		m.ignored = ignore.CompileIgnoreLines(lines...)
	}
	return m
}

// Root is the directory the matcher is anchored at.
func (m *Matcher) Root() string {
	return m.root
}

// Skip reports whether p must be left out. The root itself and paths outside
// it are never skipped.
func (m *Matcher) Skip(p string) bool {
	return m.match(p, false)
}

// SkipEntry is Skip for a listed entry, so folder-only patterns apply.
func (m *Matcher) SkipEntry(e Entry) bool {
	return m.match(e.Path, e.IsDir())
}

func (m *Matcher) match(p string, dir bool) bool {
	if m == nil {
		return false
	}
	p = facts.NormalizePath(p)
	if p == m.root || !facts.IsWithin(m.root, p) {
		return false
	}

	rel := strings.TrimPrefix(strings.TrimPrefix(p, m.root), "/")
	for _, segment := range strings.Split(rel, "/") {
		if strings.HasPrefix(segment, ".") {
			return true
		}
	}

	if m.ignored == nil {
		return false
	}
	if m.ignored.MatchesPath(rel) {
		return true
	}
	if dir && m.ignored.MatchesPath(rel+"/") {
		return true
	}
	// A file below an ignored folder is ignored too.
	for parent := path.Dir(rel); parent != "." && parent != "/"; parent = path.Dir(parent) {
		if m.ignored.MatchesPath(parent + "/") {
			return true
		}
	}
	return false
}
