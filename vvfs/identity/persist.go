package identity

import (
	"encoding/json"
	"os"
	"path/filepath"

	internal "github.com/ZanzyTHEbar/vvfs-sync/vvfs"
	"github.com/ZanzyTHEbar/vvfs-sync/vvfs/facts"

	"github.com/cockroachdb/errors"
)

// FormatVersion is the only document version Load accepts.
const FormatVersion = 1

// document is the on-disk form of the mapping.
type document struct {
	PathToID map[string]facts.EntityID `json:"pathToId"`
	IDToPath map[facts.EntityID]string `json:"idToPath"`
	Version  int                       `json:"version"`
}

// FilePath returns where the mapping lives inside dir.
func FilePath(dir string) string {
	return filepath.Join(dir, internal.DefaultIdentityFile)
}

// Load replaces the registry contents with the mapping persisted in dir. A
// missing, unreadable, malformed, non-bijective or wrong-version document is
// not an error: the registry starts cold with an empty mapping.
func (r *Registry) Load(dir string) {
	r.reset()
	r.dirty = false

	file := FilePath(dir)
	data, err := os.ReadFile(file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			r.logger.Debug().Str("file", file).Msg("No identity map found, starting cold")
		} else {
			r.logger.Warn().Err(err).Str("file", file).Msg("Failed to read identity map, starting cold")
		}
		return
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		r.logger.Warn().Err(err).Str("file", file).Msg("Malformed identity map, starting cold")
		return
	}

	if doc.Version != FormatVersion {
		r.logger.Warn().
			Int("version", doc.Version).
			Int("expected", FormatVersion).
			Str("file", file).
			Msg("Identity map version mismatch, starting cold")
		return
	}

	mapping, err := normalizeDocument(doc)
	if err != nil {
		r.logger.Warn().Err(err).Str("file", file).Msg("Inconsistent identity map, starting cold")
		return
	}

	for path, id := range mapping {
		r.insert(path, id)
	}

	r.logger.Info().Int("entries", r.Len()).Str("file", file).Msg("Identity map loaded")
}

// Save writes the mapping into dir if anything changed since the last save.
// The file is replaced atomically; I/O errors are returned and leave the
// registry dirty.
func (r *Registry) Save(dir string) error {
	if !r.dirty {
		return nil
	}

	doc := document{
		PathToID: r.Snapshot(),
		IDToPath: make(map[facts.EntityID]string, r.Len()),
		Version:  FormatVersion,
	}
	for path, id := range doc.PathToID {
		doc.IDToPath[id] = path
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode identity map")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create identity directory %s", dir)
	}

	tmp, err := os.CreateTemp(dir, ".identity-*.json")
	if err != nil {
		return errors.Wrap(err, "failed to create temporary identity file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to write identity map")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close identity map")
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return errors.Wrap(err, "failed to set identity map permissions")
	}
	if err := os.Rename(tmpName, FilePath(dir)); err != nil {
		return errors.Wrap(err, "failed to replace identity map")
	}

	r.dirty = false
	r.logger.Debug().Int("entries", len(doc.PathToID)).Str("dir", dir).Msg("Identity map saved")
	return nil
}

// normalizeDocument returns the document's mapping keyed by normalized path.
// Both directions must agree once normalized, and no two entries may collapse
// onto the same path.
func normalizeDocument(doc document) (map[string]facts.EntityID, error) {
	if len(doc.PathToID) != len(doc.IDToPath) {
		return nil, errors.Newf("pathToId has %d entries, idToPath has %d", len(doc.PathToID), len(doc.IDToPath))
	}

	mapping := make(map[string]facts.EntityID, len(doc.PathToID))
	for raw, id := range doc.PathToID {
		path := facts.NormalizePath(raw)
		if path == "" {
			return nil, errors.Newf("empty path for id %s", id)
		}
		if other, dup := mapping[path]; dup {
			return nil, errors.Newf("ids %s and %s both claim %s", other, id, path)
		}
		back, ok := doc.IDToPath[id]
		if !ok || facts.NormalizePath(back) != path {
			return nil, errors.Newf("id %s does not map back to %s", id, raw)
		}
		mapping[path] = id
	}
	return mapping, nil
}
