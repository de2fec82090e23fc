package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Store persists artifacts in a queue directory, one document per stage
// boundary. The current document for stage N is <queue>/NN_<stage>.json and is
// only ever replaced through an atomic write-temp-then-rename; every write
// also lands an immutable timestamped copy under <queue>/archive/.
type Store struct {
	dir string
}

// NewStore creates the queue directory structure if absent.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, "archive"), 0o750); err != nil {
		return nil, fmt.Errorf("ensure queue directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the queue directory path.
func (s *Store) Dir() string { return s.dir }

// Path returns the current document path for a stage.
func (s *Store) Path(stageIndex int, stageName string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%02d_%s.json", stageIndex, stageName))
}

// Write persists an artifact for the given stage and returns the document
// path. The artifact is validated before anything touches disk, so a reader
// never observes a document violating the schema invariant.
func (s *Store) Write(stageIndex int, stageName string, a *Artifact) (string, error) {
	if err := a.Validate(); err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal artifact: %w", err)
	}

	path := s.Path(stageIndex, stageName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return "", fmt.Errorf("write temp artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("atomic rename artifact: %w", err)
	}

	archive := filepath.Join(s.dir, "archive",
		fmt.Sprintf("%02d_%s.%s.json", stageIndex, stageName, a.Timestamp.Format("20060102T150405.000000000")))
	if err := os.WriteFile(archive, data, 0o600); err != nil {
		return "", fmt.Errorf("write artifact archive copy: %w", err)
	}

	return path, nil
}

// Read loads the current artifact for a stage. It fails with ErrNotFound when
// no document exists for the index and with ErrSchemaInvalid when the
// document violates the count invariant.
func (s *Store) Read(stageIndex int) (*Artifact, error) {
	path, err := s.find(stageIndex)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: stage %d (%s)", ErrNotFound, stageIndex, path)
		}
		return nil, fmt.Errorf("read artifact: %w", err)
	}

	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: stage %d: %v", ErrSchemaInvalid, stageIndex, err)
	}
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("stage %d: %w", stageIndex, err)
	}
	return &a, nil
}

// find locates the current document for a stage index without knowing the
// stage name, so resumption works from the queue directory alone.
func (s *Store) find(stageIndex int) (string, error) {
	pattern := filepath.Join(s.dir, fmt.Sprintf("%02d_*.json", stageIndex))
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", fmt.Errorf("scan queue directory: %w", err)
	}
	candidates := matches[:0]
	for _, m := range matches {
		if strings.HasSuffix(m, ".tmp") {
			continue
		}
		candidates = append(candidates, m)
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("%w: stage %d", ErrNotFound, stageIndex)
	}
	sort.Strings(candidates)
	return candidates[0], nil
}

// ArchiveEntries lists the immutable archive copies for a stage, oldest first.
func (s *Store) ArchiveEntries(stageIndex int) ([]string, error) {
	pattern := filepath.Join(s.dir, "archive", fmt.Sprintf("%02d_*.json", stageIndex))
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("scan artifact archive: %w", err)
	}
	sort.Strings(matches)
	return matches, nil
}
