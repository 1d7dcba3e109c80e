package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang/snappy"

	"dsxia/pkg/dsx/model"
)

// Store owns the on-disk lookup.json/metadata.json pair (§4.5/§6),
// written atomically via temp-file-then-rename, adapted from
// pkg/positions/checkpoint_manager.go's CreateCheckpoint (gzip swapped
// for snappy, per §11.3, and a single snapshot write instead of a
// periodic ticker).
type Store struct {
	dir      string
	compress bool
}

func NewStore(cacheDir string, compress bool) *Store {
	return &Store{dir: cacheDir, compress: compress}
}

func (s *Store) lookupPath() string   { return filepath.Join(s.dir, "lookup.json") }
func (s *Store) metadataPath() string { return filepath.Join(s.dir, "metadata.json") }

// Load reads both documents, returning empty maps (not an error) when
// either file doesn't exist yet.
func (s *Store) Load() (map[string]lookupEntry, map[string]*model.Job, error) {
	lookup := map[string]lookupEntry{}
	metadata := map[string]*model.Job{}

	if err := readJSON(s.lookupPath(), &lookup); err != nil {
		return nil, nil, fmt.Errorf("load lookup.json: %w", err)
	}
	if err := readJSONMaybeCompressed(s.metadataPath(), s.compress, &metadata); err != nil {
		return nil, nil, fmt.Errorf("load metadata.json: %w", err)
	}
	return lookup, metadata, nil
}

// Save writes both documents atomically.
func (s *Store) Save(lookup map[string]lookupEntry, metadata map[string]*model.Job) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	if err := writeJSON(s.lookupPath(), lookup); err != nil {
		return fmt.Errorf("save lookup.json: %w", err)
	}
	if err := writeJSONMaybeCompressed(s.metadataPath(), s.compress, metadata); err != nil {
		return fmt.Errorf("save metadata.json: %w", err)
	}
	return nil
}

func readJSON(path string, dest any) error {
	return readJSONMaybeCompressed(path, false, dest)
}

func readJSONMaybeCompressed(path string, compressed bool, dest any) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if compressed {
		data, err = snappy.Decode(nil, data)
		if err != nil {
			return err
		}
	}
	return json.Unmarshal(data, dest)
}

func writeJSON(path string, src any) error {
	return writeJSONMaybeCompressed(path, false, src)
}

func writeJSONMaybeCompressed(path string, compress bool, src any) error {
	data, err := json.MarshalIndent(src, "", "  ")
	if err != nil {
		return err
	}
	if compress {
		data = snappy.Encode(nil, data)
	}

	tempFile := path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tempFile, path); err != nil {
		os.Remove(tempFile)
		return err
	}
	return nil
}
