package store

import (
	"cmp"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/kozaktomas/face-engine/internal/embedding"
)

// Load reads an embeddings root into a new store.
func Load(path string, opts ...Option) (*Store, error) {
	s := New(opts...)
	if err := s.LoadDir(path); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadAll reads several embeddings roots into one store, in order.
// On identity collisions the root listed first wins.
func LoadAll(paths []string, opts ...Option) (*Store, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no embeddings root given", ErrNotFound)
	}
	s := New(opts...)
	for _, path := range paths {
		if err := s.LoadDir(path); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// LoadDir merges an embeddings root into s.
// Every immediate subdirectory is an identity and every regular file inside it one embedding.
// Identities already present are reported and skipped, identities without embeddings are
// reported and skipped, and any undecodable file aborts the load.
func (s *Store) LoadDir(path string) error {
	if err := RequireDir(path); err != nil {
		return err
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return fmt.Errorf("failed to read embeddings root %s: %w", path, err)
	}

	for _, entry := range entries {
		if isHidden(entry.Name()) {
			continue
		}
		dir := filepath.Join(path, entry.Name())
		if !isDir(dir) {
			continue
		}

		name := NormalizeName(entry.Name())
		if _, exists := s.byKey[name]; exists {
			s.log.Warn().Str("identity", name).Str("path", dir).Msg("identity already has its embeddings, skipping duplicate")
			continue
		}

		s.log.Debug().Str("identity", name).Msg("loading embeddings")
		embeddings, err := readIdentityDir(dir)
		if err != nil {
			return err
		}
		if len(embeddings) == 0 {
			s.log.Warn().Str("identity", name).Msg("no embedding found, skipping identity")
			continue
		}

		if err := s.Insert(name, embeddings); err != nil {
			if errors.Is(err, ErrDuplicate) {
				s.log.Warn().Str("identity", name).Msg("identity already has its embeddings, skipping duplicate")
				continue
			}
			return fmt.Errorf("failed to load %s: %w", dir, err)
		}
		s.log.Info().Str("identity", name).Int("embeddings", len(embeddings)).Msg("embeddings loaded")
	}

	return nil
}

// readIdentityDir decodes all embedding files of one identity in index order.
func readIdentityDir(dir string) ([]embedding.Embedding, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read identity directory %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if isHidden(entry.Name()) || !entry.Type().IsRegular() {
			continue
		}
		files = append(files, entry.Name())
	}
	slices.SortFunc(files, compareIndexNames)

	embeddings := make([]embedding.Embedding, 0, len(files))
	for _, name := range files {
		e, err := readEmbeddingFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		embeddings = append(embeddings, e)
	}
	return embeddings, nil
}

func readEmbeddingFile(path string) (embedding.Embedding, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from walking the embeddings root
	if err != nil {
		return embedding.Embedding{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	e, err := embedding.Decode(f)
	if err != nil {
		return embedding.Embedding{}, fmt.Errorf("%w: %s: %w", ErrCorruptEmbedding, path, err)
	}
	return e, nil
}

// Save writes embeddings of one identity under basePath/identity as files 0, 1, 2, ...
// Existing files with the same indices are overwritten.
func Save(identity string, embeddings []embedding.Embedding, basePath string) error {
	name := NormalizeName(identity)
	if err := ValidateName(name); err != nil {
		return err
	}

	dir := filepath.Join(basePath, name)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create identity directory %s: %w", dir, err)
	}

	for i, e := range embeddings {
		if err := writeEmbeddingFile(filepath.Join(dir, strconv.Itoa(i)), e); err != nil {
			return err
		}
	}
	return nil
}

// writeEmbeddingFile writes through a temp file so a reader never sees a partial vector.
func writeEmbeddingFile(path string, e embedding.Embedding) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create embedding file: %w", err)
	}
	tmpName := tmp.Name()

	if err := embedding.Encode(tmp, e); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to move embedding into place: %w", err)
	}
	return nil
}

// RequireDir returns ErrNotFound unless path is an existing directory.
func RequireDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrNotFound, path)
	}
	return nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// compareIndexNames orders integer names numerically, ahead of any non-integer names.
func compareIndexNames(a, b string) int {
	ai, aErr := strconv.Atoi(a)
	bi, bErr := strconv.Atoi(b)
	switch {
	case aErr == nil && bErr == nil:
		return cmp.Compare(ai, bi)
	case aErr == nil:
		return -1
	case bErr == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}
