package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"fsec/internal/util"
)

var ErrNotFound = errors.New("registry not found")

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FileStore keeps the registry in one JSON or YAML document, a map of
// normalized name to record.
type FileStore struct {
	*Index
	path   string
	format Format
	logger *zap.Logger
}

func NewFileStore(path string, format Format, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{Index: NewIndex(), path: path, format: format, logger: logger}
}

// Load replaces memory with the file's records. A missing file empties the
// index; any other failure leaves memory as it was.
func (s *FileStore) Load(ctx context.Context) error {
	recs, err := s.read()
	if errors.Is(err, ErrNotFound) {
		s.replace(nil)
		return err
	}
	if err != nil {
		return err
	}
	s.replace(recs)
	s.logger.Debug("registry loaded", zap.String("path", s.path), zap.Int("records", s.Len()))
	return nil
}

func (s *FileStore) Save(ctx context.Context) error {
	doc := make(map[string]Record, s.Len())
	for _, rec := range s.all() {
		doc[rec.NormalizedName] = rec
	}
	err := util.WriteFileAtomic(s.path, func(w io.Writer) error {
		if s.format == FormatYAML {
			enc := yaml.NewEncoder(w)
			enc.SetIndent(2)
			if err := enc.Encode(doc); err != nil {
				return err
			}
			return enc.Close()
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	})
	if err != nil {
		return fmt.Errorf("save registry %s: %w", s.path, err)
	}
	s.clearRemovals()
	return nil
}

// Refresh merges records the file holds that are newer than anything in
// memory.
func (s *FileStore) Refresh(ctx context.Context) error {
	recs, err := s.read()
	if err != nil {
		return err
	}
	since := s.newest()
	fresh := recs[:0]
	for _, rec := range recs {
		if rec.UpdatedAt.After(since) {
			fresh = append(fresh, rec)
		}
	}
	n := s.merge(fresh)
	s.logger.Debug("registry refreshed", zap.String("path", s.path), zap.Int("merged", n))
	return nil
}

func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) read() ([]Record, error) {
	blob, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, s.path)
	}
	if err != nil {
		return nil, err
	}

	doc := map[string]Record{}
	if s.format == FormatYAML {
		err = yaml.Unmarshal(blob, &doc)
	} else {
		err = json.Unmarshal(blob, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("decode registry %s: %w", s.path, err)
	}

	out := make([]Record, 0, len(doc))
	for key, rec := range doc {
		if rec.NormalizedName == "" {
			rec.NormalizedName = key
		}
		out = append(out, rec)
	}
	sortRecords(out)
	return out, nil
}
