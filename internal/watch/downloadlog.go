package watch

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"fsec/internal/util"
)

// DownloadLog remembers which files have been processed and when.
type DownloadLog struct {
	path  string
	Known map[string]time.Time `yaml:"known_files"`
}

// LoadDownloadLog reads the log at path. A missing file is an empty log.
func LoadDownloadLog(path string) (*DownloadLog, error) {
	l := &DownloadLog{path: path, Known: map[string]time.Time{}}
	blob, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return l, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(blob, l); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if l.Known == nil {
		l.Known = map[string]time.Time{}
	}
	return l, nil
}

func (l *DownloadLog) Has(path string) bool {
	_, ok := l.Known[path]
	return ok
}

func (l *DownloadLog) Add(at time.Time, paths ...string) {
	for _, p := range paths {
		l.Known[p] = at.UTC()
	}
}

func (l *DownloadLog) Remove(paths ...string) int {
	n := 0
	for _, p := range paths {
		if _, ok := l.Known[p]; ok {
			delete(l.Known, p)
			n++
		}
	}
	return n
}

// Prune forgets entries recorded before cutoff and returns them.
func (l *DownloadLog) Prune(cutoff time.Time) []string {
	var out []string
	for p, at := range l.Known {
		if at.Before(cutoff) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	l.Remove(out...)
	return out
}

func (l *DownloadLog) Len() int {
	return len(l.Known)
}

func (l *DownloadLog) Save() error {
	return util.WriteFileAtomic(l.path, func(w io.Writer) error {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(l); err != nil {
			return err
		}
		return enc.Close()
	})
}
