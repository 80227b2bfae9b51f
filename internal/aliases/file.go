package aliases

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"fsec/internal/util"
)

// LoadMap reads the alias map. A missing file is an empty map.
func LoadMap(path string) (Map, error) {
	m := Map{}
	if err := readYAML(path, &m); err != nil {
		return Map{}, err
	}
	if m == nil {
		m = Map{}
	}
	return m, nil
}

func SaveMap(path string, m Map) error {
	return writeYAML(path, map[string]string(m))
}

// LoadUnknown reads the review queue of unmapped column names.
func LoadUnknown(path string) ([]string, error) {
	var names []string
	if err := readYAML(path, &names); err != nil {
		return nil, err
	}
	return names, nil
}

// AppendUnknown adds names to the review queue, skipping any whose column key
// is already queued or appears as a key or value of m. It returns the names
// actually added.
func AppendUnknown(path string, names []string, m Map) ([]string, error) {
	queue, err := LoadUnknown(path)
	if err != nil {
		return nil, err
	}

	skip := map[string]struct{}{}
	for k, v := range m {
		skip[util.ColumnKey(k)] = struct{}{}
		skip[util.ColumnKey(v)] = struct{}{}
	}
	for _, q := range queue {
		skip[util.ColumnKey(q)] = struct{}{}
	}

	added := []string{}
	for _, n := range names {
		key := util.ColumnKey(n)
		if key == "" {
			continue
		}
		if _, ok := skip[key]; ok {
			continue
		}
		skip[key] = struct{}{}
		added = append(added, n)
	}
	if len(added) == 0 {
		return added, nil
	}

	queue = append(queue, added...)
	sort.Strings(queue)
	return added, writeYAML(path, queue)
}

func readYAML(path string, out any) error {
	blob, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(blob, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func writeYAML(path string, v any) error {
	return util.WriteFileAtomic(path, func(w io.Writer) error {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	})
}
