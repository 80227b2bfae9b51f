// Package aliases maps raw spreadsheet column names onto canonical columns
// and learns new mappings from the names it sees.
package aliases

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"fsec/internal/util"
)

// Map is raw column name to canonical column name.
type Map map[string]string

// keyed indexes m by column key.
func (m Map) keyed() map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[util.ColumnKey(k)] = v
	}
	return out
}

func (m Map) values() map[string]string {
	out := make(map[string]string, len(m))
	for _, v := range m {
		out[util.ColumnKey(v)] = v
	}
	return out
}

type Result struct {
	Columns []string
	Learned Map
	Unknown []string
}

type Learner struct {
	canonical []string
	exact     map[string]string
	logger    *zap.Logger
}

// NewLearner takes the canonical column names new mappings may point at.
func NewLearner(canonical []string, logger *zap.Logger) *Learner {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := make([]string, len(canonical))
	copy(c, canonical)
	sort.Slice(c, func(i, j int) bool {
		if len(c[i]) != len(c[j]) {
			return len(c[i]) > len(c[j])
		}
		return c[i] < c[j]
	})
	exact := make(map[string]string, len(c))
	for _, name := range c {
		exact[util.ColumnKey(name)] = name
	}
	return &Learner{canonical: c, exact: exact, logger: logger}
}

// Apply learns mappings for columns m does not know yet, adds them to m, then
// renames columns through m. A new column maps to the longest canonical name
// contained in its column key; columns with no such name are returned as
// unknown.
func (l *Learner) Apply(columns []string, m Map) Result {
	res := Result{Learned: Map{}}
	keys := m.keyed()
	values := m.values()
	seen := map[string]struct{}{}

	for _, col := range columns {
		key := util.ColumnKey(col)
		if key == "" {
			continue
		}
		if _, ok := keys[key]; ok {
			continue
		}
		if _, ok := values[key]; ok {
			continue
		}
		if _, ok := l.exact[key]; ok {
			continue
		}
		if target, ok := l.infer(key); ok {
			m[col] = target
			keys[key] = target
			res.Learned[col] = target
			l.logger.Info("learned column alias", zap.String("column", col), zap.String("canonical", target))
			continue
		}
		if _, dup := seen[key]; !dup {
			seen[key] = struct{}{}
			res.Unknown = append(res.Unknown, col)
		}
	}

	res.Columns = make([]string, len(columns))
	for i, col := range columns {
		key := util.ColumnKey(col)
		switch {
		case keys[key] != "":
			res.Columns[i] = keys[key]
		case values[key] != "":
			res.Columns[i] = values[key]
		case l.exact[key] != "":
			res.Columns[i] = l.exact[key]
		default:
			res.Columns[i] = col
		}
	}
	return res
}

func (l *Learner) infer(key string) (string, bool) {
	for _, c := range l.canonical {
		ck := util.ColumnKey(c)
		if ck != "" && strings.Contains(key, ck) {
			return c, true
		}
	}
	return "", false
}
