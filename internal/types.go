package internal

import "sort"

type ColumnType string

const (
	TypeString   ColumnType = "string"
	TypeFloat    ColumnType = "float"
	TypeInteger  ColumnType = "integer"
	TypeDateTime ColumnType = "datetime"
)

func (t ColumnType) Valid() bool {
	switch t {
	case TypeString, TypeFloat, TypeInteger, TypeDateTime:
		return true
	}
	return false
}

type Column struct {
	Name string     `yaml:"name" json:"name"`
	Type ColumnType `yaml:"type" json:"type"`
}

// Schema is the canonical output column set. Order is the configured order;
// reshaped frames are always emitted sorted by name.
type Schema []Column

func (s Schema) Names() []string {
	out := make([]string, 0, len(s))
	for _, c := range s {
		out = append(out, c.Name)
	}
	return out
}

func (s Schema) Type(name string) (ColumnType, bool) {
	for _, c := range s {
		if c.Name == name {
			return c.Type, true
		}
	}
	return "", false
}

func (s Schema) Has(name string) bool {
	_, ok := s.Type(name)
	return ok
}

func (s Schema) Sorted() Schema {
	out := make(Schema, len(s))
	copy(out, s)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Grid is a raw sheet as read from disk: rows of cell text, ragged.
type Grid [][]string

// Frame holds typed cells. A nil cell is a missing value; otherwise a cell is
// one of string, float64, int64 or time.Time.
type Frame struct {
	Columns []string
	Rows    [][]any
}

func (f Frame) Index(name string) int {
	for i, c := range f.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

func (f Frame) Len() int {
	return len(f.Rows)
}

type Severity string

const (
	SeverityOK      Severity = "ok"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

type StageOutcome struct {
	Stage   string `json:"stage"`
	Outcome string `json:"outcome"`
}

const (
	OutcomeOK      = "ok"
	OutcomeHit     = "hit"
	OutcomeMiss    = "miss"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// RecordSet is one parsed file's output as handed to a sink.
type RecordSet struct {
	RunID  string
	Source string
	Schema Schema
	Frame  Frame
}

// DefaultSchema is the frac schedule column set used when no schema file is
// configured.
func DefaultSchema() Schema {
	return Schema{
		{Name: "operator", Type: TypeString},
		{Name: "operator_alias", Type: TypeString},
		{Name: "wellname", Type: TypeString},
		{Name: "api14", Type: TypeString},
		{Name: "api10", Type: TypeString},
		{Name: "fracstartdate", Type: TypeDateTime},
		{Name: "fracenddate", Type: TypeDateTime},
		{Name: "shllat", Type: TypeFloat},
		{Name: "shllon", Type: TypeFloat},
		{Name: "bhllat", Type: TypeFloat},
		{Name: "bhllon", Type: TypeFloat},
		{Name: "tvd", Type: TypeFloat},
		{Name: "crs", Type: TypeString},
	}
}
