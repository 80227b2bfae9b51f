package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"fsec/internal"
	"fsec/internal/aliases"
	"fsec/internal/operator"
	"fsec/internal/util"
)

const (
	StageHeader   = "header_detected"
	StageAliases  = "columns_aliased"
	StageOperator = "operator_resolved"
	StageCoerce   = "coerced"
	StageValidate = "validated"
	StageReshape  = "reshaped"

	colOperator      = "operator"
	colOperatorAlias = "operator_alias"
	colCRS           = "crs"
)

var ErrEmptySheet = errors.New("sheet has no rows")

type ParserConfig struct {
	Header        HeaderConfig
	ExcludeTokens []string
	MergePolicy   MergePolicy
}

type Parser struct {
	schema   internal.Schema
	resolver *operator.Resolver
	learner  *aliases.Learner
	cfg      ParserConfig
	logger   *zap.Logger
}

type Result struct {
	Source      string
	Frame       internal.Frame
	Status      internal.Severity
	Diagnostics Diagnostics
	Trace       []internal.StageOutcome
	Learned     aliases.Map
	Unknown     []string
	Operator    operator.Result
	Valid       bool
}

func NewParser(schema internal.Schema, resolver *operator.Resolver, cfg ParserConfig, logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MergePolicy == "" {
		cfg.MergePolicy = MergeMin
	}
	return &Parser{
		schema:   schema,
		resolver: resolver,
		learner:  aliases.NewLearner(schema.Names(), logger),
		cfg:      cfg,
		logger:   logger,
	}
}

type parseState struct {
	source   string
	grid     internal.Grid
	aliasMap aliases.Map
	header   Header
	frame    internal.Frame
	res      *Result
}

// Parse normalizes one sheet. It never fails: problems are reported through
// the result's diagnostics and status, and aliasMap gains any mappings
// learned on the way.
func (p *Parser) Parse(source string, grid internal.Grid, aliasMap aliases.Map) Result {
	if aliasMap == nil {
		aliasMap = aliases.Map{}
	}
	res := &Result{
		Source:      source,
		Diagnostics: NewDiagnostics(),
		Learned:     aliases.Map{},
		Valid:       true,
	}
	st := &parseState{source: source, grid: grid, aliasMap: aliasMap, res: res}

	p.stage(st, StageHeader, p.detectHeader)
	p.stage(st, StageAliases, p.aliasColumns)
	p.stage(st, StageOperator, p.resolveOperator)
	p.stage(st, StageCoerce, func(st *parseState) error {
		coerceFrame(&st.frame, p.schema, st.res.Diagnostics)
		return nil
	})
	p.stage(st, StageValidate, func(st *parseState) error {
		validateFrame(&st.frame, st.res.Diagnostics)
		return nil
	})
	p.stage(st, StageReshape, func(st *parseState) error {
		st.frame = reshape(st.frame, p.schema, p.cfg.MergePolicy)
		return nil
	})

	res.Frame = st.frame
	res.Status = res.Diagnostics.Status()
	p.logger.Info("parsed schedule",
		zap.String("source", source),
		zap.String("status", string(res.Status)),
		zap.Int("rows", res.Frame.Len()),
		zap.String("operator_alias", strings.ToUpper(res.Operator.Record.Alias)))
	return *res
}

// stage runs fn unless an earlier stage failed. Errors and panics mark the
// result invalid.
func (p *Parser) stage(st *parseState, name string, fn func(*parseState) error) {
	if !st.res.Valid {
		st.res.Trace = append(st.res.Trace, internal.StageOutcome{Stage: name, Outcome: internal.OutcomeSkipped})
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.fail(st, name, fmt.Errorf("panic: %v", r))
		}
	}()
	if err := fn(st); err != nil {
		p.fail(st, name, err)
		return
	}
	st.res.Trace = append(st.res.Trace, internal.StageOutcome{Stage: name, Outcome: internal.OutcomeOK})
}

func (p *Parser) fail(st *parseState, name string, err error) {
	st.res.Valid = false
	st.res.Diagnostics.Addf(internal.SeverityError, "%s: %v", name, err)
	st.res.Trace = append(st.res.Trace, internal.StageOutcome{Stage: name, Outcome: internal.OutcomeFailed})
	p.logger.Error("parse stage failed", zap.String("source", st.source), zap.String("stage", name), zap.Error(err))
}

func (p *Parser) detectHeader(st *parseState) error {
	if len(st.grid) == 0 {
		return ErrEmptySheet
	}
	vocab := p.schema.Names()
	for k := range st.aliasMap {
		vocab = append(vocab, k)
	}
	header, err := NewHeaderDetector(p.cfg.Header, vocab, p.logger).Detect(st.grid)
	if err != nil {
		return err
	}
	st.header = header
	if header.Found {
		st.res.Diagnostics.Addf(internal.SeverityOK, "header detected at row %d", header.DataStart)
	} else {
		st.res.Diagnostics.Add(internal.SeverityWarning, "no header row found; using positional columns")
	}

	width := len(header.Columns)
	frame := internal.Frame{Columns: append([]string(nil), header.Columns...)}
	for _, raw := range st.grid[header.DataStart:] {
		row := make([]any, width)
		empty := true
		for i := 0; i < width && i < len(raw); i++ {
			if cell := strings.TrimSpace(raw[i]); cell != "" {
				row[i] = cell
				empty = false
			}
		}
		if !empty {
			frame.Rows = append(frame.Rows, row)
		}
	}
	st.frame = frame
	return nil
}

func (p *Parser) aliasColumns(st *parseState) error {
	applied := p.learner.Apply(st.frame.Columns, st.aliasMap)
	st.frame.Columns = applied.Columns
	st.res.Learned = applied.Learned
	st.res.Unknown = applied.Unknown
	for _, u := range applied.Unknown {
		st.res.Diagnostics.Addf(internal.SeverityOK, "unmapped column %q", u)
	}
	return nil
}

func (p *Parser) resolveOperator(st *parseState) error {
	name := operatorFromColumn(st.frame)
	if name == "" {
		tokens := util.FilenameTokens(st.source, p.cfg.ExcludeTokens)
		if len(tokens) > 0 {
			name = tokens[0]
		} else {
			name = strings.TrimSuffix(filepath.Base(st.source), filepath.Ext(st.source))
		}
	}

	res := p.resolver.Resolve(name)
	p.resolver.Learn(res)
	st.res.Operator = res
	for _, w := range res.Warnings {
		st.res.Diagnostics.Add(internal.SeverityWarning, w)
	}
	st.res.Diagnostics.Addf(internal.SeverityOK, "operator resolved by %s", res.Method)

	dropColumns(&st.frame, colOperator, colOperatorAlias)
	setColumn(&st.frame, colOperator, res.Record.Name)
	setColumn(&st.frame, colOperatorAlias, strings.ToUpper(res.Record.Alias))

	crs := "wgs84"
	for _, h := range st.header.Original {
		if strings.HasSuffix(util.ColumnKey(h), "nad27") {
			crs = "nad27"
			break
		}
	}
	if idx := st.frame.Index(colCRS); idx >= 0 {
		for _, row := range st.frame.Rows {
			if row[idx] == nil {
				row[idx] = crs
			}
		}
	} else {
		setColumn(&st.frame, colCRS, crs)
	}
	return nil
}

// operatorFromColumn returns the most frequent value of an operator column,
// ties broken lexically.
func operatorFromColumn(frame internal.Frame) string {
	idx := frame.Index(colOperator)
	if idx < 0 {
		return ""
	}
	counts := map[string]int{}
	for _, row := range frame.Rows {
		if s, ok := row[idx].(string); ok && strings.TrimSpace(s) != "" {
			counts[strings.TrimSpace(s)]++
		}
	}
	names := make([]string, 0, len(counts))
	for n := range counts {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

func dropColumns(frame *internal.Frame, names ...string) {
	drop := map[string]struct{}{}
	for _, n := range names {
		drop[n] = struct{}{}
	}
	keep := []int{}
	for i, c := range frame.Columns {
		if _, ok := drop[c]; !ok {
			keep = append(keep, i)
		}
	}
	if len(keep) == len(frame.Columns) {
		return
	}
	cols := make([]string, 0, len(keep))
	for _, i := range keep {
		cols = append(cols, frame.Columns[i])
	}
	for r, row := range frame.Rows {
		next := make([]any, 0, len(keep))
		for _, i := range keep {
			next = append(next, row[i])
		}
		frame.Rows[r] = next
	}
	frame.Columns = cols
}

func setColumn(frame *internal.Frame, name string, value any) {
	idx := addColumn(frame, name)
	for _, row := range frame.Rows {
		row[idx] = value
	}
}
