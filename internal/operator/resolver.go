// Package operator resolves free-text operator names to a canonical alias
// through a waterfall of increasingly loose matches against the registry.
package operator

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"fsec/internal"
	"fsec/internal/fuzzy"
	"fsec/internal/registry"
	"fsec/internal/util"
)

type Method string

const (
	MethodLookup      Method = "lookup"
	MethodAliasLookup Method = "alookup"
	MethodRatio       Method = "ratio"
	MethodTokenSet    Method = "token_set"
	MethodTokenSort   Method = "token_sort"
	MethodSeekToken   Method = "seek_token"
	MethodFallback    Method = "fallback"
)

// FuzzyStage is one scorer in the fuzzy part of the waterfall.
type FuzzyStage struct {
	Method Method
	Score  fuzzy.Scorer
}

type Config struct {
	// MinLen and MaxLen bound the normalized length fuzzy matching runs on.
	MinLen int
	MaxLen int
	// MinScore is the fuzzy floor a candidate must reach.
	MinScore int
	// AliasScore is the confidence given to a name that is itself a known alias.
	AliasScore int
	Stages     []FuzzyStage
	Source     string
}

func DefaultStages() []FuzzyStage {
	return []FuzzyStage{
		{Method: MethodRatio, Score: fuzzy.Ratio},
		{Method: MethodTokenSet, Score: fuzzy.TokenSetRatio},
		{Method: MethodTokenSort, Score: fuzzy.TokenSortRatio},
	}
}

func DefaultConfig() Config {
	return Config{
		MinLen:     3,
		MaxLen:     35,
		MinScore:   90,
		AliasScore: 75,
		Stages:     DefaultStages(),
	}
}

type Result struct {
	Raw      string
	Record   registry.Record
	Method   Method
	Trace    []internal.StageOutcome
	Warnings []string
}

// Resolved is false when only the terminal fallback applied.
func (r Result) Resolved() bool {
	return r.Method != MethodFallback
}

type Resolver struct {
	store  registry.Store
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

func NewResolver(store registry.Store, cfg Config, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Stages == nil {
		cfg.Stages = DefaultStages()
	}
	return &Resolver{store: store, cfg: cfg, logger: logger, now: time.Now}
}

// Resolve runs the waterfall for raw. It reads the store but never writes it;
// see Learn.
func (r *Resolver) Resolve(raw string) Result {
	norm := util.Normalize(raw)
	now := r.now()
	res := Result{
		Raw: raw,
		Record: registry.Record{
			Name:           raw,
			NormalizedName: norm,
			Source:         r.cfg.Source,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
	}
	if norm == "" {
		return r.fallback(res)
	}

	if rec, ok := r.store.Lookup(norm); ok {
		res.trace(string(MethodLookup), internal.OutcomeHit)
		return r.fromRecord(res, rec, MethodLookup, rec.PresentScore)
	}
	res.trace(string(MethodLookup), internal.OutcomeMiss)

	if r.store.Exists(norm) {
		res.trace(string(MethodAliasLookup), internal.OutcomeHit)
		return r.ownAlias(res, norm, MethodAliasLookup)
	}
	res.trace(string(MethodAliasLookup), internal.OutcomeMiss)

	n := len([]rune(norm))
	if n >= r.cfg.MinLen && n <= r.cfg.MaxLen {
		keys := r.store.Keys()
		for _, stage := range r.cfg.Stages {
			m, ok := fuzzy.ExtractOne(norm, keys, stage.Score, r.cfg.MinScore)
			if !ok {
				res.trace(string(stage.Method), internal.OutcomeMiss)
				continue
			}
			rec, ok := r.store.Lookup(m.Candidate)
			if !ok {
				res.trace(string(stage.Method), internal.OutcomeMiss)
				continue
			}
			res.trace(string(stage.Method), internal.OutcomeHit)
			r.logger.Debug("operator fuzzy match",
				zap.String("name", norm),
				zap.String("candidate", m.Candidate),
				zap.String("method", string(stage.Method)),
				zap.Int("score", m.Score))
			return r.fromRecord(res, rec, stage.Method, m.Score)
		}
	} else {
		for _, stage := range r.cfg.Stages {
			res.trace(string(stage.Method), internal.OutcomeSkipped)
		}
	}

	if seek := r.leadingTokens(norm); seek != "" && seek != norm {
		if rec, ok := r.store.Lookup(seek); ok {
			res.trace(string(MethodSeekToken), internal.OutcomeHit)
			return r.fromRecord(res, rec, MethodSeekToken, rec.PresentScore)
		}
		if r.store.Exists(seek) {
			res.trace(string(MethodSeekToken), internal.OutcomeHit)
			return r.ownAlias(res, seek, MethodSeekToken)
		}
		res.trace(string(MethodSeekToken), internal.OutcomeMiss)
	} else {
		res.trace(string(MethodSeekToken), internal.OutcomeSkipped)
	}

	return r.fallback(res)
}

// Learn writes a resolution back to the store. New names are inserted. For a
// known name the alias is replaced only when the new fuzzy score beats the
// stored present score; otherwise only the bookkeeping fields move.
// Fallback results are not learned.
func (r *Resolver) Learn(res Result) bool {
	if !res.Resolved() || res.Record.NormalizedName == "" {
		return false
	}
	key := res.Record.NormalizedName
	existing, ok := r.store.Lookup(key)
	if !ok {
		r.store.Add(key, res.Record)
		return true
	}

	if res.Record.FuzzyScore > existing.PresentScore {
		existing.Alias = res.Record.Alias
		existing.Name = res.Raw
		existing.PresentScore = res.Record.FuzzyScore
		existing.Method = string(res.Method)
	}
	existing.FuzzyScore = res.Record.FuzzyScore
	existing.UpdatedAt = r.now()
	r.store.Add(key, existing)
	return true
}

// fromRecord takes alias and present score from a matched record and
// reconciles the presented name against it.
func (r *Resolver) fromRecord(res Result, matched registry.Record, method Method, score int) Result {
	res.Method = method
	res.Record.Alias = matched.Alias
	if res.Record.Alias == "" {
		res.Record.Alias = matched.NormalizedName
	}
	res.Record.PresentScore = matched.PresentScore
	res.Record.FuzzyScore = score
	res.Record.Method = string(method)
	if score > matched.PresentScore {
		res.Record.PresentScore = score
	} else {
		res.Record.Name = matched.Name
	}
	if method == MethodLookup {
		res.Record.CreatedAt = matched.CreatedAt
	}
	return res
}

func (r *Resolver) ownAlias(res Result, alias string, method Method) Result {
	res.Method = method
	res.Record.Alias = alias
	res.Record.PresentScore = r.cfg.AliasScore
	res.Record.FuzzyScore = r.cfg.AliasScore
	res.Record.Method = string(method)
	return res
}

func (r *Resolver) fallback(res Result) Result {
	res.Method = MethodFallback
	res.Record.Alias = res.Raw
	res.Record.Method = string(MethodFallback)
	res.trace(string(MethodFallback), internal.OutcomeHit)
	msg := fmt.Sprintf("operator %q could not be resolved", res.Raw)
	res.Warnings = append(res.Warnings, msg)
	r.logger.Warn("operator unresolved", zap.String("name", res.Raw))
	return res
}

// leadingTokens concatenates leading words of norm, without separators,
// until the result reaches MinLen.
func (r *Resolver) leadingTokens(norm string) string {
	var b strings.Builder
	for _, tok := range util.Tokens(norm) {
		b.WriteString(tok)
		if utf8.RuneCountInString(b.String()) >= r.cfg.MinLen {
			return b.String()
		}
	}
	return ""
}

func (res *Result) trace(stage, outcome string) {
	res.Trace = append(res.Trace, internal.StageOutcome{Stage: stage, Outcome: outcome})
}
