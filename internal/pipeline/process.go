package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fsec/internal"
	"fsec/internal/aliases"
	"fsec/internal/registry"
	"fsec/internal/storage"
)

const metaLastRun = "batch.last_run"

type GridReader interface {
	ReadGrid(ctx context.Context, path string) (internal.Grid, error)
}

// RunRecorder keeps the per-file run log.
type RunRecorder interface {
	InsertRun(ctx context.Context, run storage.Run) error
	SetMetadata(ctx context.Context, key, value string) error
}

type BatchConfig struct {
	AliasMapPath string
	UnknownPath  string
}

// Processor runs batches. Shared state (registry, alias map) is loaded once
// per batch, mutated in memory file by file and persisted once at the end.
type Processor struct {
	parser *Parser
	reader GridReader
	store  registry.Store
	sinks  []Sink
	runs   RunRecorder
	schema internal.Schema
	cfg    BatchConfig
	logger *zap.Logger
}

func NewProcessor(parser *Parser, reader GridReader, store registry.Store, sinks []Sink, runs RunRecorder, schema internal.Schema, cfg BatchConfig, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		parser: parser,
		reader: reader,
		store:  store,
		sinks:  sinks,
		runs:   runs,
		schema: schema,
		cfg:    cfg,
		logger: logger,
	}
}

type FileResult struct {
	Path   string
	Result Result
	Err    error
}

type BatchResult struct {
	RunID   string
	Files   []FileResult
	Learned aliases.Map
	Unknown []string
}

// Processed counts files that produced a valid record set.
func (b BatchResult) Processed() int {
	n := 0
	for _, f := range b.Files {
		if f.Err == nil && f.Result.Valid {
			n++
		}
	}
	return n
}

// Run processes paths in order. Failures stay inside their file; the only
// error returned is ctx's, after the state gathered so far is persisted.
func (p *Processor) Run(ctx context.Context, paths []string) (BatchResult, error) {
	batch := BatchResult{RunID: uuid.NewString(), Learned: aliases.Map{}}
	log := p.logger.With(zap.String("run_id", batch.RunID))

	// A store that failed to load is never saved over.
	var st loadState
	if err := p.store.Load(ctx); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			log.Info("registry empty, starting fresh", zap.Error(err))
		} else {
			st.registryBroken = true
			log.Error("registry load failed", zap.Error(err))
		}
	}
	aliasMap, err := aliases.LoadMap(p.cfg.AliasMapPath)
	if err != nil {
		st.aliasesBroken = true
		log.Error("alias map load failed", zap.String("path", p.cfg.AliasMapPath), zap.Error(err))
	}

	var runErr error
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		fr := p.processFile(ctx, batch.RunID, path, aliasMap, log)
		for k, v := range fr.Result.Learned {
			batch.Learned[k] = v
		}
		batch.Unknown = append(batch.Unknown, fr.Result.Unknown...)
		batch.Files = append(batch.Files, fr)
	}

	p.persist(context.WithoutCancel(ctx), batch, aliasMap, st, log)
	log.Info("batch finished",
		zap.Int("files", len(batch.Files)),
		zap.Int("processed", batch.Processed()),
		zap.Int("learned", len(batch.Learned)))
	return batch, runErr
}

func (p *Processor) processFile(ctx context.Context, runID, path string, aliasMap aliases.Map, log *zap.Logger) FileResult {
	start := time.Now()
	fr := FileResult{Path: path}

	grid, err := p.reader.ReadGrid(ctx, path)
	if err != nil {
		log.Error("read failed", zap.String("path", path), zap.Error(err))
		fr.Err = err
		fr.Result = Result{Source: path, Status: internal.SeverityError, Diagnostics: NewDiagnostics()}
		fr.Result.Diagnostics.Addf(internal.SeverityError, "read: %v", err)
		p.recordRun(ctx, runID, fr, start, log)
		return fr
	}

	fr.Result = p.parser.Parse(path, grid, aliasMap)
	if fr.Result.Valid {
		set := internal.RecordSet{RunID: runID, Source: path, Schema: p.schema, Frame: fr.Result.Frame}
		for _, sink := range p.sinks {
			if err := sink.WriteRecords(ctx, set); err != nil {
				log.Error("sink write failed", zap.String("path", path), zap.Error(err))
				fr.Result.Diagnostics.Addf(internal.SeverityWarning, "sink: %v", err)
				fr.Result.Status = fr.Result.Diagnostics.Status()
			}
		}
	}
	p.recordRun(ctx, runID, fr, start, log)
	return fr
}

func (p *Processor) recordRun(ctx context.Context, runID string, fr FileResult, start time.Time, log *zap.Logger) {
	if p.runs == nil {
		return
	}
	run := storage.Run{
		RunID:         runID,
		Source:        fr.Path,
		Status:        fr.Result.Status,
		Rows:          fr.Result.Frame.Len(),
		OperatorAlias: fr.Result.Operator.Record.Alias,
		Diagnostics:   fr.Result.Diagnostics,
		DurationMs:    time.Since(start).Milliseconds(),
	}
	if err := p.runs.InsertRun(ctx, run); err != nil {
		log.Error("run log write failed", zap.String("path", fr.Path), zap.Error(err))
	}
}

type loadState struct {
	registryBroken bool
	aliasesBroken  bool
}

// persist writes shared state back. Each failure is logged and the rest
// still run. State whose file could not be read is left on disk as is.
func (p *Processor) persist(ctx context.Context, batch BatchResult, aliasMap aliases.Map, st loadState, log *zap.Logger) {
	switch {
	case len(batch.Learned) == 0:
	case st.aliasesBroken:
		log.Warn("alias map unreadable, learned aliases not saved",
			zap.String("path", p.cfg.AliasMapPath),
			zap.Any("learned", batch.Learned))
	default:
		if err := aliases.SaveMap(p.cfg.AliasMapPath, aliasMap); err != nil {
			log.Error("alias map save failed", zap.String("path", p.cfg.AliasMapPath), zap.Error(err))
		}
	}
	if len(batch.Unknown) > 0 {
		added, err := aliases.AppendUnknown(p.cfg.UnknownPath, batch.Unknown, aliasMap)
		if err != nil {
			log.Error("unknown names save failed", zap.String("path", p.cfg.UnknownPath), zap.Error(err))
		} else if len(added) > 0 {
			log.Info("queued unknown column names", zap.Strings("names", added))
		}
	}
	if st.registryBroken {
		log.Warn("registry unreadable, learned operators not saved")
	} else if err := p.store.Save(ctx); err != nil {
		log.Error("registry save failed", zap.Error(err))
	}
	if p.runs != nil {
		if err := p.runs.SetMetadata(ctx, metaLastRun, batch.RunID); err != nil {
			log.Error("metadata write failed", zap.Error(err))
		}
	}
}
