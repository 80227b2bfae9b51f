// Package watch polls a download directory and runs a batch over every
// schedule file it has not seen before.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"fsec/internal/pipeline"
	"fsec/internal/sheet"
)

type BatchRunner interface {
	Run(ctx context.Context, paths []string) (pipeline.BatchResult, error)
}

type Config struct {
	Dir       string
	Interval  time.Duration
	Recursive bool
}

type Service struct {
	runner BatchRunner
	log    *DownloadLog
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

func NewService(runner BatchRunner, log *DownloadLog, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &Service{runner: runner, log: log, cfg: cfg, logger: logger, now: time.Now}
}

func (s *Service) Run(ctx context.Context) error {
	for {
		if _, err := s.RunCycle(ctx); err != nil {
			s.logger.Error("watch cycle failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.cfg.Interval):
		}
	}
}

// RunCycle processes the files not yet in the download log and records the
// ones the batch reached. It returns how many were recorded.
func (s *Service) RunCycle(ctx context.Context) (int, error) {
	paths, err := s.pending()
	if err != nil {
		return 0, err
	}
	if len(paths) == 0 {
		s.logger.Debug("watch cycle idle", zap.String("dir", s.cfg.Dir))
		return 0, nil
	}

	batch, runErr := s.runner.Run(ctx, paths)
	done := make([]string, 0, len(batch.Files))
	for _, f := range batch.Files {
		done = append(done, f.Path)
	}
	s.log.Add(s.now(), done...)
	if err := s.log.Save(); err != nil {
		return len(done), err
	}
	s.logger.Info("watch cycle done",
		zap.String("run_id", batch.RunID),
		zap.Int("pending", len(paths)),
		zap.Int("processed", batch.Processed()))
	return len(done), runErr
}

func (s *Service) pending() ([]string, error) {
	var out []string
	err := filepath.WalkDir(s.cfg.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != s.cfg.Dir && !s.cfg.Recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if sheet.Supported(path) && !s.log.Has(path) {
			out = append(out, path)
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("download dir missing", zap.String("dir", s.cfg.Dir))
		return nil, nil
	}
	sort.Strings(out)
	return out, err
}
