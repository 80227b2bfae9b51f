package pipeline

import (
	"math/rand"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"fsec/internal"
	"fsec/internal/util"
)

type HeaderConfig struct {
	// Sensitivity is the number of scoring trials averaged per row.
	Sensitivity int
	// Specificity is the average vocabulary hit count a row needs to be
	// taken as the header.
	Specificity int
	// SampleSize, when positive, scores each trial against that many
	// vocabulary terms drawn with Seed.
	SampleSize int
	Seed       int64
}

func DefaultHeaderConfig() HeaderConfig {
	return HeaderConfig{Sensitivity: 2, Specificity: 2}
}

type Header struct {
	// DataStart is the grid row index the first data row is on.
	DataStart int
	Columns   []string
	// Original is the header row's cell text as read.
	Original []string
	Found    bool
}

type HeaderDetector struct {
	cfg    HeaderConfig
	vocab  []string
	full   map[string]struct{}
	logger *zap.Logger
}

// NewHeaderDetector builds a detector over vocab, compared in column key form.
func NewHeaderDetector(cfg HeaderConfig, vocab []string, logger *zap.Logger) *HeaderDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Sensitivity <= 0 {
		cfg.Sensitivity = 1
	}
	set := map[string]struct{}{}
	for _, v := range vocab {
		if k := util.ColumnKey(v); k != "" {
			set[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return &HeaderDetector{cfg: cfg, vocab: keys, full: set, logger: logger}
}

// Detect scans rows top to bottom and takes the first whose average
// vocabulary hit count reaches Specificity. When no row qualifies the
// columns are positional labels and every row is data.
func (d *HeaderDetector) Detect(grid internal.Grid) (Header, error) {
	width := 0
	for _, row := range grid {
		width = max(width, len(row))
	}

	rng := rand.New(rand.NewSource(d.cfg.Seed))
	for k, row := range grid {
		tokens := make([]string, len(row))
		for i, cell := range row {
			tokens[i] = util.ColumnKey(cell)
		}

		total := 0
		for trial := 0; trial < d.cfg.Sensitivity; trial++ {
			total += countHits(tokens, d.trialVocab(rng))
		}
		avg := float64(total) / float64(d.cfg.Sensitivity)
		if avg < float64(d.cfg.Specificity) {
			continue
		}

		columns := make([]string, width)
		original := make([]string, width)
		for i := 0; i < width; i++ {
			if i < len(row) {
				original[i] = strings.TrimSpace(row[i])
				columns[i] = tokens[i]
			}
			if columns[i] == "" {
				label, err := excelize.ColumnNumberToName(i + 1)
				if err != nil {
					return Header{}, err
				}
				columns[i] = label
			}
		}
		d.logger.Debug("header detected", zap.Int("row", k), zap.Float64("score", avg))
		return Header{DataStart: k + 1, Columns: columns, Original: original, Found: true}, nil
	}

	columns, err := positionalLabels(width)
	if err != nil {
		return Header{}, err
	}
	return Header{DataStart: 0, Columns: columns, Original: make([]string, width)}, nil
}

func (d *HeaderDetector) trialVocab(rng *rand.Rand) map[string]struct{} {
	if d.cfg.SampleSize <= 0 || d.cfg.SampleSize >= len(d.vocab) {
		return d.full
	}
	set := make(map[string]struct{}, d.cfg.SampleSize)
	for _, i := range rng.Perm(len(d.vocab))[:d.cfg.SampleSize] {
		set[d.vocab[i]] = struct{}{}
	}
	return set
}

func countHits(tokens []string, vocab map[string]struct{}) int {
	n := 0
	for _, t := range tokens {
		if t == "" {
			continue
		}
		if _, ok := vocab[t]; ok {
			n++
		}
	}
	return n
}

func positionalLabels(width int) ([]string, error) {
	out := make([]string, width)
	for i := range out {
		label, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		out[i] = label
	}
	return out, nil
}
