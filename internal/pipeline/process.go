package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"annexparse/internal"
	"annexparse/internal/archive"
	"annexparse/internal/config"
	"annexparse/internal/logger"
	"annexparse/internal/mapping"
	"annexparse/internal/storage"
	"annexparse/internal/util"
)

type ProcessingService struct {
	db        *storage.DB
	cfg       config.Config
	policy    Policy
	archiver  *archive.Archiver
	assembler *Assembler
	log       logger.Logger
	now       func() time.Time
}

type ServiceOption func(*ProcessingService)

// WithNow fixes the clock used for file stamps and request dates.
func WithNow(now func() time.Time) ServiceOption {
	return func(s *ProcessingService) { s.now = now }
}

func NewProcessingService(db *storage.DB, cfg config.Config, mapper *mapping.Mapper, log logger.Logger, opts ...ServiceOption) (*ProcessingService, error) {
	policy, err := ParsePolicy(cfg.BatchPolicy)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNop()
	}
	s := &ProcessingService{
		db:     db,
		cfg:    cfg,
		policy: policy,
		log:    log,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.archiver = archive.NewArchiver(cfg, log)
	s.assembler = NewAssembler(NewNormalizer(mapper, WithClock(s.now)), policy, log)
	return s, nil
}

type RunResult struct {
	RunID        string
	BatchID      int64
	SourceFile   string
	Stamp        string
	Count        int
	Failed       int
	OriginalPath string
	ParsedPath   string
	CountPath    string
	DataPath     string
	// SourceKept is set when dev mode left the export in the source directory.
	SourceKept bool
}

// Run processes the next export in the source directory. It returns
// archive.ErrNoNewFile when there is nothing to do. A batch that fails
// leaves no files for GFA.
func (s *ProcessingService) Run(ctx context.Context) (RunResult, error) {
	if err := ctx.Err(); err != nil {
		return RunResult{}, err
	}

	name, err := archive.FindNewFile(s.cfg.SourceDir, s.cfg.SourcePrefix)
	if errors.Is(err, archive.ErrNoNewFile) {
		s.log.Info("no annex requests found; quitting", logger.String("dir", s.cfg.SourceDir))
		return RunResult{}, err
	}
	if err != nil {
		return RunResult{}, err
	}

	res := RunResult{
		RunID:      uuid.NewString(),
		SourceFile: name,
	}
	sourcePath := filepath.Join(s.cfg.SourceDir, name)

	res.Stamp, res.OriginalPath, err = s.archiver.ClaimOriginal(sourcePath, s.now())
	if err != nil {
		return res, err
	}
	log := s.log.With(logger.String("run_id", res.RunID), logger.String("stamp", res.Stamp))
	log.Info("processing export", logger.String("source", sourcePath), logger.String("policy", s.policy.String()))

	res.BatchID, err = s.db.InsertBatch(res.RunID, name, res.Stamp, res.OriginalPath)
	if err != nil {
		return res, fmt.Errorf("record batch: %w", err)
	}

	batch, err := s.assembleFile(res.OriginalPath)
	if recErr := s.recordRequests(res.BatchID, batch); recErr != nil {
		log.Error("could not record requests", logger.Err(recErr))
	}
	res.Failed = len(batch.Failures())
	if err != nil {
		return res, s.fail(log, res.BatchID, err)
	}
	res.Count = batch.Count()

	text := Serialize(batch.Records)
	if res.ParsedPath, err = s.archiver.SaveParsed(text, res.Stamp); err != nil {
		return res, s.fail(log, res.BatchID, err)
	}
	if res.CountPath, err = s.archiver.SendCountFile(CountFileContent(res.Count), res.Stamp); err != nil {
		return res, s.fail(log, res.BatchID, err)
	}
	if res.DataPath, err = s.archiver.SendDataFile(text, res.Stamp); err != nil {
		return res, s.fail(log, res.BatchID, err)
	}

	if err := s.db.FinishBatch(res.BatchID, res.Count, res.ParsedPath); err != nil {
		return res, fmt.Errorf("finish batch: %w", err)
	}
	if err := s.db.SetMetadata(storage.MetaLastProcessedStamp, res.Stamp); err != nil {
		log.Warn("could not store last processed stamp", logger.Err(err))
	}

	if s.cfg.DevMode {
		res.SourceKept = true
		log.Info("dev mode: source file kept", logger.String("source", sourcePath))
	} else if err := s.archiver.DeleteOriginal(sourcePath); err != nil {
		return res, err
	}

	log.Info("batch processed",
		logger.Int("count", res.Count),
		logger.Int("failed", res.Failed),
		logger.String("data", res.DataPath),
	)
	return res, nil
}

// ParseFile assembles an export without touching the archive, GFA
// directories, or audit store.
func (s *ProcessingService) ParseFile(path string) (Batch, error) {
	return s.assembleFile(path)
}

func (s *ProcessingService) assembleFile(path string) (Batch, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return Batch{}, fmt.Errorf("read export: %w", err)
	}
	if !utf8.Valid(blob) {
		return Batch{}, &DocumentParseError{Err: errors.New("export is not valid UTF-8")}
	}
	return s.assembler.Assemble(string(blob))
}

func (s *ProcessingService) recordRequests(batchID int64, batch Batch) error {
	if len(batch.Entries) == 0 {
		return nil
	}
	rows := make([]internal.RequestRow, 0, len(batch.Entries))
	for _, e := range batch.Entries {
		row := internal.RequestRow{Seq: e.Seq, Raw: e.Raw, Record: e.Record, Status: internal.RequestOK}
		if e.Err != nil {
			row.Status = internal.RequestFailed
			row.Error = util.StringPtr(e.Err.Error())
		}
		rows = append(rows, row)
	}
	return s.db.InsertRequests(batchID, rows)
}

func (s *ProcessingService) fail(log logger.Logger, batchID int64, cause error) error {
	log.Error("batch failed", logger.Err(cause))
	if err := s.db.FailBatch(batchID, cause); err != nil {
		return errors.Join(cause, fmt.Errorf("record batch failure: %w", err))
	}
	return cause
}
