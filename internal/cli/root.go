package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"annexparse/internal/config"
	"annexparse/internal/logger"
	"annexparse/internal/mapping"
	"annexparse/internal/pipeline"
	"annexparse/internal/storage"
)

func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "annexparse",
		Short: "Turn Alma annex-request exports into GFA request files",
		Long: `annexparse picks up the Alma rsExport XML dropped in the source directory,
maps every request onto GFA delivery-stop and location codes, and writes the
GFA data and count files. Originals and parsed output are archived and every
run is recorded in a local audit database.`,
		SilenceUsage: true,
	}

	root.AddCommand(newProcessCommand())
	root.AddCommand(newWatchCommand())
	root.AddCommand(newParseCommand())
	root.AddCommand(newBatchesCommand())
	root.AddCommand(newExportCommand())
	root.AddCommand(newMappingCommand())
	return root
}

func Execute() error {
	return NewRootCommand().Execute()
}

// app is everything a processing command needs, opened in one place so
// the commands can close it in one place.
type app struct {
	cfg config.Config
	log logger.Logger
	db  *storage.DB
	svc *pipeline.ProcessingService
}

func openApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.RequireDirs(); err != nil {
		return nil, err
	}

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, OutputPaths: []string{"stderr", cfg.LogPath}})
	if err != nil {
		return nil, err
	}

	tables, err := mapping.LoadTables(cfg.MappingPath)
	if err != nil {
		_ = log.Sync()
		return nil, err
	}

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		_ = log.Sync()
		return nil, fmt.Errorf("open audit db: %w", err)
	}

	svc, err := pipeline.NewProcessingService(db, cfg, mapping.NewMapper(tables), log)
	if err != nil {
		_ = db.Close()
		_ = log.Sync()
		return nil, err
	}
	return &app{cfg: cfg, log: log, db: db, svc: svc}, nil
}

func (a *app) Close() {
	_ = a.log.Sync()
	_ = a.db.Close()
}

func openDB() (*storage.DB, config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, config.Config{}, err
	}
	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return nil, config.Config{}, fmt.Errorf("open audit db: %w", err)
	}
	return db, cfg, nil
}
