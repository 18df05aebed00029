package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"annexparse/internal/config"
	"annexparse/internal/logger"
	"annexparse/internal/mapping"
	"annexparse/internal/pipeline"
)

func newParseCommand() *cobra.Command {
	var input, date, policy, mappingPath string

	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Dry run: print the GFA data for an export without writing anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if policy != "" {
				cfg.BatchPolicy = policy
			}
			if mappingPath != "" {
				cfg.MappingPath = mappingPath
			}

			now := time.Now
			if date != "" {
				day, err := time.ParseInLocation("2006-01-02", date, time.Local)
				if err != nil {
					return fmt.Errorf("invalid --date %q: %w", date, err)
				}
				now = func() time.Time { return day }
			}

			log, err := logger.New(logger.Config{Level: cfg.LogLevel, OutputPaths: []string{"stderr"}})
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			tables, err := mapping.LoadTables(cfg.MappingPath)
			if err != nil {
				return err
			}
			svc, err := pipeline.NewProcessingService(nil, cfg, mapping.NewMapper(tables), log, pipeline.WithNow(now))
			if err != nil {
				return err
			}

			batch, err := svc.ParseFile(input)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), pipeline.Serialize(batch.Records))
			fmt.Fprint(cmd.ErrOrStderr(), pipeline.CountFileContent(batch.Count()))
			return nil
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "export XML file")
	cmd.Flags().StringVar(&date, "date", "", "request date to stamp, YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&policy, "policy", "", "batch policy: strict|partial (default BATCH_POLICY)")
	cmd.Flags().StringVar(&mappingPath, "mapping", "", "vocabulary YAML (default MAPPING_PATH or built-in tables)")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}
