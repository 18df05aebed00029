package cli

import (
	"fmt"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"annexparse/internal/pipeline"
	"annexparse/internal/util"
)

func newBatchesCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "batches",
		Short: "List recent processing runs from the audit database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			rows, err := db.ListBatches(limit)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No batches recorded.")
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"ID", "Stamp", "Source", "Status", "Count", "Error", "Created"})
			for _, r := range rows {
				t.AppendRow(table.Row{
					r.ID,
					r.Stamp,
					r.SourceFile,
					r.Status,
					r.Count,
					util.Truncate(util.Deref(r.Error), 60),
					r.CreatedAt,
				})
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "number of batches to show")
	return cmd
}

func newExportCommand() *cobra.Command {
	var batchID int64
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the per-request audit of one batch to an xlsx workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, cfg, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			batch, err := db.MustBatch(batchID)
			if err != nil {
				return err
			}
			rows, err := db.GetBatchRequests(batchID)
			if err != nil {
				return err
			}

			if out == "" {
				name := fmt.Sprintf("batch_%d_%s.xlsx", batch.ID, util.SanitizeFileName(batch.Stamp))
				out = filepath.Join(cfg.OutputDir, "batches", name)
			}
			if err := pipeline.ExportBatchToXLSX(rows, out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d requests to %s\n", len(rows), out)
			return nil
		},
	}

	cmd.Flags().Int64Var(&batchID, "batch", 0, "batch id, as listed by the batches command")
	cmd.Flags().StringVar(&out, "out", "", "output xlsx path (default OUTPUT_DIR/batches/...)")
	_ = cmd.MarkFlagRequired("batch")
	return cmd
}
