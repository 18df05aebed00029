package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"annexparse/internal/archive"
	"annexparse/internal/watcher"
)

func newProcessCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "process",
		Short: "Process the next export in the source directory",
		Long:  "Process the next export in the source directory once. Meant to be run from cron.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.svc.Run(cmd.Context())
			if errors.Is(err, archive.ErrNoNewFile) {
				fmt.Fprintln(cmd.OutOrStdout(), "no annex requests found; quitting")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "processed %s batch=%d count=%d failed=%d data=%s\n",
				res.SourceFile, res.BatchID, res.Count, res.Failed, res.DataPath)
			return nil
		},
	}
}

func newWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Keep processing exports on a schedule and as they arrive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return watcher.NewService(a.svc, a.cfg, a.log).Run(ctx)
		},
	}
}
