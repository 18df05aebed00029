package cli

import (
	"fmt"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"annexparse/internal/config"
	"annexparse/internal/mapping"
)

func newMappingCommand() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "mapping",
		Short: "Validate and print the vocabulary tables in effect",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				path = cfg.MappingPath
			}
			tables, err := mapping.LoadTables(path)
			if err != nil {
				return err
			}

			source := path
			if source == "" {
				source = "built-in"
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "vocabulary: %s\n", source)

			renderPairs(cmd, "Pickup library", "Delivery stop", tables.PickupToDeliveryStop)
			renderPairs(cmd, "Library code", "Location", tables.LibraryCodeToLocation)

			fmt.Fprintf(w, "electronic delivery location: %s\n", tables.ElectronicDeliveryLocation)
			fmt.Fprintf(w, "location rules, first match wins: %v\n", mapping.LocationRuleNames())
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "vocabulary YAML (default MAPPING_PATH or built-in tables)")
	return cmd
}

func renderPairs(cmd *cobra.Command, keyHeader, valueHeader string, pairs map[string]string) {
	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{keyHeader, valueHeader})
	for _, k := range keys {
		t.AppendRow(table.Row{k, pairs[k]})
	}
	t.Render()
}
