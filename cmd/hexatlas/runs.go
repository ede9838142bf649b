package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/talgya/hexatlas/internal/export"
	"github.com/talgya/hexatlas/internal/persistence"
	"github.com/talgya/hexatlas/internal/printer"
)

func newRunsCmd(a *app) *cobra.Command {
	var db string
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect stored map runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().StringVar(&db, "db", "", "database path (default from config)")

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List the most recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openDB(db)
			if err != nil {
				return printer.Error("Cannot open database", err.Error())
			}
			defer store.Close()

			runs, err := store.ListRuns(limit)
			if err != nil {
				return printer.Error("Cannot list runs", err.Error())
			}
			if len(runs) == 0 {
				printer.Info("no runs stored\n")
				return nil
			}
			return printer.RunsTable(cmd.OutOrStdout(), runs)
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 20, "how many runs to show")

	var format, out string
	show := &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show one stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openDB(db)
			if err != nil {
				return printer.Error("Cannot open database", err.Error())
			}
			defer store.Close()

			run, err := store.LoadRun(args[0])
			if errors.Is(err, persistence.ErrNotFound) {
				return printer.Error("Run not found", err.Error(), "list stored runs with: hexatlas runs list")
			}
			if err != nil {
				return printer.Error("Cannot load run", err.Error())
			}

			if format == "table" {
				printer.Heading("Run " + run.ID)
				if err := printer.RunsTable(cmd.OutOrStdout(), []persistence.RunInfo{run.RunInfo}); err != nil {
					return err
				}
				if run.SegmentError != "" {
					printer.Warning("no regions: %s\n", run.SegmentError)
					return nil
				}
				return printer.RegionTable(cmd.OutOrStdout(), run.Regions)
			}
			ef, err := export.ParseFormat(format)
			if err != nil {
				return printer.Error("Unknown output format", err.Error(), "use --format table, json or msgpack")
			}
			return writeExport(cmd.OutOrStdout(), out, ef, run)
		},
	}
	show.Flags().StringVarP(&format, "format", "f", "table", "output format: table, json or msgpack")
	show.Flags().StringVarP(&out, "out", "o", "", "write json/msgpack output to this file instead of stdout")

	cmd.AddCommand(list, show)
	return cmd
}
