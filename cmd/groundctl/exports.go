package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/gioimtg2003/control-drone-first/internal/storage"
)

var exportsLimit int

var exportsCmd = &cobra.Command{
	Use:   "exports",
	Short: "List archived telemetry exports",
	Long:  `List the exports recorded in the archive database (export.archivePath), newest first.`,
	Args:  cobra.NoArgs,
	RunE:  runExports,
}

func init() {
	exportsCmd.Flags().IntVarP(&exportsLimit, "limit", "n", 20, "maximum number of exports to list (0 for all)")
	rootCmd.AddCommand(exportsCmd)
}

func runExports(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Export.ArchivePath == "" {
		return errors.New("export.archivePath is not configured")
	}

	archive := storage.NewArchive(cfg.Export.ArchivePath)
	defer func() { _ = archive.Close() }()

	records, err := archive.Exports(cmd.Context(), exportsLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No exports archived")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tFILE\tSESSION\tEXPORTED\tSIZE\tPOINTS\tBATTERY")
	for _, r := range records {
		session := r.SessionID
		if session == "" {
			session = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\t%.2fV\n",
			r.ID, r.FileName, session,
			humanize.RelTime(r.ExportedAt, time.Now(), "ago", "from now"),
			humanize.Bytes(uint64(r.SizeBytes)),
			r.Positions, r.BatteryVoltage)
	}
	return w.Flush()
}
