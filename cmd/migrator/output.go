package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/example/schema-migrator/internal/migration"
)

type outputFormat string

const (
	outputTable outputFormat = "table"
	outputJSON  outputFormat = "json"
)

func parseOutputFormat(s string) (outputFormat, error) {
	switch f := outputFormat(s); f {
	case outputTable, outputJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (want table or json)", s)
	}
}

func printMigrateResult(w io.Writer, r *migration.MigrateResult, failed bool) {
	current := r.Current.String()
	if r.Current.IsZero() {
		current = "<< Empty Schema >>"
	}
	switch {
	case failed:
		fmt.Fprintf(w, "Applied %s before the failure (schema at version %s)\n",
			plural(len(r.Applied), "migration"), current)
	case len(r.Applied) == 0:
		fmt.Fprintf(w, "Schema is up to date. No migration necessary (version %s)\n", current)
	default:
		fmt.Fprintf(w, "Successfully applied %s to schema (now at version %s) in %s\n",
			plural(len(r.Applied), "migration"), current, r.Duration.Round(time.Millisecond))
	}
	for _, m := range r.Ignored {
		fmt.Fprintf(w, "Ignored out-of-order migration %s (%s)\n", m.Version, m.Script)
	}
}

func printInfo(w io.Writer, report *migration.InfoReport, format outputFormat) error {
	if format == outputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Fprintf(w, "Schema version: %s\n\n", report.Current)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tDESCRIPTION\tTYPE\tINSTALLED ON\tSTATE")
	for _, row := range report.Rows {
		installed := ""
		if row.InstalledOn != nil {
			installed = humanize.Time(*row.InstalledOn)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", row.Version, row.Description, row.Type, installed, row.State)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%s pending\n", plural(report.Pending, "migration"))
	return nil
}

func printValidationReport(w io.Writer, r *migration.ValidationReport) {
	for _, mm := range r.Mismatches {
		fmt.Fprintf(w, "Checksum mismatch for version %s (%s)\n", mm.Version, mm.Script)
	}
	for _, rec := range r.Missing {
		fmt.Fprintf(w, "Applied migration %s not found locally\n", rec.Version)
	}
	for _, rec := range r.Failed {
		fmt.Fprintf(w, "Version %s has a failed run\n", rec.Version)
	}
	if r.OK() {
		fmt.Fprintf(w, "Successfully validated %s (%d pending)\n", plural(r.Validated, "migration"), r.Pending)
	}
}

func printRepairResult(w io.Writer, r *migration.RepairResult) {
	for _, rec := range r.Removed {
		fmt.Fprintf(w, "Removed failed migration %s\n", rec.Version)
	}
	for _, ra := range r.Realigned {
		fmt.Fprintf(w, "Realigned version %s (%s): %s -> %s\n", ra.Version, ra.Script, ra.OldChecksum, ra.NewChecksum)
	}
	if len(r.Removed) == 0 && len(r.Realigned) == 0 {
		fmt.Fprintln(w, "Repair of schema history not necessary")
		return
	}
	fmt.Fprintln(w, "Successfully repaired schema history")
}

func plural(n int, word string) string {
	if n == 1 {
		return humanize.Comma(int64(n)) + " " + word
	}
	return humanize.Comma(int64(n)) + " " + word + "s"
}
