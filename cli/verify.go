package cli

import (
	"fmt"

	"github.com/javanhut/vers/internal/colors"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that the version log and stored blobs agree",
	Long: `Reports records whose blob is missing or altered, and blobs that no record
references. With --prune, unreferenced blobs and temp files left by
interrupted adds are deleted.`,
	Args: usageArgs(cobra.NoArgs),
	RunE: runVerify,
}

var verifyPrune bool

func init() {
	verifyCmd.Flags().BoolVar(&verifyPrune, "prune", false, "delete unreferenced blobs and leftover temp files")
}

func runVerify(cmd *cobra.Command, args []string) error {
	m, err := openManager()
	if err != nil {
		return err
	}

	report, err := m.Verify()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d record(s), %d blob(s)\n", report.Records, report.Blobs)
	if report.PartialBytes > 0 {
		fmt.Fprintf(out, "%s %d byte(s) of an interrupted append at end of log\n", colors.WarningText("note:"), report.PartialBytes)
	}
	if report.LogErr != nil {
		fmt.Fprintf(out, "%s %v\n", colors.ErrorText("log damaged:"), report.LogErr)
	}
	for _, d := range report.Dangling {
		fmt.Fprintf(out, "%s record %d (%s) -> %s: %v\n", colors.ErrorText("dangling:"),
			d.Index, colors.Filename(d.Record.Filename), colors.Hash(d.Record.Hash.String(), 12), d.Reason)
	}
	for _, h := range report.Orphans {
		fmt.Fprintf(out, "%s %s\n", colors.WarningText("orphan:"), colors.Hash(h.String(), 0))
	}
	for _, name := range report.Temps {
		fmt.Fprintf(out, "%s %s left by an interrupted add\n", colors.WarningText("temp:"), name)
	}

	if verifyPrune && (len(report.Orphans) > 0 || len(report.Temps) > 0) {
		pruned, err := m.PruneOrphans()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Pruned %d orphan blob(s), %d temp file(s)\n", len(pruned.Blobs), len(pruned.Temps))
		if report.LogErr == nil && len(report.Dangling) == 0 {
			return nil
		}
	}

	if report.OK() {
		fmt.Fprintln(out, colors.SuccessText("OK"))
	}
	return report.Err()
}
