package cli

import (
	"fmt"

	"github.com/javanhut/vers/internal/colors"
	"github.com/javanhut/vers/internal/versions"
	"github.com/spf13/cobra"
)

var addCmd = &cobra.Command{
	Use:   "add <file> <comment>",
	Short: "Record the current content of a file as its next version",
	Long: `Stores the file's content under its hash and appends a version record.

If the file's current content was already recorded for this file, nothing
is written and the command still succeeds.`,
	Args: usageArgs(cobra.ExactArgs(2)),
	RunE: runAdd,
}

func runAdd(cmd *cobra.Command, args []string) error {
	m, err := openManager()
	if err != nil {
		return err
	}

	outcome, err := m.Add(args[0], args[1])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch outcome {
	case versions.Created:
		fmt.Fprintf(out, "%s %s\n", colors.SuccessText("Added"), colors.Filename(args[0]))
	case versions.AlreadyExists:
		fmt.Fprintf(out, "%s %s: content already recorded\n", colors.WarningText("Unchanged"), colors.Filename(args[0]))
	}
	return nil
}
