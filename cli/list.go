package cli

import (
	"fmt"

	"github.com/javanhut/vers/internal/colors"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:     "list [<file>]",
	Aliases: []string{"ls"},
	Short:   "List recorded versions",
	Long: `Lists the versions of a file as "version hash comment", oldest first.
Without a file, lists every record in the log with its filename.

Examples:
  vers list notes.txt
  vers list --full`,
	Args: usageArgs(cobra.MaximumNArgs(1)),
	RunE: runList,
}

var listFull bool

func init() {
	listCmd.Flags().BoolVar(&listFull, "full", false, "show full hashes")
}

func runList(cmd *cobra.Command, args []string) error {
	m, err := openManager()
	if err != nil {
		return err
	}

	var filename string
	if len(args) == 1 {
		filename = args[0]
	}

	entries, err := m.List(filename)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		if filename != "" {
			fmt.Fprintf(out, "No versions of %s.\n", filename)
		} else {
			fmt.Fprintln(out, "No versions recorded.")
		}
		return nil
	}

	hashLen := 12
	if listFull {
		hashLen = 0
	}
	for _, e := range entries {
		if filename == "" {
			fmt.Fprintf(out, "%s %s %s %s\n", colors.Filename(e.Filename), colors.Version(e.Version), colors.Hash(e.Hash.String(), hashLen), e.Comment)
		} else {
			fmt.Fprintf(out, "%s %s %s\n", colors.Version(e.Version), colors.Hash(e.Hash.String(), hashLen), e.Comment)
		}
	}
	return nil
}
