package cli

import (
	"fmt"
	"strconv"

	"github.com/javanhut/vers/internal/colors"
	"github.com/javanhut/vers/internal/verr"
	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <file> <version> [<dest>]",
	Short: "Restore a recorded version of a file",
	Long: `Writes version <version> (as numbered by "vers list") of <file> to <dest>,
or over <file> itself when no destination is given.`,
	Args: usageArgs(cobra.RangeArgs(2, 3)),
	RunE: runGet,
}

func runGet(cmd *cobra.Command, args []string) error {
	version, err := strconv.Atoi(args[1])
	if err != nil {
		return verr.Errorf(verr.ErrInvalidInput, "get", args[0], "version %q is not a number", args[1])
	}
	var dest string
	if len(args) == 3 {
		dest = args[2]
	}

	m, err := openManager()
	if err != nil {
		return err
	}

	written, err := m.Get(args[0], version, dest)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s version %s of %s to %s\n",
		colors.SuccessText("Restored"), colors.Version(version), colors.Filename(args[0]), written)
	return nil
}
