package cli

import (
	"fmt"

	"github.com/javanhut/vers/internal/colors"
	"github.com/javanhut/vers/internal/versions"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the repository directory and version log",
	Long: `Creates the repository directory, an empty version log and config.yaml.
Running it again on an existing repository changes nothing.

The hash algorithm is fixed when the repository is created.`,
	Args: usageArgs(cobra.NoArgs),
	RunE: runInit,
}

var (
	initHash  string
	initDedup string
)

func init() {
	initCmd.Flags().StringVar(&initHash, "hash", "", "hash algorithm for a new repository: sha256 or blake3")
	initCmd.Flags().StringVar(&initDedup, "dedup", "", "when add reports no change: pair (same file and content) or content (same content)")
}

func runInit(cmd *cobra.Command, args []string) error {
	if initHash != "" {
		cfg.Hash = initHash
	}
	if initDedup != "" {
		cfg.Dedup = initDedup
	}

	created, err := versions.Init(cfg, logger)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if created {
		fmt.Fprintf(out, "%s repository in %s (%s)\n", colors.SuccessText("Initialized"), cfg.Root, cfg.Hash)
	} else {
		fmt.Fprintf(out, "Repository already initialized in %s\n", cfg.Root)
	}
	return nil
}
