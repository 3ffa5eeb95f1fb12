package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/javanhut/vers/internal/colors"
	"github.com/javanhut/vers/internal/config"
	"github.com/javanhut/vers/internal/verr"
	"github.com/javanhut/vers/internal/versions"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "vers",
	Short: "vers keeps versions of individual files",
	Long: `vers records snapshots of single files in a hidden .versions directory.

Each version is stored once by content hash and listed per file:

  vers init
  vers add notes.txt "first draft"
  vers list notes.txt
  vers get notes.txt 1`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// Global flags
var (
	rootDir  string
	logLevel string
	noColor  bool
)

// Prepared by setup for the running command.
var (
	cfg    *config.Config
	logger *logrus.Logger
)

func init() {
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "repository directory (default $"+config.EnvRoot+" or "+config.DefaultRoot+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return verr.E(verr.ErrInvalidInput, "usage", cmd.CommandPath(), err)
	})

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(verifyCmd)
}

// Execute runs the command line and exits with the status for its error.
func Execute() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes args and returns the exit status.
func run(args []string, stdout, stderr io.Writer) int {
	resetFlags()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(stderr, colors.ErrorText("error: "+err.Error()))
	}
	return verr.ExitCode(err)
}

// resetFlags restores flag defaults so run can be called more than once.
func resetFlags() {
	rootDir, logLevel, noColor = "", "", false
	initHash, initDedup = "", ""
	listFull = false
	verifyPrune = false
}

// setup loads the configuration and builds the logger.
func setup(cmd *cobra.Command, args []string) error {
	root := config.ResolveRoot(rootDir)
	c, err := config.Load(root)
	if err != nil {
		return err
	}
	if logLevel != "" {
		c.LogLevel = logLevel
	}
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return verr.E(verr.ErrInvalidInput, "setup", "", err)
	}

	l := logrus.New()
	l.SetOutput(cmd.ErrOrStderr())
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	l.SetLevel(lvl)

	if noColor || !c.ColorEnabled() {
		colors.SetColorEnabled(false)
	}

	cfg, logger = c, l
	return nil
}

// usageArgs marks argument-count failures as invalid input.
func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return verr.E(verr.ErrInvalidInput, "usage", cmd.CommandPath(), err)
		}
		return nil
	}
}

func openManager() (*versions.Manager, error) {
	return versions.Open(cfg, versions.WithLogger(logger))
}
