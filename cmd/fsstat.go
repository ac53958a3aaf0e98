package cmd

import (
	"os"

	"onlinstall/fsstat"

	"github.com/spf13/cobra"
)

var fsstatFormat string

var fsstatCmd = &cobra.Command{
	Use:   "fsstat <path>",
	Short: "Print filesystem statistics for the mount owning a path",
	Long: `Resolves the given path to its owning mount point and renders the
format template from that filesystem's statistics.

Template placeholders: %t type code (hex), %T type name, %s optimal block
size, %S fundamental block size, %b total blocks, %f free blocks, %a free
blocks for unprivileged users, %c total inodes, %d free inodes. Other
percent escapes are handed to stat(1).`,
	Args: cobra.ExactArgs(1),
	Run:  runFsstat,
}

func init() {
	fsstatCmd.Flags().StringVarP(&fsstatFormat, "format", "f", "%T", "Output format template")
	rootCmd.AddCommand(fsstatCmd)
}

func runFsstat(cmd *cobra.Command, args []string) {
	resolver := fsstat.NewResolver()
	resolver.Logger = cliLogger()
	resolver.Reader.Logger = resolver.Logger

	if err := resolver.Report(args[0], fsstatFormat, os.Stdout, os.Stderr); err != nil {
		// Report already wrote the diagnostic
		os.Exit(1)
	}
}
