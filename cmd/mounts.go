package cmd

import (
	"fmt"
	"os"

	"onlinstall/config"
	"onlinstall/fsstat"
	"onlinstall/log"
	"onlinstall/mounts"

	"github.com/spf13/cobra"
)

var mountsCmd = &cobra.Command{
	Use:   "mounts [path]",
	Short: "Show the live mount table or the mount owning a path",
	Long: `Without arguments, prints every record in the live mount table.
With a path argument, prints only the mount record that owns the path.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runMounts,
}

func init() {
	rootCmd.AddCommand(mountsCmd)
}

func cliLogger() log.LibraryLogger {
	if cfg := config.GetConfig(); cfg != nil && cfg.Debug {
		return log.StderrLogger{}
	}
	return log.NoOpLogger{}
}

func runMounts(cmd *cobra.Command, args []string) {
	reader := mounts.NewReader()
	reader.Logger = cliLogger()

	table, err := reader.ReadTable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "onlinstall: %v\n", err)
		os.Exit(1)
	}

	if len(args) == 1 {
		rec, err := fsstat.ResolveMount(args[0], table)
		if err != nil {
			fmt.Fprintf(os.Stderr, "onlinstall: %v\n", err)
			os.Exit(1)
		}
		printMount(rec)
		return
	}

	for _, rec := range table {
		printMount(rec)
	}
}

func printMount(rec mounts.Record) {
	fmt.Printf("%s on %s type %s (%s)\n", rec.Device, rec.MountPoint, rec.FsType, rec.Options)
}
