package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"onlinstall/config"
	"onlinstall/reboot"

	"github.com/spf13/cobra"
)

var rebootTimeout int

var rebootCmd = &cobra.Command{
	Use:   "reboot",
	Short: "Reboot after a confirmation countdown",
	Long: `Counts down on the console before rebooting. Press Enter to reboot
immediately; interrupt (Ctrl-C) or close stdin to cancel. With -y the
countdown is skipped entirely.`,
	Args: cobra.NoArgs,
	Run:  runReboot,
}

func init() {
	rebootCmd.Flags().IntVarP(&rebootTimeout, "timeout", "t", 0, "Countdown seconds (0 uses the configured value)")
	rootCmd.AddCommand(rebootCmd)
}

func runReboot(cmd *cobra.Command, args []string) {
	cfg := config.GetConfig()

	outcome := reboot.Confirmed
	if !cfg.YesAll {
		prompt := reboot.NewPrompt(cfg)
		prompt.Logger = cliLogger()
		if rebootTimeout > 0 {
			prompt.Timeout = time.Duration(rebootTimeout) * time.Second
		}
		outcome = prompt.Confirm(context.Background())
	}

	exec := reboot.NewExecutor(cliLogger())
	if err := exec.Execute(outcome); err != nil {
		fmt.Fprintf(os.Stderr, "onlinstall: %v\n", err)
		os.Exit(1)
	}
	if !reboot.ShouldReboot(outcome) {
		os.Exit(1)
	}
}
