// Package cmd implements the onlinstall command-line interface.
package cmd

import (
	"fmt"
	"os"

	"onlinstall/config"

	"github.com/spf13/cobra"
)

var Version = "dev"

var (
	flagConfigDir string
	flagProfile   string
	flagDebug     bool
	flagYesAll    bool
)

var rootCmd = &cobra.Command{
	Use:     "onlinstall",
	Short:   "ONL network OS installer tooling",
	Long:    `Installer-side tooling: mount table inspection, filesystem statistics, block device identification, chroot bootstrap and reboot handling.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(flagConfigDir, flagProfile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if flagDebug {
			cfg.Debug = true
		}
		if flagYesAll {
			cfg.YesAll = true
		}
		config.SetConfig(cfg)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfigDir, "config", "C", "", "Config base directory")
	rootCmd.PersistentFlags().StringVarP(&flagProfile, "profile", "p", "default", "Profile to use")
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "d", false, "Debug verbosity")
	rootCmd.PersistentFlags().BoolVarP(&flagYesAll, "yes", "y", false, "Answer yes to all prompts")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
