package cmd

import (
	"errors"
	"fmt"
	"os"

	"onlinstall/chroot"
	"onlinstall/config"
	"onlinstall/journal"
	"onlinstall/log"

	"github.com/spf13/cobra"
)

var chrootTeardown bool

var chrootCmd = &cobra.Command{
	Use:   "chroot <root>",
	Short: "Bootstrap (or tear down) a chroot filesystem tree",
	Long: `Prepares the directory at <root> for chroot execution: device nodes,
run directories, pseudo filesystems and host configuration artifacts.
With --teardown, unmounts everything below <root> instead.

Each invocation is recorded in the run journal.`,
	Args: cobra.ExactArgs(1),
	Run:  runChroot,
}

func init() {
	chrootCmd.Flags().BoolVar(&chrootTeardown, "teardown", false, "Unmount everything below the root instead of bootstrapping")
	rootCmd.AddCommand(chrootCmd)
}

func runChroot(cmd *cobra.Command, args []string) {
	cfg := config.GetConfig()
	root := args[0]

	// Bootstrap is the destructive path; it logs to the install/debug log
	// files as well as the console.
	var logger log.LibraryLogger
	fileLogger, err := log.NewLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "onlinstall: cannot open log files, console only: %v\n", err)
		logger = cliLogger()
	} else {
		defer fileLogger.Close()
		logger = fileLogger
	}

	operation := "bootstrap"
	if chrootTeardown {
		operation = "teardown"
	}

	jdb, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "onlinstall: %v\n", err)
		os.Exit(1)
	}
	defer jdb.Close()

	runID, err := jdb.StartRun(operation, root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "onlinstall: %v\n", err)
		os.Exit(1)
	}

	b := chroot.NewBootstrapper(root, cfg, logger)

	if chrootTeardown {
		err = b.Teardown()
	} else {
		err = b.Bootstrap()
	}

	if err != nil {
		if fileLogger != nil {
			fileLogger.Step(operation, "failed")
		}
		recordFailure(jdb, runID, err)
		fmt.Fprintf(os.Stderr, "onlinstall: %v\n", err)
		os.Exit(1)
	}

	if fileLogger != nil {
		fileLogger.Step(operation, "complete")
	}
	jdb.AppendStep(runID, journal.StepRecord{Name: operation, Status: "ok"})
	if jerr := jdb.FinishRun(runID, journal.RunStatusSuccess); jerr != nil {
		fmt.Fprintf(os.Stderr, "onlinstall: journal: %v\n", jerr)
	}

	fmt.Printf("%s complete: %s\n", operation, root)
}

func recordFailure(jdb *journal.DB, runID string, opErr error) {
	step := journal.StepRecord{Name: "error", Status: "failed", Detail: opErr.Error()}
	var serr *chroot.StepError
	if errors.As(opErr, &serr) {
		step.Name = serr.Step
	}
	jdb.AppendStep(runID, step)
	if err := jdb.FinishRun(runID, journal.RunStatusFailed); err != nil {
		fmt.Fprintf(os.Stderr, "onlinstall: journal: %v\n", err)
	}
}
