package cmd

import (
	"fmt"
	"os"
	"time"

	"onlinstall/config"
	"onlinstall/journal"

	"github.com/spf13/cobra"
)

var runsCmd = &cobra.Command{
	Use:   "runs [run-id]",
	Short: "Show recorded installer runs",
	Long: `Without arguments, lists all recorded runs, most recent first. With a
run ID, shows that run and its recorded steps.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runRuns,
}

func init() {
	rootCmd.AddCommand(runsCmd)
}

func runRuns(cmd *cobra.Command, args []string) {
	cfg := config.GetConfig()

	jdb, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "onlinstall: %v\n", err)
		os.Exit(1)
	}
	defer jdb.Close()

	if len(args) == 1 {
		showRun(jdb, args[0])
		return
	}

	runs, err := jdb.ListRuns()
	if err != nil {
		fmt.Fprintf(os.Stderr, "onlinstall: %v\n", err)
		os.Exit(1)
	}
	if len(runs) == 0 {
		fmt.Println("No recorded runs")
		return
	}

	for _, rec := range runs {
		fmt.Printf("%-8s  %-10s %-8s %s  %s\n",
			shortID(rec.UUID), rec.Operation, rec.Status,
			rec.StartTime.Format("2006-01-02 15:04:05"), rec.Root)
	}
}

// shortID abbreviates a run ID for the listing. IDs shorter than the
// abbreviation (hand-edited or corrupted journal) pass through whole.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func showRun(jdb *journal.DB, runID string) {
	rec, err := jdb.GetRun(runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "onlinstall: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Run:       %s\n", rec.UUID)
	fmt.Printf("Operation: %s\n", rec.Operation)
	if rec.Root != "" {
		fmt.Printf("Root:      %s\n", rec.Root)
	}
	fmt.Printf("Status:    %s\n", rec.Status)
	fmt.Printf("Started:   %s\n", rec.StartTime.Format("2006-01-02 15:04:05"))
	if !rec.EndTime.IsZero() {
		fmt.Printf("Ended:     %s\n", rec.EndTime.Format("2006-01-02 15:04:05"))
		fmt.Printf("Duration:  %s\n", rec.EndTime.Sub(rec.StartTime).Round(time.Second))
	}

	steps, err := jdb.ListSteps(runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "onlinstall: %v\n", err)
		os.Exit(1)
	}
	if len(steps) > 0 {
		fmt.Println("Steps:")
		for _, step := range steps {
			line := fmt.Sprintf("  %-14s %s", step.Name, step.Status)
			if step.Detail != "" {
				line += "  (" + step.Detail + ")"
			}
			fmt.Println(line)
		}
	}
}
