package cmd

import (
	"fmt"
	"os"

	"onlinstall/blockdev"

	"github.com/spf13/cobra"
)

var (
	blkidLabel string
	blkidUUID  string
)

var blkidCmd = &cobra.Command{
	Use:   "blkid",
	Short: "List block devices and their identification attributes",
	Long: `Enumerates block devices via blkid(8). With --label or --uuid, prints
only the first matching device and exits nonzero when nothing matches.`,
	Args: cobra.NoArgs,
	Run:  runBlkid,
}

func init() {
	blkidCmd.Flags().StringVar(&blkidLabel, "label", "", "Find the device with this filesystem label")
	blkidCmd.Flags().StringVar(&blkidUUID, "uuid", "", "Find the device with this filesystem UUID")
	rootCmd.AddCommand(blkidCmd)
}

func runBlkid(cmd *cobra.Command, args []string) {
	enum := blockdev.NewEnumerator()
	enum.Logger = cliLogger()

	switch {
	case blkidLabel != "":
		findDevice(enum.FindByLabel, blkidLabel, "label")
	case blkidUUID != "":
		findDevice(enum.FindByUUID, blkidUUID, "uuid")
	default:
		err := enum.Visit(func(rec blockdev.Record) error {
			printDevice(rec)
			return nil
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "onlinstall: %v\n", err)
			os.Exit(1)
		}
	}
}

func findDevice(find func(string) (blockdev.Record, bool, error), value, what string) {
	rec, ok, err := find(value)
	if err != nil {
		fmt.Fprintf(os.Stderr, "onlinstall: %v\n", err)
		os.Exit(1)
	}
	if !ok {
		fmt.Fprintf(os.Stderr, "onlinstall: no device with %s %q\n", what, value)
		os.Exit(1)
	}
	printDevice(rec)
}

func printDevice(rec blockdev.Record) {
	fmt.Printf("%s:", rec.Device)
	if rec.Label != "" {
		fmt.Printf(" LABEL=%q", rec.Label)
	}
	if rec.UUID != "" {
		fmt.Printf(" UUID=%q", rec.UUID)
	}
	if rec.PartLabel != "" {
		fmt.Printf(" PARTLABEL=%q", rec.PartLabel)
	}
	if rec.PartUUID != "" {
		fmt.Printf(" PARTUUID=%q", rec.PartUUID)
	}
	fmt.Println()
}
