package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/sarchlab/ispcore/datarecording"
)

var dumpCmd = &cobra.Command{
	Use:   "dump [recording.sqlite3]",
	Short: "Show the block dumps of a recorded run.",
	Long: "`dump` reads the dumps a run recorded, newest first. " +
		"With --registers it also prints the register values of each dump.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		block, _ := cmd.Flags().GetString("block")
		limit, _ := cmd.Flags().GetInt("limit")
		regs, _ := cmd.Flags().GetBool("registers")

		reader, err := datarecording.NewReader(args[0])
		if err != nil {
			return err
		}
		defer reader.Close()

		return showDumps(cmd, reader, block, limit, regs)
	},
}

func init() {
	rootCmd.AddCommand(dumpCmd)
	dumpCmd.Flags().String("block", "", "Only show dumps of this block")
	dumpCmd.Flags().Int("limit", 10, "Number of dumps to show, 0 for all")
	dumpCmd.Flags().Bool("registers", false, "Print the dumped registers")
}

func showDumps(
	cmd *cobra.Command,
	reader datarecording.DataReader,
	block string,
	limit int,
	regs bool,
) error {
	ctx := cmd.Context()
	w := cmd.OutOrStdout()

	dumps, err := datarecording.ReadDumps(ctx, reader, block, limit)
	if err != nil {
		return err
	}

	if len(dumps) == 0 {
		fmt.Fprintln(w, "No dumps recorded.")
		return nil
	}

	for _, d := range dumps {
		printDump(w, d)

		if !regs {
			continue
		}

		entries, err := datarecording.ReadRegisters(ctx, reader, d.ID)
		if err != nil {
			return err
		}

		for _, r := range entries {
			kind := "blk"
			if r.Control {
				kind = "ctl"
			}

			fmt.Fprintf(w, "    %s %#05x = %#010x\n", kind, r.Addr, r.Value)
		}
	}

	return nil
}

func printDump(w io.Writer, d *datarecording.DumpEntry) {
	fmt.Fprintf(w, "%s %s (%s) %s dump, %s\n",
		time.Unix(0, d.Time).Format(time.RFC3339Nano),
		d.Block, d.Type, d.Mode, d.Reason)
	fmt.Fprintf(w, "  state %s, event %s, overflow %t, bypass %t\n",
		d.State, d.Event, d.Overflow, d.Bypass)
	fmt.Fprintf(w, "  shots %d, fs %d, fe %d, anomalies %d, errors %d, "+
		"overflows %d, drops %d, timeouts %d, resets %d\n",
		d.Shots, d.FrameStart, d.FrameEnd, d.Anomalies, d.Errors,
		d.Overflows, d.Drops, d.Timeouts, d.Resets)
}
