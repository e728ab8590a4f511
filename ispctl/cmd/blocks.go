package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sarchlab/ispcore/blocks"
)

var blocksCmd = &cobra.Command{
	Use:   "blocks",
	Short: "List the block types and their DMA channels.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return listBlocks(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(blocksCmd)
}

func listBlocks(w io.Writer) error {
	for _, typ := range blocks.Types() {
		ops, err := blocks.New(typ)
		if err != nil {
			return err
		}

		fmt.Fprintf(w, "%s (%d registers)\n", typ, ops.RegisterCount())

		for _, ch := range ops.Channels() {
			var notes []string
			if ch.Compressible {
				notes = append(notes, "compressible")
			}

			fmt.Fprintf(w, "  %-4s %-12s %s\n",
				ch.Dir, ch.Name, strings.Join(notes, " "))
		}
	}

	return nil
}
