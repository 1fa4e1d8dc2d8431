package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iborker/iborker/internal/clientid"
)

var rangesCmd = &cobra.Command{
	Use:   "ranges",
	Short: "Show the client ID range of every tool category",
	Long: `Ranges prints the offset table resolved against the allocation floor
(client_id.start), together with the tool names mapped onto each category.`,
	RunE: runRanges,
}

var rangesFloor int

func init() {
	rootCmd.AddCommand(rangesCmd)
	rangesCmd.Flags().IntVar(&rangesFloor, "floor", -1, "Allocation floor (default: client_id.start)")
}

func runRanges(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Close()

	floor := cfg.ClientID.Start
	if cmd.Flags().Changed("floor") {
		if rangesFloor < 0 {
			return fmt.Errorf("invalid floor %d: must be non-negative", rangesFloor)
		}
		floor = rangesFloor
	}

	out := cmd.OutOrStdout()
	p := newPalette(out)
	fmt.Fprintf(out, "Floor: %d (mode: %s)\n\n", floor, cfg.ClientID.Mode)
	fmt.Fprintln(out, p.render(p.header, fmt.Sprintf("%-10s %-7s %-6s %-12s %s",
		"CATEGORY", "OFFSET", "WIDTH", "IDS", "TOOLS")))

	for _, r := range clientid.Ranges() {
		lo, hi := r.Span(floor)
		fmt.Fprintf(out, "%-10s %-7d %-6d %-12s %s\n",
			r.Category, r.StartOffset, r.Width,
			fmt.Sprintf("%d-%d", lo, hi-1),
			p.render(p.muted, strings.Join(clientid.Tools(r.Category), ", ")))
	}
	return nil
}
