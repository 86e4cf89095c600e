package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/voidecho/voidecho-server-go/internal/config"
	"github.com/voidecho/voidecho-server-go/internal/game"
)

var replayCmd = &cobra.Command{
	Use:   "replay <game-id>",
	Short: "Verify a saved replay and print its frames",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		r, err := game.LoadReplayFromFile(cfg.Replay.Dir, args[0])
		if err != nil {
			return err
		}
		if err := r.Verify(); err != nil {
			return fmt.Errorf("replay %s: %w", args[0], err)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "VERSION\tTURN\tPHASE\tCURRENT\tSTATUS\tCHECKSUM")
		for _, f := range r.Frames {
			gs := f.State
			fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%.12s\n", f.Version, gs.Turn, gs.Phase, gs.CurrentPlayer, gs.Status, f.Checksum)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		if n := len(r.Frames); n > 0 {
			gs := r.Frames[n-1].State
			if gs.GameOver {
				fmt.Fprintf(cmd.OutOrStdout(), "winner: %s (%s)\n", gs.Winner, gs.EndReason)
			}
		}
		return nil
	},
}
