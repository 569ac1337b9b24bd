package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/sw965/brawler/pool"
)

var (
	leaderboardLimit int
	leaderboardJSON  bool
)

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard",
	Short: "Print the persisted opponent pool ranked by Elo",
	RunE:  runLeaderboard,
}

func init() {
	leaderboardCmd.Flags().IntVar(&leaderboardLimit, "limit", 10, "Number of snapshots to print (0 for all)")
	leaderboardCmd.Flags().BoolVar(&leaderboardJSON, "json", false, "Print records as JSON")
}

func runLeaderboard(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	rs, err := pool.ReadRecords(cfg.Pool.Dir, func(id string, err error) {
		logger.Warn().Err(err).Str("id", id).Msg("skipping unreadable snapshot")
	})
	if err != nil {
		return err
	}
	if leaderboardLimit > 0 && leaderboardLimit < len(rs) {
		rs = rs[:leaderboardLimit]
	}

	if leaderboardJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rs)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tID\tELO\tGAMES\tWIN RATE\tSTYLE\tSTEP")
	for i, r := range rs {
		style := string(r.Metadata.Style)
		if style == "" {
			style = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%.1f\t%d\t%.3f\t%s\t%d\n",
			i+1, r.ID, r.Elo, r.GamesPlayed, r.WinRate, style, r.Metadata.CheckpointStep)
	}
	return w.Flush()
}
