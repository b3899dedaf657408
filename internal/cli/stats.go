package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show database statistics",
		Run:   runStats,
	}

	cmd.Flags().Bool("purge-cache", false, "Delete expired summary cache entries first")

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) {
	purge, _ := cmd.Flags().GetBool("purge-cache")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if purge {
		n, err := s.Cache().PurgeExpired(cmd.Context())
		if err != nil {
			exitErr("purge cache", err)
		}
		logger.Info("purged expired summaries", zap.Int64("entries", n))
	}

	stats, err := s.Stats(cmd.Context())
	if err != nil {
		exitErr("stats", err)
	}
	printJSON(cmd.OutOrStdout(), stats)
}
