package cli

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rcliao/agent-context/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the messages of a thread",
		Run:   runList,
	}

	cmd.Flags().StringP("thread", "t", "", "Thread ID (required)")
	cmd.Flags().IntP("limit", "l", 20, "Newest N messages (0 for all)")

	cmd.MarkFlagRequired("thread")

	RootCmd.AddCommand(cmd)
}

type listedMessage struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	model.Message
}

func runList(cmd *cobra.Command, args []string) {
	thread, _ := cmd.Flags().GetString("thread")
	limit, _ := cmd.Flags().GetInt("limit")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	stored, err := s.ListMessages(cmd.Context(), thread, limit)
	if err != nil {
		exitErr("list", err)
	}

	out := make([]listedMessage, 0, len(stored))
	for _, sm := range stored {
		msg, err := sm.Decode()
		if err != nil {
			logger.Warn("skipping undecodable message", zap.String("id", sm.ID), zap.Error(err))
			continue
		}
		out = append(out, listedMessage{ID: sm.ID, CreatedAt: sm.CreatedAt, Message: msg})
	}
	printJSON(cmd.OutOrStdout(), out)
}
