package cli

import "github.com/spf13/cobra"

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Manage long-term memories injected into compiled context",
}

func init() {
	RootCmd.AddCommand(memoryCmd)
}
