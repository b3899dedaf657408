package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Show the latest version of a memory",
		Run:   runGet,
	}

	cmd.Flags().StringP("account", "a", "", "Account (required)")
	cmd.Flags().StringP("key", "k", "", "Key (required)")

	cmd.MarkFlagRequired("account")
	cmd.MarkFlagRequired("key")

	memoryCmd.AddCommand(cmd)
}

func runGet(cmd *cobra.Command, args []string) {
	account, _ := cmd.Flags().GetString("account")
	key, _ := cmd.Flags().GetString("key")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	mem, err := s.Get(cmd.Context(), account, key)
	if err != nil {
		exitErr("get", err)
	}
	printJSON(cmd.OutOrStdout(), mem)
}
