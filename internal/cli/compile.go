package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/agent-context/internal/engine"
)

func init() {
	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile the context for a thread",
		Long: "Fetch the thread and the account's memories, fit them into the token budget\n" +
			"across the working, recent, historical and archived layers, and print the prompt.",
		Run: runCompile,
	}

	cmd.Flags().StringP("thread", "t", "", "Thread ID (required)")
	cmd.Flags().StringP("account", "a", "", "Account whose memories are injected")
	cmd.Flags().StringP("query", "q", "", "Current task, used for memory retrieval and semantic ranking")
	cmd.Flags().StringP("system", "s", "", "System prompt placed first")
	cmd.Flags().StringSlice("important", nil, "Message IDs flagged important by an earlier compile")
	cmd.Flags().Float64("threshold", -1, "Relevance threshold 0-1 (default from config)")
	cmd.Flags().Bool("no-memory", false, "Do not inject long-term memories")
	cmd.Flags().Bool("no-semantic", false, "Rank without embeddings")
	cmd.Flags().Bool("no-dedup", false, "Keep duplicate messages")
	cmd.Flags().Bool("messages-only", false, "Print only the message list")

	cmd.MarkFlagRequired("thread")

	RootCmd.AddCommand(cmd)
}

func runCompile(cmd *cobra.Command, args []string) {
	thread, _ := cmd.Flags().GetString("thread")
	account, _ := cmd.Flags().GetString("account")
	query, _ := cmd.Flags().GetString("query")
	system, _ := cmd.Flags().GetString("system")
	important, _ := cmd.Flags().GetStringSlice("important")
	threshold, _ := cmd.Flags().GetFloat64("threshold")
	noMemory, _ := cmd.Flags().GetBool("no-memory")
	noSemantic, _ := cmd.Flags().GetBool("no-semantic")
	noDedup, _ := cmd.Flags().GetBool("no-dedup")
	messagesOnly, _ := cmd.Flags().GetBool("messages-only")

	rules := cfg.Rules
	rules.ImportantMessageIDs = important
	if threshold >= 0 {
		rules.RelevanceThreshold = threshold
	}
	if noMemory {
		rules.IncludeMemory = false
	}
	if noSemantic {
		rules.SemanticRanking = false
	}
	if noDedup {
		rules.Dedup = false
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	eng, err := newEngine(cfg, s, logger)
	if err != nil {
		exitErr("build engine", err)
	}

	res, err := eng.Compile(cmd.Context(), engine.Request{
		ThreadID:     thread,
		AccountID:    account,
		Query:        query,
		SystemPrompt: system,
		Rules:        &rules,
	})
	if err != nil {
		exitErr("compile", err)
	}

	if messagesOnly {
		printJSON(cmd.OutOrStdout(), res.Messages)
		return
	}
	printJSON(cmd.OutOrStdout(), res)
}
