package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/agent-context/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "put [content]",
		Short: "Store a memory for an account",
		Long:  "Store a memory. Content can be a positional arg or piped via stdin. Writing an existing key adds a new version.",
		Run:   runPut,
	}

	cmd.Flags().StringP("account", "a", "", "Account the memory belongs to (required)")
	cmd.Flags().StringP("key", "k", "", "Key (required)")
	cmd.Flags().String("kind", "semantic", "Kind: semantic, episodic, procedural")
	cmd.Flags().StringP("tags", "t", "", "Comma-separated tags")
	cmd.Flags().StringP("priority", "p", "normal", "Priority: low, normal, high, critical")
	cmd.Flags().String("ttl", "", "Expire after e.g. 7d, 24h, 30m (default: never)")

	cmd.MarkFlagRequired("account")
	cmd.MarkFlagRequired("key")

	memoryCmd.AddCommand(cmd)
}

func runPut(cmd *cobra.Command, args []string) {
	account, _ := cmd.Flags().GetString("account")
	key, _ := cmd.Flags().GetString("key")
	kind, _ := cmd.Flags().GetString("kind")
	tagsStr, _ := cmd.Flags().GetString("tags")
	priority, _ := cmd.Flags().GetString("priority")
	ttlStr, _ := cmd.Flags().GetString("ttl")

	content, err := readContent(args, cmd.InOrStdin())
	if err != nil {
		exitErr("put", err)
	}
	if strings.TrimSpace(content) == "" {
		exitErr("put", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	var ttl time.Duration
	if ttlStr != "" {
		if ttl, err = store.ParseTTL(ttlStr); err != nil {
			exitErr("put", err)
		}
	}

	var tags []string
	if tagsStr != "" {
		for _, t := range strings.Split(tagsStr, ",") {
			t = strings.TrimSpace(t)
			if t != "" {
				tags = append(tags, t)
			}
		}
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	mem, err := s.Put(cmd.Context(), store.PutParams{
		NS:       account,
		Key:      key,
		Content:  strings.TrimSpace(content),
		Kind:     kind,
		Tags:     tags,
		Priority: priority,
		TTL:      ttl,
	})
	if err != nil {
		exitErr("put", err)
	}
	printJSON(cmd.OutOrStdout(), mem)
}
