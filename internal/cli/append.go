package cli

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/agent-context/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "append [content]",
		Short: "Append a message to a thread",
		Long:  "Append a message to a thread. Content can be a positional arg or piped via stdin.",
		Run:   runAppend,
	}

	cmd.Flags().StringP("thread", "t", "", "Thread ID (required)")
	cmd.Flags().StringP("role", "r", model.RoleUser, "Role: system, user, assistant, tool")
	cmd.Flags().String("name", "", "Tool or participant name")
	cmd.Flags().String("tool-call-id", "", "ID of the tool call this message answers (role tool)")
	cmd.Flags().StringArray("tool-call", nil, "Tool call made by an assistant message, as id:name:json-args (repeatable)")

	cmd.MarkFlagRequired("thread")

	RootCmd.AddCommand(cmd)
}

var validRoles = map[string]bool{
	model.RoleSystem:    true,
	model.RoleUser:      true,
	model.RoleAssistant: true,
	model.RoleTool:      true,
}

func runAppend(cmd *cobra.Command, args []string) {
	thread, _ := cmd.Flags().GetString("thread")
	role, _ := cmd.Flags().GetString("role")
	name, _ := cmd.Flags().GetString("name")
	toolCallID, _ := cmd.Flags().GetString("tool-call-id")
	rawCalls, _ := cmd.Flags().GetStringArray("tool-call")

	if !validRoles[role] {
		exitErr("append", errors.New("role must be one of system, user, assistant, tool"))
	}

	content, err := readContent(args, cmd.InOrStdin())
	if err != nil {
		exitErr("append", err)
	}

	msg := model.Message{
		Role:       role,
		Content:    strings.TrimSpace(content),
		Name:       name,
		ToolCallID: toolCallID,
	}
	for _, raw := range rawCalls {
		call, err := parseToolCall(raw)
		if err != nil {
			exitErr("append", err)
		}
		msg.ToolCalls = append(msg.ToolCalls, call)
	}
	if msg.Content == "" && len(msg.ToolCalls) == 0 {
		exitErr("append", errors.New("content is required (positional arg or stdin) unless --tool-call is given"))
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	stored, err := s.AppendMessage(cmd.Context(), thread, msg)
	if err != nil {
		exitErr("append", err)
	}
	printJSON(cmd.OutOrStdout(), stored)
}

// parseToolCall reads "id:name:args". args may itself contain colons.
func parseToolCall(raw string) (model.ToolCall, error) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return model.ToolCall{}, errors.New("tool call must look like id:name[:json-args]")
	}
	args := "{}"
	if len(parts) == 3 && parts[2] != "" {
		args = parts[2]
	}
	return model.NewToolCall(parts[0], parts[1], args), nil
}
