package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/agent-context/internal/model"
	"github.com/rcliao/agent-context/internal/store"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"AGENT_CONTEXT_CONFIG", "AGENT_CONTEXT_DB", "AGENT_CONTEXT_LLM_PROVIDER",
		"AGENT_CONTEXT_EMBED_PROVIDER", "AGENT_CONTEXT_LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

// resetFlags clears values parsed by an earlier Execute; cobra keeps them on
// the shared command tree.
func resetFlags(c *cobra.Command) {
	c.Flags().VisitAll(func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	})
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func run(t *testing.T, args ...string) []byte {
	t.Helper()
	resetFlags(RootCmd)
	var out bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetArgs(args)
	require.NoError(t, RootCmd.Execute())
	return out.Bytes()
}

func TestCLI_AppendMemoryCompile(t *testing.T) {
	isolateEnv(t)
	db := filepath.Join(t.TempDir(), "ctx.db")

	var first model.StoredMessage
	require.NoError(t, json.Unmarshal(
		run(t, "--db", db, "append", "--thread", "t1", "--role", "user", "Where", "do", "we", "deploy?"), &first))
	assert.Equal(t, "t1", first.ThreadID)
	assert.NotEmpty(t, first.ID)

	run(t, "--db", db, "append", "--thread", "t1", "--role", "assistant", "--tool-call", `call_1:lookup:{"q":"deploy"}`)
	run(t, "--db", db, "append", "--thread", "t1", "--role", "tool", "--tool-call-id", "call_1", "staging first")

	var mem model.Memory
	require.NoError(t, json.Unmarshal(
		run(t, "--db", db, "memory", "put", "--account", "acme", "--key", "deploys", "--priority", "high", "--ttl", "7d", "Deploys go out on Fridays"), &mem))
	assert.Equal(t, 1, mem.Version)
	assert.Equal(t, "acme", mem.NS)

	var listed []listedMessage
	require.NoError(t, json.Unmarshal(run(t, "--db", db, "list", "--thread", "t1", "--limit", "0"), &listed))
	require.Len(t, listed, 3)
	assert.Equal(t, "lookup", listed[1].ToolCalls[0].Function.Name)

	var msgs []model.Message
	require.NoError(t, json.Unmarshal(
		run(t, "--db", db, "compile", "--thread", "t1", "--account", "acme", "--system", "be brief", "--messages-only"), &msgs))
	require.Len(t, msgs, 5)
	assert.Equal(t, model.Message{Role: model.RoleSystem, Content: "be brief"}, msgs[0])
	assert.Equal(t, "Where do we deploy?", msgs[1].Content)
	assert.Equal(t, "call_1", msgs[3].ToolCallID)
	assert.Equal(t, "[Memory] Deploys go out on Fridays", msgs[4].Content)

	var stats store.Stats
	require.NoError(t, json.Unmarshal(run(t, "--db", db, "stats"), &stats))
	assert.Equal(t, 3, stats.Messages)
	assert.Equal(t, 1, stats.Threads)
	assert.Equal(t, 1, stats.Memories)
}

func TestParseToolCall(t *testing.T) {
	tests := []struct {
		raw      string
		wantName string
		wantArgs string
		wantErr  bool
	}{
		{`c1:search:{"q":"a:b"}`, "search", `{"q":"a:b"}`, false},
		{"c2:noop", "noop", "{}", false},
		{"c3:", "", "", true},
		{"justname", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseToolCall(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, got.Function.Name)
			assert.Equal(t, tt.wantArgs, got.Function.Arguments)
			assert.Equal(t, "function", got.Type)
		})
	}
}
