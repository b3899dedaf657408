package chunker

import (
	"strings"
	"testing"

	"github.com/rcliao/agent-context/internal/tokens"
)

func TestChunk_EmptyInput(t *testing.T) {
	if result := Chunk("  \n ", DefaultOptions()); result != nil {
		t.Errorf("expected nil, got %v", result)
	}
}

func TestChunk_ShortContent(t *testing.T) {
	text := "This is a short memory."
	result := Chunk(text, DefaultOptions())
	if len(result) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(result))
	}
	if result[0].Text != text {
		t.Errorf("expected %q, got %q", text, result[0].Text)
	}
	if result[0].StartLine != 1 || result[0].EndLine != 1 {
		t.Errorf("expected lines 1-1, got %d-%d", result[0].StartLine, result[0].EndLine)
	}
	if result[0].Tokens != 6 {
		t.Errorf("expected 6 tokens, got %d", result[0].Tokens)
	}
}

func TestChunk_SplitsOnHeadings(t *testing.T) {
	section := strings.Repeat("Some content filling space. ", 12) // ~84 tokens
	text := "# Section One\n\n" + section + "\n\n# Section Two\n\n" + section + "\n\n# Section Three\n\n" + section

	result := Chunk(text, DefaultOptions())
	if len(result) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(result))
	}
	for i, name := range []string{"Section One", "Section Two", "Section Three"} {
		if !strings.HasPrefix(result[i].Text, "# "+name) {
			t.Errorf("chunk %d should start with %q, got %q", i, name, result[i].Text[:20])
		}
	}
	if result[1].StartLine != 5 {
		t.Errorf("expected second chunk to start at line 5, got %d", result[1].StartLine)
	}
}

func TestChunk_RespectsMaxTokens(t *testing.T) {
	opts := Options{TargetTokens: 50, MaxTokens: 75}
	var lines []string
	for i := 0; i < 20; i++ {
		lines = append(lines, "This is a line of text that is about fifteen tokens long.")
	}
	result := Chunk(strings.Join(lines, "\n"), opts)
	if len(result) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(result))
	}
	est := tokens.NewEstimator()
	for i, p := range result {
		if n := est.CountTokens(p.Text, ""); n > opts.MaxTokens {
			t.Errorf("chunk %d has %d tokens, max %d", i, n, opts.MaxTokens)
		}
		if p.Tokens != est.CountTokens(p.Text, "") {
			t.Errorf("chunk %d reports %d tokens", i, p.Tokens)
		}
	}
	if last := result[len(result)-1]; last.EndLine != 20 {
		t.Errorf("expected last chunk to end at line 20, got %d", last.EndLine)
	}
}

func TestChunk_SplitsLongLineOnWords(t *testing.T) {
	opts := Options{TargetTokens: 20, MaxTokens: 30}
	line := strings.Repeat("word ", 100)
	result := Chunk(line, opts)
	if len(result) < 5 {
		t.Fatalf("expected the line to be split, got %d chunks", len(result))
	}
	var words int
	for _, p := range result {
		if p.Tokens > opts.MaxTokens {
			t.Errorf("chunk exceeds max: %d tokens", p.Tokens)
		}
		words += len(strings.Fields(p.Text))
	}
	if words != 100 {
		t.Errorf("expected 100 words across chunks, got %d", words)
	}
}

func TestChunk_MergesSmallBlocks(t *testing.T) {
	text := `# A

Short.

# B

Also short.`

	result := Chunk(text, Options{TargetTokens: 100, MaxTokens: 150})
	if len(result) != 1 {
		t.Errorf("expected 1 merged chunk, got %d", len(result))
	}
}

func TestChunk_DoubleNewlineSplit(t *testing.T) {
	para := strings.Repeat("This is a sentence. ", 15) // ~75 tokens
	text := para + "\n\n\n" + para + "\n\n\n" + para

	result := Chunk(text, Options{TargetTokens: 100, MaxTokens: 125})
	if len(result) != 3 {
		t.Fatalf("expected 3 chunks from paragraph splits, got %d", len(result))
	}
}
