// Package chunker splits long markdown text into token-bounded pieces for
// search indexing and context injection.
package chunker

import (
	"strings"

	"github.com/rcliao/agent-context/internal/tokens"
)

const (
	DefaultTargetTokens = 100
	DefaultMaxTokens    = 150
)

// Options configures chunking behavior. A zero TargetTokens selects the
// defaults; a nil Counter uses the character estimator.
type Options struct {
	TargetTokens int
	MaxTokens    int
	Counter      tokens.Counter
}

// DefaultOptions returns default chunking options.
func DefaultOptions() Options {
	return Options{
		TargetTokens: DefaultTargetTokens,
		MaxTokens:    DefaultMaxTokens,
		Counter:      tokens.NewEstimator(),
	}
}

// Piece is a chunk of text with its line span in the original.
type Piece struct {
	Text      string
	Tokens    int
	StartLine int
	EndLine   int
}

// Chunk splits text into pieces. Text within MaxTokens comes back whole.
func Chunk(text string, opts Options) []Piece {
	if opts.TargetTokens <= 0 {
		def := DefaultOptions()
		opts.TargetTokens, opts.MaxTokens = def.TargetTokens, def.MaxTokens
	}
	if opts.MaxTokens < opts.TargetTokens {
		opts.MaxTokens = opts.TargetTokens
	}
	if opts.Counter == nil {
		opts.Counter = tokens.NewEstimator()
	}
	c := chunker{opts: opts}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if n := c.size(text); n <= opts.MaxTokens {
		return []Piece{{Text: text, Tokens: n, StartLine: 1, EndLine: strings.Count(text, "\n") + 1}}
	}

	return c.merge(splitBlocks(text))
}

type chunker struct {
	opts Options
}

func (c chunker) size(s string) int {
	return c.opts.Counter.CountTokens(s, "")
}

func (c chunker) piece(text string, start, end int) Piece {
	return Piece{Text: text, Tokens: c.size(text), StartLine: start, EndLine: end}
}

// block is an intermediate representation of a text section.
type block struct {
	text      string
	startLine int
	endLine   int
}

// splitBlocks splits text on heading lines and blank-line runs.
func splitBlocks(text string) []block {
	lines := strings.Split(text, "\n")
	var blocks []block
	var current []string
	startLine := 1

	flush := func(endLine int) {
		if len(current) == 0 {
			return
		}
		if t := strings.TrimSpace(strings.Join(current, "\n")); t != "" {
			blocks = append(blocks, block{text: t, startLine: startLine, endLine: endLine})
		}
		current = nil
		startLine = endLine + 1
	}

	prevEmpty := false
	for i, line := range lines {
		lineNum := i + 1
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "#") && len(current) > 0 {
			flush(lineNum - 1)
		}

		if trimmed == "" {
			if prevEmpty && len(current) > 0 {
				flush(lineNum - 1)
			}
			prevEmpty = true
			current = append(current, line)
			continue
		}
		prevEmpty = false
		current = append(current, line)
	}
	flush(len(lines))

	return blocks
}

// merge combines small blocks up to the target and splits oversized ones.
func (c chunker) merge(blocks []block) []Piece {
	var out []Piece
	var accum block

	flush := func() {
		t := strings.TrimSpace(accum.text)
		if t == "" {
			return
		}
		if c.size(t) > c.opts.MaxTokens {
			out = append(out, c.hardSplit(t, accum.startLine)...)
		} else {
			out = append(out, c.piece(t, accum.startLine, accum.startLine+strings.Count(t, "\n")))
		}
		accum = block{}
	}

	for _, b := range blocks {
		if accum.text == "" {
			accum = b
			continue
		}
		combined := accum.text + "\n\n" + b.text
		if c.size(combined) <= c.opts.TargetTokens {
			accum.text = combined
			accum.endLine = b.endLine
			continue
		}
		flush()
		accum = b
	}
	flush()

	return out
}

// hardSplit breaks text on line boundaries, and lines longer than MaxTokens
// on word boundaries.
func (c chunker) hardSplit(text string, startLine int) []Piece {
	var out []Piece
	var current []string
	curStart, curEnd := startLine, startLine
	curTokens := 0

	emit := func() {
		if t := strings.TrimSpace(strings.Join(current, "\n")); t != "" {
			out = append(out, c.piece(t, curStart, curEnd))
		}
		current = nil
		curTokens = 0
	}

	for i, line := range strings.Split(text, "\n") {
		lineNum := startLine + i
		for _, part := range c.splitLine(line) {
			n := c.size(part) + 1
			if curTokens+n > c.opts.TargetTokens && len(current) > 0 {
				emit()
				curStart = lineNum
			}
			current = append(current, part)
			curTokens += n
			curEnd = lineNum
		}
	}
	emit()

	return out
}

func (c chunker) splitLine(line string) []string {
	if c.size(line) <= c.opts.MaxTokens {
		return []string{line}
	}
	var out []string
	var cur strings.Builder
	for _, w := range strings.Fields(line) {
		if cur.Len() > 0 && c.size(cur.String()+" "+w) > c.opts.TargetTokens {
			out = append(out, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(w)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}
