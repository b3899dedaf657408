// Package compress shrinks chunks with role-aware lossy truncation.
package compress

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/rcliao/agent-context/internal/model"
	"github.com/rcliao/agent-context/internal/tokens"
)

// TruncationMarker separates the kept head and tail of a truncated text.
const TruncationMarker = "\n\n[... truncated ...]\n\n"

const (
	safetyFactor   = 0.9
	heavyPriority  = 0.9
	maxGenericKeys = 5
	maxValueRunes  = 200
	maxFitPasses   = 3
)

var (
	keyLinePattern  = regexp.MustCompile(`(?i)\b(created|updated|fixed|implemented|added|removed|deleted|changed|renamed|completed|finished|done|error|failed|failure|success|succeeded|result|found|decided|conclusion|next step|will)\b`)
	listItemPattern = regexp.MustCompile(`^\s*([-*•]|\d+[.)])\s+`)
)

// Config sets the light and heavy targets in tokens.
type Config struct {
	LightMaxTokens int `yaml:"light_max_tokens"`
	HeavyMaxTokens int `yaml:"heavy_max_tokens"`
}

func DefaultConfig() Config {
	return Config{LightMaxTokens: 800, HeavyMaxTokens: 300}
}

// Compressor never mutates its input; compressed chunks are new values
// carrying Meta.Compressed and Meta.OriginalTokens.
type Compressor struct {
	cfg     Config
	counter tokens.Counter
}

// New creates a Compressor. A nil counter falls back to the character estimator.
func New(cfg Config, counter tokens.Counter) *Compressor {
	def := DefaultConfig()
	if cfg.LightMaxTokens <= 0 {
		cfg.LightMaxTokens = def.LightMaxTokens
	}
	if cfg.HeavyMaxTokens <= 0 {
		cfg.HeavyMaxTokens = def.HeavyMaxTokens
	}
	if counter == nil {
		counter = tokens.NewEstimator()
	}
	return &Compressor{cfg: cfg, counter: counter}
}

func (c *Compressor) Config() Config { return c.cfg }

// Light compresses c to roughly LightMaxTokens. Chunks already within the
// target are returned as is.
func (c *Compressor) Light(ch *model.Chunk) *model.Chunk {
	return c.compress(ch, c.cfg.LightMaxTokens, false)
}

// Heavy compresses to roughly HeavyMaxTokens, keeps only key lines of
// assistant output, and discounts priority.
func (c *Compressor) Heavy(ch *model.Chunk) *model.Chunk {
	return c.compress(ch, c.cfg.HeavyMaxTokens, true)
}

func (c *Compressor) compress(ch *model.Chunk, target int, heavy bool) *model.Chunk {
	if ch.Tokens <= target {
		return ch
	}

	var content string
	switch {
	case ch.Meta.Role == model.RoleTool || ch.Meta.ToolCallID != "":
		content = c.toolOutput(ch.Content, target)
	case heavy && ch.Meta.Role == model.RoleAssistant:
		content = c.keyLines(ch.Content, target)
	default:
		content = c.fit(ch.Content, target)
	}

	out := ch.Clone()
	out.Content = content
	out.Tokens = min(ch.Tokens, c.count(content))
	out.Meta.Compressed = true
	if out.Meta.OriginalTokens == 0 {
		out.Meta.OriginalTokens = ch.Tokens
	}
	if heavy {
		out.Priority = ch.Priority * heavyPriority
	}
	return out
}

func (c *Compressor) count(s string) int {
	return c.counter.CountTokens(s, "")
}

// toolOutput renders JSON tool results compactly and falls back to smart
// truncation for anything else.
func (c *Compressor) toolOutput(content string, target int) string {
	trimmed := strings.TrimSpace(content)
	if !gjson.Valid(trimmed) {
		return c.fit(content, target)
	}
	res := gjson.Parse(trimmed)
	if !res.IsObject() {
		return c.fit(content, target)
	}

	success, errVal, output := res.Get("success"), res.Get("error"), res.Get("output")
	if success.Exists() || errVal.Exists() || output.Exists() {
		var b strings.Builder
		if success.Exists() {
			fmt.Fprintf(&b, "Success: %s\n", success.String())
		}
		if errVal.Exists() && errVal.Type != gjson.Null && errVal.String() != "" {
			fmt.Fprintf(&b, "Error: %s\n", clip(errVal.String(), maxValueRunes))
		}
		if output.Exists() {
			remaining := target - c.count(b.String())
			out := output.String()
			if half := remaining / 2; c.count(out) > half {
				out = c.truncate(out, max(1, half))
			}
			fmt.Fprintf(&b, "Output: %s", out)
		}
		return c.fit(strings.TrimRight(b.String(), "\n"), target)
	}

	var b strings.Builder
	n := 0
	res.ForEach(func(key, value gjson.Result) bool {
		if n < maxGenericKeys {
			fmt.Fprintf(&b, "%s: %s\n", key.String(), clip(value.String(), maxValueRunes))
		}
		n++
		return true
	})
	if n > maxGenericKeys {
		fmt.Fprintf(&b, "... (%d more keys)", n-maxGenericKeys)
	}
	return c.fit(strings.TrimRight(b.String(), "\n"), target)
}

// keyLines keeps lines that report actions or outcomes, plus list items.
func (c *Compressor) keyLines(content string, target int) string {
	var kept []string
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if keyLinePattern.MatchString(line) || listItemPattern.MatchString(line) {
			kept = append(kept, line)
		}
	}
	if len(kept) == 0 {
		return c.fit(content, target)
	}
	return c.fit(strings.Join(kept, "\n"), target)
}

// fit truncates text until it is within target tokens.
func (c *Compressor) fit(text string, target int) string {
	for i := 0; i < maxFitPasses && c.count(text) > target; i++ {
		text = c.truncate(text, target)
	}
	return text
}

// truncate keeps a head and tail of text sized to land under target tokens.
func (c *Compressor) truncate(text string, target int) string {
	return smartTruncate(text, target, c.count(text), c.count(TruncationMarker))
}

// smartTruncate keeps the first and last runes of text around the marker.
// The kept share is target/tokens scaled by the safety factor, less the
// marker's own cost. When the marker alone would not fit, text is cut.
func smartTruncate(text string, target, textTokens, markerTokens int) string {
	if textTokens <= target || textTokens == 0 {
		return text
	}
	runes := []rune(text)
	perToken := float64(len(runes)) / float64(textTokens)

	keep := int(safetyFactor*float64(target-markerTokens)*perToken)
	if keep <= 0 {
		cut := int(safetyFactor * float64(target) * perToken)
		return string(runes[:max(0, min(cut, len(runes)))])
	}
	if keep >= len(runes) {
		return text
	}
	head := keep / 2
	tail := keep - head
	return string(runes[:head]) + TruncationMarker + string(runes[len(runes)-tail:])
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
