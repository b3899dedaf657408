package summarize

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rcliao/agent-context/internal/model"
)

const (
	ruleHeader       = "Summary of earlier conversation:"
	maxRuleLineRunes = 200
	fallbackRunes    = 120
)

var factPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(my name is|i am|i'm|call me|i work (at|for)|my (role|job|team) is)\b`),
	regexp.MustCompile(`(?i)\b(project|repo|repository|codebase|working on|building)\b`),
	regexp.MustCompile(`(?i)\b(api[ _-]?key|password|token|secret|credential)s?\b`),
	regexp.MustCompile(`(?i)\b(remember|don'?t forget|keep in mind|note that|always|never|prefer)\b`),
	regexp.MustCompile(`(?i)\b(completed|finished|done|fixed|implemented|deployed|merged|created|resolved)\b`),
	regexp.MustCompile(`(?i)(\$\s?\d[\d,.]*|\b\d[\d,.]*\s*(%|ms|sec|seconds|minutes|hours|days|weeks|gb|mb|kb|tokens|users|requests|usd|eur)\b)`),
}

// ruleBased builds a bulleted summary from fact-like lines. Lines are taken
// newest first until the target is reached, then restored to chronological
// order. When no line matches, the first line of each message is used.
func (s *Summarizer) ruleBased(chunks []*model.Chunk, targetTokens int) string {
	lines := s.collect(chunks, targetTokens, matchFacts)
	if len(lines) == 0 {
		lines = s.collect(chunks, targetTokens, firstLine)
	}
	if len(lines) == 0 {
		return ""
	}
	return ruleHeader + "\n" + strings.Join(lines, "\n")
}

func (s *Summarizer) collect(chunks []*model.Chunk, targetTokens int, extract func(string) []string) []string {
	used := s.counter.CountTokens(ruleHeader, "") + 1
	seen := make(map[string]bool)
	var picked []string

	for i := len(chunks) - 1; i >= 0; i-- {
		c := chunks[i]
		role := c.Meta.Role
		if role == "" {
			role = model.RoleUser
		}
		// Lines within a message are gathered last-first as well so the final
		// reversal keeps their original order.
		found := extract(c.Content)
		for j := len(found) - 1; j >= 0; j-- {
			line := clipRunes(found[j], maxRuleLineRunes)
			key := strings.ToLower(line)
			if seen[key] {
				continue
			}
			bullet := "- " + role + ": " + line
			cost := s.counter.CountTokens(bullet, "") + 1
			if used+cost > targetTokens {
				return reverse(picked)
			}
			seen[key] = true
			picked = append(picked, bullet)
			used += cost
		}
	}
	return reverse(picked)
}

func matchFacts(content string) []string {
	var out []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*•"))
		if line == "" {
			continue
		}
		for _, re := range factPatterns {
			if re.MatchString(line) {
				out = append(out, line)
				break
			}
		}
	}
	return out
}

func firstLine(content string) []string {
	for _, line := range strings.Split(content, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return []string{clipRunes(line, fallbackRunes)}
		}
	}
	return nil
}

func clipRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

func reverse(s []string) []string {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
	return s
}
