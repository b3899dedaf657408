// Package importance tags chunks as pinned, high or normal importance.
package importance

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rcliao/agent-context/internal/model"
)

// maxAckLen bounds, in runes, what counts as a throwaway acknowledgement.
const maxAckLen = 15

var acknowledgements = map[string]bool{
	"ok": true, "okay": true, "k": true, "kk": true,
	"yes": true, "yep": true, "yeah": true, "no": true, "nope": true,
	"sure": true, "thanks": true, "thank you": true, "thx": true, "ty": true,
	"got it": true, "cool": true, "nice": true, "great": true, "perfect": true,
	"sounds good": true, "continue": true, "go on": true, "go ahead": true,
	"alright": true, "lgtm": true, "done": true, "hi": true, "hello": true,
	"merci": true, "danke": true, "gracias": true, "спасибо": true, "хорошо": true,
	"好的": true, "谢谢": true, "ありがとう": true, "了解しました": true, "👍": true,
}

var pinnedPatterns = []*regexp.Regexp{
	// identity
	regexp.MustCompile(`(?i)\b(my name is|i am called|call me|i work (at|for)|my (role|job|title) is)\b`),
	// credentials
	regexp.MustCompile(`(?i)\b(api[ _-]?key|password|passwd|secret|token|credential|ssh key|access key)s?\b`),
	// explicit memory requests
	regexp.MustCompile(`(?i)\b(remember|don'?t forget|do not forget|keep in mind|note that|make a note|always|never)\b`),
	// deadlines
	regexp.MustCompile(`(?i)\b(deadline|due (by|on|date)|by (monday|tuesday|wednesday|thursday|friday|saturday|sunday|tomorrow|tonight|eod|end of day))\b`),
	regexp.MustCompile(`(?i)\b(critical|must not|important)\b`),
}

// Marker assigns an Importance to each chunk.
type Marker struct{}

func NewMarker() *Marker { return &Marker{} }

// Mark sets Importance on every chunk in place. importantIDs is the set of
// message ids an LLM flagged as important; when it is non-empty it overrides
// the user-message heuristics.
func (m *Marker) Mark(chunks []*model.Chunk, importantIDs map[string]bool) {
	explicit := len(importantIDs) > 0
	for _, c := range chunks {
		c.Importance = m.classify(c, importantIDs, explicit)
	}
}

func (m *Marker) classify(c *model.Chunk, importantIDs map[string]bool, explicit bool) model.Importance {
	if explicit && c.MessageID != "" && importantIDs[c.MessageID] {
		return model.ImportancePinned
	}
	switch c.Meta.Role {
	case model.RoleSystem:
		return model.ImportanceHigh
	case model.RoleUser:
		if explicit {
			return model.ImportanceNormal
		}
		return classifyUser(c.Content)
	default:
		return model.ImportanceNormal
	}
}

func classifyUser(content string) model.Importance {
	if IsAcknowledgement(content) {
		return model.ImportanceNormal
	}
	for _, re := range pinnedPatterns {
		if re.MatchString(content) {
			return model.ImportancePinned
		}
	}
	return model.ImportanceHigh
}

// IsAcknowledgement reports whether s is a short filler reply like "ok!" or "thanks".
func IsAcknowledgement(s string) bool {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) >= maxAckLen {
		return false
	}
	s = strings.TrimRight(strings.ToLower(s), ".!?,;: 。！？")
	return acknowledgements[s]
}
