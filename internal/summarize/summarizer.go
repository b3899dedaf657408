// Package summarize condenses old conversation history into a summary plus
// durable facts, using an LLM when one is available and keyword rules when not.
package summarize

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"

	"github.com/rcliao/agent-context/internal/llm"
	"github.com/rcliao/agent-context/internal/model"
	"github.com/rcliao/agent-context/internal/tokens"
)

// ErrNoCompleter is returned by llmSummarize when no LLM is configured.
var ErrNoCompleter = errors.New("no completer configured")

var errEmptySummary = errors.New("llm response has no summary")

const cacheKeyPrefix = "ctxsum:"

// Cache stores summarization results between compiles.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Config tunes the summarizer.
type Config struct {
	Model              string        `yaml:"model"`
	MaxCallsPerCompile int           `yaml:"max_calls_per_compile"`
	CacheTTL           time.Duration `yaml:"cache_ttl"`
	Temperature        float64       `yaml:"temperature"`
	MaxFacts           int           `yaml:"max_facts"`
}

func DefaultConfig() Config {
	return Config{
		MaxCallsPerCompile: 5,
		CacheTTL:           24 * time.Hour,
		Temperature:        0.2,
		MaxFacts:           DefaultMaxFacts,
	}
}

// Summarizer is safe for concurrent use; per-compile state lives in Session.
type Summarizer struct {
	cfg     Config
	llm     llm.Completer
	cache   Cache
	counter tokens.Counter
	log     *zap.Logger
}

type Option func(*Summarizer)

func WithCompleter(c llm.Completer) Option { return func(s *Summarizer) { s.llm = c } }

func WithCache(c Cache) Option { return func(s *Summarizer) { s.cache = c } }

func WithCounter(c tokens.Counter) Option { return func(s *Summarizer) { s.counter = c } }

func WithLogger(l *zap.Logger) Option { return func(s *Summarizer) { s.log = l } }

func New(cfg Config, opts ...Option) *Summarizer {
	def := DefaultConfig()
	if cfg.MaxCallsPerCompile < 0 {
		cfg.MaxCallsPerCompile = 0
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if cfg.MaxFacts <= 0 {
		cfg.MaxFacts = def.MaxFacts
	}
	s := &Summarizer{cfg: cfg, log: zap.NewNop(), counter: tokens.NewEstimator()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// NewSession starts the state for one compile.
func (s *Summarizer) NewSession() *Session {
	return newSession(s.cfg.MaxCallsPerCompile, s.cfg.MaxFacts)
}

// cachedResult is what gets stored under a cache key.
type cachedResult struct {
	Summary          string `json:"summary"`
	Facts            []Fact `json:"facts"`
	ImportantIndices []int  `json:"important_indices"`
}

// llmResult is the JSON shape the prompt asks for.
type llmResult struct {
	Facts []struct {
		Content    string  `json:"content"`
		Confidence float64 `json:"confidence"`
	} `json:"facts"`
	ImportantMessages []int  `json:"important_messages"`
	Summary           string `json:"summary"`
}

// Summarize condenses chunks into at most targetTokens. It never fails: cache
// hits are replayed, misses go to the LLM while the session has calls left,
// and everything else falls back to rule-based extraction.
func (s *Summarizer) Summarize(ctx context.Context, sess *Session, chunks []*model.Chunk, targetTokens int) string {
	if len(chunks) == 0 || targetTokens <= 0 {
		return ""
	}
	key, err := CacheKey(chunks)
	if err != nil {
		s.log.Warn("summary cache key", zap.Error(err))
	}

	if key != "" && s.cache != nil {
		if cached, ok := s.fromCache(ctx, key); ok {
			s.apply(sess, chunks, cached)
			return s.clip(cached.Summary, targetTokens)
		}
	}

	if sess.canCall() {
		res, err := s.llmSummarize(ctx, chunks, targetTokens)
		if err == nil {
			sess.calls++
			s.apply(sess, chunks, res)
			if key != "" && s.cache != nil {
				s.toCache(ctx, key, res)
			}
			return s.clip(res.Summary, targetTokens)
		}
		if !errors.Is(err, ErrNoCompleter) {
			s.log.Warn("llm summarization failed, using rules", zap.Int("chunks", len(chunks)), zap.Error(err))
		}
	} else {
		s.log.Debug("llm call budget exhausted, using rules", zap.String("session", sess.ID))
	}

	return s.ruleBased(chunks, targetTokens)
}

// CacheKey hashes the role and content of every chunk.
func CacheKey(chunks []*model.Chunk) (string, error) {
	msgs := make([]model.Message, len(chunks))
	for i, c := range chunks {
		msgs[i] = model.Message{Role: c.Meta.Role, Content: c.Content}
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return "", fmt.Errorf("marshal messages: %w", err)
	}
	h := blake3.New()
	h.Write(data)
	return cacheKeyPrefix + hex.EncodeToString(h.Sum(nil)), nil
}

func (s *Summarizer) fromCache(ctx context.Context, key string) (*cachedResult, bool) {
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.Warn("summary cache get", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var cached cachedResult
	if err := json.Unmarshal(raw, &cached); err != nil {
		s.log.Warn("summary cache entry corrupt", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if strings.TrimSpace(cached.Summary) == "" {
		return nil, false
	}
	return &cached, true
}

func (s *Summarizer) toCache(ctx context.Context, key string, res *cachedResult) {
	data, err := json.Marshal(res)
	if err != nil {
		s.log.Warn("marshal summary for cache", zap.Error(err))
		return
	}
	if err := s.cache.Set(ctx, key, data, s.cfg.CacheTTL); err != nil {
		s.log.Warn("summary cache set", zap.String("key", key), zap.Error(err))
	}
}

// apply merges facts and flags important message ids into the session.
func (s *Summarizer) apply(sess *Session, chunks []*model.Chunk, res *cachedResult) {
	sess.facts.Merge(res.Facts)
	for _, idx := range res.ImportantIndices {
		if idx >= 0 && idx < len(chunks) {
			sess.markImportant(chunks[idx].MessageID)
		}
	}
}

const systemPrompt = `You condense conversation history for an AI agent's context window.
Respond with a single JSON object and nothing else:
{
  "facts": [{"content": "durable fact worth keeping", "confidence": 0.0-1.0}],
  "important_messages": [indices of messages that must stay verbatim],
  "summary": "narrative summary of the conversation"
}
Facts are things the agent must not forget: names, preferences, credentials
mentioned, decisions, deadlines, completed work. Keep the summary under %d tokens.`

func (s *Summarizer) llmSummarize(ctx context.Context, chunks []*model.Chunk, targetTokens int) (*cachedResult, error) {
	if s.llm == nil {
		return nil, ErrNoCompleter
	}

	var transcript strings.Builder
	for i, c := range chunks {
		role := c.Meta.Role
		if role == "" {
			role = model.RoleUser
		}
		fmt.Fprintf(&transcript, "[%d] %s: %s\n", i, role, c.Content)
	}

	resp, err := s.llm.Complete(ctx, llm.Request{
		Model:       s.cfg.Model,
		Temperature: s.cfg.Temperature,
		MaxTokens:   targetTokens + 500,
		Messages: []model.Message{
			{Role: model.RoleSystem, Content: fmt.Sprintf(systemPrompt, targetTokens)},
			{Role: model.RoleUser, Content: transcript.String()},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("complete: %w", err)
	}

	parsed, err := parseResponse(resp.Content)
	if err != nil {
		return nil, err
	}

	sourceTime := newest(chunks)
	res := &cachedResult{Summary: strings.TrimSpace(parsed.Summary), ImportantIndices: parsed.ImportantMessages}
	for _, f := range parsed.Facts {
		conf := f.Confidence
		if conf <= 0 {
			conf = 0.5
		}
		res.Facts = append(res.Facts, Fact{Content: f.Content, Confidence: min(conf, 1), SourceTime: sourceTime})
	}
	return res, nil
}

// parseResponse tolerates code fences, comments and trailing commas, and
// text around the JSON object.
func parseResponse(raw string) (*llmResult, error) {
	text := stripCodeFence(raw)
	var res llmResult
	if err := json.Unmarshal(jsonc.ToJSON([]byte(text)), &res); err != nil {
		obj, ok := extractObject(text)
		if !ok {
			return nil, fmt.Errorf("parse llm response: %w", err)
		}
		res = llmResult{}
		if err := json.Unmarshal(jsonc.ToJSON([]byte(obj)), &res); err != nil {
			return nil, fmt.Errorf("parse llm response object: %w", err)
		}
	}
	if strings.TrimSpace(res.Summary) == "" {
		return nil, errEmptySummary
	}
	return &res, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// extractObject returns the first balanced {...} in s, skipping braces inside
// JSON strings.
func extractObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		ch := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// clip cuts text to roughly maxTokens.
func (s *Summarizer) clip(text string, maxTokens int) string {
	n := s.counter.CountTokens(text, "")
	if n <= maxTokens {
		return text
	}
	runes := []rune(text)
	keep := len(runes) * maxTokens / n
	for keep > 0 && s.counter.CountTokens(string(runes[:keep]), "") > maxTokens {
		keep--
	}
	return string(runes[:keep])
}

func newest(chunks []*model.Chunk) time.Time {
	var t time.Time
	for _, c := range chunks {
		if c.CreatedAt.After(t) {
			t = c.CreatedAt
		}
	}
	return t
}
