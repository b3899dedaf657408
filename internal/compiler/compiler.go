// Package compiler assembles layered, budget-bounded prompts from chunks.
package compiler

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rcliao/agent-context/internal/compress"
	"github.com/rcliao/agent-context/internal/embedding"
	"github.com/rcliao/agent-context/internal/importance"
	"github.com/rcliao/agent-context/internal/layer"
	"github.com/rcliao/agent-context/internal/model"
	"github.com/rcliao/agent-context/internal/ranker"
	"github.com/rcliao/agent-context/internal/summarize"
	"github.com/rcliao/agent-context/internal/tokens"
)

// Tail window sizes used when a layer has no message cap.
const (
	defaultWorkingWindow    = 10
	defaultRecentWindow     = 30
	defaultHistoricalWindow = 100
)

// FactsHeader opens the system message that carries preserved facts.
const FactsHeader = "PRESERVED FACTS:"

// Rules toggle compile behaviour per request.
type Rules struct {
	SemanticRanking    bool    `yaml:"semantic_ranking" json:"semantic_ranking"`
	Dedup              bool    `yaml:"dedup" json:"dedup"`
	IncludeMemory      bool    `yaml:"include_memory" json:"include_memory"`
	RelevanceThreshold float64 `yaml:"relevance_threshold" json:"relevance_threshold"`
	TimeDecayHours     float64 `yaml:"time_decay_hours" json:"time_decay_hours"`
	// ImportantMessageIDs are ids an LLM flagged in an earlier compile. When
	// set they replace the importance heuristics for user messages.
	ImportantMessageIDs []string `yaml:"-" json:"important_message_ids,omitempty"`
}

func DefaultRules() Rules {
	return Rules{
		SemanticRanking: true,
		Dedup:           true,
		IncludeMemory:   true,
		TimeDecayHours:  24,
	}
}

// Request is the input of one compile.
type Request struct {
	Chunks         []*model.Chunk
	QueryEmbedding embedding.Vector
	Rules          Rules
	SystemPrompt   string
}

type CompressionStats struct {
	LLMSummarizations int `json:"llm_summarizations"`
	CompressedChunks  int `json:"compressed_chunks"`
	FactsPreserved    int `json:"facts_preserved"`
}

// Result is a compiled prompt with accounting. TotalTokens covers layer and
// fact tokens; the caller's system prompt is counted in SystemPromptTokens.
type Result struct {
	Messages            []model.Message                `json:"messages"`
	SystemPrompt        string                         `json:"system_prompt,omitempty"`
	TotalTokens         int                            `json:"total_tokens"`
	SystemPromptTokens  int                            `json:"system_prompt_tokens,omitempty"`
	LayerStats          map[model.Layer]layer.Stats    `json:"layer_stats"`
	SourceTokens        map[string]int                 `json:"source_tokens"`
	ChunksByLayer       map[model.Layer][]*model.Chunk `json:"-"`
	Compression         CompressionStats               `json:"compression"`
	ImportantMessageIDs []string                       `json:"important_message_ids,omitempty"`
	Facts               []summarize.Fact               `json:"facts,omitempty"`
	SessionID           string                         `json:"session_id"`
}

// Compiler is safe for concurrent use; every Compile builds its own layers
// and summarizer session.
type Compiler struct {
	layers     layer.LayersConfig
	compressor *compress.Compressor
	summarizer *summarize.Summarizer
	ranker     *ranker.Ranker
	marker     *importance.Marker
	counter    tokens.Counter
	log        *zap.Logger
}

type Option func(*Compiler)

func WithCompressor(c *compress.Compressor) Option { return func(cp *Compiler) { cp.compressor = c } }

// WithSummarizer enables archived-layer summarization.
func WithSummarizer(s *summarize.Summarizer) Option { return func(cp *Compiler) { cp.summarizer = s } }

func WithRanker(r *ranker.Ranker) Option { return func(cp *Compiler) { cp.ranker = r } }

func WithCounter(c tokens.Counter) Option { return func(cp *Compiler) { cp.counter = c } }

func WithLogger(l *zap.Logger) Option { return func(cp *Compiler) { cp.log = l } }

// New validates the layer configuration and builds a Compiler.
func New(layers layer.LayersConfig, opts ...Option) (*Compiler, error) {
	if err := layers.Validate(); err != nil {
		return nil, fmt.Errorf("compiler layers: %w", err)
	}
	c := &Compiler{
		layers: layers,
		marker: importance.NewMarker(),
		log:    zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.counter == nil {
		c.counter = tokens.NewEstimator()
	}
	if c.compressor == nil {
		c.compressor = compress.New(compress.DefaultConfig(), c.counter)
	}
	if c.ranker == nil {
		c.ranker = ranker.New(ranker.DefaultConfig())
	}
	return c, nil
}

// LayerBudgets returns the token cap of each layer.
func (c *Compiler) LayerBudgets() map[model.Layer]int {
	return c.layers.Budgets()
}

// Compile runs the full pipeline over req.Chunks. Chunks are marked, scored
// and assigned to layers in place.
func (c *Compiler) Compile(ctx context.Context, req Request) (*Result, error) {
	var sess *summarize.Session
	sessionID := uuid.NewString()
	if c.summarizer != nil {
		sess = c.summarizer.NewSession()
		sessionID = sess.ID
	}
	layers, err := layer.NewAll(c.layers, layer.Deps{
		Compressor: c.compressor,
		Summarizer: c.summarizer,
		Counter:    c.counter,
		Log:        c.log,
	})
	if err != nil {
		return nil, fmt.Errorf("build layers: %w", err)
	}

	rules := req.Rules
	c.marker.Mark(req.Chunks, idSet(rules.ImportantMessageIDs))

	rk := c.ranker.WithThreshold(rules.RelevanceThreshold).WithStabilityHours(rules.TimeDecayHours)
	if rules.SemanticRanking && len(req.QueryEmbedding) > 0 {
		rk = rk.WithQuery(req.QueryEmbedding)
	}
	rk.ScoreAll(req.Chunks)

	chunks := append([]*model.Chunk(nil), req.Chunks...)
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].CreatedAt.Before(chunks[j].CreatedAt)
	})
	if rules.Dedup {
		chunks = dedup(chunks)
	}

	units, complete, open := groupToolCalls(chunks)
	assigned := c.assign(units)

	historicalCap := c.layers.Historical.Tokens
	if hist := assigned[model.LayerHistorical]; model.TotalTokens(hist) > historicalCap {
		selected := rk.SelectOptimal(hist, historicalCap)
		assigned[model.LayerHistorical] = keepWholeGroups(selected, complete)
	}

	for _, l := range model.Layers {
		layers[l].Process(ctx, assigned[l], sess)
	}

	res := &Result{
		SystemPrompt:  req.SystemPrompt,
		LayerStats:    make(map[model.Layer]layer.Stats, len(model.Layers)),
		SourceTokens:  make(map[string]int),
		ChunksByLayer: make(map[model.Layer][]*model.Chunk, len(model.Layers)),
		SessionID:     sessionID,
	}

	broken := brokenGroups(layers, complete)

	if req.SystemPrompt != "" {
		msg := model.Message{Role: model.RoleSystem, Content: req.SystemPrompt}
		res.Messages = append(res.Messages, msg)
		res.SystemPromptTokens = c.counter.CountTokens(msg.Content, "")
	}
	if sess != nil && sess.Facts().Len() > 0 {
		content := FactsHeader + "\n" + sess.Facts().Render()
		res.Messages = append(res.Messages, model.Message{Role: model.RoleSystem, Content: content})
		res.TotalTokens += c.counter.CountTokens(content, "")
		res.Facts = sess.Facts().All()
	}

	kept := 0
	// Oldest tiers first so the prompt reads chronologically.
	for i := len(model.Layers) - 1; i >= 0; i-- {
		l := model.Layers[i]
		stats := layers[l].Stats()
		var final []*model.Chunk
		for _, ch := range layers[l].Chunks() {
			if broken[ch.ToolCallGroupID] {
				stats.Dropped++
				stats.Chunks--
				stats.Tokens -= ch.Tokens
				if ch.Meta.Compressed {
					stats.Compressed--
				}
				continue
			}
			final = append(final, ch)
			res.Messages = append(res.Messages, ch.ToMessage())
			res.SourceTokens[ch.Source] += ch.Tokens
		}
		if stats.MaxTokens > 0 {
			stats.Utilization = float64(stats.Tokens) / float64(stats.MaxTokens)
		}
		kept += len(final)
		res.ChunksByLayer[l] = final
		res.LayerStats[l] = stats
		res.TotalTokens += stats.Tokens
		res.Compression.CompressedChunks += stats.Compressed
	}

	if sess != nil {
		res.Compression.LLMSummarizations = sess.LLMCalls()
		res.Compression.FactsPreserved = sess.Facts().Len()
		res.ImportantMessageIDs = sess.ImportantIDs()
	}

	c.log.Debug("context compiled",
		zap.String("session", sessionID),
		zap.Int("input_chunks", len(req.Chunks)),
		zap.Int("kept_chunks", kept),
		zap.Int("open_tool_groups", open),
		zap.Int("broken_tool_groups", len(broken)),
		zap.Int("total_tokens", res.TotalTokens),
		zap.Int("llm_summarizations", res.Compression.LLMSummarizations))
	return res, nil
}

// assign places units into tiers by walking back from the newest message
// through the working, recent and historical windows; everything older is
// archived. Units holding a pinned chunk are then moved to the front of the
// working tier.
func (c *Compiler) assign(units []unit) map[model.Layer][]*model.Chunk {
	working := windowOr(c.layers.Working.Messages, defaultWorkingWindow)
	recent := working + windowOr(c.layers.Recent.Messages, defaultRecentWindow)
	historical := recent + windowOr(c.layers.Historical.Messages, defaultHistoricalWindow)

	tiers := make([]model.Layer, len(units))
	seen := 0
	for i := len(units) - 1; i >= 0; i-- {
		switch {
		case seen < working:
			tiers[i] = model.LayerWorking
		case seen < recent:
			tiers[i] = model.LayerRecent
		case seen < historical:
			tiers[i] = model.LayerHistorical
		default:
			tiers[i] = model.LayerArchived
		}
		seen += len(units[i].chunks())
	}

	out := make(map[model.Layer][]*model.Chunk, len(model.Layers))
	var promoted []*model.Chunk
	for i, u := range units {
		if tiers[i] != model.LayerWorking && u.pinned() {
			promoted = append(promoted, u.chunks()...)
			continue
		}
		out[tiers[i]] = append(out[tiers[i]], u.chunks()...)
	}
	out[model.LayerWorking] = append(promoted, out[model.LayerWorking]...)
	return out
}

func windowOr(n, def int) int {
	if n > 0 {
		return n
	}
	return def
}

// dedup drops repeated message ids, keeping the first. Chunks without an id
// are always kept.
func dedup(chunks []*model.Chunk) []*model.Chunk {
	seen := make(map[string]bool, len(chunks))
	out := chunks[:0:0]
	for _, c := range chunks {
		if c.MessageID != "" {
			if seen[c.MessageID] {
				continue
			}
			seen[c.MessageID] = true
		}
		out = append(out, c)
	}
	return out
}

// keepWholeGroups removes selected members of complete tool-call groups that
// were only partly selected.
func keepWholeGroups(selected []*model.Chunk, complete map[string]int) []*model.Chunk {
	picked := make(map[string]int)
	for _, c := range selected {
		if c.ToolCallGroupID != "" {
			picked[c.ToolCallGroupID]++
		}
	}
	out := selected[:0:0]
	for _, c := range selected {
		if size, ok := complete[c.ToolCallGroupID]; ok && picked[c.ToolCallGroupID] != size {
			continue
		}
		out = append(out, c)
	}
	return out
}

// brokenGroups returns complete tool-call groups that lost members during
// layer processing. Groups with a pinned member are never reported.
func brokenGroups(layers map[model.Layer]layer.Layer, complete map[string]int) map[string]bool {
	present := make(map[string]int)
	pinned := make(map[string]bool)
	for _, l := range model.Layers {
		for _, ch := range layers[l].Chunks() {
			id := ch.ToolCallGroupID
			if _, ok := complete[id]; !ok {
				continue
			}
			present[id]++
			if ch.IsPinned() {
				pinned[id] = true
			}
		}
	}
	broken := make(map[string]bool)
	for id, n := range present {
		if n != complete[id] && !pinned[id] {
			broken[id] = true
		}
	}
	return broken
}

func idSet(ids []string) map[string]bool {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
