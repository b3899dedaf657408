// Package engine is the entry point of context compilation: it fetches chunks
// from every source within a token budget, embeds them when semantic ranking
// is on, and hands them to the compiler.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rcliao/agent-context/internal/budget"
	"github.com/rcliao/agent-context/internal/compiler"
	"github.com/rcliao/agent-context/internal/embedding"
	"github.com/rcliao/agent-context/internal/model"
	"github.com/rcliao/agent-context/internal/tokens"
)

const (
	embedBatchSize = 50
	maxEmbedChunks = 200
)

// Request is one compile of a thread for an account.
type Request struct {
	ThreadID     string
	AccountID    string
	Query        string
	SystemPrompt string
	Rules        *compiler.Rules // nil uses compiler.DefaultRules
}

// Result is the compiled context plus how the budget was spent. Rebalanced is
// the source allocation for the next turn: sources that came in under budget
// shrink to their usage and the slack goes to those that filled theirs.
type Result struct {
	*compiler.Result
	Allocation  budget.AllocationResult `json:"allocation"`
	SourceUsage map[string]int          `json:"source_usage"`
	Rebalanced  map[string]int          `json:"rebalanced"`
	Embedded    int                     `json:"embedded"`
}

// Engine is safe for concurrent use.
type Engine struct {
	sources  []Source
	compiler *compiler.Compiler
	budget   *budget.TokenBudget
	embedder embedding.Embedder
	counter  tokens.Counter
	log      *zap.Logger
}

type Option func(*Engine)

// WithSources adds sources after the thread source.
func WithSources(s ...Source) Option { return func(e *Engine) { e.sources = append(e.sources, s...) } }

// WithEmbedder enables query and chunk embedding for semantic ranking.
func WithEmbedder(em embedding.Embedder) Option { return func(e *Engine) { e.embedder = em } }

func WithCounter(c tokens.Counter) Option { return func(e *Engine) { e.counter = c } }

func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.log = l } }

// New builds an Engine. A ThreadSource over threads is placed first unless
// one of the given sources is already named "thread", in which case that
// source is moved to the front.
func New(threads ThreadStore, cmp *compiler.Compiler, b *budget.TokenBudget, opts ...Option) (*Engine, error) {
	if cmp == nil || b == nil {
		return nil, errors.New("engine: compiler and budget are required")
	}
	e := &Engine{compiler: cmp, budget: b, log: zap.NewNop()}
	for _, o := range opts {
		o(e)
	}
	if e.counter == nil {
		e.counter = tokens.NewEstimator()
	}

	idx := -1
	for i, s := range e.sources {
		if s.Name() == ThreadSourceName {
			idx = i
			break
		}
	}
	switch {
	case idx > 0:
		s := e.sources[idx]
		e.sources = append(e.sources[:idx:idx], e.sources[idx+1:]...)
		e.sources = append([]Source{s}, e.sources...)
	case idx < 0:
		if threads == nil {
			return nil, errors.New("engine: a thread store or thread source is required")
		}
		e.sources = append([]Source{NewThreadSource(threads, e.counter, e.log)}, e.sources...)
	}
	return e, nil
}

// Sources returns the sources in fetch order.
func (e *Engine) Sources() []Source {
	return append([]Source(nil), e.sources...)
}

// Compile fetches, embeds and compiles the context for req. Failing sources
// and embedding batches degrade the result instead of failing it.
func (e *Engine) Compile(ctx context.Context, req Request) (*Result, error) {
	rules := normalizeRules(req.Rules)

	specs := make([]budget.SourceSpec, len(e.sources))
	for i, s := range e.sources {
		specs[i] = budget.SourceSpec{Name: s.Name(), Priority: s.Priority()}
	}
	alloc := e.budget.AllocateToSources(specs, e.compiler.LayerBudgets())

	fetched := e.fetchAll(ctx, req, rules, alloc.SourceAllocations)

	usage := budget.NewUsage()
	var chunks []*model.Chunk
	for i, s := range e.sources {
		usage.Track(s.Name(), model.TotalTokens(fetched[i]))
		chunks = append(chunks, fetched[i]...)
	}
	if e.budget.IsOverBudget(usage) {
		e.log.Info("sources exceed the token budget, compiler will trim",
			zap.Int("overage", e.budget.Overage(usage)))
	}

	var query embedding.Vector
	embedded := 0
	if rules.SemanticRanking && req.Query != "" && e.embedder != nil {
		v, err := e.embedder.Embed(ctx, req.Query)
		if err != nil {
			e.log.Warn("query embedding failed, ranking without similarity", zap.Error(err))
		} else {
			query = v
			embedded = e.embedChunks(ctx, chunks)
		}
	}

	res, err := e.compiler.Compile(ctx, compiler.Request{
		Chunks:         chunks,
		QueryEmbedding: query,
		Rules:          rules,
		SystemPrompt:   req.SystemPrompt,
	})
	if err != nil {
		return nil, fmt.Errorf("compile context: %w", err)
	}

	e.log.Debug("engine compile done",
		zap.String("thread", req.ThreadID),
		zap.Int("chunks", len(chunks)),
		zap.Int("embedded", embedded),
		zap.Int("total_tokens", res.TotalTokens))

	used := usage.Snapshot()
	return &Result{
		Result:      res,
		Allocation:  alloc,
		SourceUsage: used,
		Rebalanced:  budget.Rebalance(used, alloc.SourceAllocations),
		Embedded:    embedded,
	}, nil
}

// fetchAll runs every source concurrently. A source that errors or panics
// contributes no chunks.
func (e *Engine) fetchAll(ctx context.Context, req Request, rules compiler.Rules, alloc map[string]int) [][]*model.Chunk {
	out := make([][]*model.Chunk, len(e.sources))
	var g errgroup.Group
	for i, s := range e.sources {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					e.log.Error("source panicked", zap.String("source", s.Name()), zap.Any("panic", r))
				}
			}()
			chunks, err := s.Fetch(ctx, FetchRequest{
				ThreadID:      req.ThreadID,
				AccountID:     req.AccountID,
				Query:         req.Query,
				LimitTokens:   alloc[s.Name()],
				IncludeMemory: rules.IncludeMemory,
			})
			if err != nil {
				e.log.Warn("source fetch failed", zap.String("source", s.Name()), zap.Error(err))
				return nil
			}
			out[i] = chunks
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// embedChunks embeds the newest chunks that have no embedding yet, in
// batches. A failed batch leaves its chunks without embeddings. It returns
// how many chunks were embedded.
func (e *Engine) embedChunks(ctx context.Context, chunks []*model.Chunk) int {
	var pending []*model.Chunk
	for _, c := range chunks {
		if len(c.Embedding) == 0 && c.Content != "" {
			pending = append(pending, c)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].CreatedAt.After(pending[j].CreatedAt)
	})
	if len(pending) > maxEmbedChunks {
		pending = pending[:maxEmbedChunks]
	}

	done := 0
	for start := 0; start < len(pending); start += embedBatchSize {
		batch := pending[start:min(start+embedBatchSize, len(pending))]
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}
		vecs, err := e.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			e.log.Warn("embedding batch failed", zap.Int("offset", start), zap.Int("size", len(batch)), zap.Error(err))
			continue
		}
		if len(vecs) != len(batch) {
			e.log.Warn("embedding batch size mismatch", zap.Int("want", len(batch)), zap.Int("got", len(vecs)))
			continue
		}
		for i, c := range batch {
			c.Embedding = vecs[i]
		}
		done += len(batch)
	}
	return done
}

func normalizeRules(r *compiler.Rules) compiler.Rules {
	if r == nil {
		return compiler.DefaultRules()
	}
	out := *r
	if out.TimeDecayHours <= 0 {
		out.TimeDecayHours = compiler.DefaultRules().TimeDecayHours
	}
	out.RelevanceThreshold = min(max(out.RelevanceThreshold, 0), 1)
	return out
}
