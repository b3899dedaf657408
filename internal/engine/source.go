package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rcliao/agent-context/internal/chunker"
	"github.com/rcliao/agent-context/internal/model"
	"github.com/rcliao/agent-context/internal/tokens"
)

const (
	ThreadSourceName = "thread"
	MemorySourceName = "memory"

	threadPriority = 100
	memoryPriority = 50

	// MemoryPrefix marks injected long-term memory in the prompt.
	MemoryPrefix = "[Memory] "

	defaultMaxMemories = 20
)

// FetchRequest is what a source is asked for during one compile.
type FetchRequest struct {
	ThreadID      string
	AccountID     string
	Query         string
	LimitTokens   int // <= 0 means unlimited
	IncludeMemory bool
}

// Source produces context chunks. Fetch may be called concurrently with other
// sources' Fetch.
type Source interface {
	Name() string
	Priority() int
	Fetch(ctx context.Context, req FetchRequest) ([]*model.Chunk, error)
}

// ThreadStore reads the message history of a thread.
type ThreadStore interface {
	ListMessages(ctx context.Context, threadID string, limit int) ([]model.StoredMessage, error)
}

// MemoryRetriever looks up long-term memories of an account.
type MemoryRetriever interface {
	Retrieve(ctx context.Context, accountID, query string, limit int) ([]model.Memory, error)
}

var rolePriority = map[string]float64{
	model.RoleSystem:    1.0,
	model.RoleUser:      0.8,
	model.RoleAssistant: 0.6,
	model.RoleTool:      0.4,
}

// ThreadSource turns the stored messages of a thread into chunks.
type ThreadSource struct {
	store   ThreadStore
	counter tokens.Counter
	log     *zap.Logger
}

func NewThreadSource(store ThreadStore, counter tokens.Counter, log *zap.Logger) *ThreadSource {
	if counter == nil {
		counter = tokens.NewEstimator()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ThreadSource{store: store, counter: counter, log: log}
}

func (s *ThreadSource) Name() string { return ThreadSourceName }

func (s *ThreadSource) Priority() int { return threadPriority }

// Fetch returns the newest messages of the thread that fit LimitTokens, in
// chronological order. Messages whose payload does not decode are dropped.
func (s *ThreadSource) Fetch(ctx context.Context, req FetchRequest) ([]*model.Chunk, error) {
	if req.ThreadID == "" {
		return nil, nil
	}
	stored, err := s.store.ListMessages(ctx, req.ThreadID, 0)
	if err != nil {
		return nil, fmt.Errorf("list thread %s: %w", req.ThreadID, err)
	}

	var out []*model.Chunk
	used := 0
	for i := len(stored) - 1; i >= 0; i-- {
		sm := stored[i]
		msg, err := sm.Decode()
		if err != nil {
			s.log.Warn("dropping undecodable message", zap.String("thread", req.ThreadID), zap.Error(err))
			continue
		}
		n := s.counter.CountMessageTokens([]model.Message{msg})
		if req.LimitTokens > 0 && used+n > req.LimitTokens {
			break
		}
		used += n
		prio, ok := rolePriority[msg.Role]
		if !ok {
			prio = 0.5
		}
		out = append(out, &model.Chunk{
			Content:   msg.Content,
			Source:    ThreadSourceName,
			Tokens:    n,
			Priority:  prio,
			CreatedAt: sm.CreatedAt,
			MessageID: sm.ID,
			Meta: model.Meta{
				Role:       msg.Role,
				Name:       msg.Name,
				ToolCallID: msg.ToolCallID,
				ToolCalls:  msg.ToolCalls,
			},
		})
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// MemorySource injects long-term memories of the account as system chunks.
// Long memories are split so that a budget can take part of them.
type MemorySource struct {
	retriever   MemoryRetriever
	counter     tokens.Counter
	maxMemories int
	chunking    chunker.Options
}

func NewMemorySource(r MemoryRetriever, counter tokens.Counter) *MemorySource {
	if counter == nil {
		counter = tokens.NewEstimator()
	}
	opts := chunker.DefaultOptions()
	opts.Counter = counter
	return &MemorySource{retriever: r, counter: counter, maxMemories: defaultMaxMemories, chunking: opts}
}

func (s *MemorySource) Name() string { return MemorySourceName }

func (s *MemorySource) Priority() int { return memoryPriority }

// Fetch returns memory pieces in retrieval order, skipping pieces that would
// overflow LimitTokens.
func (s *MemorySource) Fetch(ctx context.Context, req FetchRequest) ([]*model.Chunk, error) {
	if !req.IncludeMemory || req.AccountID == "" {
		return nil, nil
	}
	mems, err := s.retriever.Retrieve(ctx, req.AccountID, req.Query, s.maxMemories)
	if err != nil {
		return nil, fmt.Errorf("retrieve memories: %w", err)
	}

	var out []*model.Chunk
	used := 0
	for _, m := range mems {
		for i, p := range chunker.Chunk(m.Content, s.chunking) {
			content := MemoryPrefix + p.Text
			n := s.counter.CountTokens(content, "")
			if req.LimitTokens > 0 && used+n > req.LimitTokens {
				continue
			}
			used += n
			out = append(out, &model.Chunk{
				Content:   content,
				Source:    MemorySourceName,
				Tokens:    n,
				Priority:  model.PriorityWeight(m.Priority),
				CreatedAt: m.CreatedAt,
				MessageID: fmt.Sprintf("memory:%s:%d", m.ID, i),
				Meta:      model.Meta{Role: model.RoleSystem},
			})
		}
	}
	return out, nil
}
