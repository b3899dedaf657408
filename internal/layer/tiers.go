package layer

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/rcliao/agent-context/internal/model"
	"github.com/rcliao/agent-context/internal/summarize"
)

const (
	workingRetryTokens   = 1000
	workingToolTokens    = 2000
	recentToolTokens     = 1000
	recentAssistTokens   = 1500
	archivedSummaryLimit = 2000

	// SummarySource names the source of archived summary chunks.
	SummarySource = "summary"
)

// workingLayer holds the newest turns verbatim.
type workingLayer struct{ base }

func (l *workingLayer) Process(_ context.Context, chunks []*model.Chunk, _ *summarize.Session) []*model.Chunk {
	return l.admitAll(chunks, func(c *model.Chunk) *model.Chunk {
		if isTool(c) && c.Tokens > workingToolTokens && l.deps.Compressor != nil {
			c = l.deps.Compressor.Light(c)
		}
		if l.fits(c) {
			return c
		}
		if c.Tokens > workingRetryTokens && l.deps.Compressor != nil {
			if small := l.deps.Compressor.Light(c); l.fits(small) {
				return small
			}
		}
		return nil
	})
}

// recentLayer keeps user turns intact and trims bulky tool and assistant output.
type recentLayer struct{ base }

func (l *recentLayer) Process(_ context.Context, chunks []*model.Chunk, _ *summarize.Session) []*model.Chunk {
	return l.admitAll(chunks, func(c *model.Chunk) *model.Chunk {
		if !l.fits(c) {
			if l.deps.Compressor == nil {
				return nil
			}
			if small := l.deps.Compressor.Light(c); l.fits(small) {
				return small
			}
			return nil
		}
		switch {
		case c.Meta.Role == model.RoleUser:
			return c
		case isTool(c) && c.Tokens > recentToolTokens,
			c.Meta.Role == model.RoleAssistant && c.Tokens > recentAssistTokens:
			return l.light(c)
		default:
			return c
		}
	})
}

// historicalLayer heavy-compresses everything but user turns.
type historicalLayer struct{ base }

func (l *historicalLayer) Process(_ context.Context, chunks []*model.Chunk, _ *summarize.Session) []*model.Chunk {
	return l.admitAll(chunks, func(c *model.Chunk) *model.Chunk {
		if c.Meta.Role != model.RoleUser && l.deps.Compressor != nil {
			c = l.deps.Compressor.Heavy(c)
		}
		if l.fits(c) {
			return c
		}
		return nil
	})
}

// archivedLayer collapses its whole input into one summary chunk when a
// summarizer is available. Otherwise, or when the summary does not fit, it
// keeps heavy-compressed originals.
type archivedLayer struct{ base }

func (l *archivedLayer) Process(ctx context.Context, chunks []*model.Chunk, sess *summarize.Session) []*model.Chunk {
	l.Reset()
	if len(chunks) == 0 {
		return nil
	}

	if summary := l.summarize(ctx, chunks, sess); summary != nil && l.fits(summary) {
		l.add(summary)
		for _, c := range chunks {
			if !c.IsPinned() {
				continue
			}
			if l.fits(c) {
				l.add(c)
			}
		}
		l.dropped = len(chunks) - (len(l.chunks) - 1)
		return l.chunks
	}

	return l.admitAll(chunks, func(c *model.Chunk) *model.Chunk {
		if !c.IsPinned() && l.deps.Compressor != nil {
			c = l.deps.Compressor.Heavy(c)
		}
		if l.fits(c) {
			return c
		}
		return nil
	})
}

func (l *archivedLayer) summarize(ctx context.Context, chunks []*model.Chunk, sess *summarize.Session) *model.Chunk {
	if l.deps.Summarizer == nil || sess == nil {
		return nil
	}
	target := min(archivedSummaryLimit, l.cfg.Tokens)
	if target <= 0 {
		return nil
	}
	text := l.deps.Summarizer.Summarize(ctx, sess, chunks, target)
	if text == "" {
		return nil
	}

	original := model.TotalTokens(chunks)
	tok := l.deps.Counter.CountTokens(text, "")
	var created time.Time
	for _, c := range chunks {
		if !c.CreatedAt.IsZero() && (created.IsZero() || c.CreatedAt.Before(created)) {
			created = c.CreatedAt
		}
	}
	l.deps.Log.Debug("archived history summarized",
		zap.Int("chunks", len(chunks)),
		zap.Int("original_tokens", original),
		zap.Int("summary_tokens", tok))

	return &model.Chunk{
		Content:   text,
		Source:    SummarySource,
		Tokens:    tok,
		Priority:  0.5,
		CreatedAt: created,
		MessageID: "summary-" + ulid.Make().String(),
		Meta: model.Meta{
			Role:           model.RoleSystem,
			Summary:        true,
			Compressed:     true,
			OriginalTokens: original,
		},
	}
}
