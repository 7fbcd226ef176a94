package runloop

import (
	"context"

	"go.uber.org/zap"
)

const summaryInstructions = "Summarize the following conversation history into a single " +
	"compact paragraph. Preserve decisions, requirements, open questions, and any " +
	"identifiers (names, paths, ids) needed to continue the conversation. Reply with " +
	"the summary text only."

// Compactor reduces conversation token footprint by summarizing older
// messages once the state crosses its compaction threshold. The most recent
// RecentMessageCount messages are always retained verbatim and in order.
type Compactor struct {
	gen     Generator
	counter *TokenCounter
	log     *zap.Logger
}

// NewCompactor creates a Compactor using gen to summarize.
func NewCompactor(gen Generator, counter *TokenCounter, log *zap.Logger) *Compactor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Compactor{gen: gen, counter: counter, log: log}
}

// Compact returns a state at or below the compaction target. Under the
// threshold it is a no-op returning the input unchanged, so calling it twice
// on the same under-threshold state yields identical output. Over the
// threshold, all messages before the retained tail are summarized into
// exactly one summary message; if the summarizer fails, the oldest messages
// are dropped instead until the total fits, the tail untouched either way.
func (c *Compactor) Compact(ctx context.Context, state *ConversationState) *ConversationState {
	if state.TotalTokens < state.CompactionThreshold {
		return state
	}
	if len(state.Messages) <= state.RecentMessageCount {
		// Nothing older than the retained tail to compact.
		c.log.Warn("compaction skipped: retained tail spans the whole history",
			zap.Int("total_tokens", state.TotalTokens),
			zap.Int("messages", len(state.Messages)))
		return state
	}

	split := len(state.Messages) - state.RecentMessageCount
	older := state.Messages[:split]
	tail := state.Messages[split:]

	summaryText, err := c.gen.Generate(ctx, older, summaryInstructions)
	if err != nil {
		c.log.Warn("compaction degraded: summarizer failed, truncating oldest messages",
			zap.Error(err))
		return c.truncate(state, older, tail)
	}

	summary := NewMessage(RoleSummary, summaryText, c.counter)

	out := state.Clone()
	out.Messages = append([]Message{summary}, cloneMessages(tail)...)
	out.Recount()

	if out.TotalTokens > out.TargetAfterCompaction {
		// Soft condition: the summarizer is external and may overshoot.
		c.log.Warn("compaction overshot target",
			zap.Int("total_tokens", out.TotalTokens),
			zap.Int("target", out.TargetAfterCompaction))
	}
	return out
}

// truncate drops the oldest pre-tail messages one at a time until the total
// fits under the target. The tail survives unconditionally, even when it
// alone exceeds the target.
func (c *Compactor) truncate(state *ConversationState, older, tail []Message) *ConversationState {
	tailTokens := 0
	for _, m := range tail {
		tailTokens += m.TokenCount
	}

	keptTokens := 0
	for _, m := range older {
		keptTokens += m.TokenCount
	}
	kept := older
	for len(kept) > 0 && tailTokens+keptTokens > state.TargetAfterCompaction {
		keptTokens -= kept[0].TokenCount
		kept = kept[1:]
	}

	out := state.Clone()
	out.Messages = append(cloneMessages(kept), cloneMessages(tail)...)
	out.Recount()
	return out
}

func cloneMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}
