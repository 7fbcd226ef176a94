package runloop

import (
	"time"

	"go.uber.org/zap"
)

// Config holds configuration for a Loop.
type Config struct {
	MaxAttempts        int           `json:"max_attempts"`         // verify/refine attempt cap
	QualityThreshold   float64       `json:"quality_threshold"`    // minimum passing judge score
	VerifyFailClosed   bool          `json:"verify_fail_closed"`   // treat judge outages as failures
	MaxConcurrentTools int           `json:"max_concurrent_tools"` // dispatcher worker limit per wave
	CancelGrace        time.Duration `json:"cancel_grace"`         // in-flight tool grace after cancel

	EnableContextLoading bool `json:"enable_context_loading"`
	ContextTokenBudget   int  `json:"context_token_budget"`
	SearchTopK           int  `json:"search_top_k"`
	CacheCapacity        int  `json:"cache_capacity"`

	CompactionThreshold   int `json:"compaction_threshold"`
	TargetAfterCompaction int `json:"target_after_compaction"`
	RecentMessageCount    int `json:"recent_message_count"`

	Logger *zap.Logger `json:"-"`
}

// DefaultConfig returns the default configuration. Verification fails open:
// a judge outage never blocks delivering a response.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:           3,
		QualityThreshold:      0.7,
		VerifyFailClosed:      false,
		MaxConcurrentTools:    5,
		CancelGrace:           2 * time.Second,
		EnableContextLoading:  true,
		ContextTokenBudget:    2000,
		SearchTopK:            10,
		CacheCapacity:         128,
		CompactionThreshold:   8000,
		TargetAfterCompaction: 4000,
		RecentMessageCount:    5,
	}
}

// logger returns the configured logger or a nop logger.
func (c Config) logger() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop()
}
