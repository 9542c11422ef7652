package sentiment

import (
	"fmt"

	"QuantLens/internal/domain/service"
	applogger "QuantLens/pkg/logger"
)

// NewExtractor returns the extractor named by cfg.Strategy.
func NewExtractor(cfg Config, l *applogger.Logger) (service.SentimentExtractor, error) {
	if l == nil {
		l = applogger.Nop()
	}
	l = l.With("sentiment")

	switch cfg.Strategy {
	case "", StrategyKeyword:
		return NewKeywordExtractor(cfg.Keyword, l), nil
	case StrategyLLM:
		return NewLLMExtractor(cfg.LLM, l)
	case StrategyRemote:
		return NewRemoteExtractor(cfg.Remote, l)
	default:
		return nil, fmt.Errorf("unknown sentiment strategy %q", cfg.Strategy)
	}
}
