package sentiment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"QuantLens/internal/domain/errs"
	"QuantLens/internal/domain/models"
	applogger "QuantLens/pkg/logger"
)

const llmSystemPrompt = `You score earnings-call transcripts for a quantitative backtest.
Reply with a single JSON object and nothing else, using this shape:
{"overall":0.5,"confidence":0.5,
 "managementTone":{"optimism":0.5,"confidence":0.5,"defensiveness":0.5},
 "analystReaction":{"satisfaction":0.5,"skepticism":0.5},
 "guidanceSignal":{"direction":"raised|maintained|lowered|none","strength":0.5},
 "keyMetrics":{"revenue":0.5,"earnings":0.5,"margin":0.5}}
Every number is in [0,1]. For overall, guidance strength and key metrics 0.5 is neutral,
above 0.5 is positive and below is negative. confidence is how sure you are of the scores.`

// MessageClient is the subset of the Anthropic messages API the extractor uses.
type MessageClient interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// LLMExtractor asks a Claude model to score the transcript.
type LLMExtractor struct {
	cfg      LLMConfig
	messages MessageClient
	l        *applogger.Logger
}

// NewLLMExtractor builds an extractor backed by the Anthropic API.
func NewLLMExtractor(cfg LLMConfig, l *applogger.Logger) (*LLMExtractor, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("sentiment.llm.api_key is required for the llm strategy")
	}
	client := anthropic.NewClient(option.WithAPIKey(cfg.APIKey))
	return NewLLMExtractorWithClient(cfg, &client.Messages, l), nil
}

func NewLLMExtractorWithClient(cfg LLMConfig, messages MessageClient, l *applogger.Logger) *LLMExtractor {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &LLMExtractor{cfg: cfg, messages: messages, l: l}
}

func (e *LLMExtractor) Name() string { return StrategyLLM }

func (e *LLMExtractor) Extract(ctx context.Context, t models.Transcript) (models.SentimentScore, error) {
	text := strings.TrimSpace(t.Text)
	if text == "" {
		return models.SentimentScore{}, errs.Invalid("empty transcript for %s", t.Symbol)
	}
	text = truncate(text, e.cfg.MaxChars)

	parent := ctx
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(e.cfg.Model),
		MaxTokens: int64(e.cfg.MaxTokens),
		System:    []anthropic.TextBlockParam{{Text: llmSystemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(
				fmt.Sprintf("Symbol: %s\nQuarter: %s\n\n%s", t.Symbol, t.Quarter, text),
			)),
		},
	}
	if e.cfg.Temperature > 0 {
		params.Temperature = anthropic.Float(e.cfg.Temperature)
	}

	start := time.Now()
	resp, err := e.messages.New(ctx, params)
	if err != nil {
		if parent.Err() != nil && errors.Is(err, parent.Err()) {
			return models.SentimentScore{}, errs.Cancelled(parent.Err())
		}
		return models.SentimentScore{}, errs.Upstream("anthropic", err)
	}

	var reply strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			reply.WriteString(block.Text)
		}
	}

	score, err := parseScore(reply.String())
	if err != nil {
		return models.SentimentScore{}, errs.Upstream("anthropic", err)
	}
	score.Source = StrategyLLM

	e.l.Debug("llm sentiment",
		applogger.String("symbol", t.Symbol),
		applogger.String("model", e.cfg.Model),
		applogger.Float64("overall", score.Overall),
		applogger.Duration("took", time.Since(start)),
	)
	return score, nil
}

// parseScore reads the first JSON object in reply and clamps it.
func parseScore(reply string) (models.SentimentScore, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return models.SentimentScore{}, fmt.Errorf("no json object in model reply")
	}
	var s models.SentimentScore
	if err := json.Unmarshal([]byte(reply[start:end+1]), &s); err != nil {
		return models.SentimentScore{}, fmt.Errorf("decode model reply: %w", err)
	}
	switch s.GuidanceSignal.Direction {
	case models.GuidanceRaised, models.GuidanceMaintained, models.GuidanceLowered:
	default:
		s.GuidanceSignal.Direction = models.GuidanceNone
	}
	return clamp(s), nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func unit(v float64) float64 {
	if math.IsNaN(v) {
		return 0.5
	}
	return math.Max(0, math.Min(1, v))
}

// clamp forces every score into [0,1].
func clamp(s models.SentimentScore) models.SentimentScore {
	s.Overall = unit(s.Overall)
	s.Confidence = unit(s.Confidence)
	s.ManagementTone.Optimism = unit(s.ManagementTone.Optimism)
	s.ManagementTone.Confidence = unit(s.ManagementTone.Confidence)
	s.ManagementTone.Defensiveness = unit(s.ManagementTone.Defensiveness)
	s.AnalystReaction.Satisfaction = unit(s.AnalystReaction.Satisfaction)
	s.AnalystReaction.Skepticism = unit(s.AnalystReaction.Skepticism)
	s.GuidanceSignal.Strength = unit(s.GuidanceSignal.Strength)
	s.KeyMetrics.Revenue = unit(s.KeyMetrics.Revenue)
	s.KeyMetrics.Earnings = unit(s.KeyMetrics.Earnings)
	s.KeyMetrics.Margin = unit(s.KeyMetrics.Margin)
	return s
}
