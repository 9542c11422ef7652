package sentiment

import (
	"context"
	"strings"
	"unicode"

	"QuantLens/internal/domain/errs"
	"QuantLens/internal/domain/models"
	applogger "QuantLens/pkg/logger"
)

type lexicon map[string]struct{}

func newLexicon(words ...string) lexicon {
	lx := make(lexicon, len(words))
	for _, w := range words {
		lx[w] = struct{}{}
	}
	return lx
}

func (lx lexicon) count(words []string) int {
	n := 0
	for _, w := range words {
		if _, ok := lx[w]; ok {
			n++
		}
	}
	return n
}

var (
	positiveWords = newLexicon(
		"strong", "stronger", "growth", "grew", "record", "exceeded", "beat", "improved", "improving",
		"robust", "momentum", "pleased", "outperform", "outperformed", "accelerate", "accelerating",
		"expansion", "expanded", "increase", "increased", "gains", "solid", "healthy", "exceptional",
		"favorable", "upside", "tailwinds", "resilient",
	)
	negativeWords = newLexicon(
		"decline", "declined", "declining", "weak", "weaker", "weakness", "miss", "missed", "challenging",
		"headwind", "headwinds", "pressure", "pressures", "difficult", "loss", "losses", "decrease",
		"decreased", "slowdown", "disappointing", "softness", "soft", "impairment", "downturn", "shortfall",
	)
	assertiveWords = newLexicon(
		"confident", "confidence", "certainly", "clearly", "definitely", "committed", "conviction",
		"well-positioned", "deliver", "delivered", "execute", "executing",
	)
	hedgingWords = newLexicon(
		"however", "although", "unfortunately", "uncertain", "uncertainty", "cautious", "might", "maybe",
		"perhaps", "unclear", "temporary", "one-time", "difficult", "challenging", "volatile",
	)
	satisfiedWords = newLexicon(
		"congratulations", "congrats", "great", "nice", "impressive", "helpful", "terrific", "excellent",
	)
	skepticalWords = newLexicon(
		"concern", "concerns", "concerned", "worried", "worry", "clarify", "why", "explain", "risk",
		"risks", "skeptical", "sustainable", "pushback",
	)

	raisedPhrases = []string{
		"raising guidance", "raise our guidance", "raised guidance", "raising our guidance",
		"raising our outlook", "raised our outlook", "raising our full-year", "increase our guidance",
		"increasing our guidance", "above the high end",
	}
	loweredPhrases = []string{
		"lowering guidance", "lower our guidance", "lowered guidance", "lowering our guidance",
		"reduce our outlook", "reducing our outlook", "cut our guidance", "below our prior",
		"lowering our full-year", "withdrawing guidance",
	}
	maintainedPhrases = []string{
		"reaffirm", "reaffirming", "maintain our guidance", "maintaining our guidance", "reiterate",
		"reiterating", "unchanged guidance", "guidance unchanged",
	}

	revenueTerms  = []string{"revenue", "sales", "top line", "top-line", "bookings"}
	earningsTerms = []string{"earnings", "eps", "profit", "net income", "per share"}
	marginTerms   = []string{"margin", "margins"}
)

// guidanceStep is the strength added per guidance phrase, saturating at three.
const guidanceStep = 0.5 / 3

// KeywordExtractor scores transcripts with fixed lexicons. It is
// deterministic and needs no network access.
type KeywordExtractor struct {
	cfg KeywordConfig
	l   *applogger.Logger
}

func NewKeywordExtractor(cfg KeywordConfig, l *applogger.Logger) *KeywordExtractor {
	if len(cfg.QASeparators) == 0 {
		cfg.QASeparators = defaultQASeparators
	}
	if cfg.Saturation <= 0 {
		cfg.Saturation = 40
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &KeywordExtractor{cfg: cfg, l: l}
}

func (e *KeywordExtractor) Name() string { return StrategyKeyword }

func (e *KeywordExtractor) Extract(ctx context.Context, t models.Transcript) (models.SentimentScore, error) {
	if err := ctx.Err(); err != nil {
		return models.SentimentScore{}, errs.Cancelled(err)
	}
	text := strings.ToLower(t.Text)
	if strings.TrimSpace(text) == "" {
		return models.SentimentScore{}, errs.Invalid("empty transcript for %s", t.Symbol)
	}

	remarks, qa := e.split(text)
	mgmt := tokenize(remarks)
	analyst := tokenize(qa)

	pos, neg := positiveWords.count(mgmt), negativeWords.count(mgmt)
	assertive, hedging := assertiveWords.count(mgmt), hedgingWords.count(mgmt)
	satisfied, skeptical := satisfiedWords.count(analyst), skepticalWords.count(analyst)

	score := models.SentimentScore{
		ManagementTone: models.ManagementTone{
			Optimism:      balance(pos, neg),
			Confidence:    balance(assertive, hedging),
			Defensiveness: float64(hedging) / float64(hedging+assertive+pos+1),
		},
		AnalystReaction: models.AnalystReaction{
			Satisfaction: balance(satisfied, skeptical),
			Skepticism:   float64(skeptical) / float64(skeptical+satisfied+1),
		},
		GuidanceSignal: guidance(text),
		KeyMetrics: models.KeyMetricSentiment{
			Revenue:  metricTone(text, revenueTerms),
			Earnings: metricTone(text, earningsTerms),
			Margin:   metricTone(text, marginTerms),
		},
		Source: StrategyKeyword,
	}

	metrics := (score.KeyMetrics.Revenue + score.KeyMetrics.Earnings + score.KeyMetrics.Margin) / 3
	score.Overall = 0.4*score.ManagementTone.Optimism +
		0.2*score.AnalystReaction.Satisfaction +
		0.2*score.GuidanceSignal.Strength +
		0.2*metrics

	hits := pos + neg + assertive + hedging + satisfied + skeptical
	score.Confidence = min(1, float64(hits)/float64(e.cfg.Saturation))

	e.l.Debug("keyword sentiment",
		applogger.String("symbol", t.Symbol),
		applogger.Float64("overall", score.Overall),
		applogger.Int("hits", hits),
		applogger.Bool("has_qa", qa != ""),
	)
	return clamp(score), nil
}

// split cuts the lowercased transcript at the first Q&A marker.
func (e *KeywordExtractor) split(text string) (remarks, qa string) {
	cut := -1
	for _, sep := range e.cfg.QASeparators {
		if i := strings.Index(text, strings.ToLower(sep)); i >= 0 && (cut < 0 || i < cut) {
			cut = i
		}
	}
	if cut < 0 {
		return text, ""
	}
	return text[:cut], text[cut:]
}

func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '-'
	})
}

func sentences(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n' || r == ';'
	})
}

// balance is a smoothed share of positive hits; 0.5 when there are none.
func balance(pos, neg int) float64 {
	return float64(pos+1) / float64(pos+neg+2)
}

func countPhrases(text string, phrases []string) int {
	n := 0
	for _, p := range phrases {
		n += strings.Count(text, p)
	}
	return n
}

// guidance maps raised to (0.5,1], lowered to [0,0.5) and anything else to 0.5.
func guidance(text string) models.GuidanceSignal {
	raised := countPhrases(text, raisedPhrases)
	lowered := countPhrases(text, loweredPhrases)
	maintained := countPhrases(text, maintainedPhrases)

	switch {
	case raised > lowered:
		return models.GuidanceSignal{
			Direction: models.GuidanceRaised,
			Strength:  0.5 + guidanceStep*float64(min(raised-lowered, 3)),
		}
	case lowered > raised:
		return models.GuidanceSignal{
			Direction: models.GuidanceLowered,
			Strength:  0.5 - guidanceStep*float64(min(lowered-raised, 3)),
		}
	case raised > 0 || maintained > 0:
		return models.GuidanceSignal{Direction: models.GuidanceMaintained, Strength: 0.5}
	default:
		return models.GuidanceSignal{Direction: models.GuidanceNone, Strength: 0.5}
	}
}

// metricTone scores only the sentences that mention one of terms.
func metricTone(text string, terms []string) float64 {
	pos, neg := 0, 0
	for _, s := range sentences(text) {
		if !containsAny(s, terms) {
			continue
		}
		words := tokenize(s)
		pos += positiveWords.count(words)
		neg += negativeWords.count(words)
	}
	return balance(pos, neg)
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
