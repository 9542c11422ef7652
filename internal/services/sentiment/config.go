package sentiment

import "time"

const (
	StrategyKeyword = "keyword"
	StrategyLLM     = "llm"
	StrategyRemote  = "remote"
)

// Remote score scales. Scores are kept in [0,1] with 0.5 neutral; a signed
// service reports overall in [-1,1].
const (
	ScaleSigned = "signed"
	ScaleUnit   = "unit"
)

// Config selects and tunes the sentiment strategy.
type Config struct {
	Strategy string        `yaml:"strategy" default:"keyword" validate:"oneof=keyword llm remote"`
	Keyword  KeywordConfig `yaml:"keyword"`
	LLM      LLMConfig     `yaml:"llm"`
	Remote   RemoteConfig  `yaml:"remote"`
}

type KeywordConfig struct {
	// QASeparators mark where prepared remarks end and the Q&A begins.
	QASeparators []string `yaml:"qa_separators"`
	// Saturation is the hit count at which confidence reaches 1.
	Saturation int `yaml:"saturation" default:"40" validate:"gt=0"`
}

type LLMConfig struct {
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model" default:"claude-sonnet-4-5"`
	MaxTokens   int           `yaml:"max_tokens" default:"1024" validate:"gt=0"`
	Temperature float64       `yaml:"temperature" default:"0" validate:"gte=0,lte=1"`
	Timeout     time.Duration `yaml:"timeout" default:"60s"`
	// MaxChars truncates long transcripts before they are sent.
	MaxChars int `yaml:"max_chars" default:"60000" validate:"gt=0"`
}

type RemoteConfig struct {
	URL      string        `yaml:"url"`
	Path     string        `yaml:"path" default:"/sentiment"`
	Timeout  time.Duration `yaml:"timeout" default:"3s"`
	Attempts int           `yaml:"attempts" default:"3" validate:"gte=1"`
	// Scale is how the service reports overall: "signed" or "unit".
	Scale string `yaml:"scale" default:"signed" validate:"oneof=signed unit"`
}

func DefaultConfig() Config {
	return Config{
		Strategy: StrategyKeyword,
		Keyword: KeywordConfig{
			QASeparators: defaultQASeparators,
			Saturation:   40,
		},
		LLM: LLMConfig{
			Model:     "claude-sonnet-4-5",
			MaxTokens: 1024,
			Timeout:   60 * time.Second,
			MaxChars:  60000,
		},
		Remote: RemoteConfig{
			Path:     "/sentiment",
			Timeout:  3 * time.Second,
			Attempts: 3,
			Scale:    ScaleSigned,
		},
	}
}

var defaultQASeparators = []string{
	"question-and-answer session",
	"question and answer session",
	"questions and answers",
	"we will now begin the question",
	"open the line for questions",
	"open it up for questions",
	"first question comes from",
}
