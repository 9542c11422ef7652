package models

type Significance string

const (
	SignificanceHigh   Significance = "high"
	SignificanceMedium Significance = "medium"
	SignificanceLow    Significance = "low"
	SignificanceNone   Significance = "none"
)

type ConfidenceInterval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Level float64 `json:"level"`
}

type CorrelationResult struct {
	Factor             string             `json:"factor"`
	Timeframe          Horizon            `json:"timeframe"`
	Correlation        float64            `json:"correlation"`
	PValue             float64            `json:"pValue"`
	ConfidenceInterval ConfidenceInterval `json:"confidenceInterval"`
	SampleSize         int                `json:"sampleSize"`
	RSquared           float64            `json:"rSquared"`
	Significance       Significance       `json:"significance"`
}

// CorrelationMatrix rows are factors, columns are timeframes.
type CorrelationMatrix struct {
	Factors      []string    `json:"factors"`
	Timeframes   []Horizon   `json:"timeframes"`
	Correlations [][]float64 `json:"correlations"`
	PValues      [][]float64 `json:"pValues"`
	SampleSize   int         `json:"sampleSize"`
}

// Result returns the cell at (factor, timeframe).
func (m CorrelationMatrix) Result(factor string, tf Horizon) (r, p float64, ok bool) {
	for i, f := range m.Factors {
		if f != factor {
			continue
		}
		for j, t := range m.Timeframes {
			if t == tf {
				return m.Correlations[i][j], m.PValues[i][j], true
			}
		}
	}
	return 0, 1, false
}

type FactorDecomposition struct {
	Factor       string       `json:"factor"`
	Timeframe    Horizon      `json:"timeframe"`
	Correlation  float64      `json:"correlation"`
	RSquared     float64      `json:"rSquared"`
	PValue       float64      `json:"pValue"`
	Contribution float64      `json:"contribution"`
	Significance Significance `json:"significance"`
}
