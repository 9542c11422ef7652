package models

// TestResult is the outcome of one hypothesis test.
type TestResult struct {
	Name        string  `json:"name"`
	Statistic   float64 `json:"statistic"`
	PValue      float64 `json:"pValue"`
	Significant bool    `json:"significant"`
	Verdict     string  `json:"verdict"`
	SampleSize  int     `json:"sampleSize"`
}

type StatisticalTests struct {
	Normality          TestResult `json:"normality"`
	Autocorrelation    TestResult `json:"autocorrelation"`
	Heteroskedasticity TestResult `json:"heteroskedasticity"`
	Stationarity       TestResult `json:"stationarity"`
}
