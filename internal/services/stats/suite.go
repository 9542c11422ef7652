package stats

import (
	"math"

	"QuantLens/internal/domain/models"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Test names reported in TestResult.Name.
const (
	TestJarqueBera    = "jarque_bera"
	TestLjungBox      = "ljung_box"
	TestBreuschPagan  = "breusch_pagan"
	TestDickeyFuller  = "augmented_dickey_fuller"
	minJarqueBera     = 4
	minBreuschPagan   = 6
	minDickeyFuller   = 10
	verdictNormal     = "normal"
	verdictNonNormal  = "non_normal"
	verdictIndep      = "no_autocorrelation"
	verdictAutocorr   = "autocorrelated"
	verdictHomo       = "homoskedastic"
	verdictHetero     = "heteroskedastic"
	verdictStationary = "stationary"
	verdictUnitRoot   = "non_stationary"
	verdictUnknown    = "inconclusive"
)

type SuiteConfig struct {
	Alpha       float64 `yaml:"alpha" default:"0.05"`
	Lags        int     `yaml:"lags" default:"10"`
	ADFCritical float64 `yaml:"adf_critical" default:"-2.86"`
}

func DefaultSuiteConfig() SuiteConfig {
	return SuiteConfig{Alpha: 0.05, Lags: 10, ADFCritical: -2.86}
}

// Suite runs simplified diagnostics on a return series. Every test returns
// a non-significant verdict when the series is too short.
type Suite struct {
	cfg SuiteConfig
}

func NewSuite(cfg SuiteConfig) *Suite {
	return &Suite{cfg: cfg}
}

func (s *Suite) Run(series []float64) models.StatisticalTests {
	return models.StatisticalTests{
		Normality:          s.JarqueBera(series),
		Autocorrelation:    s.LjungBox(series),
		Heteroskedasticity: s.BreuschPagan(series),
		Stationarity:       s.DickeyFuller(series),
	}
}

func neutralResult(name, verdict string, n int) models.TestResult {
	return models.TestResult{Name: name, PValue: 1, Verdict: verdict, SampleSize: n}
}

// JarqueBera tests normality from sample skewness and excess kurtosis.
func (s *Suite) JarqueBera(x []float64) models.TestResult {
	n := len(x)
	if n < minJarqueBera {
		return neutralResult(TestJarqueBera, verdictNormal, n)
	}
	m2 := stat.Moment(2, x, nil)
	if m2 == 0 {
		return neutralResult(TestJarqueBera, verdictNormal, n)
	}
	skew := stat.Moment(3, x, nil) / math.Pow(m2, 1.5)
	kurt := stat.Moment(4, x, nil)/(m2*m2) - 3
	jb := float64(n) / 6 * (skew*skew + kurt*kurt/4)
	p := distuv.ChiSquared{K: 2}.Survival(jb)
	res := models.TestResult{Name: TestJarqueBera, Statistic: jb, PValue: p, SampleSize: n, Verdict: verdictNormal}
	if p < s.cfg.Alpha {
		res.Significant, res.Verdict = true, verdictNonNormal
	}
	return res
}

// LjungBox tests for autocorrelation up to Lags.
func (s *Suite) LjungBox(x []float64) models.TestResult {
	n, h := len(x), s.cfg.Lags
	if h < 1 || n <= h+1 {
		return neutralResult(TestLjungBox, verdictIndep, n)
	}
	mean := stat.Mean(x, nil)
	var denom float64
	for _, v := range x {
		denom += (v - mean) * (v - mean)
	}
	if denom == 0 {
		return neutralResult(TestLjungBox, verdictIndep, n)
	}
	var q float64
	for k := 1; k <= h; k++ {
		var num float64
		for t := k; t < n; t++ {
			num += (x[t] - mean) * (x[t-k] - mean)
		}
		rho := num / denom
		q += rho * rho / float64(n-k)
	}
	q *= float64(n) * float64(n+2)
	p := distuv.ChiSquared{K: float64(h)}.Survival(q)
	res := models.TestResult{Name: TestLjungBox, Statistic: q, PValue: p, SampleSize: n, Verdict: verdictIndep}
	if p < s.cfg.Alpha {
		res.Significant, res.Verdict = true, verdictAutocorr
	}
	return res
}

// BreuschPagan is simplified to a two-sided F test of second-half variance
// over first-half variance.
func (s *Suite) BreuschPagan(x []float64) models.TestResult {
	n := len(x)
	if n < minBreuschPagan {
		return neutralResult(TestBreuschPagan, verdictHomo, n)
	}
	first, second := x[:n/2], x[n/2:]
	v1, v2 := stat.Variance(first, nil), stat.Variance(second, nil)
	if v1 <= 0 || v2 <= 0 {
		return neutralResult(TestBreuschPagan, verdictHomo, n)
	}
	f := v2 / v1
	dist := distuv.F{D1: float64(len(second) - 1), D2: float64(len(first) - 1)}
	p := math.Min(1, 2*math.Min(dist.CDF(f), dist.Survival(f)))
	res := models.TestResult{Name: TestBreuschPagan, Statistic: f, PValue: p, SampleSize: n, Verdict: verdictHomo}
	if p < s.cfg.Alpha {
		res.Significant, res.Verdict = true, verdictHetero
	}
	return res
}

// DickeyFuller is simplified to the t statistic of the mean first
// difference, compared against ADFCritical.
func (s *Suite) DickeyFuller(x []float64) models.TestResult {
	n := len(x)
	if n < minDickeyFuller {
		return neutralResult(TestDickeyFuller, verdictUnknown, n)
	}
	diffs := make([]float64, n-1)
	for i := 1; i < n; i++ {
		diffs[i-1] = x[i] - x[i-1]
	}
	mean, sd := stat.MeanStdDev(diffs, nil)
	if sd == 0 || math.IsNaN(sd) {
		return neutralResult(TestDickeyFuller, verdictUnknown, n)
	}
	t := mean / (sd / math.Sqrt(float64(len(diffs))))
	res := models.TestResult{
		Name:       TestDickeyFuller,
		Statistic:  t,
		PValue:     distuv.UnitNormal.CDF(t),
		SampleSize: n,
		Verdict:    verdictUnitRoot,
	}
	if t < s.cfg.ADFCritical {
		res.Significant, res.Verdict = true, verdictStationary
	}
	return res
}
