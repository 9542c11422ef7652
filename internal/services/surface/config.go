package surface

// Config holds the surface heuristics. Every threshold is in absolute IV
// units unless noted.
type Config struct {
	// Leave-one-out relative deviation that flags an iv_spike / iv_dip.
	AnomalyThreshold float64 `yaml:"anomaly_threshold" default:"0.15"`
	MediumDeviation  float64 `yaml:"medium_deviation" default:"0.20"`
	HighDeviation    float64 `yaml:"high_deviation" default:"0.30"`

	// Butterfly convexity: (low+high)/2 - mid.
	ButterflyFlag float64 `yaml:"butterfly_flag" default:"-0.02"`
	ButterflyHigh float64 `yaml:"butterfly_high" default:"-0.05"`
	ButterflyArb  float64 `yaml:"butterfly_arb" default:"-0.03"`

	// Near ATM IV minus far ATM IV that triggers a calendar spread.
	CalendarArb float64 `yaml:"calendar_arb" default:"0.05"`

	// Back-minus-front ATM IV that separates contango/backwardation from flat.
	TermSlope float64 `yaml:"term_slope" default:"0.02"`
	// A middle expiry must beat both ends by more than this to read as humped.
	HumpMargin float64 `yaml:"hump_margin"`
	// Relative jump between adjacent expiries on the interpolated grid.
	TermJump float64 `yaml:"term_jump" default:"0.25"`

	// Wing elevation over ATM IV used by skew classification.
	SkewThreshold  float64 `yaml:"skew_threshold" default:"0.02"`
	PutWingLow     float64 `yaml:"put_wing_low" default:"0.90"`
	PutWingHigh    float64 `yaml:"put_wing_high" default:"0.95"`
	CallWingLow    float64 `yaml:"call_wing_low" default:"1.05"`
	CallWingHigh   float64 `yaml:"call_wing_high" default:"1.10"`
	SkewWingSpread float64 `yaml:"skew_wing_spread" default:"0.05"`

	IDWPower      float64 `yaml:"idw_power" default:"2"`
	RiskFreeRate  float64 `yaml:"risk_free_rate" default:"0.05"`
	DividendYield float64 `yaml:"dividend_yield"`
	// Expiry (in days) whose smile is reported as the reference skew.
	SkewTargetDays int `yaml:"skew_target_days" default:"30"`
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		AnomalyThreshold: 0.15,
		MediumDeviation:  0.20,
		HighDeviation:    0.30,
		ButterflyFlag:    -0.02,
		ButterflyHigh:    -0.05,
		ButterflyArb:     -0.03,
		CalendarArb:      0.05,
		TermSlope:        0.02,
		TermJump:         0.25,
		SkewThreshold:    0.02,
		PutWingLow:       0.90,
		PutWingHigh:      0.95,
		CallWingLow:      1.05,
		CallWingHigh:     1.10,
		SkewWingSpread:   0.05,
		IDWPower:         2,
		RiskFreeRate:     0.05,
		SkewTargetDays:   30,
	}
}
