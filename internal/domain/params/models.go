package params

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// RiskClass is the ARL occupational-risk class, I (office work) to V (high risk).
type RiskClass int

const (
	RiskI RiskClass = iota + 1
	RiskII
	RiskIII
	RiskIV
	RiskV
)

var riskNames = [...]string{"", "I", "II", "III", "IV", "V"}

var riskDescriptions = map[RiskClass]string{
	RiskI:   "Riesgo mínimo",
	RiskII:  "Riesgo bajo",
	RiskIII: "Riesgo medio",
	RiskIV:  "Riesgo alto",
	RiskV:   "Riesgo máximo",
}

func (r RiskClass) Valid() bool { return r >= RiskI && r <= RiskV }

func (r RiskClass) String() string {
	if !r.Valid() {
		return "RiskClass(" + strconv.Itoa(int(r)) + ")"
	}
	return riskNames[r]
}

func (r RiskClass) Description() string { return riskDescriptions[r] }

// ParseRiskClass accepts roman numerals ("III") and digits ("3").
func ParseRiskClass(raw string) (RiskClass, error) {
	value := strings.ToUpper(strings.TrimSpace(raw))
	for i := RiskI; i <= RiskV; i++ {
		if value == riskNames[i] {
			return i, nil
		}
	}
	if n, err := strconv.Atoi(value); err == nil && RiskClass(n).Valid() {
		return RiskClass(n), nil
	}
	return 0, fmt.Errorf("unknown risk class %q", raw)
}

func (r RiskClass) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid risk class %d", int(r))
	}
	return []byte(riskNames[r]), nil
}

func (r *RiskClass) UnmarshalText(text []byte) error {
	parsed, err := ParseRiskClass(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// UnmarshalJSON takes "I".."V" or a bare number. Out-of-range numbers decode
// as-is so the calculator can report them with its own error.
func (r *RiskClass) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		return r.UnmarshalText([]byte(s))
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("risk class must be I..V or 1..5")
	}
	*r = RiskClass(n)
	return nil
}

// ParafiscalPolicy selects when the 4% CCF applies to dependents.
type ParafiscalPolicy string

const (
	// PolicyThreshold charges CCF, SENA and ICBF only above the parafiscal threshold.
	PolicyThreshold ParafiscalPolicy = "threshold"
	// PolicyCCFAlways charges CCF to every dependent; SENA and ICBF keep the threshold.
	PolicyCCFAlways ParafiscalPolicy = "ccf_always"
)

func (p ParafiscalPolicy) Valid() bool {
	return p == PolicyThreshold || p == PolicyCCFAlways
}

type FiscalParameters struct {
	Year                         int                           `json:"year"`
	SMMLV                        int64                         `json:"smmlv"`
	IBCMaxMultiple               int64                         `json:"ibcMaxMultiple"`
	IntegralFactor               decimal.Decimal               `json:"integralFactor"`
	IndependentBaseFactor        decimal.Decimal               `json:"independentBaseFactor"`
	ParafiscalThresholdMultiple  int64                         `json:"parafiscalThresholdMultiple"`
	ExonerationThresholdMultiple int64                         `json:"exonerationThresholdMultiple"`
	HealthEmployee               decimal.Decimal               `json:"healthEmployee"`
	HealthEmployer               decimal.Decimal               `json:"healthEmployer"`
	HealthIndependent            decimal.Decimal               `json:"healthIndependent"`
	PensionEmployee              decimal.Decimal               `json:"pensionEmployee"`
	PensionEmployer              decimal.Decimal               `json:"pensionEmployer"`
	PensionIndependent           decimal.Decimal               `json:"pensionIndependent"`
	ARLRates                     map[RiskClass]decimal.Decimal `json:"arlRates"`
	CCF                          decimal.Decimal               `json:"ccf"`
	CCFIndependent               decimal.Decimal               `json:"ccfIndependent"`
	SENA                         decimal.Decimal               `json:"sena"`
	ICBF                         decimal.Decimal               `json:"icbf"`
	ParafiscalPolicy             ParafiscalPolicy              `json:"parafiscalPolicy"`
}

func (p FiscalParameters) IBCMax() int64 { return p.SMMLV * p.IBCMaxMultiple }

func (p FiscalParameters) ParafiscalThreshold() int64 {
	return p.SMMLV * p.ParafiscalThresholdMultiple
}

func (p FiscalParameters) ExonerationThreshold() int64 {
	return p.SMMLV * p.ExonerationThresholdMultiple
}

// MinimumIBC is the SMMLV prorated to the days worked.
func (p FiscalParameters) MinimumIBC(days int) decimal.Decimal {
	return decimal.NewFromInt(p.SMMLV).Mul(decimal.NewFromInt(int64(days))).Div(decimal.NewFromInt(30))
}

// ARLRate returns the rate for class r, or false when the table lacks it.
func (p FiscalParameters) ARLRate(r RiskClass) (decimal.Decimal, bool) {
	rate, ok := p.ARLRates[r]
	return rate, ok
}

// WithPolicy returns a copy using policy for parafiscals.
func (p FiscalParameters) WithPolicy(policy ParafiscalPolicy) FiscalParameters {
	out := p
	out.ARLRates = make(map[RiskClass]decimal.Decimal, len(p.ARLRates))
	for k, v := range p.ARLRates {
		out.ARLRates[k] = v
	}
	out.ParafiscalPolicy = policy
	return out
}

func (p FiscalParameters) Validate() error {
	if p.Year < 2000 {
		return fmt.Errorf("%w: year %d", ErrInvalidParameters, p.Year)
	}
	if p.SMMLV <= 0 {
		return fmt.Errorf("%w: smmlv must be positive", ErrInvalidParameters)
	}
	if p.IBCMaxMultiple <= 0 || p.ParafiscalThresholdMultiple <= 0 || p.ExonerationThresholdMultiple <= 0 {
		return fmt.Errorf("%w: multiples must be positive", ErrInvalidParameters)
	}
	rates := map[string]decimal.Decimal{
		"integralFactor":        p.IntegralFactor,
		"independentBaseFactor": p.IndependentBaseFactor,
		"healthEmployee":        p.HealthEmployee,
		"healthEmployer":        p.HealthEmployer,
		"healthIndependent":     p.HealthIndependent,
		"pensionEmployee":       p.PensionEmployee,
		"pensionEmployer":       p.PensionEmployer,
		"pensionIndependent":    p.PensionIndependent,
		"ccf":                   p.CCF,
		"ccfIndependent":        p.CCFIndependent,
		"sena":                  p.SENA,
		"icbf":                  p.ICBF,
	}
	for name, rate := range rates {
		if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("%w: %s out of range", ErrInvalidParameters, name)
		}
	}
	for r := RiskI; r <= RiskV; r++ {
		rate, ok := p.ARLRates[r]
		if !ok {
			return fmt.Errorf("%w: missing ARL rate for class %s", ErrInvalidParameters, r)
		}
		if rate.IsNegative() {
			return fmt.Errorf("%w: negative ARL rate for class %s", ErrInvalidParameters, r)
		}
	}
	if !p.ParafiscalPolicy.Valid() {
		return fmt.Errorf("%w: unknown parafiscal policy %q", ErrInvalidParameters, p.ParafiscalPolicy)
	}
	return nil
}
