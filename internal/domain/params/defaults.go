package params

import "github.com/shopspring/decimal"

func rate(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// Defaults2025 is the built-in bundle seeded on first start.
func Defaults2025() FiscalParameters {
	return FiscalParameters{
		Year:                         2025,
		SMMLV:                        1_300_000,
		IBCMaxMultiple:               25,
		IntegralFactor:               rate("0.70"),
		IndependentBaseFactor:        rate("0.40"),
		ParafiscalThresholdMultiple:  10,
		ExonerationThresholdMultiple: 10,
		HealthEmployee:               rate("0.04"),
		HealthEmployer:               rate("0.085"),
		HealthIndependent:            rate("0.125"),
		PensionEmployee:              rate("0.04"),
		PensionEmployer:              rate("0.12"),
		PensionIndependent:           rate("0.16"),
		ARLRates: map[RiskClass]decimal.Decimal{
			RiskI:   rate("0.00522"),
			RiskII:  rate("0.01044"),
			RiskIII: rate("0.02436"),
			RiskIV:  rate("0.04350"),
			RiskV:   rate("0.06960"),
		},
		CCF:              rate("0.04"),
		CCFIndependent:   rate("0.02"),
		SENA:             rate("0.02"),
		ICBF:             rate("0.03"),
		ParafiscalPolicy: PolicyThreshold,
	}
}

// Builtin lists every bundle shipped with the binary.
func Builtin() []FiscalParameters {
	return []FiscalParameters{Defaults2025()}
}
