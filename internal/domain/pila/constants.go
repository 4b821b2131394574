package pila

const (
	WarningSalaryBelowMinimum = "salary_below_minimum"
	WarningIBCAdjusted        = "ibc_adjusted"
	WarningIBCCapped          = "ibc_capped"
	WarningIntegralSalary     = "integral_salary"
	WarningHealthExonerated   = "health_exonerated"
	WarningParafiscals        = "parafiscals_applied"
	WarningCCFIndependent     = "ccf_independent"
)

const fullMonthDays = 30
