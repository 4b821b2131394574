package pila

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"montero/internal/domain/params"
)

var printer = message.NewPrinter(language.MustParse("es-CO"))

// Validate checks the input in a fixed order so the first error is stable.
func (in PayrollInput) Validate() error {
	if !in.CotizanteType.Valid() {
		return ErrInvalidCotizante
	}
	if in.Salary <= 0 {
		return ErrInvalidSalary
	}
	if !in.RiskClass.Valid() {
		return ErrInvalidRiskClass
	}
	if in.DaysWorked < 1 || in.DaysWorked > fullMonthDays {
		return ErrInvalidDaysWorked
	}
	if in.IsIntegralSalary && in.CotizanteType == Independiente {
		return ErrInvalidCombination
	}
	return nil
}

// Calculate liquidates one contributor for one period. It is pure: identical
// inputs produce identical results.
func Calculate(in PayrollInput, p params.FiscalParameters) (Result, error) {
	if err := in.Validate(); err != nil {
		return Result{}, err
	}
	arlRate, ok := p.ARLRate(in.RiskClass)
	if !ok {
		return Result{}, ErrInvalidRiskClass
	}

	res := Result{
		Year:          p.Year,
		CotizanteType: in.CotizanteType,
		Salary:        in.Salary,
		DaysWorked:    in.DaysWorked,
		RiskClass:     in.RiskClass.String(),
		ARLRate:       decimal.Zero,
		Warnings:      []Warning{},
	}
	salary := decimal.NewFromInt(in.Salary)

	if in.Salary < p.SMMLV {
		res.warn(WarningSalaryBelowMinimum, "El salario (%d) es inferior al SMMLV (%d)", in.Salary, p.SMMLV)
	}

	// 1. base
	var raw decimal.Decimal
	if in.CotizanteType == Dependiente {
		raw = salary.Mul(decimal.NewFromInt(int64(in.DaysWorked))).Div(decimal.NewFromInt(fullMonthDays))
		if in.IsIntegralSalary {
			raw = raw.Mul(p.IntegralFactor)
			res.warn(WarningIntegralSalary, "Salario integral: IBC calculado sobre el %s%% del salario", p.IntegralFactor.Shift(2).String())
		}
	} else {
		raw = salary.Mul(p.IndependentBaseFactor)
	}
	res.RawIBC = raw.Round(0).IntPart()

	// 2. clamp
	floor := p.MinimumIBC(in.DaysWorked)
	ceiling := decimal.NewFromInt(p.IBCMax())
	ibc := raw
	switch {
	case raw.LessThan(floor):
		ibc = floor
		res.IBCAdjusted = true
		res.warn(WarningIBCAdjusted, "IBC ajustado al mínimo de %d", floor.Round(0).IntPart())
	case raw.GreaterThan(ceiling):
		ibc = ceiling
		res.IBCCapped = true
		res.warn(WarningIBCCapped, "IBC limitado al tope de %d SMMLV (%d)", p.IBCMaxMultiple, p.IBCMax())
	}
	res.IBC = ibc.Round(0).IntPart()

	if in.CotizanteType == Dependiente {
		res.dependent(in, p, arlRate)
	} else {
		res.independent(in, p)
	}

	// 7. totals from rounded parts
	res.ParafiscalsTotal = res.CCF + res.SENA + res.ICBF
	res.Totals.Employee = res.HealthEmployee + res.PensionEmployee
	res.Totals.Employer = res.HealthEmployer + res.PensionEmployer + res.ARLEmployer + res.ParafiscalsTotal
	res.Totals.Grand = res.Totals.Employee + res.Totals.Employer
	res.EstimatedNet = in.Salary - res.Totals.Employee
	return res, nil
}

func (res *Result) dependent(in PayrollInput, p params.FiscalParameters, arlRate decimal.Decimal) {
	res.HealthEmployee = pesos(res.IBC, p.HealthEmployee)
	if in.EmployerExonerated && in.Salary < p.ExonerationThreshold() {
		res.HealthExonerated = true
		res.warn(WarningHealthExonerated, "Exoneración de salud del empleador aplicada (salario inferior a %d SMMLV)", p.ExonerationThresholdMultiple)
	} else {
		res.HealthEmployer = pesos(res.IBC, p.HealthEmployer)
	}
	res.HealthTotal = res.HealthEmployee + res.HealthEmployer

	res.PensionEmployee = pesos(res.IBC, p.PensionEmployee)
	res.PensionEmployer = pesos(res.IBC, p.PensionEmployer)
	res.PensionTotal = res.PensionEmployee + res.PensionEmployer

	res.ARLRate = arlRate
	res.ARLEmployer = pesos(res.IBC, arlRate)

	above := in.Salary > p.ParafiscalThreshold()
	if above || p.ParafiscalPolicy == params.PolicyCCFAlways {
		res.CCF = pesos(res.IBC, p.CCF)
	}
	if above {
		res.SENA = pesos(res.IBC, p.SENA)
		res.ICBF = pesos(res.IBC, p.ICBF)
		res.warn(WarningParafiscals, "Aplican aportes parafiscales (CCF, SENA, ICBF) por salario superior a %d SMMLV", p.ParafiscalThresholdMultiple)
	} else if res.CCF > 0 {
		res.warn(WarningParafiscals, "Aplican aportes parafiscales: CCF %s%% para todo dependiente", p.CCF.Shift(2).String())
	}
}

func (res *Result) independent(in PayrollInput, p params.FiscalParameters) {
	res.HealthTotal = pesos(res.IBC, p.HealthIndependent)
	res.HealthEmployee = res.HealthTotal
	res.PensionTotal = pesos(res.IBC, p.PensionIndependent)
	res.PensionEmployee = res.PensionTotal
	if in.ApplyCCF {
		res.CCF = pesos(res.IBC, p.CCFIndependent)
		res.warn(WarningCCFIndependent, "Aporte voluntario a caja de compensación del %s%%", p.CCFIndependent.Shift(2).String())
	}
}

func (res *Result) warn(code, format string, args ...any) {
	res.Warnings = append(res.Warnings, Warning{Code: code, Message: printer.Sprintf(format, args...)})
}

// pesos multiplies and rounds half-up to whole pesos.
func pesos(base int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(base).Mul(rate).Round(0).IntPart()
}
