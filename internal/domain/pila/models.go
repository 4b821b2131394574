package pila

import (
	"strings"

	"github.com/shopspring/decimal"

	"montero/internal/domain/params"
)

type CotizanteType string

const (
	Dependiente   CotizanteType = "DEPENDIENTE"
	Independiente CotizanteType = "INDEPENDIENTE"
)

func (c CotizanteType) Valid() bool { return c == Dependiente || c == Independiente }

func (c *CotizanteType) UnmarshalText(text []byte) error {
	*c = CotizanteType(strings.ToUpper(strings.TrimSpace(string(text))))
	return nil
}

type PayrollInput struct {
	Salary             int64            `json:"salary"`
	RiskClass          params.RiskClass `json:"riskClass"`
	CotizanteType      CotizanteType    `json:"cotizanteType"`
	IsIntegralSalary   bool             `json:"isIntegralSalary"`
	EmployerExonerated bool             `json:"employerExonerated"`
	DaysWorked         int              `json:"daysWorked"`
	ApplyCCF           bool             `json:"applyCcf"`
}

type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Totals struct {
	Employee int64 `json:"employee"`
	Employer int64 `json:"employer"`
	Grand    int64 `json:"grand"`
}

type Result struct {
	Year             int             `json:"year"`
	CotizanteType    CotizanteType   `json:"cotizanteType"`
	Salary           int64           `json:"salary"`
	DaysWorked       int             `json:"daysWorked"`
	RawIBC           int64           `json:"rawIbc"`
	IBC              int64           `json:"ibc"`
	IBCAdjusted      bool            `json:"ibcAdjusted"`
	IBCCapped        bool            `json:"ibcCapped"`
	HealthEmployee   int64           `json:"healthEmployee"`
	HealthEmployer   int64           `json:"healthEmployer"`
	HealthTotal      int64           `json:"healthTotal"`
	HealthExonerated bool            `json:"healthExonerated"`
	PensionEmployee  int64           `json:"pensionEmployee"`
	PensionEmployer  int64           `json:"pensionEmployer"`
	PensionTotal     int64           `json:"pensionTotal"`
	RiskClass        string          `json:"riskClass"`
	ARLRate          decimal.Decimal `json:"arlRate"`
	ARLEmployer      int64           `json:"arlEmployer"`
	CCF              int64           `json:"ccf"`
	SENA             int64           `json:"sena"`
	ICBF             int64           `json:"icbf"`
	ParafiscalsTotal int64           `json:"parafiscalsTotal"`
	Totals           Totals          `json:"totals"`
	EstimatedNet     int64           `json:"estimatedNet"`
	Warnings         []Warning       `json:"warnings"`
}

// HasWarning reports whether code was raised.
func (r Result) HasWarning(code string) bool {
	for _, w := range r.Warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}
