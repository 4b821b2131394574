package pila

import "errors"

var (
	ErrInvalidSalary      = errors.New("salary must be greater than zero")
	ErrInvalidRiskClass   = errors.New("risk class must be one of I, II, III, IV, V")
	ErrInvalidDaysWorked  = errors.New("days worked must be between 1 and 30")
	ErrInvalidCombination = errors.New("integral salary does not apply to independent contributors")
	ErrInvalidCotizante   = errors.New("cotizante type must be DEPENDIENTE or INDEPENDIENTE")
)
