package params

import "errors"

var (
	ErrUnknownFiscalYear = errors.New("unknown fiscal year")
	ErrInvalidParameters = errors.New("invalid fiscal parameters")
)
