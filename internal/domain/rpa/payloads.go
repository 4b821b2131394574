package rpa

import (
	"bytes"
	"encoding/json"
	"fmt"

	"montero/internal/platform/validate"
)

type AffiliationPayload struct {
	DocumentType   string `json:"documentType" validate:"required,oneof=CC CE TI PA PEP PPT"`
	DocumentNumber string `json:"documentNumber" validate:"required,alphanum,min=3,max=20"`
	FirstName      string `json:"firstName" validate:"required,max=80"`
	LastName       string `json:"lastName" validate:"required,max=80"`
	BirthDate      string `json:"birthDate" validate:"required,datetime=2006-01-02"`
	Gender         string `json:"gender" validate:"omitempty,oneof=M F"`
	Email          string `json:"email" validate:"omitempty,email"`
	Phone          string `json:"phone" validate:"omitempty,max=20"`
	Address        string `json:"address" validate:"omitempty,max=160"`
	City           string `json:"city" validate:"omitempty,max=80"`
	EmployerNIT    string `json:"employerNit" validate:"required,max=20"`
	CompanyName    string `json:"companyName" validate:"omitempty,max=160"`
	StartDate      string `json:"startDate" validate:"required,datetime=2006-01-02"`
	Salary         int64  `json:"salary" validate:"gt=0"`
	RiskClass      string `json:"riskClass" validate:"omitempty,oneof=I II III IV V"`
	Position       string `json:"position" validate:"omitempty,max=80"`
}

type CertificatePayload struct {
	DocumentType    string `json:"documentType" validate:"required,oneof=CC CE TI PA PEP PPT"`
	DocumentNumber  string `json:"documentNumber" validate:"required,alphanum,min=3,max=20"`
	CertificateType string `json:"certificateType" validate:"omitempty,oneof=afiliacion aportes"`
	Period          string `json:"period" validate:"omitempty,datetime=2006-01"`
}

type IncapacityPayload struct {
	DocumentType   string   `json:"documentType" validate:"required,oneof=CC CE TI PA PEP PPT"`
	DocumentNumber string   `json:"documentNumber" validate:"required,alphanum,min=3,max=20"`
	StartDate      string   `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate        string   `json:"endDate" validate:"required,datetime=2006-01-02"`
	Diagnosis      string   `json:"diagnosis" validate:"required,alphanum,min=3,max=8"`
	Origin         string   `json:"origin" validate:"required,oneof=comun laboral"`
	Attachments    []string `json:"attachments" validate:"max=10,dive,uuid"`
}

// DecodePayload unmarshals raw into T and validates it.
func DecodePayload[T any](raw json.RawMessage) (T, error) {
	var out T
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return out, fmt.Errorf("%w: payload must be a JSON object", ErrInvalidPayload)
	}
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	issues, err := validate.Struct(out)
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if len(issues) > 0 {
		return out, &PayloadError{Issues: issues}
	}
	return out, nil
}

// ValidatePayload checks raw against the schema of action.
func ValidatePayload(action Action, raw json.RawMessage) error {
	var err error
	switch action {
	case ActionAffiliate:
		_, err = DecodePayload[AffiliationPayload](raw)
	case ActionCertDownload:
		_, err = DecodePayload[CertificatePayload](raw)
	case ActionIncapacityFile:
		var p IncapacityPayload
		p, err = DecodePayload[IncapacityPayload](raw)
		if err == nil && p.EndDate < p.StartDate {
			err = &PayloadError{Issues: []validate.FieldIssue{{Field: "endDate", Message: "endDate debe ser igual o posterior a startDate"}}}
		}
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidJob, action)
	}
	return err
}

// PayloadError carries per-field validation issues and matches ErrInvalidPayload.
type PayloadError struct {
	Issues []validate.FieldIssue
}

func (e *PayloadError) Error() string {
	return ErrInvalidPayload.Error() + ": " + validate.Summary(e.Issues)
}

func (e *PayloadError) Is(target error) bool { return target == ErrInvalidPayload }
