// Package validate holds the process-wide struct validator with Spanish
// messages keyed by JSON field names.
package validate

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/locales/es"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	es_translations "github.com/go-playground/validator/v10/translations/es"
)

type Svc struct {
	Validator  *validator.Validate
	Translator ut.Translator
}

// FieldIssue is one failed rule, translated.
type FieldIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var (
	once sync.Once
	svc  *Svc
)

var platformPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)

func Get() *Svc {
	once.Do(func() {
		loc := es.New()
		uni := ut.New(loc, loc)
		trans, _ := uni.GetTranslator("es")

		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag := fld.Tag.Get("json")
			if tag == "-" || tag == "" {
				return fld.Name
			}
			if idx := strings.Index(tag, ","); idx >= 0 {
				tag = tag[:idx]
			}
			return tag
		})
		_ = es_translations.RegisterDefaultTranslations(v, trans)

		_ = v.RegisterValidation("platform", func(fl validator.FieldLevel) bool {
			return platformPattern.MatchString(fl.Field().String())
		})
		registerMessage(v, trans, "platform", "{0} debe ser un identificador de plataforma válido")

		svc = &Svc{Validator: v, Translator: trans}
	})
	return svc
}

func registerMessage(v *validator.Validate, trans ut.Translator, tag, text string) {
	_ = v.RegisterTranslation(tag, trans,
		func(ut ut.Translator) error {
			return ut.Add(tag, text, true)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			msg, _ := ut.T(tag, fe.Field())
			return msg
		},
	)
}

// Struct validates s and returns the translated issues, or nil when s is valid.
// Non-validation errors (for example a nil pointer) come back as err.
func Struct(s any) ([]FieldIssue, error) {
	err := Get().Validator.Struct(s)
	if err == nil {
		return nil, nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil, err
	}
	issues := make([]FieldIssue, 0, len(verrs))
	for _, fe := range verrs {
		issues = append(issues, FieldIssue{Field: fieldPath(fe), Message: fe.Translate(Get().Translator)})
	}
	return issues, nil
}

// fieldPath drops the root struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}
	return fe.Field()
}

// Summary joins issues into one line for error messages.
func Summary(issues []FieldIssue) string {
	parts := make([]string, 0, len(issues))
	for _, issue := range issues {
		parts = append(parts, issue.Message)
	}
	return strings.Join(parts, "; ")
}
