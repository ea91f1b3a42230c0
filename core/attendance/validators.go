package attendance

import (
	"reflect"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/rollcall/core"
)

var (
	// custom validation tags & texts
	statusTag  = "attstatus"
	statusText = "must be one of Present, Absent or Leave"

	decisionTag  = "decision"
	decisionText = "must be empty, overwrite or skip"
)

// InitValidators registers the attendance validation tags.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	validate.RegisterCustomTypeFunc(nullStringValue, null.String{})

	_ = validate.RegisterValidation(statusTag, statusValidation)
	core.RegisterCustomTranslation(validate, translator, statusTag, statusText)

	_ = validate.RegisterValidation(decisionTag, decisionValidation)
	core.RegisterCustomTranslation(validate, translator, decisionTag, decisionText)
}

// nullStringValue makes unset null.Strings look empty to `omitempty`.
func nullStringValue(field reflect.Value) interface{} {
	if s, ok := field.Interface().(null.String); ok && s.Valid {
		return s.String
	}
	return ""
}

func statusValidation(fl validator.FieldLevel) bool {
	_, ok := ParseStatus(fl.Field().String())
	return ok
}

func decisionValidation(fl validator.FieldLevel) bool {
	switch strings.ToLower(strings.TrimSpace(fl.Field().String())) {
	case DecisionNone, DecisionOverwrite, DecisionSkip:
		return true
	}
	return false
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func fieldError(field, msg string) error {
	return core.NewValidationError(nil, core.FieldError{Field: field, Error: msg})
}
