package attendance

import (
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/pkg/errors"
)

// DateLayout is the layout of attendance dates.
const DateLayout = "2006-01-02"

var (
	validate   *validator.Validate
	translator ut.Translator

	requiredTag  = "required"
	requiredText = "this field is required"

	errMissingFields = errors.New("fill all required fields")
)

func init() {
	validate = validator.New()

	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterTranslation(
		requiredTag, translator,
		func(t ut.Translator) error { return t.Add(requiredTag, requiredText, true) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(requiredTag, fe.Field())
			return s
		},
	)
}

// validateStruct runs the struct tags of s and converts failures into a ValidationError.
func validateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.Wrap(err, "validating input")
	}
	flds := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		flds = append(flds, FieldError{Field: fe.Field(), Error: fe.Translate(translator)})
	}
	return NewValidationError(errMissingFields, flds...)
}

func requireField(field, value string) error {
	if value == "" {
		return NewValidationError(
			errors.Errorf("%s is required", field),
			FieldError{Field: field, Error: requiredText},
		)
	}
	return nil
}

func validateDate(date string) error {
	if err := requireField("date", date); err != nil {
		return err
	}
	if _, err := time.Parse(DateLayout, date); err != nil {
		return NewValidationError(
			errors.Errorf("date %q must be formatted as YYYY-MM-DD", date),
			FieldError{Field: "date", Error: "must be formatted as YYYY-MM-DD"},
		)
	}
	return nil
}
