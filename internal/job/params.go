package job

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"scrapectl/internal/apperrors"
)

// Page limits accepted by the backend.
const (
	MinPages = 1
	MaxPages = 50
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Normalize trims input, applies the default format and clamps the page
// count into [MinPages, MaxPages]. Zero pages means one.
func Normalize(p Params, defaultFormat Format) Params {
	p.Site = strings.ToLower(strings.TrimSpace(p.Site))
	p.Title = strings.TrimSpace(p.Title)
	p.Location = strings.TrimSpace(p.Location)
	p.Format = Format(strings.ToLower(strings.TrimSpace(string(p.Format))))
	if p.Format == "" {
		p.Format = defaultFormat
	}
	p.Pages = max(MinPages, min(p.Pages, MaxPages))
	return p
}

// Validate checks normalized params and returns an apperrors validation
// error naming the first offending field.
func Validate(p Params) error {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperrors.Validation("", err.Error())
	}

	fe := verrs[0]
	return apperrors.Validation(fe.Field(), message(fe, p))
}

func message(fe validator.FieldError, p Params) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "required_if":
		return fmt.Sprintf("%s is required for %s", fe.Field(), p.Site)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
	case "min", "max":
		if fe.Field() == "pages" {
			return fmt.Sprintf("pages must be between %d and %d", MinPages, MaxPages)
		}
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
