package validator

import (
	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

// New returns a struct validator with the project's custom tags registered:
// console_host, cron and output_format.
func New() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	_ = v.RegisterValidation("console_host", func(fl validator.FieldLevel) bool {
		return ValidateHost(fl.Field().String())
	})
	_ = v.RegisterValidation("cron", func(fl validator.FieldLevel) bool {
		spec := fl.Field().String()
		if spec == "" {
			return true
		}
		_, err := cron.ParseStandard(spec)
		return err == nil
	})
	_ = v.RegisterValidation("output_format", func(fl validator.FieldLevel) bool {
		return ValidateOutputFormat(fl.Field().String())
	})

	return v
}
