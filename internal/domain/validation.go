package domain

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

// runIDPattern admits identifiers that are safe as a directory name and as a
// colon-separated key segment: no path separators, no colons, no dot-only names.
var runIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// validate is the package-level validator instance used for struct validation.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("runid", func(fl validator.FieldLevel) bool {
		return runIDPattern.MatchString(fl.Field().String())
	})
	return v
}

// ValidateRunID checks that id can key traces in every store. Run ids are at
// most 128 characters of letters, digits, '.', '_' and '-', starting with a
// letter or digit.
func ValidateRunID(id string) error {
	if err := validate.Var(id, "required,runid"); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidRunID, id)
	}
	return nil
}
