package httpx

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/shopledger/shopledger/internal/shared"
)

// Validate runs struct tags on target and converts the first failure into a shared.ValidationError.
func Validate(v *validator.Validate, target any) error {
	err := v.Struct(target)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	fe := fieldErrs[0]
	reason := fe.Tag()
	if fe.Param() != "" {
		reason = fmt.Sprintf("%s=%s", fe.Tag(), fe.Param())
	}
	return shared.Invalid(strings.ToLower(fe.Field()), "failed "+reason)
}
