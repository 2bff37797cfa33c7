// Package validation checks request payloads with go-playground/validator
// and a few domain tags: otpcode, purpose, permission, nodestatus.
package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/cloudvault/internal/common"
	"github.com/dmitrijs2005/cloudvault/internal/server/models"
	"github.com/go-playground/validator/v10"
)

type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	validate := validator.New(validator.WithRequiredStructEnabled())

	_ = validate.RegisterValidation("otpcode", validateOTPCode)
	_ = validate.RegisterValidation("purpose", validatePurpose)
	_ = validate.RegisterValidation("permission", validatePermission)
	_ = validate.RegisterValidation("nodestatus", validateNodeStatus)

	return &Validator{validate: validate}
}

// Struct validates s. Failures wrap common.ErrorValidation and name the
// offending fields.
func (v *Validator) Struct(s any) error {
	return wrap(v.validate.Struct(s))
}

// Var validates a single value against tag.
func (v *Validator) Var(field any, tag string) error {
	return wrap(v.validate.Var(field, tag))
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", common.ErrorValidation, err)
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		name := fe.Field()
		if name == "" {
			name = "value"
		}
		parts = append(parts, fmt.Sprintf("%s failed %s", strings.ToLower(name), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", common.ErrorValidation, strings.Join(parts, ", "))
}

// IsOTPCode reports whether s is exactly six ASCII digits.
func IsOTPCode(s string) bool {
	if len(s) != 6 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func validateOTPCode(fl validator.FieldLevel) bool {
	return IsOTPCode(fl.Field().String())
}

func validatePurpose(fl validator.FieldLevel) bool {
	_, err := models.ParsePurpose(fl.Field().String())
	return err == nil
}

func validatePermission(fl validator.FieldLevel) bool {
	_, err := models.ParsePermission(fl.Field().String())
	return err == nil
}

func validateNodeStatus(fl validator.FieldLevel) bool {
	_, err := models.ParseNodeStatus(fl.Field().String())
	return err == nil
}
