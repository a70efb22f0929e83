// Package validation checks enqueue and orchestration requests with go-playground/validator.
//
// A single validator instance is shared so struct metadata is cached once. Failures are returned as
// [shared.ValidationError] so queue and orchestrator callers treat them as permanent.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/desertthunder/setlistsync/internal/models"
	"github.com/desertthunder/setlistsync/internal/shared"
	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// GetValidator returns the shared validator with the entity type and operation rules registered.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(jsonName)
		_ = validate.RegisterValidation("entitytype", func(fl validator.FieldLevel) bool {
			return models.EntityType(fl.Field().String()).Valid()
		})
		_ = validate.RegisterValidation("operation", func(fl validator.FieldLevel) bool {
			s := fl.Field().String()
			return s == "" || models.Operation(s).Valid()
		})
	})
	return validate
}

// ValidateStruct validates s. It returns nil or a *shared.ValidationError naming the first failed field.
func ValidateStruct(s any) error {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &shared.ValidationError{Message: err.Error()}
	}

	messages := make([]string, len(fieldErrs))
	for i, fe := range fieldErrs {
		messages[i] = translateError(fe)
	}
	return &shared.ValidationError{Field: fieldErrs[0].Namespace(), Message: strings.Join(messages, "; ")}
}

var errorMessageTemplates = map[string]string{
	"required":   "%s is required",
	"entitytype": "%s must be one of artist, venue, show, setlist, song",
	"operation":  "%s must be one of create, refresh, expand_relations, cascade_sync",
}

var errorMessageWithParam = map[string]string{
	"oneof": "%s must be one of: %s",
	"gte":   "%s must be greater than or equal to %s",
	"lte":   "%s must be less than or equal to %s",
	"max":   "%s must be at most %s",
	"min":   "%s must be at least %s",
}

func translateError(fe validator.FieldError) string {
	field := fe.Field()
	if template, ok := errorMessageTemplates[fe.Tag()]; ok {
		return fmt.Sprintf(template, field)
	}
	if template, ok := errorMessageWithParam[fe.Tag()]; ok {
		return fmt.Sprintf(template, field, fe.Param())
	}
	return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
}

func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	}
	return name
}
