// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

// Package validation wraps go-playground/validator v10 with a process-wide
// instance and the custom tags GadgetGrove needs for events:
//
//   - eventtype: lower-case token such as page_view or add_to_cart
//   - pathtoken: safe to use as a single directory or file name component
//
// Field names in errors use the json tag, so messages match the wire format.
//
//	if err := validation.ValidateStruct(&event); err != nil {
//	    respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
//	}
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once

	eventTypePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)
	pathTokenPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,127}$`)
)

// FieldError is a single failed rule.
type FieldError struct {
	Field   string
	Tag     string
	Param   string
	Message string
}

// Error implements error.
func (e FieldError) Error() string {
	return e.Message
}

// Errors is the set of rules a struct failed.
type Errors []FieldError

// Error joins all messages.
func (ve Errors) Error() string {
	if len(ve) == 0 {
		return "validation failed"
	}
	msgs := make([]string, len(ve))
	for i, fe := range ve {
		msgs[i] = fe.Message
	}
	return strings.Join(msgs, "; ")
}

// Fields lists the failing field names.
func (ve Errors) Fields() []string {
	out := make([]string, len(ve))
	for i, fe := range ve {
		out[i] = fe.Field
	}
	return out
}

// GetValidator returns the shared validator, building it on first use.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
		mustRegister(v, "eventtype", func(fl validator.FieldLevel) bool {
			return eventTypePattern.MatchString(fl.Field().String())
		})
		mustRegister(v, "pathtoken", func(fl validator.FieldLevel) bool {
			s := fl.Field().String()
			return pathTokenPattern.MatchString(s) && !strings.Contains(s, "..")
		})
		validate = v
	})
	return validate
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("validation: register %s: %v", tag, err))
	}
}

// ValidateStruct validates s and returns Errors, or nil when s is valid.
func ValidateStruct(s interface{}) error {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return Errors{{Field: "unknown", Tag: "unknown", Message: err.Error()}}
	}

	out := make(Errors, len(fieldErrs))
	for i, fe := range fieldErrs {
		out[i] = FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Message: translate(fe),
		}
	}
	return out
}

// IsEventType reports whether s is a well-formed event type token.
func IsEventType(s string) bool {
	return eventTypePattern.MatchString(s)
}

var messageTemplates = map[string]string{
	"required":  "%s is required",
	"eventtype": "%s must be a lower-case event type such as page_view",
	"pathtoken": "%s must contain only letters, digits, '_', '-' or '.'",
	"uuid":      "%s must be a UUID",
	"url":       "%s must be a valid URL",
}

func translate(fe validator.FieldError) string {
	if tmpl, ok := messageTemplates[fe.Tag()]; ok {
		return fmt.Sprintf(tmpl, fe.Field())
	}
	switch fe.Tag() {
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
