package config

import (
	"errors"
	"fmt"
	"net"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"github.com/sourceplane/edgeroute/internal/faults"
)

// FieldError is a validation error for one configuration field
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError collects every field error of a configuration
type ValidationError struct {
	Errors []FieldError
}

func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	mustRegister(v, "hostaddr", validateHostAddr)
	mustRegister(v, "basicauth", validateBasicAuth)
	mustRegister(v, "cron", validateCron)
	return v
}

// mustRegister panics when a custom tag cannot be registered
func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("failed to register validation %q: %v", tag, err))
	}
}

// validateHostAddr accepts a bare host name or IP without scheme or path
func validateHostAddr(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return !strings.Contains(s, "://") && !strings.ContainsAny(s, "/ ")
}

func validateBasicAuth(fl validator.FieldLevel) bool {
	user, hash, ok := strings.Cut(fl.Field().String(), ":")
	return ok && user != "" && hash != ""
}

func validateCron(fl validator.FieldLevel) bool {
	_, err := cron.ParseStandard(fl.Field().String())
	return err == nil
}

func fieldErrors(err error) []FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Field: "config", Message: err.Error()}}
	}
	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{Field: dotted(fe.Namespace()), Message: describe(fe)})
	}
	return out
}

// dotted strips the struct name from a validator namespace
func dotted(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fe.Value())
	case "startswith":
		return fmt.Sprintf("must start with %q", fe.Param())
	case "hostaddr":
		return fmt.Sprintf("must be a bare host name or address, got %q", fe.Value())
	case "basicauth":
		return "must have the form user:hash"
	case "cron":
		return fmt.Sprintf("invalid schedule %q", fe.Value())
	}
	return fmt.Sprintf("failed %s validation", fe.Tag())
}

// Validate checks the runtime configuration
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return ValidationError{Errors: fieldErrors(err)}
	}
	return nil
}

// ValidateSettings checks the operator settings against the effective
// external address. The first problem is reported as a
// ConfigurationInvalid naming the offending key.
func ValidateSettings(s Settings, externalHost string) error {
	if err := validate.Struct(s); err != nil {
		fe := fieldErrors(err)[0]
		return &faults.ConfigurationInvalid{Key: fe.Field, Reason: fe.Message}
	}
	if s.RoutingMode == "subdomain" {
		switch {
		case externalHost == "":
			return &faults.ConfigurationInvalid{Key: "routing_mode", Reason: "subdomain routing requires an external hostname"}
		case net.ParseIP(externalHost) != nil:
			return &faults.ConfigurationInvalid{
				Key:    "external_hostname",
				Reason: fmt.Sprintf("subdomain routing requires a DNS name, got IP %s", externalHost),
			}
		}
	}
	return nil
}
