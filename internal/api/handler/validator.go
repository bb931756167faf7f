package handler

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/intranet/realtime-system/internal/core/domain"
)

// echoValidator wraps go-playground/validator so Echo can call c.Validate(req).
// Field names in messages are the JSON names the client sent.
type echoValidator struct {
	v *validator.Validate
}

func NewValidator() *echoValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)

	_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		return domain.ValidRole(fl.Field().String())
	})
	_ = v.RegisterValidation("notification_type", func(fl validator.FieldLevel) bool {
		return domain.NotificationType(fl.Field().String()).IsValid()
	})
	return &echoValidator{v: v}
}

func (ev *echoValidator) Validate(i any) error {
	err := ev.v.Struct(i)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		msgs = append(msgs, fieldError(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	}
	return name
}

func fieldError(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email"
	case "url":
		return field + " must be a valid url"
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s needs at least %s item(s)", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "role":
		return fmt.Sprintf("%s must be one of: %s, %s", field, domain.RoleAdmin, domain.RoleMember)
	case "notification_type":
		return field + " must be one of: chat, system, suggestion, kpi"
	default:
		return fmt.Sprintf("%s failed validation (%s)", field, fe.Tag())
	}
}
