package dto

import (
	"reflect"
	"strings"
	"unicode"

	"notification-engine/internal/core/domain"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var knownEventTypes = map[domain.EventType]bool{
	domain.EventPaymentValidated:       true,
	domain.EventPaymentRejected:        true,
	domain.EventPaymentReinstated:      true,
	domain.EventPaymentReminder:        true,
	domain.EventRegistrationCreated:    true,
	domain.EventRegistrationConfirmed:  true,
	domain.EventRegistrationCancelled:  true,
	domain.EventRegistrationUpdated:    true,
	domain.EventCredentialExpiringSoon: true,
}

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		RegisterValidations(v)
	}
}

// RegisterValidations adds the custom tags used by the DTOs to v. Gin's
// validator gets them at init; standalone validators (Kafka ingress) call it.
func RegisterValidations(v *validator.Validate) {
	_ = v.RegisterValidation("event_type", validateEventType)
	_ = v.RegisterValidation("notify_channel", validateChannel)
	_ = v.RegisterValidation("installment_status", validateInstallmentStatus)
}

func validateEventType(fl validator.FieldLevel) bool {
	return knownEventTypes[domain.EventType(fl.Field().String())]
}

func validateChannel(fl validator.FieldLevel) bool {
	return domain.Channel(fl.Field().String()).Valid()
}

func validateInstallmentStatus(fl validator.FieldLevel) bool {
	return domain.InstallmentStatus(fl.Field().String()).Valid()
}

// SanitizeStruct trims whitespace and strips control characters from every
// exported string field (including *string) of a struct pointer. Output
// escaping is left to the templates.
func SanitizeStruct(v interface{}) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return
	}
	sanitizeFields(rv.Elem())
}

func sanitizeFields(rv reflect.Value) {
	for i := 0; i < rv.NumField(); i++ {
		f := rv.Field(i)
		if !f.CanSet() {
			continue
		}
		switch f.Kind() {
		case reflect.String:
			f.SetString(sanitize(f.String()))
		case reflect.Ptr:
			if f.IsNil() {
				continue
			}
			elem := f.Elem()
			if elem.Kind() == reflect.String {
				elem.SetString(sanitize(elem.String()))
			}
		}
	}
}

func sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}
