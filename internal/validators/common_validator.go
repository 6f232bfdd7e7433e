package validators

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"medidispatch/internal/models"
	"medidispatch/internal/utils"
)

var validate *validator.Validate

var (
	phoneRegex = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)
	clockRegex = regexp.MustCompile(`^([0-1]?[0-9]|2[0-3]):[0-5][0-9]$`)
	htmlRegex  = regexp.MustCompile(`<[^>]*>`)
)

func init() {
	validate = validator.New()

	// Register custom validation functions
	validate.RegisterValidation("phone_number", validatePhoneNumber)
	validate.RegisterValidation("coordinates", validateCoordinates)
	validate.RegisterValidation("severity", validateSeverity)
	validate.RegisterValidation("vehicle_type", validateVehicleType)
	validate.RegisterValidation("clock_time", validateClockTime)
}

// ValidationError represents a field validation error
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	var messages []string
	for _, err := range v {
		messages = append(messages, fmt.Sprintf("%s: %s", err.Field, err.Message))
	}
	return strings.Join(messages, "; ")
}

// Add appends a hand-built error for checks that struct tags cannot express.
func (v *ValidationErrors) Add(field, tag, message string) {
	*v = append(*v, ValidationError{Field: field, Tag: tag, Message: message})
}

// ValidateStruct validates a struct and returns detailed errors
func ValidateStruct(s interface{}) ValidationErrors {
	var validationErrors ValidationErrors

	err := validate.Struct(s)
	if err != nil {
		var fieldErrors validator.ValidationErrors
		if !errors.As(err, &fieldErrors) {
			validationErrors.Add("", "invalid", err.Error())
			return validationErrors
		}
		for _, err := range fieldErrors {
			validationError := ValidationError{
				Field:   fieldPath(err),
				Tag:     err.Tag(),
				Value:   fmt.Sprintf("%v", err.Value()),
				Message: getErrorMessage(err),
			}
			validationErrors = append(validationErrors, validationError)
		}
	}

	return validationErrors
}

// fieldPath drops the top-level struct name from the namespace, so
// "CallRequest.Caller.Phone" reads as "Caller.Phone".
func fieldPath(err validator.FieldError) string {
	ns := err.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return err.Field()
}

func getErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", err.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", err.Field(), err.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", err.Field(), err.Param())
	case "phone_number":
		return "Invalid phone number format"
	case "coordinates":
		return "Invalid GPS coordinates"
	case "severity":
		return "Severity must be one of: low, medium, high, critical"
	case "vehicle_type":
		return "Invalid vehicle type"
	case "clock_time":
		return "Time must be in HH:MM format"
	default:
		return fmt.Sprintf("Validation failed for %s", err.Field())
	}
}

func validatePhoneNumber(fl validator.FieldLevel) bool {
	phone := fl.Field().String()
	if phone == "" {
		return true
	}

	// E.164 format validation
	return phoneRegex.MatchString(phone)
}

func validateCoordinates(fl validator.FieldLevel) bool {
	coords, ok := fl.Field().Interface().([]float64)
	if !ok || len(coords) != 2 {
		return false
	}

	return utils.IsValidCoordinates(coords[1], coords[0])
}

func validateSeverity(fl validator.FieldLevel) bool {
	return models.Severity(fl.Field().String()).Valid()
}

func validateVehicleType(fl validator.FieldLevel) bool {
	return models.VehicleType(fl.Field().String()).Valid()
}

func validateClockTime(fl validator.FieldLevel) bool {
	return clockRegex.MatchString(fl.Field().String())
}

func SanitizeInput(input string) string {
	// Remove HTML tags and trim whitespace
	cleaned := htmlRegex.ReplaceAllString(input, "")
	return strings.TrimSpace(cleaned)
}
