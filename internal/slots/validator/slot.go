package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"mentorbook/pkg/logger"
	"mentorbook/pkg/model"

	"github.com/go-playground/validator/v10"
)

var clockTimeRegex = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

type SlotValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewSlotValidator(log *logger.Logger) *SlotValidator {
	v := validator.New()

	if err := v.RegisterValidation("valid_clock_time", validateClockTime); err != nil {
		log.Fatal("Failed to register 'valid_clock_time' validator",
			"error", err,
		)
	}

	log.Info("Slot validator initialized successfully")

	return &SlotValidator{
		validate: v,
		logger:   log,
	}
}

func validateClockTime(fl validator.FieldLevel) bool {
	return clockTimeRegex.MatchString(fl.Field().String())
}

func (v *SlotValidator) ValidateBatch(req *model.PublishSlotsRequest) error {
	if err := v.validate.Struct(req); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}

	now := time.Now()
	for i, entry := range req.Slots {
		if !entry.EndTime.After(entry.StartTime) {
			return ValidationErrors{
				ValidationError{
					Field:   fmt.Sprintf("Slots[%d].EndTime", i),
					Message: "end_time must be after start_time",
				},
			}
		}
		if entry.StartTime.Before(now) {
			return ValidationErrors{
				ValidationError{
					Field:   fmt.Sprintf("Slots[%d].StartTime", i),
					Message: "start_time cannot be in the past",
				},
			}
		}
	}

	return nil
}

func (v *SlotValidator) ValidatePattern(pattern *model.WeeklyPattern) error {
	if err := v.validate.Struct(pattern); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

func (v *SlotValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
		case "uuid4":
			message = fmt.Sprintf("%s must be a valid UUID", err.Field())
		case "gtfield":
			message = fmt.Sprintf("%s must be after %s", err.Field(), err.Param())
		case "valid_clock_time":
			message = fmt.Sprintf("%s must be in HH:MM format", err.Field())
		case "timezone":
			message = fmt.Sprintf("%s must be a valid IANA time zone", err.Field())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
