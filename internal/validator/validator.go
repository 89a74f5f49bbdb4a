package validator

import (
	"reflect"
	"strings"

	apperrors "github.com/eduforge/exam-progression-service/internal/errors"
	"github.com/eduforge/exam-progression-service/internal/models"
	"github.com/eduforge/exam-progression-service/internal/scoring"
	"github.com/go-playground/validator/v10"
)

// Validation failures surface as the shared error types so handlers and
// services match on one shape.
type ValidationError = apperrors.ValidationError
type ValidationErrors = apperrors.ValidationErrors

// ToValidationErrors converts go-playground field errors into the shared
// ValidationErrors value.
func ToValidationErrors(err error) ValidationErrors {
	return apperrors.ToValidationErrors(err)
}

// Validator wraps go-playground struct validation with the domain's
// custom tag validators registered once.
type Validator struct {
	structValidator *validator.Validate
}

// New creates a new centralized validator instance
func New() *Validator {
	structValidator := validator.New()
	registerCustomValidators(structValidator)
	registerTagNameFunc(structValidator)

	return &Validator{
		structValidator: structValidator,
	}
}

// ValidateStruct validates struct tags only
func (v *Validator) ValidateStruct(s interface{}) error {
	return v.structValidator.Struct(s)
}

// Validate runs struct validation and converts failures into the shared
// ValidationErrors type. Returns nil when s is valid.
func (v *Validator) Validate(s interface{}) error {
	if err := v.structValidator.Struct(s); err != nil {
		if ve := ToValidationErrors(err); len(ve) > 0 {
			return ve
		}
		return err
	}
	return nil
}

// registerTagNameFunc reports field names from json tags so validation
// errors match the wire format.
func registerTagNameFunc(v *validator.Validate) {
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

func registerCustomValidators(v *validator.Validate) {
	v.RegisterValidation("stage_type", validateStageType)
	v.RegisterValidation("completion_status", validateCompletionStatus)
	v.RegisterValidation("exam_status", validateExamStatus)
	v.RegisterValidation("pass_calc_mode", validatePassCalcMode)
	v.RegisterValidation("exam_score_source", validateExamScoreSource)
	v.RegisterValidation("aux_field_type", validateAuxFieldType)
	v.RegisterValidation("percentage", validatePercentage)
	v.RegisterValidation("weight", validateWeight)
}

func validateStageType(fl validator.FieldLevel) bool {
	switch models.StageType(fl.Field().String()) {
	case models.StageVideo, models.StageContent, models.StageQuestions:
		return true
	}
	return false
}

func validateCompletionStatus(fl validator.FieldLevel) bool {
	switch models.CompletionStatus(fl.Field().String()) {
	case models.AttemptInProgress, models.AttemptSubmitted, models.AttemptAbandoned:
		return true
	}
	return false
}

func validateExamStatus(fl validator.FieldLevel) bool {
	switch models.ExamStatus(fl.Field().String()) {
	case models.ExamDraft, models.ExamActive, models.ExamArchived:
		return true
	}
	return false
}

func validatePassCalcMode(fl validator.FieldLevel) bool {
	switch scoring.PassCalcMode(fl.Field().String()) {
	case scoring.PassCalcBest, scoring.PassCalcAvg:
		return true
	}
	return false
}

func validateExamScoreSource(fl validator.FieldLevel) bool {
	switch scoring.ExamScoreSource(fl.Field().String()) {
	case scoring.SourceFinal, scoring.SourceRaw:
		return true
	}
	return false
}

func validateAuxFieldType(fl validator.FieldLevel) bool {
	switch scoring.FieldType(fl.Field().String()) {
	case scoring.FieldNumeric, scoring.FieldBoolean, scoring.FieldText:
		return true
	}
	return false
}

func validatePercentage(fl validator.FieldLevel) bool {
	val := fl.Field().Float()
	return val >= 0 && val <= 100
}

func validateWeight(fl validator.FieldLevel) bool {
	return fl.Field().Float() >= 0
}
