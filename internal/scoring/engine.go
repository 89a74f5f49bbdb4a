// Package scoring implements the deterministic score calculation pipeline:
// structural validation, per-exam component, auxiliary-field component,
// weighted combination, and the pass/fail verdict. Every step is a pure
// function over immutable values; nothing escapes the engine boundary as a
// panic or error — failures become a success=false CalculationResult.
package scoring

import (
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"
)

var structValidate = validator.New()

// Calculate runs the full pipeline. Safe for unbounded concurrent use.
func Calculate(input CalculationInput) (result CalculationResult) {
	result.PassCalcMode = input.Settings.PassCalcMode
	result.OverallPassThreshold = input.Settings.OverallPassThreshold

	defer func() {
		if r := recover(); r != nil {
			result = CalculationResult{
				Success:              false,
				Errors:               []string{fmt.Sprintf("internal calculation error: %v", r)},
				PassCalcMode:         input.Settings.PassCalcMode,
				OverallPassThreshold: input.Settings.OverallPassThreshold,
			}
		}
	}()

	if errs := validateInput(input); len(errs) > 0 {
		result.Success = false
		result.Errors = errs
		return result
	}

	exam := calculateExamComponent(input.Attempts, input.Settings)
	extra := calculateExtraComponent(input.FieldDefs, input.FieldValues)
	final := combineComponents(exam, extra, input.Settings)
	passed, failedDueToExam := determinePassStatus(exam, final, input.Settings)

	result.Success = true
	result.ExamComponent = exam
	result.ExtraComponent = extra
	result.FinalScore = final
	result.Passed = passed
	result.FailedDueToExam = failedDueToExam
	return result
}

// validateInput collects field-level error strings; the engine never
// rejects input by panicking or returning an error value.
func validateInput(input CalculationInput) []string {
	var errs []string

	if err := structValidate.Struct(input); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range fieldErrs {
				errs = append(errs, fmt.Sprintf("%s: failed %q validation", fe.Namespace(), fe.Tag()))
			}
		} else {
			errs = append(errs, err.Error())
		}
	}

	seen := make(map[string]bool, len(input.FieldDefs))
	for _, def := range input.FieldDefs {
		if seen[def.Key] {
			errs = append(errs, fmt.Sprintf("field_defs: duplicate key %q", def.Key))
		}
		seen[def.Key] = true

		if def.Type == FieldNumeric {
			if raw, ok := input.FieldValues[def.Key]; ok && raw != nil {
				if _, ok := toFloat(raw); !ok {
					errs = append(errs, fmt.Sprintf("field_values.%s: expected a number, got %T", def.Key, raw))
				}
			}
		}
		if def.Type == FieldBoolean {
			if raw, ok := input.FieldValues[def.Key]; ok && raw != nil {
				if _, ok := raw.(bool); !ok {
					errs = append(errs, fmt.Sprintf("field_values.%s: expected a boolean, got %T", def.Key, raw))
				}
			}
		}
	}

	return errs
}

// calculateExamComponent selects one score per attempt, clamps and rounds
// it, flags per-exam passes, and aggregates the included attempts under
// the configured mode. Score is nil when no attempt is included.
func calculateExamComponent(attempts []AttemptSummary, settings Settings) ExamComponent {
	component := ExamComponent{
		Weight:  settings.ExamWeight,
		PerExam: make([]ExamScoreDetail, 0, len(attempts)),
	}

	var included []float64
	for _, attempt := range attempts {
		score := selectScore(attempt, settings.ExamScoreSource)
		score = round2(clamp(score))

		detail := ExamScoreDetail{
			ExamID:   attempt.ExamID,
			Score:    score,
			Included: attempt.IncludeInPass,
		}
		if attempt.PassThreshold != nil {
			passed := score >= *attempt.PassThreshold
			detail.Passed = &passed
		}
		component.PerExam = append(component.PerExam, detail)

		if attempt.IncludeInPass {
			included = append(included, score)
		}
	}

	if len(included) == 0 {
		return component
	}

	var aggregated float64
	switch settings.PassCalcMode {
	case PassCalcBest:
		aggregated = included[0]
		for _, s := range included[1:] {
			if s > aggregated {
				aggregated = s
			}
		}
	case PassCalcAvg:
		sum := 0.0
		for _, s := range included {
			sum += s
		}
		aggregated = sum / float64(len(included))
	}

	aggregated = round2(clamp(aggregated))
	component.Score = &aggregated
	return component
}

// selectScore applies the examScoreSource preference with fallback to the
// other score when the preferred one is absent.
func selectScore(attempt AttemptSummary, source ExamScoreSource) float64 {
	primary, fallback := attempt.FinalScore, attempt.RawScore
	if source == SourceRaw {
		primary, fallback = attempt.RawScore, attempt.FinalScore
	}
	if primary != nil {
		return *primary
	}
	if fallback != nil {
		return *fallback
	}
	return 0
}

// calculateExtraComponent normalizes every included auxiliary field to
// 0-100 and takes the weighted average. Missing or nil raw values
// normalize to 0 without error. Score is nil when total weight is 0.
func calculateExtraComponent(defs []AuxFieldDef, values map[string]interface{}) ExtraComponent {
	component := ExtraComponent{Fields: make([]FieldScoreDetail, 0, len(defs))}

	weightedSum := 0.0
	for _, def := range defs {
		if !def.IncludeInPass {
			continue
		}

		raw := values[def.Key]
		normalized := round2(clamp(normalizeFieldValue(def, raw)))
		contribution := normalized * def.Weight

		component.Fields = append(component.Fields, FieldScoreDetail{
			Key:                  def.Key,
			RawValue:             raw,
			NormalizedScore:      normalized,
			Weight:               def.Weight,
			WeightedContribution: contribution,
		})

		weightedSum += contribution
		component.TotalWeight += def.Weight
	}

	if component.TotalWeight == 0 {
		return component
	}

	score := round2(clamp(weightedSum / component.TotalWeight))
	component.Score = &score
	return component
}

func normalizeFieldValue(def AuxFieldDef, raw interface{}) float64 {
	if raw == nil {
		return 0
	}

	switch def.Type {
	case FieldNumeric:
		value, ok := toFloat(raw)
		if !ok {
			return 0
		}
		if def.MaxPoints != nil && *def.MaxPoints != 0 {
			return value / *def.MaxPoints * 100
		}
		return value
	case FieldBoolean:
		value, ok := raw.(bool)
		if !ok {
			return 0
		}
		truePoints, falsePoints := 100.0, 0.0
		if def.TruePoints != nil {
			truePoints = *def.TruePoints
		}
		if def.FalsePoints != nil {
			falsePoints = *def.FalsePoints
		}
		if value {
			return truePoints
		}
		return falsePoints
	case FieldText:
		value, ok := raw.(string)
		if !ok {
			return 0
		}
		// Exact match only, no fuzzy fallback.
		return def.TextScores[value]
	default:
		return 0
	}
}

// combineComponents takes the weighted average of the exam and extra
// components. One nil side means the other wins outright; both nil, or a
// combined weight of zero, yields nil.
func combineComponents(exam ExamComponent, extra ExtraComponent, settings Settings) *float64 {
	examScore, extraScore := exam.Score, extra.Score

	if examScore == nil && extraScore == nil {
		return nil
	}
	if examScore == nil {
		v := round2(clamp(*extraScore))
		return &v
	}
	if extraScore == nil {
		v := round2(clamp(*examScore))
		return &v
	}

	totalWeight := settings.ExamWeight + extra.TotalWeight
	if totalWeight == 0 {
		return nil
	}

	combined := (*examScore*settings.ExamWeight + *extraScore*extra.TotalWeight) / totalWeight
	combined = round2(clamp(combined))
	return &combined
}

// determinePassStatus applies failOnAnyExam short-circuiting before the
// overall threshold comparison. Passed is nil when no final score exists.
func determinePassStatus(exam ExamComponent, final *float64, settings Settings) (*bool, bool) {
	if settings.FailOnAnyExam {
		for _, detail := range exam.PerExam {
			if detail.Included && detail.Passed != nil && !*detail.Passed {
				failed := false
				return &failed, true
			}
		}
	}

	if final == nil {
		return nil, false
	}

	passed := *final >= settings.OverallPassThreshold
	return &passed, false
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func toFloat(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	default:
		return 0, false
	}
}
