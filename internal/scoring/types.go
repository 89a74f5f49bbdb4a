package scoring

type ExamScoreSource string

const (
	// SourceFinal prefers a finalized score, falling back to the raw score.
	SourceFinal ExamScoreSource = "final"
	// SourceRaw prefers the raw score, falling back to the finalized one.
	SourceRaw ExamScoreSource = "raw"
)

type PassCalcMode string

const (
	PassCalcBest PassCalcMode = "best"
	PassCalcAvg  PassCalcMode = "avg"
)

type FieldType string

const (
	FieldNumeric FieldType = "numeric"
	FieldBoolean FieldType = "boolean"
	FieldText    FieldType = "text"
)

// AttemptSummary is one per-exam result feeding the exam component.
type AttemptSummary struct {
	ExamID        string   `json:"exam_id" validate:"required"`
	RawScore      *float64 `json:"raw_score"`
	FinalScore    *float64 `json:"final_score"`
	IncludeInPass bool     `json:"include_in_pass"`
	// PassThreshold, when set, gives this exam its own pass flag.
	PassThreshold *float64 `json:"pass_threshold" validate:"omitempty,min=0,max=100"`
}

// AuxFieldDef defines one auxiliary weighted field and its normalization
// rule. Numeric values scale against MaxPoints when set; booleans map to
// configurable point values (default 100/0); text values resolve through
// an exact-match label->score table.
type AuxFieldDef struct {
	Key           string    `json:"key" validate:"required"`
	Type          FieldType `json:"type" validate:"required,oneof=numeric boolean text"`
	Weight        float64   `json:"weight" validate:"min=0"`
	IncludeInPass bool      `json:"include_in_pass"`

	MaxPoints   *float64           `json:"max_points"`
	TruePoints  *float64           `json:"true_points"`
	FalsePoints *float64           `json:"false_points"`
	TextScores  map[string]float64 `json:"text_scores"`
}

type Settings struct {
	ExamScoreSource      ExamScoreSource `json:"exam_score_source" validate:"required,oneof=final raw"`
	PassCalcMode         PassCalcMode    `json:"pass_calc_mode" validate:"required,oneof=best avg"`
	ExamWeight           float64         `json:"exam_weight" validate:"min=0"`
	OverallPassThreshold float64         `json:"overall_pass_threshold" validate:"min=0,max=100"`
	FailOnAnyExam        bool            `json:"fail_on_any_exam"`
}

// CalculationInput is the full value object the engine consumes. It is
// never mutated.
type CalculationInput struct {
	StudentID   string                 `json:"student_id" validate:"required"`
	Attempts    []AttemptSummary       `json:"attempts" validate:"dive"`
	FieldValues map[string]interface{} `json:"field_values"`
	FieldDefs   []AuxFieldDef          `json:"field_defs" validate:"dive"`
	Settings    Settings               `json:"settings"`
}

// ExamScoreDetail is the per-exam breakdown inside the exam component.
type ExamScoreDetail struct {
	ExamID   string  `json:"exam_id"`
	Score    float64 `json:"score"`
	Included bool    `json:"included"`
	// Passed is nil when the exam carries no threshold of its own.
	Passed *bool `json:"passed"`
}

type ExamComponent struct {
	Score   *float64          `json:"score"`
	Weight  float64           `json:"weight"`
	PerExam []ExamScoreDetail `json:"per_exam"`
}

// FieldScoreDetail is the per-field breakdown inside the extra component.
type FieldScoreDetail struct {
	Key                  string      `json:"key"`
	RawValue             interface{} `json:"raw_value"`
	NormalizedScore      float64     `json:"normalized_score"`
	Weight               float64     `json:"weight"`
	WeightedContribution float64     `json:"weighted_contribution"`
}

type ExtraComponent struct {
	Score       *float64           `json:"score"`
	TotalWeight float64            `json:"total_weight"`
	Fields      []FieldScoreDetail `json:"fields"`
}

// CalculationResult is the engine output. Success is false when input
// validation failed or an internal error was recovered; Errors then
// carries the messages and the score fields stay zeroed.
type CalculationResult struct {
	Success bool     `json:"success"`
	Errors  []string `json:"errors,omitempty"`

	ExamComponent  ExamComponent  `json:"exam_component"`
	ExtraComponent ExtraComponent `json:"extra_component"`

	FinalScore      *float64 `json:"final_score"`
	Passed          *bool    `json:"passed"`
	FailedDueToExam bool     `json:"failed_due_to_exam"`

	// Echoed settings, populated as far as they are knowable even on
	// failure paths.
	PassCalcMode         PassCalcMode `json:"pass_calc_mode"`
	OverallPassThreshold float64      `json:"overall_pass_threshold"`
}
