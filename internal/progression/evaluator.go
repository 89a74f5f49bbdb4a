// Package progression holds the pure gating policy deciding whether a
// stage may be marked complete or re-entered. It reads stage config and
// progress payloads; it never touches storage. Enforcement happens here,
// at the consumer boundary — the progress tracker below it records
// whatever the caller was permitted to send.
package progression

import (
	"fmt"

	"github.com/eduforge/exam-progression-service/internal/models"
)

// Decision is the evaluator's answer for one stage.
type Decision struct {
	CanComplete bool   `json:"can_complete"`
	Reason      string `json:"reason,omitempty"`
}

// CanComplete dispatches on the stage type. The switch is exhaustive: an
// unknown type is an error, never a silent fallthrough.
func CanComplete(stage *models.Stage, progress *models.StageProgress) (Decision, error) {
	raw := progress.ProgressData
	payload, err := models.DecodeProgressData(stage.StageType, raw)
	if err != nil {
		return Decision{}, err
	}

	switch stage.StageType {
	case models.StageVideo:
		cfg, err := stage.VideoConfig()
		if err != nil {
			return Decision{}, err
		}
		return evaluateVideo(cfg, payload.(*models.VideoProgress)), nil
	case models.StageContent:
		cfg, err := stage.ContentConfig()
		if err != nil {
			return Decision{}, err
		}
		return evaluateContent(cfg, payload.(*models.ContentProgress)), nil
	case models.StageQuestions:
		// Answer counts are informational; correctness is the result
		// aggregator's job at submission.
		return Decision{CanComplete: true}, nil
	default:
		return Decision{}, fmt.Errorf("unknown stage type %q", stage.StageType)
	}
}

func evaluateVideo(cfg *models.VideoStageConfig, progress *models.VideoProgress) Decision {
	if cfg.EnforcementThreshold == nil {
		return Decision{CanComplete: true}
	}
	if progress.WatchPercentage >= *cfg.EnforcementThreshold {
		return Decision{CanComplete: true}
	}
	return Decision{
		CanComplete: false,
		Reason: fmt.Sprintf("watched %.1f%% of the video, %.1f%% required",
			progress.WatchPercentage, *cfg.EnforcementThreshold),
	}
}

func evaluateContent(cfg *models.ContentStageConfig, progress *models.ContentProgress) Decision {
	if len(cfg.Slides) == 0 {
		return Decision{CanComplete: true}
	}

	visited := make(map[string]bool, len(progress.VisitedSlides))
	for _, id := range progress.VisitedSlides {
		visited[id] = true
	}
	for _, slide := range cfg.Slides {
		if !visited[slide.ID] {
			return Decision{
				CanComplete: false,
				Reason:      fmt.Sprintf("slide %s not visited", slide.ID),
			}
		}
	}

	if cfg.MinimumReadTimePerSlide != nil {
		last := cfg.Slides[len(cfg.Slides)-1]
		minimum := float64(*cfg.MinimumReadTimePerSlide)
		if progress.SlideTimes[last.ID] < minimum {
			return Decision{
				CanComplete: false,
				Reason: fmt.Sprintf("spent %.0fs on the last slide, %.0fs required",
					progress.SlideTimes[last.ID], minimum),
			}
		}
	}

	return Decision{CanComplete: true}
}

// CanAdvanceSlide gates moving off the current slide of a content stage.
// Always true when no minimum read time is configured.
func CanAdvanceSlide(cfg *models.ContentStageConfig, progress *models.ContentProgress) (bool, error) {
	if cfg.MinimumReadTimePerSlide == nil {
		return true, nil
	}
	if progress.CurrentSlideIndex < 0 || progress.CurrentSlideIndex >= len(cfg.Slides) {
		return false, fmt.Errorf("current_slide_index %d out of range", progress.CurrentSlideIndex)
	}
	current := cfg.Slides[progress.CurrentSlideIndex]
	return progress.SlideTimes[current.ID] >= float64(*cfg.MinimumReadTimePerSlide), nil
}

// IsReenterable reports whether the evaluator will present a stage as
// editable. Completed stages never are, even though the storage row
// underneath stays technically mutable.
func IsReenterable(progress *models.StageProgress) bool {
	if progress == nil {
		return true
	}
	return !progress.IsCompleted()
}
