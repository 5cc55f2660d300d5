// Package grading derives the grading payload and the dispatch decision from
// a submission and the check report. Everything here is pure; loading the
// documents and calling the grading service live elsewhere.
package grading

import (
	"errors"
	"fmt"
	"strings"

	"github.com/osvaldoandrade/gradeq/pkg/domain"
)

var ErrMissingReportPath = fmt.Errorf("%w: either report file path should be provided or fail submission should be used", domain.ErrConfig)

var ErrMissingReport = fmt.Errorf("%w: could not determine pass or fail status of the submission", domain.ErrConfig)

// Inputs are the run options supplied by the CI step.
type Inputs struct {
	ReportFilePath string
	FailSubmission bool
	Feedback       string
	TestMode       bool
}

// Validate fails when the run has no way to determine an outcome.
func (in Inputs) Validate() error {
	if !in.FailSubmission && strings.TrimSpace(in.ReportFilePath) == "" {
		return ErrMissingReportPath
	}
	return nil
}

// NeedsReport reports whether the report document must be read.
func (in Inputs) NeedsReport() bool { return !in.FailSubmission }

// Plan is the derived result of a run before anything is sent.
type Plan struct {
	Decision  domain.Decision
	Status    domain.Status
	Variables domain.Variables
}

// Prepare derives the plan. report must be non-nil unless in.FailSubmission
// is set; it is ignored when failing.
func Prepare(in Inputs, sub domain.Submission, report *domain.Report) (Plan, error) {
	if err := in.Validate(); err != nil {
		return Plan{}, err
	}
	if in.FailSubmission {
		report = nil
	} else if report == nil {
		return Plan{}, ErrMissingReport
	}

	status := ResolveStatus(in, report)
	plan := Plan{
		Status:    status,
		Variables: BuildVariables(sub, status, Feedback(report, in.Feedback)),
	}
	plan.Decision = Decide(in, status, IsSkip(report))
	return plan, nil
}

// ResolveStatus forces failure when the submission is failed unconditionally.
func ResolveStatus(in Inputs, report *domain.Report) domain.Status {
	if in.FailSubmission {
		return domain.StatusFailure
	}
	if report == nil {
		return ""
	}
	return report.Status
}

func IsSkip(report *domain.Report) bool {
	return report != nil && report.Grade == domain.SkipGrade
}

// Grades grants full credit on every criterion when the submission passed.
// There is no partial-credit path.
func Grades(criteria []domain.EvaluationCriterion, passed bool) []domain.GradeInput {
	if !passed || len(criteria) == 0 {
		return nil
	}
	out := make([]domain.GradeInput, 0, len(criteria))
	for _, ec := range criteria {
		out = append(out, domain.GradeInput{
			EvaluationCriterionID: ec.ID,
			Grade:                 ec.MaxGrade,
		})
	}
	return out
}

// Feedback prefers the report's feedback and falls back to the configured text.
func Feedback(report *domain.Report, fallback string) string {
	if report != nil && report.Feedback != "" {
		return report.Feedback
	}
	return fallback
}

func BuildVariables(sub domain.Submission, status domain.Status, feedback string) domain.Variables {
	return domain.Variables{
		SubmissionID: sub.ID,
		Checklist:    sub.Checklist,
		Feedback:     feedback,
		Grades:       Grades(sub.Target.EvaluationCriteria, status == domain.StatusSuccess),
	}
}

// Decide picks exactly one dispatch outcome. The order matters: test mode
// wins over everything, and a forced failure is always sent.
func Decide(in Inputs, status domain.Status, skip bool) domain.Decision {
	switch {
	case in.TestMode:
		return domain.DecisionPreview
	case in.FailSubmission:
		return domain.DecisionSend
	case skip:
		return domain.DecisionSkip
	case !status.Valid():
		return domain.DecisionInvalidStatus
	default:
		return domain.DecisionSend
	}
}

// IsConfigError reports whether err aborts the run.
func IsConfigError(err error) bool {
	return errors.Is(err, domain.ErrConfig)
}
