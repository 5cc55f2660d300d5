package grading

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/osvaldoandrade/gradeq/pkg/domain"
)

func sampleSubmission() domain.Submission {
	return domain.Submission{
		ID: "S1",
		Target: domain.Target{EvaluationCriteria: []domain.EvaluationCriterion{
			{ID: "C1", MaxGrade: 10},
			{ID: "C2", MaxGrade: 5},
		}},
		Checklist: json.RawMessage(`{"a":true}`),
	}
}

func TestPrepareSuccessGrantsFullCredit(t *testing.T) {
	in := Inputs{ReportFilePath: "report.json"}
	report := &domain.Report{Status: domain.StatusSuccess, Grade: "pass", Feedback: "good job"}

	plan, err := Prepare(in, sampleSubmission(), report)
	require.NoError(t, err)
	require.Equal(t, domain.DecisionSend, plan.Decision)
	require.Equal(t, domain.StatusSuccess, plan.Status)

	b, err := json.Marshal(plan.Variables)
	require.NoError(t, err)
	require.JSONEq(t, `{
		"submissionId": "S1",
		"checklist": {"a": true},
		"feedback": "good job",
		"grades": [
			{"evaluationCriterionId": "C1", "grade": 10},
			{"evaluationCriterionId": "C2", "grade": 5}
		]
	}`, string(b))
}

func TestPrepareFailureFallsBackToFeedbackInput(t *testing.T) {
	in := Inputs{ReportFilePath: "report.json", Feedback: "see rubric"}
	report := &domain.Report{Status: domain.StatusFailure, Grade: "fail"}

	plan, err := Prepare(in, sampleSubmission(), report)
	require.NoError(t, err)
	require.Equal(t, domain.DecisionSend, plan.Decision)
	require.Equal(t, "see rubric", plan.Variables.Feedback)
	require.Nil(t, plan.Variables.Grades)

	b, err := json.Marshal(plan.Variables)
	require.NoError(t, err)
	require.NotContains(t, string(b), "grades")
}

func TestPrepareSkip(t *testing.T) {
	for _, status := range []domain.Status{domain.StatusSuccess, domain.StatusFailure, "weird"} {
		report := &domain.Report{Status: status, Grade: "skip"}
		plan, err := Prepare(Inputs{ReportFilePath: "r.json"}, sampleSubmission(), report)
		require.NoError(t, err)
		require.Equal(t, domain.DecisionSkip, plan.Decision, "status %q", status)
	}
}

func TestPrepareInvalidStatus(t *testing.T) {
	for _, status := range []domain.Status{"", "pending", "SUCCESS"} {
		report := &domain.Report{Status: status, Grade: "pass"}
		plan, err := Prepare(Inputs{ReportFilePath: "r.json"}, sampleSubmission(), report)
		require.NoError(t, err)
		require.Equal(t, domain.DecisionInvalidStatus, plan.Decision, "status %q", status)
		require.Empty(t, plan.Variables.Grades)
	}
}

func TestPrepareErrorStatusIsSent(t *testing.T) {
	report := &domain.Report{Status: domain.StatusError, Grade: "x", Feedback: "crashed"}
	plan, err := Prepare(Inputs{ReportFilePath: "r.json"}, sampleSubmission(), report)
	require.NoError(t, err)
	require.Equal(t, domain.DecisionSend, plan.Decision)
	require.Empty(t, plan.Variables.Grades)
	require.Equal(t, "crashed", plan.Variables.Feedback)
}

func TestPrepareFailSubmissionIgnoresReport(t *testing.T) {
	in := Inputs{FailSubmission: true, Feedback: "late"}
	// a skip report must not matter when the submission is failed unconditionally
	report := &domain.Report{Status: domain.StatusSuccess, Grade: "skip", Feedback: "ignored"}

	plan, err := Prepare(in, sampleSubmission(), report)
	require.NoError(t, err)
	require.Equal(t, domain.DecisionSend, plan.Decision)
	require.Equal(t, domain.StatusFailure, plan.Status)
	require.Equal(t, "late", plan.Variables.Feedback)
	require.Nil(t, plan.Variables.Grades)

	plan, err = Prepare(in, sampleSubmission(), nil)
	require.NoError(t, err)
	require.Equal(t, domain.DecisionSend, plan.Decision)
}

func TestPrepareTestModeAlwaysPreviews(t *testing.T) {
	cases := []struct {
		name   string
		in     Inputs
		report *domain.Report
	}{
		{"send", Inputs{ReportFilePath: "r.json", TestMode: true}, &domain.Report{Status: domain.StatusSuccess}},
		{"skip", Inputs{ReportFilePath: "r.json", TestMode: true}, &domain.Report{Status: domain.StatusSuccess, Grade: "skip"}},
		{"invalid", Inputs{ReportFilePath: "r.json", TestMode: true}, &domain.Report{Status: "nope"}},
		{"fail", Inputs{FailSubmission: true, TestMode: true}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			plan, err := Prepare(tc.in, sampleSubmission(), tc.report)
			require.NoError(t, err)
			require.Equal(t, domain.DecisionPreview, plan.Decision)
		})
	}
}

func TestPrepareConfigErrors(t *testing.T) {
	_, err := Prepare(Inputs{}, sampleSubmission(), &domain.Report{})
	require.ErrorIs(t, err, ErrMissingReportPath)
	require.True(t, IsConfigError(err))

	_, err = Prepare(Inputs{ReportFilePath: "  "}, sampleSubmission(), &domain.Report{})
	require.ErrorIs(t, err, ErrMissingReportPath)

	_, err = Prepare(Inputs{ReportFilePath: "r.json"}, sampleSubmission(), nil)
	require.ErrorIs(t, err, ErrMissingReport)
	require.True(t, errors.Is(err, domain.ErrConfig))
}

func TestGradesCoverEveryCriterion(t *testing.T) {
	criteria := make([]domain.EvaluationCriterion, 0, 7)
	for i := 0; i < 7; i++ {
		criteria = append(criteria, domain.EvaluationCriterion{ID: string(rune('A' + i)), MaxGrade: float64(i) + 0.5})
	}
	got := Grades(criteria, true)
	require.Len(t, got, len(criteria))
	for i, g := range got {
		require.Equal(t, criteria[i].ID, g.EvaluationCriterionID)
		require.Equal(t, criteria[i].MaxGrade, g.Grade)
	}

	require.Nil(t, Grades(criteria, false))
	require.Nil(t, Grades(nil, true))
}

func TestFeedbackPrecedence(t *testing.T) {
	require.Equal(t, "report", Feedback(&domain.Report{Feedback: "report"}, "input"))
	require.Equal(t, "input", Feedback(&domain.Report{}, "input"))
	require.Equal(t, "input", Feedback(nil, "input"))
	require.Equal(t, "", Feedback(nil, ""))
}
