package domain

import "encoding/json"

// EvaluationCriterion is one gradable dimension of a submission.
type EvaluationCriterion struct {
	ID       string  `json:"id"`
	MaxGrade float64 `json:"max_grade"`
}

type Target struct {
	EvaluationCriteria []EvaluationCriterion `json:"evaluation_criteria"`
}

// Submission is read from submission.json at the workspace root.
type Submission struct {
	ID     string `json:"id"`
	Target Target `json:"target"`
	// Checklist is never interpreted, only forwarded.
	Checklist json.RawMessage `json:"checklist,omitempty"`
}
