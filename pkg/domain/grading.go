package domain

import (
	"encoding/json"
	"errors"
)

// ErrConfig marks errors caused by missing or malformed run inputs. They abort
// the run before any request is sent.
var ErrConfig = errors.New("configuration error")

type GradeInput struct {
	EvaluationCriterionID string  `json:"evaluationCriterionId"`
	Grade                 float64 `json:"grade"`
}

// Variables is the variable set of the GradeSubmission mutation. Grades is
// omitted from the wire when empty; the service treats a missing list
// differently from an empty one.
type Variables struct {
	SubmissionID string          `json:"submissionId"`
	Checklist    json.RawMessage `json:"checklist,omitempty"`
	Feedback     string          `json:"feedback"`
	Grades       []GradeInput    `json:"grades,omitempty"`
}

type Decision string

const (
	DecisionPreview       Decision = "preview"
	DecisionSkip          Decision = "skip"
	DecisionInvalidStatus Decision = "invalid_status"
	DecisionSend          Decision = "send"
)

// Sends reports whether the decision results in a mutation call.
func (d Decision) Sends() bool { return d == DecisionSend }

// Outcome describes what a run did.
type Outcome struct {
	Decision  Decision
	Status    Status
	Variables Variables
	// Response holds the mutation's data object, set only when the call succeeded.
	Response json.RawMessage
	// Err is the remote call failure, if any. It is reported, never returned.
	Err error
}
