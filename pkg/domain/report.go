package domain

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusError   Status = "error"
)

// SkipGrade is the report grade label that suppresses grading.
const SkipGrade = "skip"

// Valid reports whether s is one of the statuses the grading service accepts.
func (s Status) Valid() bool {
	switch s {
	case StatusSuccess, StatusFailure, StatusError:
		return true
	}
	return false
}

// Report is the outcome of the automated check step that ran before gradeq.
type Report struct {
	Status   Status `json:"status"`
	Grade    string `json:"grade"`
	Feedback string `json:"feedback"`
}
