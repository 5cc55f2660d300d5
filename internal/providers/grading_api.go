package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/osvaldoandrade/gradeq/internal/tracing"
	"github.com/osvaldoandrade/gradeq/pkg/domain"
)

const gradeSubmissionOperation = "GradeSubmission"

const gradeSubmissionMutation = `mutation GradeSubmission(
  $submissionId: ID!
  $grades: [GradeInput!]
  $checklist: JSON!
  $feedback: String
) {
  createGrading(
    submissionId: $submissionId
    grades: $grades
    checklist: $checklist
    feedback: $feedback
  ) {
    success
  }
}`

// ErrInvalidEndpoint is returned when the endpoint is unset or not an http(s)
// URL. It is a remote failure like any other and never aborts the run.
var ErrInvalidEndpoint = errors.New("grading endpoint is not a valid http(s) URL (set REVIEW_END_POINT)")

// GradingAPI records grades on the remote review service.
type GradingAPI interface {
	GradeSubmission(ctx context.Context, vars domain.Variables) (json.RawMessage, error)
}

// HTTPError is returned for non-2xx responses.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("grading service error (%d): %s", e.StatusCode, e.Body)
}

type GraphQLError struct {
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
	Ext     any    `json:"extensions,omitempty"`
}

// GraphQLErrors is returned when the response carries an errors array.
type GraphQLErrors []GraphQLError

func (e GraphQLErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, ge := range e {
		msgs = append(msgs, ge.Message)
	}
	return "graphql: " + strings.Join(msgs, "; ")
}

type graphQLRequest struct {
	Query         string           `json:"query"`
	OperationName string           `json:"operationName"`
	Variables     domain.Variables `json:"variables"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors GraphQLErrors   `json:"errors"`
}

type gradingAPI struct {
	endpoint   string
	token      string
	httpClient *http.Client
	newID      func() string
}

type Option func(*gradingAPI)

func WithHTTPClient(hc *http.Client) Option {
	return func(g *gradingAPI) {
		if hc != nil {
			g.httpClient = hc
		}
	}
}

// WithRequestID fixes the X-Request-Id generator.
func WithRequestID(fn func() string) Option {
	return func(g *gradingAPI) {
		if fn != nil {
			g.newID = fn
		}
	}
}

// NewGradingAPI builds a client for the GraphQL endpoint. A zero timeout
// leaves the client without one.
func NewGradingAPI(endpoint, token string, timeout time.Duration, opts ...Option) GradingAPI {
	g := &gradingAPI{
		endpoint:   strings.TrimSpace(endpoint),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		newID:      func() string { return uuid.NewString() },
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *gradingAPI) GradeSubmission(ctx context.Context, vars domain.Variables) (json.RawMessage, error) {
	if !validEndpoint(g.endpoint) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEndpoint, g.endpoint)
	}
	body, err := json.Marshal(graphQLRequest{
		Query:         gradeSubmissionMutation,
		OperationName: gradeSubmissionOperation,
		Variables:     vars,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.token)
	req.Header.Set("X-Request-Id", g.newID())
	tracing.InjectHeaders(ctx, req.Header)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var out graphQLResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("invalid JSON response: %w", err)
	}
	if len(out.Errors) > 0 {
		return nil, out.Errors
	}
	return out.Data, nil
}

func validEndpoint(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
